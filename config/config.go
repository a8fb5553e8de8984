package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/princinho/userdirectory/utils"
)

const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
	SessionStoreMongo  = "mongo"
)

type Config struct {
	Port           string
	LogLevel       string
	AllowedOrigins []string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	SeedFile      string
	AdminEmail    string
	AdminPassword string

	SessionStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI     string
	DatabaseName string
}

// LoadEnvFile reads a .env file into the process environment. A missing file
// is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func Load() (Config, error) {
	cfg := Config{
		Port:            envDefault("PORT", "8080"),
		LogLevel:        envDefault("LOG_LEVEL", "info"),
		AllowedOrigins:  splitList(envDefault("ALLOWED_ORIGINS", "*")),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		AccessTokenTTL:  utils.ParseDurationDefault(os.Getenv("ACCESS_TOKEN_TTL"), 24*time.Hour),
		RefreshTokenTTL: utils.ParseDurationDefault(os.Getenv("REFRESH_TOKEN_TTL"), 14*24*time.Hour),
		BcryptCost:      utils.ParseIntDefault(os.Getenv("BCRYPT_COST"), bcrypt.DefaultCost),
		SeedFile:        envDefault("SEED_FILE", "seed.yaml"),
		AdminEmail:      strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		SessionStore:    strings.ToLower(envDefault("SESSION_STORE", SessionStoreMemory)),
		RedisAddr:       envDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         utils.ParseIntDefault(os.Getenv("REDIS_DB"), 0),
		MongoURI:        strings.TrimSpace(os.Getenv("MONGODB_URI")),
		DatabaseName:    envDefault("DATABASE_NAME", "userdirectory"),
	}

	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cfg.BcryptCost)
	}
	switch cfg.SessionStore {
	case SessionStoreMemory, SessionStoreRedis:
	case SessionStoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("SESSION_STORE=%s requires MONGODB_URI", SessionStoreMongo)
		}
	default:
		return Config{}, fmt.Errorf("SESSION_STORE must be one of %q, %q, %q, got %q",
			SessionStoreMemory, SessionStoreRedis, SessionStoreMongo, cfg.SessionStore)
	}

	return cfg, nil
}

func (c Config) Address() string {
	return ":" + c.Port
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
