package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/princinho/userdirectory/config"
	"github.com/princinho/userdirectory/controllers"
	"github.com/princinho/userdirectory/database"
	"github.com/princinho/userdirectory/logger"
	"github.com/princinho/userdirectory/middleware"
	"github.com/princinho/userdirectory/services"
	"github.com/princinho/userdirectory/utils"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Error loading .env file:", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	// seeding users
	users := database.NewUserDirectory()
	seedDirectory(users, cfg, log)

	sessions, closeSessions := openSessionStore(ctx, cfg, log)
	defer closeSessions()

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		generated, err := utils.NewOpaqueToken(32)
		if err != nil {
			log.Fatal("generate jwt secret", zap.Error(err))
		}
		secret = []byte(generated)
		log.Warn("JWT_SECRET not set, using a random per-process secret; tokens will not survive a restart")
	}

	svc, err := services.NewDirectoryService(users, sessions, services.Options{
		JWTSecret:    secret,
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		PasswordCost: cfg.BcryptCost,
	}, log)
	if err != nil {
		log.Fatal("init directory service", zap.Error(err))
	}

	r := gin.New()
	r.Use(corsMiddleware(cfg.AllowedOrigins, log))
	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())
	controllers.RegisterRoutes(r, svc)

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

func seedDirectory(users *database.UserDirectory, cfg config.Config, log *zap.Logger) {
	seed, err := utils.LoadSeedFile(cfg.SeedFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info("no seed file", zap.String("path", cfg.SeedFile))
	case err != nil:
		log.Fatal("load seed file", zap.Error(err))
	default:
		n, err := utils.SeedUsers(users, seed, cfg.BcryptCost)
		if err != nil {
			log.Fatal("seed users", zap.Error(err))
		}
		log.Info("seeded users", zap.Int("count", n), zap.String("path", cfg.SeedFile))
	}

	if cfg.AdminEmail != "" || cfg.AdminPassword != "" {
		created, err := utils.SeedAdminUser(users, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost)
		if err != nil {
			log.Fatal("seed admin", zap.Error(err))
		}
		if created {
			log.Info("Admin user seeded", zap.String("email", cfg.AdminEmail))
		} else {
			log.Info("Admin user already exists", zap.String("email", cfg.AdminEmail))
		}
	}
}

func openSessionStore(ctx context.Context, cfg config.Config, log *zap.Logger) (services.SessionStore, func()) {
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Fatal("ping redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		log.Info("using redis session store", zap.String("addr", cfg.RedisAddr))

		return database.NewRedisSessionStore(client), func() { _ = client.Close() }

	case config.SessionStoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := database.Connect(connectCtx, cfg.MongoURI)
		if err != nil {
			log.Fatal("connect mongo", zap.Error(err))
		}
		store := database.NewMongoSessionStore(database.OpenCollection(client, cfg.DatabaseName, database.RefreshTokensCollection))
		if err := store.EnsureIndexes(connectCtx); err != nil {
			log.Fatal("mongo indexes", zap.Error(err))
		}
		log.Info("using mongo session store", zap.String("database", cfg.DatabaseName))

		return store, func() { _ = client.Disconnect(context.Background()) }

	default:
		log.Info("using in-memory session store")
		return database.NewMemorySessionStore(), func() {}
	}
}

func corsMiddleware(origins []string, log *zap.Logger) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	allowed := map[string]bool{}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
		allowed[o] = true
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowCredentials = true
		cfg.AllowOriginFunc = func(origin string) bool {
			return allowed[origin]
		}
	}
	log.Info("cors configured", zap.Strings("origins", origins))

	return cors.New(cfg)
}
