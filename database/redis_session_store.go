package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/princinho/userdirectory/models"
)

const (
	sessionPrefix      = "sessions:"
	refreshPrefix      = "refresh:"
	userSessionsPrefix = "user_sessions:"

	maxRevokeAttempts = 3
)

// RedisSessionStore keeps sessions in Redis so they survive a restart of this
// process and can be shared by several replicas.
type RedisSessionStore struct {
	client *goredis.Client
	now    func() time.Time
}

func NewRedisSessionStore(client *goredis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

func (r *RedisSessionStore) Create(ctx context.Context, session models.SessionRecord) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(session.ID) == "" || session.RefreshHash == "" || session.UserID <= 0 {
		return models.ErrValidation
	}

	ttl := r.ttlFor(session.ExpiresAt)
	indexTTL, err := r.client.TTL(ctx, userSessionsKey(session.UserID)).Result()
	if err != nil {
		return fmt.Errorf("load session index ttl: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(session.ID), sessionFields(session))
	pipe.Expire(ctx, sessionKey(session.ID), ttl)
	pipe.Set(ctx, refreshKey(session.RefreshHash), session.ID, ttl)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.ID)
	// the index outlives every session it lists
	if ttl > indexTTL {
		pipe.Expire(ctx, userSessionsKey(session.UserID), ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create redis session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Get(ctx context.Context, sessionID string) (models.SessionRecord, error) {
	if r.client == nil {
		return models.SessionRecord{}, fmt.Errorf("redis client is nil")
	}

	values, err := r.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("get session hash: %w", err)
	}
	if len(values) == 0 {
		return models.SessionRecord{}, models.ErrSessionNotFound
	}

	rec, err := parseSessionRecord(values)
	if err != nil {
		return models.SessionRecord{}, err
	}
	rec.ID = sessionID
	return rec, nil
}

func (r *RedisSessionStore) GetByRefreshHash(ctx context.Context, refreshHash string) (models.SessionRecord, error) {
	if r.client == nil {
		return models.SessionRecord{}, fmt.Errorf("redis client is nil")
	}

	sid, err := r.client.Get(ctx, refreshKey(refreshHash)).Result()
	if errors.Is(err, goredis.Nil) {
		return models.SessionRecord{}, models.ErrSessionNotFound
	}
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("get refresh pointer: %w", err)
	}
	return r.Get(ctx, sid)
}

// Rotate replaces the refresh hash under WATCH, so a concurrent rotation or
// revocation of the same session aborts this one. The user's session index is
// stretched to the new expiry so RevokeAllForUser still finds the session.
func (r *RedisSessionStore) Rotate(ctx context.Context, sessionID, oldHash, newHash string, expiresAt time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		fields, err := tx.HMGet(ctx, sessionKey(sessionID), "refresh_hash", "revoked_at", "user_id").Result()
		if err != nil {
			return fmt.Errorf("load session for rotate: %w", err)
		}
		current, _ := fields[0].(string)
		revoked, _ := fields[1].(string)
		rawUserID, _ := fields[2].(string)
		userID, err := strconv.ParseInt(rawUserID, 10, 64)
		if current == "" || err != nil || current != oldHash || revoked != "" {
			return models.ErrSessionNotFound
		}

		ttl := r.ttlFor(expiresAt)
		indexTTL, err := tx.TTL(ctx, userSessionsKey(userID)).Result()
		if err != nil {
			return fmt.Errorf("load session index ttl: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, refreshKey(oldHash))
			pipe.HSet(ctx, sessionKey(sessionID), map[string]interface{}{
				"refresh_hash": newHash,
				"expires_at":   expiresAt.Unix(),
			})
			pipe.Expire(ctx, sessionKey(sessionID), ttl)
			pipe.Set(ctx, refreshKey(newHash), sessionID, ttl)
			pipe.SAdd(ctx, userSessionsKey(userID), sessionID)
			if ttl > indexTTL {
				pipe.Expire(ctx, userSessionsKey(userID), ttl)
			}
			return nil
		})
		return err
	}, sessionKey(sessionID), refreshKey(oldHash))

	if errors.Is(err, goredis.TxFailedErr) {
		return models.ErrSessionNotFound
	}
	if err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return err
}

// Revoke marks the session revoked and drops its refresh pointer. The session
// hash itself lives on until its original expiry so Get keeps reporting it as
// revoked.
func (r *RedisSessionStore) Revoke(ctx context.Context, sessionID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}

	for attempt := 0; attempt < maxRevokeAttempts; attempt++ {
		err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
			fields, err := tx.HMGet(ctx, sessionKey(sessionID), "refresh_hash", "expires_at").Result()
			if err != nil {
				return fmt.Errorf("load session for revoke: %w", err)
			}
			refreshHash, _ := fields[0].(string)
			rawExpiry, _ := fields[1].(string)
			if refreshHash == "" {
				return nil
			}
			expiresUnix, err := strconv.ParseInt(rawExpiry, 10, 64)
			if err != nil {
				return fmt.Errorf("parse session expiry: %w", err)
			}
			expiresAt := time.Unix(expiresUnix, 0)

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Del(ctx, refreshKey(refreshHash))
				if !expiresAt.After(r.now()) {
					pipe.Del(ctx, sessionKey(sessionID))
					return nil
				}
				pipe.HSet(ctx, sessionKey(sessionID), "revoked_at", r.now().UTC().Unix())
				pipe.ExpireAt(ctx, sessionKey(sessionID), expiresAt)
				return nil
			})
			return err
		}, sessionKey(sessionID))

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
		return nil
	}
	return fmt.Errorf("revoke session %s: %w", sessionID, goredis.TxFailedErr)
}

func (r *RedisSessionStore) RevokeAllForUser(ctx context.Context, userID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if userID <= 0 {
		return models.ErrValidation
	}

	sids, err := r.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}
	for _, sid := range sids {
		if err := r.Revoke(ctx, sid); err != nil {
			return err
		}
	}
	if err := r.client.Del(ctx, userSessionsKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete user sessions key: %w", err)
	}
	return nil
}

func sessionFields(s models.SessionRecord) map[string]interface{} {
	return map[string]interface{}{
		"user_id":      s.UserID,
		"role":         string(s.Role),
		"refresh_hash": s.RefreshHash,
		"expires_at":   s.ExpiresAt.Unix(),
		"created_at":   s.CreatedAt.Unix(),
	}
}

func parseSessionRecord(values map[string]string) (models.SessionRecord, error) {
	userID, err := strconv.ParseInt(values["user_id"], 10, 64)
	if err != nil || userID <= 0 {
		return models.SessionRecord{}, models.ErrSessionNotFound
	}
	expiresUnix, err := strconv.ParseInt(values["expires_at"], 10, 64)
	if err != nil {
		return models.SessionRecord{}, models.ErrSessionNotFound
	}
	createdUnix, _ := strconv.ParseInt(values["created_at"], 10, 64)

	rec := models.SessionRecord{
		UserID:      userID,
		Role:        models.Role(values["role"]),
		RefreshHash: values["refresh_hash"],
		ExpiresAt:   time.Unix(expiresUnix, 0).UTC(),
		CreatedAt:   time.Unix(createdUnix, 0).UTC(),
	}
	if v := values["revoked_at"]; v != "" {
		if revokedUnix, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.Unix(revokedUnix, 0).UTC()
			rec.RevokedAt = &t
		}
	}
	return rec, nil
}

func (r *RedisSessionStore) ttlFor(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}

func sessionKey(sid string) string {
	return sessionPrefix + sid
}

func refreshKey(hash string) string {
	return refreshPrefix + hash
}

func userSessionsKey(userID int64) string {
	return userSessionsPrefix + strconv.FormatInt(userID, 10)
}
