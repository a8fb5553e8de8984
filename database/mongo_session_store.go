package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/princinho/userdirectory/models"
)

const RefreshTokensCollection = "refresh_tokens"

// MongoSessionStore keeps one refresh_tokens document per session. Rotation
// rewrites tokenHash in place; revocation stamps revokedAt.
type MongoSessionStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoSessionStore(col *mongo.Collection) *MongoSessionStore {
	return &MongoSessionStore{col: col, now: time.Now}
}

// EnsureIndexes creates the lookup indexes and a TTL index that lets MongoDB
// drop documents once expiresAt has passed.
func (m *MongoSessionStore) EnsureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tokenHash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return fmt.Errorf("create refresh token indexes: %w", err)
	}
	return nil
}

func (m *MongoSessionStore) Create(ctx context.Context, session models.SessionRecord) error {
	if strings.TrimSpace(session.ID) == "" || session.RefreshHash == "" || session.UserID <= 0 {
		return models.ErrValidation
	}

	_, err := m.col.InsertOne(ctx, models.RefreshToken{
		ID:        session.ID,
		UserID:    session.UserID,
		Role:      session.Role,
		TokenHash: session.RefreshHash,
		ExpiresAt: session.ExpiresAt.UTC(),
		CreatedAt: session.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (m *MongoSessionStore) Get(ctx context.Context, sessionID string) (models.SessionRecord, error) {
	return m.findOne(ctx, bson.M{"_id": sessionID})
}

func (m *MongoSessionStore) GetByRefreshHash(ctx context.Context, refreshHash string) (models.SessionRecord, error) {
	return m.findOne(ctx, bson.M{
		"tokenHash": refreshHash,
		"revokedAt": bson.M{"$exists": false},
	})
}

// Rotate is a single conditional update, so of two refreshes racing on the
// same token only one matches.
func (m *MongoSessionStore) Rotate(ctx context.Context, sessionID, oldHash, newHash string, expiresAt time.Time) error {
	res, err := m.col.UpdateOne(ctx, bson.M{
		"_id":       sessionID,
		"tokenHash": oldHash,
		"revokedAt": bson.M{"$exists": false},
	}, bson.M{
		"$set": bson.M{
			"tokenHash": newHash,
			"expiresAt": expiresAt.UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func (m *MongoSessionStore) Revoke(ctx context.Context, sessionID string) error {
	_, err := m.col.UpdateOne(ctx, bson.M{
		"_id":       sessionID,
		"revokedAt": bson.M{"$exists": false},
	}, bson.M{
		"$set": bson.M{"revokedAt": m.now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (m *MongoSessionStore) RevokeAllForUser(ctx context.Context, userID int64) error {
	_, err := m.col.UpdateMany(ctx, bson.M{
		"userId":    userID,
		"revokedAt": bson.M{"$exists": false},
	}, bson.M{
		"$set": bson.M{"revokedAt": m.now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

func (m *MongoSessionStore) findOne(ctx context.Context, filter bson.M) (models.SessionRecord, error) {
	var doc models.RefreshToken
	err := m.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.SessionRecord{}, models.ErrSessionNotFound
	}
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("find refresh token: %w", err)
	}

	return models.SessionRecord{
		ID:          doc.ID,
		UserID:      doc.UserID,
		Role:        doc.Role,
		RefreshHash: doc.TokenHash,
		ExpiresAt:   doc.ExpiresAt,
		CreatedAt:   doc.CreatedAt,
		RevokedAt:   doc.RevokedAt,
	}, nil
}
