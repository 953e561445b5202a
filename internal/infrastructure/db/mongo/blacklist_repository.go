package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

const blacklistCollection = "blacklisted_tokens"

// BlacklistRepository is the durable record of revoked access tokens. The
// unique token index plus duplicate-key tolerance makes Save idempotent under
// concurrent invalidation of the same token, with no check-then-act window.
type BlacklistRepository struct {
	coll *mongo.Collection
}

func NewBlacklistRepository(db *mongo.Database) *BlacklistRepository {
	return &BlacklistRepository{coll: db.Collection(blacklistCollection)}
}

type blacklistedTokenDoc struct {
	Token     string    `bson:"token"`
	UserID    string    `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	RevokedAt time.Time `bson:"revoked_at"`
}

func (r *BlacklistRepository) Save(ctx context.Context, t *domain.BlacklistedToken) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := blacklistedTokenDoc{
		Token:     t.Token,
		UserID:    t.UserID,
		ExpiresAt: t.ExpiresAt,
		RevokedAt: t.RevokedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert blacklisted token: %w", err)
	}
	return nil
}

func (r *BlacklistRepository) Exists(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"token": token}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired purges rows past their expiry. The codec already rejects
// those tokens, so the rows are pure bookkeeping at that point.
func (r *BlacklistRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklisted tokens: %w", err)
	}
	return res.DeletedCount, nil
}

// EnsureIndexes creates the unique token index Save's idempotency relies on.
func (r *BlacklistRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	return err
}
