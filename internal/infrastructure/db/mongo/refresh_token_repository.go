package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

const refreshTokensCollection = "refresh_tokens"

// RefreshTokenRepository is the Mongo-backed session ledger. Rows are never
// deleted; the revoked flag only ever moves false → true.
type RefreshTokenRepository struct {
	coll *mongo.Collection
}

func NewRefreshTokenRepository(db *mongo.Database) *RefreshTokenRepository {
	return &RefreshTokenRepository{coll: db.Collection(refreshTokensCollection)}
}

type refreshTokenDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Token      string             `bson:"token"`
	UserID     string             `bson:"user_id"`
	Subject    string             `bson:"subject"`
	CreatedAt  time.Time          `bson:"created_at"`
	ExpiresAt  time.Time          `bson:"expires_at"`
	Revoked    bool               `bson:"revoked"`
	LastUsedAt *time.Time         `bson:"last_used_at,omitempty"`
}

func (r *RefreshTokenRepository) Save(ctx context.Context, t *domain.RefreshToken) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := refreshTokenDoc{
		Token:      t.Token,
		UserID:     t.UserID,
		Subject:    t.Subject,
		CreatedAt:  t.CreatedAt,
		ExpiresAt:  t.ExpiresAt,
		Revoked:    t.Revoked,
		LastUsedAt: t.LastUsedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindActiveByToken looks up the non-revoked row for the token string. An
// absent row and an already-consumed row are indistinguishable by design.
func (r *RefreshTokenRepository) FindActiveByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	return r.findOne(ctx, bson.M{"token": token, "revoked": false})
}

func (r *RefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	return r.findOne(ctx, bson.M{"token": token})
}

// Consume atomically flips the revoked flag of the single active row matching
// the token string. The filter on revoked:false is what makes consumption
// at-most-once: a concurrent consumer matches zero rows and gets
// domain.ErrTokenRevoked.
func (r *RefreshTokenRepository) Consume(ctx context.Context, token string, now time.Time) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"revoked": true, "last_used_at": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc refreshTokenDoc
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"token": token, "revoked": false}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTokenRevoked
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return docToRefreshToken(&doc), nil
}

// Revoke marks the row revoked without touching last_used_at. Used for lazy
// expiry detection and ledger trimming; already-revoked rows are a no-op.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, token string, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.coll.UpdateOne(ctx, bson.M{"token": token}, bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) CountActive(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"user_id": userID, "revoked": false})
	if err != nil {
		return 0, fmt.Errorf("count active refresh tokens: %w", err)
	}
	return n, nil
}

func (r *RefreshTokenRepository) OldestActive(ctx context.Context, userID string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})

	var doc refreshTokenDoc
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID, "revoked": false}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTokenRevoked
		}
		return nil, fmt.Errorf("find oldest active refresh token: %w", err)
	}
	return docToRefreshToken(&doc), nil
}

func (r *RefreshTokenRepository) AllActiveByCreatedDesc(ctx context.Context, userID string) ([]domain.RefreshToken, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.findAll(ctx, bson.M{"user_id": userID, "revoked": false}, opts)
}

func (r *RefreshTokenRepository) AllExpiredActive(ctx context.Context, userID string, now time.Time) ([]domain.RefreshToken, error) {
	filter := bson.M{
		"user_id":    userID,
		"revoked":    false,
		"expires_at": bson.M{"$lt": now},
	}
	return r.findAll(ctx, filter, options.Find())
}

// EnsureIndexes creates the unique token index and the ledger query indexes.
func (r *RefreshTokenRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "revoked", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	_, err := r.coll.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *RefreshTokenRepository) findOne(ctx context.Context, filter bson.M) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc refreshTokenDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTokenRevoked
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return docToRefreshToken(&doc), nil
}

func (r *RefreshTokenRepository) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find refresh tokens: %w", err)
	}
	defer cur.Close(ctx)

	var tokens []domain.RefreshToken
	for cur.Next(ctx) {
		var doc refreshTokenDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode refresh token: %w", err)
		}
		tokens = append(tokens, *docToRefreshToken(&doc))
	}
	return tokens, cur.Err()
}

func docToRefreshToken(doc *refreshTokenDoc) *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:         doc.ID.Hex(),
		Token:      doc.Token,
		UserID:     doc.UserID,
		Subject:    doc.Subject,
		CreatedAt:  doc.CreatedAt,
		ExpiresAt:  doc.ExpiresAt,
		Revoked:    doc.Revoked,
		LastUsedAt: doc.LastUsedAt,
	}
}
