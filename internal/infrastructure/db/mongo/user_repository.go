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

const (
	usersCollection = "users"
	rolesCollection = "roles"
)

// UserRepository persists users and resolves their roles eagerly, so callers
// always receive a user with permissions available.
type UserRepository struct {
	users *mongo.Collection
	roles *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		users: db.Collection(usersCollection),
		roles: db.Collection(rolesCollection),
	}
}

type userDoc struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	Nickname            string             `bson:"nickname"`
	Email               string             `bson:"email"`
	PasswordHash        string             `bson:"password_hash"`
	Enabled             bool               `bson:"enabled"`
	FailedLoginAttempts int                `bson:"failed_login_attempts"`
	LockedUntil         *time.Time         `bson:"locked_until,omitempty"`
	LastLoginAt         *time.Time         `bson:"last_login_at,omitempty"`
	CreatedAt           time.Time          `bson:"created_at"`
	Roles               []string           `bson:"roles"`
}

type roleDoc struct {
	Name        string   `bson:"name"`
	Permissions []string `bson:"permissions"`
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := userDoc{
		Nickname:            user.Nickname,
		Email:               user.Email,
		PasswordHash:        user.PasswordHash,
		Enabled:             user.Enabled,
		FailedLoginAttempts: user.FailedLoginAttempts,
		LockedUntil:         user.LockedUntil,
		LastLoginAt:         user.LastLoginAt,
		CreatedAt:           user.CreatedAt,
		Roles:               roleNames(user.Roles),
	}

	res, err := r.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	created := *user
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		created.ID = oid.Hex()
	}
	return &created, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	if err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	roles, err := r.resolveRoles(ctx, doc.Roles)
	if err != nil {
		return nil, err
	}

	return &domain.User{
		ID:                  doc.ID.Hex(),
		Nickname:            doc.Nickname,
		Email:               doc.Email,
		PasswordHash:        doc.PasswordHash,
		Enabled:             doc.Enabled,
		FailedLoginAttempts: doc.FailedLoginAttempts,
		LockedUntil:         doc.LockedUntil,
		LastLoginAt:         doc.LastLoginAt,
		CreatedAt:           doc.CreatedAt,
		Roles:               roles,
	}, nil
}

// Save persists the mutable account-protection fields. Last-writer-wins is
// acceptable here; only the refresh ledger needs stronger guarantees.
func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"enabled":               user.Enabled,
		"failed_login_attempts": user.FailedLoginAttempts,
		"locked_until":          user.LockedUntil,
		"last_login_at":         user.LastLoginAt,
	}}

	res, err := r.users.UpdateOne(ctx, bson.M{"email": user.Email}, update)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) resolveRoles(ctx context.Context, names []string) ([]domain.Role, error) {
	if len(names) == 0 {
		return nil, nil
	}

	cur, err := r.roles.Find(ctx, bson.M{"name": bson.M{"$in": names}})
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	defer cur.Close(ctx)

	var roles []domain.Role
	for cur.Next(ctx) {
		var doc roleDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode role: %w", err)
		}
		roles = append(roles, domain.Role{Name: doc.Name, Permissions: doc.Permissions})
	}
	return roles, cur.Err()
}

// EnsureIndexes creates the unique email index.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func roleNames(roles []domain.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}
