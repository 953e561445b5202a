// Package seed provisions the default roles this service expects to exist.
// Registration fails with a configuration error when the default role is
// missing, so seeding runs before the server accepts traffic.
package seed

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

var defaultRoles = []domain.Role{
	{Name: domain.DefaultRoleName, Permissions: []string{"READ_PRIVILEGES", "WRITE_PRIVILEGES"}},
}

// Roles upserts the default roles. Idempotent: existing roles keep whatever
// permissions an operator has given them.
func Roles(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection("roles")

	for _, role := range defaultRoles {
		update := bson.M{"$setOnInsert": bson.M{
			"name":        role.Name,
			"permissions": role.Permissions,
		}}
		_, err := coll.UpdateOne(ctx, bson.M{"name": role.Name}, update, options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("seed role %s: %w", role.Name, err)
		}
	}
	return nil
}
