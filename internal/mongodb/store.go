package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const createIndexTimeout = 5 * time.Second

// EnsureUniqueIndex adds a unique index over the specified field of the
// specified collection.
func EnsureUniqueIndex(collection *mongo.Collection, field string) error {
	ctx, cancel :=
		context.WithTimeout(context.Background(), createIndexTimeout)
	defer cancel()
	unique := true
	if _, err := collection.Indexes().CreateOne(
		ctx,
		mongo.IndexModel{
			Keys: bson.M{
				field: 1,
			},
			Options: &options.IndexOptions{
				Unique: &unique,
			},
		},
	); err != nil {
		return errors.Wrapf(
			err,
			"error adding indexes to %s collection",
			collection.Name(),
		)
	}
	return nil
}

// CheckHealth pings the database's primary.
func CheckHealth(ctx context.Context, database *mongo.Database) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := database.Client().Ping(
		pingCtx,
		readpref.Primary(),
	); err != nil {
		return errors.Wrap(err, "error pinging mongodb database")
	}
	return nil
}

// IsDuplicateKeyError returns a bool indicating whether the specified error
// was caused by a unique index violation.
func IsDuplicateKeyError(err error) bool {
	if writeException, ok := err.(mongo.WriteException); ok {
		return len(writeException.WriteErrors) == 1 &&
			writeException.WriteErrors[0].Code == 11000
	}
	return false
}
