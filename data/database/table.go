package database

import (
	"context"

	"PPGate/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
)

// Table is a Mongo-backed store bound to one collection.
type Table interface {
	GetTableName() string
	Collection() *mongo.Collection
	Indexes() []mongo.IndexModel
}

// EnsureIndexes creates the indexes every table declares.
func EnsureIndexes(ctx context.Context, tables ...Table) error {
	for _, t := range tables {
		idx := t.Indexes()
		if len(idx) == 0 {
			continue
		}
		if _, err := t.Collection().Indexes().CreateMany(ctx, idx); err != nil {
			return errs.WrapMsg(err, "create indexes", "collection", t.GetTableName())
		}
	}
	return nil
}
