package persistence

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// dbFrom returns the transaction handle carried by the context, or the
// repository's own handle. All repository methods go through it so that a
// batch step's writes share one transaction.
func dbFrom(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// GormTxRunner runs functions inside a database transaction. The transaction
// handle travels in the context, picked up by every repository call made
// within fn.
type GormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner creates a new GormTxRunner
func NewGormTxRunner(db *gorm.DB) *GormTxRunner {
	return &GormTxRunner{db: db}
}

// RunInTransaction executes fn within a transaction, rolling back on error
func (r *GormTxRunner) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
