// Package txn provides an explicit transaction scope for multi-record
// mutations. The scope value is returned by begin and passed into every
// repository call made inside the body; there is no ambient session state.
package txn

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrInfrastructure marks transaction begin/commit/rollback failures, as
// opposed to errors raised by the body itself.
var ErrInfrastructure = errors.New("transaction_infrastructure")

// Run begins a transaction, executes fn with the transaction handle, commits
// on normal return and rolls back on any error or panic. No partial commit is
// ever observable: a failure inside fn, including validation failures raised
// before any write, aborts the whole scope. Context cancellation before commit
// rolls back fully.
func Run(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("%w: begin: %v", ErrInfrastructure, tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return errors.Join(err, fmt.Errorf("%w: rollback: %v", ErrInfrastructure, rbErr))
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: commit: %v", ErrInfrastructure, err)
	}
	return nil
}

// IsInfrastructure reports whether err came from the transaction machinery
// rather than the body.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}
