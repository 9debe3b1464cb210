package persistence

import (
	"context"

	"shopfloor/bizerror"

	"github.com/jinzhu/gorm"
	"github.com/juju/retry"
	"github.com/sirupsen/logrus"
)

// Transaction runs fn in one database transaction bounded by the per-call timeout.
// Transient failures are retried with doubling delays, every other error rolls back and is returned classified.
func (m *DataSourceManager) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	attempts := m.DatabaseConfig.RetryAttempts
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	delay := m.DatabaseConfig.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	// retry.Call traces the errors it returns, the classified error is returned instead
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			callCtx, cancel := context.WithTimeout(ctx, m.callTimeout())
			defer cancel()
			lastErr = ClassifyError(runInTx(callCtx, m.GormDB(callCtx), fn))
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !bizerror.IsTransient(err) || ctx.Err() != nil
		},
		NotifyFunc: func(lastError error, attempt int) {
			logrus.Warnf("transaction attempt %d failed, retrying: %v", attempt, lastError)
		},
		Attempts:    attempts,
		Delay:       delay,
		MaxDelay:    delay * 8,
		BackoffFunc: retry.DoubleDelay,
		Clock:       m.clock(),
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if retry.IsRetryStopped(err) && ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr == nil {
		return err
	}
	return lastErr
}

func runInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) (err error) {
	tx := db.BeginTx(ctx, nil)
	if tx.Error != nil {
		return tx.Error
	}
	committed := false
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
		if !committed {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit().Error; err != nil {
		return err
	}
	committed = true
	return nil
}

// Read runs fn in a transaction bounded by the per-call timeout, without retry.
// gorm v1 queries ignore contexts, the deadline is carried by the transaction.
func (m *DataSourceManager) Read(ctx context.Context, fn func(db *gorm.DB) error) error {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout())
	defer cancel()
	return ClassifyError(runInTx(callCtx, m.GormDB(callCtx), fn))
}
