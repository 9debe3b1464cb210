package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopfloor/bizerror"
	"shopfloor/persistence"
	"shopfloor/testinfra"

	"github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
)

type sample struct {
	ID   uint   `gorm:"primary_key"`
	Name string `gorm:"unique_index:uni_sample_name"`
}

func transactionTestSetup(t *testing.T) *testinfra.TestDatabase {
	testDatabase := testinfra.StartTestDatabase("persistence")
	Expect(testDatabase.DS.GormDB(context.Background()).AutoMigrate(&sample{}).Error).To(BeNil())
	return testDatabase
}

func countSamples(ds *persistence.DataSourceManager) int {
	var n int
	Expect(ds.GormDB(context.Background()).Model(&sample{}).Count(&n).Error).To(BeNil())
	return n
}

func TestTransaction(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()

	t.Run("should commit when fn succeeds", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		err := testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			return tx.Create(&sample{Name: "a"}).Error
		})
		Expect(err).To(BeNil())
		Expect(countSamples(testDatabase.DS)).To(Equal(1))
	})

	t.Run("should rollback when fn fails", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		boom := errors.New("boom")
		err := testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			Expect(tx.Create(&sample{Name: "a"}).Error).To(BeNil())
			return boom
		})
		Expect(err).To(Equal(boom))
		Expect(countSamples(testDatabase.DS)).To(BeZero())
	})

	t.Run("should rollback and repanic when fn panics", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		Expect(func() {
			_ = testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
				Expect(tx.Create(&sample{Name: "a"}).Error).To(BeNil())
				panic("boom")
			})
		}).To(Panic())
		Expect(countSamples(testDatabase.DS)).To(BeZero())
	})

	t.Run("should retry transient errors up to three attempts", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		calls := 0
		err := testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			calls++
			if calls < 3 {
				return &bizerror.TransientError{Cause: errors.New("deadlock")}
			}
			return tx.Create(&sample{Name: "a"}).Error
		})
		Expect(err).To(BeNil())
		Expect(calls).To(Equal(3))
		Expect(countSamples(testDatabase.DS)).To(Equal(1))

		calls = 0
		err = testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			calls++
			return &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
		})
		Expect(bizerror.IsTransient(err)).To(BeTrue())
		Expect(calls).To(Equal(3))
	})

	t.Run("should not retry other errors", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		calls := 0
		err := testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			calls++
			return bizerror.NewValidationError(bizerror.MissingRequired, "operator", "operator is required")
		})
		Expect(bizerror.IsValidation(err, bizerror.MissingRequired)).To(BeTrue())
		Expect(calls).To(Equal(1))
	})

	t.Run("should return typed errors of fn unwrapped", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		failures := []error{
			&bizerror.ConflictError{Entity: "sample", Key: "a"},
			&bizerror.StateError{Entity: "sample", Key: "a", State: "approved", Event: "approve"},
			bizerror.NewValidationError(bizerror.UnknownProcess, "process_name", "unknown process"),
			bizerror.ErrNotFound,
		}
		for _, failure := range failures {
			failure := failure
			err := testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error { return failure })
			Expect(err).To(BeIdenticalTo(failure))
		}

		err := testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			return &bizerror.StateError{Entity: "sample", Key: "a"}
		})
		Expect(bizerror.IsState(err)).To(BeTrue())
		err = testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			return &bizerror.ConflictError{Entity: "sample", Key: "a"}
		})
		Expect(bizerror.IsConflict(err)).To(BeTrue())
	})

	t.Run("should classify unique violations as conflict", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		Expect(testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			return tx.Create(&sample{Name: "a"}).Error
		})).To(BeNil())
		err := testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			return tx.Create(&sample{Name: "a"}).Error
		})
		Expect(bizerror.IsConflict(err)).To(BeTrue())
		Expect(countSamples(testDatabase.DS)).To(Equal(1))
	})

	t.Run("should stop when context is cancelled", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := testDatabase.DS.Transaction(cancelled, func(tx *gorm.DB) error {
			return tx.Create(&sample{Name: "a"}).Error
		})
		Expect(err).ToNot(BeNil())
		Expect(countSamples(testDatabase.DS)).To(BeZero())
	})
}

func TestRead(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()

	t.Run("should read and keep typed errors", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		Expect(testDatabase.DS.Transaction(ctx, func(tx *gorm.DB) error {
			return tx.Create(&sample{Name: "a"}).Error
		})).To(BeNil())
		n := 0
		Expect(testDatabase.DS.Read(ctx, func(db *gorm.DB) error {
			return db.Model(&sample{}).Count(&n).Error
		})).To(BeNil())
		Expect(n).To(Equal(1))

		Expect(testDatabase.DS.Read(ctx, func(db *gorm.DB) error { return bizerror.ErrNotFound })).To(BeIdenticalTo(bizerror.ErrNotFound))
	})

	t.Run("should bound reads by the call timeout", func(t *testing.T) {
		testDatabase := transactionTestSetup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		testDatabase.DS.DatabaseConfig.CallTimeout = time.Nanosecond
		called := false
		err := testDatabase.DS.Read(ctx, func(db *gorm.DB) error {
			called = true
			return nil
		})
		Expect(bizerror.IsTransient(err)).To(BeTrue())
		Expect(called).To(BeFalse())
	})
}

func TestClassifyError(t *testing.T) {
	RegisterTestingT(t)

	Expect(persistence.ClassifyError(nil)).To(BeNil())
	Expect(bizerror.IsConflict(persistence.ClassifyError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))).To(BeTrue())
	Expect(bizerror.IsTransient(persistence.ClassifyError(&mysql.MySQLError{Number: 1205}))).To(BeTrue())
	Expect(bizerror.IsTransient(persistence.ClassifyError(context.DeadlineExceeded))).To(BeTrue())

	plain := errors.New("plain")
	Expect(persistence.ClassifyError(plain)).To(Equal(plain))
	same := &bizerror.StateError{Entity: "e"}
	Expect(persistence.ClassifyError(same)).To(BeIdenticalTo(same))
}
