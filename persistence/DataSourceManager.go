package persistence

import (
	"context"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/juju/clock"
	otgorm "github.com/smacker/opentracing-gorm"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCallTimeout   = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 100 * time.Millisecond
)

type DatabaseConfig struct {
	DriverType string
	DriverArgs string

	MaxOpenConns int
	LogMode      bool

	CallTimeout   time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

type DataSourceManager struct {
	gormDB *gorm.DB

	DatabaseConfig *DatabaseConfig
	Clock          clock.Clock
}

func (m *DataSourceManager) Start() error {
	db, err := connect(m.DatabaseConfig)
	if err != nil {
		return err
	}
	otgorm.AddGormCallbacks(db)
	m.gormDB = db
	m.gormDB.LogMode(m.DatabaseConfig.LogMode)
	return nil
}

func (m *DataSourceManager) Stop() {
	if m.gormDB != nil {
		if err := m.gormDB.Close(); err != nil {
			logrus.Warnf("failed to close DB: %v", err)
		}
		m.gormDB = nil
	}
}

// GormDB returns a fresh session carrying the tracing span of ctx.
func (m *DataSourceManager) GormDB(ctx context.Context) *gorm.DB {
	if m.gormDB != nil {
		return otgorm.SetSpanToGorm(ctx, m.gormDB.New())
	}
	return nil
}

func (m *DataSourceManager) callTimeout() time.Duration {
	if m.DatabaseConfig.CallTimeout > 0 {
		return m.DatabaseConfig.CallTimeout
	}
	return DefaultCallTimeout
}

func (m *DataSourceManager) clock() clock.Clock {
	if m.Clock != nil {
		return m.Clock
	}
	return clock.WallClock
}

func connect(config *DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(config.DriverType, config.DriverArgs)
	if err != nil {
		return nil, err
	}
	if config.MaxOpenConns > 0 {
		db.DB().SetMaxOpenConns(config.MaxOpenConns)
	}
	err = db.DB().Ping()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// IsMySQL reports whether db talks to MySQL, the only dialect that honours row locks here.
func IsMySQL(db *gorm.DB) bool {
	return db.Dialect().GetName() == "mysql"
}

// ForUpdate locks the selected rows until the transaction ends. SQLite serializes writers on its own.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if IsMySQL(tx) {
		return tx.Set("gorm:query_option", "FOR UPDATE")
	}
	return tx
}
