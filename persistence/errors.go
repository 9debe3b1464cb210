package persistence

import (
	"context"
	"database/sql/driver"
	"errors"

	"shopfloor/bizerror"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

const (
	mysqlDuplicateEntry    = 1062
	mysqlLockWaitTimeout   = 1205
	mysqlDeadlock          = 1213
	mysqlQueryInterrupted  = 1317
	mysqlServerGone        = 2006
	mysqlServerLostContact = 2013
)

// ClassifyError maps driver errors onto the conflict and transient kinds. Other errors are returned as they are.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var bizErr bizerror.BizError
	if errors.As(err, &bizErr) {
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlDuplicateEntry:
			return &bizerror.ConflictError{Entity: "row", Key: mysqlErr.Message, Cause: err}
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlQueryInterrupted, mysqlServerGone, mysqlServerLostContact:
			return &bizerror.TransientError{Cause: err}
		}
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return &bizerror.ConflictError{Entity: "row", Key: sqliteErr.Error(), Cause: err}
			}
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return &bizerror.TransientError{Cause: err}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return &bizerror.TransientError{Cause: err}
	}
	return err
}
