package repository

import (
	"database/sql/driver"
	"errors"

	"github.com/taskhive/taskhive/internal/errs"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicateEmail is returned when a unique email constraint is violated.
var ErrDuplicateEmail = errors.New("email already registered")

const mysqlDupEntry = 1062

// classify wraps a store error with its kind. Pool-level connection errors
// are fatal: the process terminates and external supervision restarts it.
// Everything else is transient and surfaces as a degraded-service condition.
func classify(op string, err error, kv ...any) error {
	if err == nil {
		return nil
	}
	kind := errs.Transient
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		kind = errs.Fatal
	}
	return errs.E(kind, op, err, kv...)
}

func isDupEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDupEntry
}
