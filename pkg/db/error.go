package db

import (
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation    = "23505"
	pgConnectionClass    = "08"
	mysqlDuplicateEntry  = "Error 1062"
	sqliteUniqueViolated = "UNIQUE constraint failed"
)

// IsDuplicateKeyErr reports whether err was raised by a unique index.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	msg := err.Error()
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		return true
	}
	if strings.Contains(msg, mysqlDuplicateEntry) {
		return true
	}
	if strings.Contains(msg, sqliteUniqueViolated) {
		return true
	}

	return false
}

// IsUnavailableErr reports whether err means the database could not be reached.
func IsUnavailableErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgConnectionClass)
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
