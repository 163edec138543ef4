// Package repository holds the MySQL-backed stores and the sentinel errors
// every store implementation (including the in-memory one) reports. Flows
// translate these into application errors at the service layer.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an (email, user_type) pair is already
// taken by another account.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenUsed is returned when a reset code was consumed before the
// conditional update could claim it.
var ErrTokenUsed = errors.New("reset token already used")

// ErrTokenExpired is returned when a reset code expired before the
// conditional update could claim it.
var ErrTokenExpired = errors.New("reset token expired")

// ErrDuplicateCode is returned when a freshly generated reset code collides
// with a live code.
var ErrDuplicateCode = errors.New("reset code already in use")

const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
