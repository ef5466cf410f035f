package core

import (
	"errors"
)

var (
	// ErrRecordNotFound is returned when a query expects at least one record but none were found.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidSource is returned when a Source names no connection, cursor or worker.
	ErrInvalidSource = errors.New("invalid source")
	// ErrClosed is returned by every operation on a closed DB.
	ErrClosed = errors.New("db is closed")
	// ErrCursorClosed is returned when a closed cursor is used.
	ErrCursorClosed = errors.New("cursor is closed")
	// ErrNoResultSet is returned when rows are fetched before a query ran.
	ErrNoResultSet = errors.New("no result set")
	// ErrColumnNotFound is returned by Row accessors for an unknown column.
	ErrColumnNotFound = errors.New("column not found")
	// ErrNullValue is returned by typed Row accessors when the value is NULL.
	ErrNullValue = errors.New("value is NULL")
	// ErrDuplicateKey is returned when a database unique constraint is violated.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrForeignKey is returned when a database foreign key constraint is violated.
	ErrForeignKey = errors.New("foreign key constraint")
	// ErrNoSuchTable is returned when a statement names a table that does not exist.
	ErrNoSuchTable = errors.New("no such table")
	// ErrConnectionFailed is returned when the database connection cannot be established or is lost.
	ErrConnectionFailed = errors.New("connection failed")
)
