package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrKeyTooLong  = errors.New("db: key too long")
	ErrClosed      = errors.New("db: store closed")
)

// Op constants name the failing operation for error context.
// Redis ops use the command name, file and bolt ops a driver prefix.
const (
	OpPing = "PING"
	OpGet  = "GET"
	OpSet  = "SET"
	OpDel  = "DEL"
	OpScan = "SCAN"

	OpFileRead   = "FILE.READ"
	OpFileWrite  = "FILE.WRITE"
	OpFileRemove = "FILE.REMOVE"
	OpFileList   = "FILE.LIST"

	OpBoltPut    = "BOLT.PUT"
	OpBoltDelete = "BOLT.DELETE"
	OpBoltScan   = "BOLT.SCAN"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
