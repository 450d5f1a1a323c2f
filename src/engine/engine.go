// Package engine is the storage boundary of emberdb. It defines the
// parameters and session surface the mapping layer opens against, and
// ships a compact reference engine: BSON-encoded tables persisted as a
// single file, snapshot-based write transactions, an advisory file
// lock per database, and optional authenticated encryption at rest.
package engine

import "errors"

// SchemaMode controls how a supplied schema is reconciled with the
// on-disk schema at open time.
type SchemaMode string

const (
	// SchemaModeAutomatic applies the supplied schema additively when
	// its version advances past the on-disk version.
	SchemaModeAutomatic SchemaMode = "automatic"
	// SchemaModeImmutable opens read-only; schema changes and writes
	// are rejected.
	SchemaModeImmutable SchemaMode = "immutable"
	// SchemaModeResetFile deletes the file and starts over whenever
	// the supplied schema diverges from what is on disk.
	SchemaModeResetFile SchemaMode = "reset-file"
)

// UnversionedSchema is the version reported for a database file that
// carries no schema version.
const UnversionedSchema int64 = -1

// TableKey identifies a class's physical table. Keys are assigned when
// the table is created and persist for the life of the file.
type TableKey string

// ObjectKey identifies one row within a table.
type ObjectKey string

// Row holds the primitive column values of a single object.
type Row map[string]interface{}

// Clone returns an independent shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CompactCallback is invoked at open time with the file's total size
// and the size of the live payload; returning true requests an
// immediate compaction. It runs inside engine control flow and must
// not assume any transaction state.
type CompactCallback func(totalBytes, usedBytes uint64) bool

// MigrationFunc runs inside the atomic schema update, after the new
// schema is in place and before it is persisted.
type MigrationFunc func(s *Session) error

var (
	ErrClosed            = errors.New("session is closed")
	ErrReadOnly          = errors.New("session is read-only")
	ErrInTransaction     = errors.New("a write transaction is already in progress")
	ErrNoTransaction     = errors.New("no write transaction in progress")
	ErrNotFound          = errors.New("object not found")
	ErrDuplicateKey      = errors.New("primary key already exists")
	ErrTableNotFound     = errors.New("table not found")
	ErrNoPrimaryKey      = errors.New("table has no primary key column")
	ErrFileLocked        = errors.New("database file is locked by another session")
	ErrMigrationRequired = errors.New("schema version is behind the file on disk")
	ErrBadEncryptionKey  = errors.New("file cannot be read with the supplied encryption key")
	ErrFormatUpgrade     = errors.New("file format upgrade required but disabled")
)
