package engine

import "emberdb/src/schema"

// OpenParams carries everything the engine needs to open one database
// file. The mapping layer's configuration resolver produces these.
type OpenParams struct {
	// Path is the resolved, absolute file path. Ignored for in-memory
	// databases.
	Path string

	InMemory bool

	Mode SchemaMode

	// Schema is the canonical schema to reconcile with the file. Nil
	// leaves the on-disk schema untouched.
	Schema []schema.CanonicalObjectSchema

	// SchemaVersion is the target schema generation. UnversionedSchema
	// keeps whatever version is on disk.
	SchemaVersion int64

	// EncryptionKey, when set, must be exactly 32 bytes and selects
	// authenticated encryption of the file payload.
	EncryptionKey []byte

	ShouldCompactOnLaunch CompactCallback

	// DisableFormatUpgrade rejects files written in an older format
	// instead of upgrading them in place.
	DisableFormatUpgrade bool

	// FifoFallbackPath relocates the notification pipe when the data
	// directory cannot host one.
	FifoFallbackPath string
}
