// Package config validates database configurations and resolves them
// into the open parameters the storage engine consumes.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"emberdb/src/engine"
	"emberdb/src/helpers"
	"emberdb/src/schema"
)

// DefaultFileName is used when a configuration names no path.
const DefaultFileName = "default.emberdb"

// ErrConfiguration is returned for invalid or contradictory
// configurations. Causes are wrapped for errors.Is matching.
var ErrConfiguration = errors.New("invalid configuration")

// Config describes how to open one database.
type Config struct {
	// Path of the database file. Absolute paths are used as-is;
	// relative paths are joined with the default directory; empty
	// selects DefaultFileName in the default directory.
	Path string

	// Schema declares the object classes. Nil keeps whatever schema
	// the file already has.
	Schema []schema.ObjectSchema

	// SchemaVersion is the target schema generation. Only meaningful
	// when Schema is supplied.
	SchemaVersion int64

	// EncryptionKey enables at-rest encryption; must be 32 bytes.
	EncryptionKey []byte

	InMemory bool
	ReadOnly bool

	// DeleteIfMigrationNeeded discards the file and starts over when
	// the declared schema diverges from disk. Mutually exclusive with
	// ReadOnly.
	DeleteIfMigrationNeeded bool

	ShouldCompactOnLaunch engine.CompactCallback

	FifoFilesFallbackPath string
	DisableFormatUpgrade  bool
}

// Validate checks the configuration for contradictions and malformed
// schema entries. It never touches the storage engine.
func (c Config) Validate() error {
	if c.ReadOnly && c.DeleteIfMigrationNeeded {
		return fmt.Errorf("%w: readOnly and deleteIfMigrationNeeded are mutually exclusive", ErrConfiguration)
	}
	if c.Path != "" && strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("%w: path must not be blank", ErrConfiguration)
	}
	if c.Path != "" && strings.HasSuffix(c.Path, string(filepath.Separator)) {
		return fmt.Errorf("%w: path %q names a directory", ErrConfiguration, c.Path)
	}
	if len(c.EncryptionKey) != 0 && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("%w: encryption key must be 32 bytes, got %d", ErrConfiguration, len(c.EncryptionKey))
	}
	if c.SchemaVersion < 0 {
		return fmt.Errorf("%w: schema version must not be negative", ErrConfiguration)
	}
	if c.Schema != nil {
		if _, err := schema.Normalize(c.Schema); err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}
	return nil
}

// DeterminePath resolves the configured path to an absolute one.
// Paths handed over from configuration files may still carry a level
// of quoting; it is stripped before resolution.
func (c Config) DeterminePath() (string, error) {
	if c.Path != "" && strings.TrimSpace(c.Path) == "" {
		return "", fmt.Errorf("%w: path must not be blank", ErrConfiguration)
	}
	path := helpers.StripQuotes(c.Path)
	if path == "" {
		path = DefaultFileName
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Join(DefaultDirectory(), path), nil
}

// SchemaMode derives the engine schema mode from the flags.
func (c Config) SchemaMode() engine.SchemaMode {
	switch {
	case c.ReadOnly:
		return engine.SchemaModeImmutable
	case c.DeleteIfMigrationNeeded:
		return engine.SchemaModeResetFile
	default:
		return engine.SchemaModeAutomatic
	}
}

// Resolve validates the configuration and produces the engine's open
// parameters: resolved path, schema mode, canonical schema and the
// version to apply (the unversioned sentinel when no schema is
// supplied, so the engine keeps the on-disk version).
func (c Config) Resolve() (engine.OpenParams, error) {
	if err := c.Validate(); err != nil {
		return engine.OpenParams{}, err
	}

	path, err := c.DeterminePath()
	if err != nil {
		return engine.OpenParams{}, err
	}

	params := engine.OpenParams{
		Path:                  path,
		InMemory:              c.InMemory,
		Mode:                  c.SchemaMode(),
		SchemaVersion:         engine.UnversionedSchema,
		EncryptionKey:         c.EncryptionKey,
		ShouldCompactOnLaunch: c.ShouldCompactOnLaunch,
		DisableFormatUpgrade:  c.DisableFormatUpgrade,
		FifoFallbackPath:      c.FifoFilesFallbackPath,
	}

	if c.Schema != nil {
		canonical, err := schema.Normalize(c.Schema)
		if err != nil {
			return engine.OpenParams{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		params.Schema = canonical
		params.SchemaVersion = c.SchemaVersion
	}
	return params, nil
}
