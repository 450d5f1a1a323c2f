// Package db is the object-mapping and transaction layer of emberdb.
// It translates declared object schemas into physical tables, guards
// the engine's single-transaction discipline and exposes typed CRUD
// over the rows the engine stores.
package db

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"emberdb/src/config"
	"emberdb/src/engine"
	"emberdb/src/schema"
)

// Database is one opened handle: a storage-engine session plus the
// class map derived from its live schema. A handle serves one logical
// thread of control; it carries no locks of its own.
type Database struct {
	cfg     config.Config
	path    string
	session *engine.Session
	classes *classMap
	logger  *zap.SugaredLogger

	// extras carries per-class defaults and prototypes from the
	// configuration schema across class map rebuilds.
	extras map[string]schema.CanonicalObjectSchema

	// txExtras holds a copy of extras taken when a transaction opens.
	// Cancelling restores it, so a rolled-back schema change cannot
	// leave the overlay out of step with the engine's schema.
	txExtras map[string]schema.CanonicalObjectSchema
}

// Open validates cfg, resolves it into engine parameters, opens the
// underlying session and builds the class map. Every successful open
// is recorded in the process-wide handle registry.
func Open(cfg config.Config, logger *zap.SugaredLogger) (*Database, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	params, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	session, err := engine.Open(params, logger)
	if err != nil {
		return nil, err
	}

	database := &Database{
		cfg:     cfg,
		path:    params.Path,
		session: session,
		logger:  logger,
		extras:  make(map[string]schema.CanonicalObjectSchema, len(params.Schema)),
	}
	for _, c := range params.Schema {
		database.extras[c.Name] = c
	}

	if err := database.rebuildClassMap(); err != nil {
		session.Close()
		return nil, err
	}

	registerHandle(database)
	return database, nil
}

// Close releases the handle. Objects and results backed by it become
// invalid. Closing twice is a no-op.
func (d *Database) Close() error {
	return d.session.Close()
}

// IsClosed reports whether the handle has been closed.
func (d *Database) IsClosed() bool {
	return d.session.IsClosed()
}

// Path returns the resolved database file path.
func (d *Database) Path() string {
	return d.path
}

// Schema returns the handle's current canonical schema.
func (d *Database) Schema() []schema.CanonicalObjectSchema {
	out := make([]schema.CanonicalObjectSchema, len(d.classes.ordered))
	for i, h := range d.classes.ordered {
		out[i] = h.ObjectSchema
	}
	return out
}

// SchemaVersion returns the current schema generation, -1 when the
// file is unversioned.
func (d *Database) SchemaVersion() int64 {
	return d.session.SchemaVersion()
}

// UpdateSchema migrates the handle to a new schema generation. The
// migration callback runs with the new schema already applied; an
// error rolls the whole change back. The class map is replaced before
// this method returns, never mutated in place.
func (d *Database) UpdateSchema(newSchema []schema.ObjectSchema, newVersion int64, migration func(*Database) error) error {
	if d.IsClosed() {
		return fmt.Errorf("%w: handle is closed", ErrIllegalState)
	}
	canonical, err := schema.Normalize(newSchema)
	if err != nil {
		return err
	}
	return d.updateCanonicalSchema(canonical, newVersion, migration)
}

func (d *Database) updateCanonicalSchema(canonical []schema.CanonicalObjectSchema, newVersion int64, migration func(*Database) error) error {
	previousExtras := make(map[string]schema.CanonicalObjectSchema, len(d.extras))
	for name, c := range d.extras {
		previousExtras[name] = c
	}
	for _, c := range canonical {
		d.extras[c.Name] = c
	}

	var wrapped engine.MigrationFunc
	if migration != nil {
		wrapped = func(*engine.Session) error {
			// The callback must observe the post-migration schema.
			if err := d.rebuildClassMap(); err != nil {
				return err
			}
			return migration(d)
		}
	}

	err := d.session.UpdateSchema(canonical, newVersion, wrapped, nil)
	if err != nil {
		d.extras = previousExtras
	}

	// Rebuild unconditionally: on failure the session restored the old
	// schema and the class map has to follow it back.
	if rebuildErr := d.rebuildClassMap(); rebuildErr != nil && err == nil {
		err = rebuildErr
	}
	if err != nil {
		return err
	}

	// Schema updates are full replacements; drop overlay entries for
	// classes that no longer exist.
	keep := make(map[string]bool, len(canonical))
	for _, c := range canonical {
		keep[c.Name] = true
	}
	for name := range d.extras {
		if !keep[name] {
			delete(d.extras, name)
		}
	}

	d.logger.Infow("schema updated", "path", d.path, "version", newVersion, "classes", len(canonical))
	return nil
}

func (d *Database) rebuildClassMap() error {
	classes, err := newClassMap(d.session, d.extras)
	if err != nil {
		return err
	}
	d.classes = classes
	return nil
}

// Compact rewrites the database file to its minimal size. Fails with
// ErrIllegalState inside a write transaction or on a closed handle.
func (d *Database) Compact() error {
	err := d.session.Compact()
	return mapStateError(err)
}

// WriteCopyTo writes a compacted copy of the database to the location
// described by cfg, re-encrypting with cfg's key. Fails with
// ErrIllegalState inside a write transaction.
func (d *Database) WriteCopyTo(cfg config.Config) error {
	params, err := cfg.Resolve()
	if err != nil {
		return err
	}
	return mapStateError(d.session.Convert(params))
}

// mapStateError converts the engine's state errors into this layer's
// ErrIllegalState; everything else passes through unchanged.
func mapStateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrInTransaction):
		return fmt.Errorf("%w: operation requires no open write transaction", ErrIllegalState)
	case errors.Is(err, engine.ErrNoTransaction):
		return fmt.Errorf("%w: operation requires an open write transaction", ErrIllegalState)
	case errors.Is(err, engine.ErrClosed):
		return fmt.Errorf("%w: handle is closed", ErrIllegalState)
	default:
		return err
	}
}
