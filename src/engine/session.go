package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"emberdb/src/helpers"
	"emberdb/src/schema"
)

// Session is one opened database. All mapping-layer operations on a
// handle funnel through exactly one Session; the engine serializes its
// own state with a single mutex and relies on the layer above for the
// single-writer transaction discipline.
type Session struct {
	mu     sync.Mutex
	logger *zap.SugaredLogger

	params   OpenParams
	path     string
	readOnly bool

	lockFile *os.File

	schema        []schema.CanonicalObjectSchema
	schemaVersion int64
	tables        map[TableKey]*Table
	tablesByName  map[string]TableKey

	inTx     bool
	snapshot *txSnapshot
	closed   bool
}

type txSnapshot struct {
	schema        []schema.CanonicalObjectSchema
	schemaVersion int64
	tables        map[TableKey]*Table
	tablesByName  map[string]TableKey
}

// Open opens or creates the database described by params.
func Open(params OpenParams, logger *zap.SugaredLogger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(params.EncryptionKey) != 0 && len(params.EncryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(params.EncryptionKey))
	}
	if params.Mode == "" {
		params.Mode = SchemaModeAutomatic
	}

	s := &Session{
		logger:        logger,
		params:        params,
		path:          params.Path,
		readOnly:      params.Mode == SchemaModeImmutable,
		schemaVersion: UnversionedSchema,
		tables:        make(map[TableKey]*Table),
		tablesByName:  make(map[string]TableKey),
	}

	if params.InMemory {
		s.initEmpty(params)
		logger.Debugw("opened in-memory database", "classes", len(s.schema))
		return s, nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	if err := s.acquireLock(); err != nil {
		return nil, err
	}
	if err := s.createSiblings(); err != nil {
		s.releaseLock()
		return nil, err
	}

	if err := s.loadOrCreate(params); err != nil {
		s.releaseLock()
		return nil, err
	}

	logger.Infow("opened database",
		"path", s.path,
		"schemaVersion", s.schemaVersion,
		"classes", len(s.schema),
		"readOnly", s.readOnly,
	)
	return s, nil
}

func (s *Session) acquireLock() error {
	lockPath := s.path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("error opening lock file %s: %w", lockPath, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return fmt.Errorf("%w: %s", ErrFileLocked, s.path)
		}
		return fmt.Errorf("error locking %s: %w", lockPath, err)
	}
	s.lockFile = f
	return nil
}

func (s *Session) releaseLock() {
	if s.lockFile == nil {
		return
	}
	unix.Flock(int(s.lockFile.Fd()), unix.LOCK_UN)
	s.lockFile.Close()
	s.lockFile = nil
}

// createSiblings sets up the management directory and notification
// pipe placeholder next to the database file.
func (s *Session) createSiblings() error {
	if err := os.MkdirAll(s.path+".management", 0755); err != nil {
		return fmt.Errorf("failed to create management directory: %w", err)
	}
	notePath := s.path + ".note"
	if s.params.FifoFallbackPath != "" {
		notePath = filepath.Join(s.params.FifoFallbackPath, filepath.Base(s.path)+".note")
		if err := os.MkdirAll(s.params.FifoFallbackPath, 0755); err != nil {
			return fmt.Errorf("failed to create fifo fallback directory: %w", err)
		}
	}
	f, err := os.OpenFile(notePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create note file %s: %w", notePath, err)
	}
	return f.Close()
}

func (s *Session) initEmpty(params OpenParams) {
	s.schemaVersion = params.SchemaVersion
	if params.Schema != nil {
		s.applySchemaLocked(params.Schema)
	}
}

func (s *Session) loadOrCreate(params OpenParams) error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if s.readOnly {
			return fmt.Errorf("cannot open missing database file %s read-only", s.path)
		}
		s.initEmpty(params)
		return s.persistLocked()
	}
	if err != nil {
		return fmt.Errorf("error reading database file %s: %w", s.path, err)
	}

	doc, err := decodeFile(raw, params.EncryptionKey)
	if err != nil {
		return err
	}
	if doc.Format > currentFileFormat {
		return fmt.Errorf("file %s uses format %d, newer than supported format %d", s.path, doc.Format, currentFileFormat)
	}
	if doc.Format < currentFileFormat && params.DisableFormatUpgrade {
		return fmt.Errorf("%w: file format %d, current %d", ErrFormatUpgrade, doc.Format, currentFileFormat)
	}

	if params.Mode == SchemaModeResetFile && params.Schema != nil && !diskMatches(doc, params.Schema, params.SchemaVersion) {
		s.logger.Infow("schema diverged, resetting file", "path", s.path)
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("error deleting database file %s: %w", s.path, err)
		}
		s.initEmpty(params)
		return s.persistLocked()
	}

	s.loadDoc(doc)

	if !s.readOnly && params.Schema != nil {
		if s.schemaVersion != UnversionedSchema && params.SchemaVersion < s.schemaVersion {
			return fmt.Errorf("%w: file has version %d, requested %d", ErrMigrationRequired, s.schemaVersion, params.SchemaVersion)
		}
		s.applySchemaLocked(mergeSchemas(s.schema, params.Schema))
		if params.SchemaVersion > s.schemaVersion {
			s.schemaVersion = params.SchemaVersion
		}
		if err := s.persistLocked(); err != nil {
			return err
		}
	}

	if cb := params.ShouldCompactOnLaunch; cb != nil {
		payload, err := helpers.EncodeBSON(s.snapshotDoc())
		if err != nil {
			return err
		}
		if cb(uint64(len(raw)), uint64(len(payload))) && !s.readOnly {
			s.logger.Debugw("compacting on launch", "path", s.path)
			if err := s.persistLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergeSchemas keeps on-disk classes the supplied schema omits; the
// automatic schema mode is additive.
func mergeSchemas(disk, supplied []schema.CanonicalObjectSchema) []schema.CanonicalObjectSchema {
	names := make(map[string]bool, len(supplied))
	merged := make([]schema.CanonicalObjectSchema, 0, len(disk)+len(supplied))
	merged = append(merged, supplied...)
	for _, c := range supplied {
		names[c.Name] = true
	}
	for _, c := range disk {
		if !names[c.Name] {
			merged = append(merged, c)
		}
	}
	return merged
}

func diskMatches(doc fileDoc, schemas []schema.CanonicalObjectSchema, version int64) bool {
	if doc.Version != version {
		return false
	}
	byName := make(map[string]classDoc, len(doc.Classes))
	for _, cd := range doc.Classes {
		byName[cd.Name] = cd
	}
	for _, c := range schemas {
		cd, ok := byName[c.Name]
		if !ok || cd.PrimaryKey != c.PrimaryKey || len(cd.Properties) != len(c.Properties) {
			return false
		}
		for i, p := range c.Properties {
			pd := cd.Properties[i]
			if pd.Name != p.Name || pd.Type != string(p.Type) || pd.Optional != p.Optional {
				return false
			}
		}
	}
	return true
}

// applySchemaLocked reconciles live tables with newSchema: tables for
// new classes are created with fresh keys, existing tables keep their
// keys, tables for dropped classes are removed, and added or removed
// columns are backfilled or cleared row by row.
func (s *Session) applySchemaLocked(newSchema []schema.CanonicalObjectSchema) {
	keep := make(map[string]bool, len(newSchema))
	for _, c := range newSchema {
		keep[c.Name] = true
	}
	for name, key := range s.tablesByName {
		if !keep[name] {
			delete(s.tables, key)
			delete(s.tablesByName, name)
		}
	}

	for _, c := range newSchema {
		key, ok := s.tablesByName[c.Name]
		if !ok {
			table := newTable(s, TableKey("tbl-"+helpers.GenerateUUID()), c.Name, c.PrimaryKey)
			s.tables[table.key] = table
			s.tablesByName[c.Name] = table.key
			continue
		}
		table := s.tables[key]
		table.primaryKey = c.PrimaryKey

		declared := make(map[string]bool, len(c.Properties))
		for _, p := range c.Properties {
			declared[p.Name] = true
		}
		for _, rowKey := range table.order {
			row := table.rows[rowKey]
			for col := range row {
				if !declared[col] {
					delete(row, col)
				}
			}
			for _, p := range c.Properties {
				if _, ok := row[p.Name]; !ok {
					row[p.Name] = c.Defaults[p.Name]
				}
			}
		}
	}

	copied := make([]schema.CanonicalObjectSchema, len(newSchema))
	copy(copied, newSchema)
	s.schema = copied
}

// Schema returns the session's current canonical schema.
func (s *Session) Schema() []schema.CanonicalObjectSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.CanonicalObjectSchema, len(s.schema))
	copy(out, s.schema)
	return out
}

// SchemaVersion returns the current schema generation, or
// UnversionedSchema when the file carries none.
func (s *Session) SchemaVersion() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaVersion
}

// Path returns the resolved file path ("" for in-memory sessions).
func (s *Session) Path() string { return s.path }

// Table returns the table stored under key.
func (s *Session) Table(key TableKey) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	table, ok := s.tables[key]
	if !ok {
		return nil, fmt.Errorf("%w: key %s", ErrTableNotFound, key)
	}
	return table, nil
}

// TableFor returns the table backing the named class.
func (s *Session) TableFor(name string) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	key, ok := s.tablesByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: class %s", ErrTableNotFound, name)
	}
	return s.tables[key], nil
}

// BeginTransaction starts a write transaction by snapshotting the
// session's full state. Nesting is rejected.
func (s *Session) BeginTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if s.inTx {
		return ErrInTransaction
	}
	s.takeSnapshotLocked()
	s.inTx = true
	return nil
}

// CommitTransaction persists all pending writes.
func (s *Session) CommitTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.inTx {
		return ErrNoTransaction
	}
	s.snapshot = nil
	s.inTx = false
	return s.persistLocked()
}

// CancelTransaction discards all pending writes.
func (s *Session) CancelTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.inTx {
		return ErrNoTransaction
	}
	s.restoreSnapshotLocked()
	s.inTx = false
	return nil
}

// IsInTransaction reports whether a write transaction is open.
func (s *Session) IsInTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels any open transaction, releases the file lock and marks
// the session terminal. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.inTx {
		s.restoreSnapshotLocked()
		s.inTx = false
	}
	s.releaseLock()
	s.closed = true
	s.logger.Infow("closed database", "path", s.path)
	return nil
}

// UpdateSchema atomically replaces the session's schema. When called
// outside a transaction one is opened around the change; inside a
// caller's transaction the change joins it and is undone by the
// caller's cancel. The migration callback runs with the new schema in
// place; any error rolls the whole change back.
func (s *Session) UpdateSchema(newSchema []schema.CanonicalObjectSchema, newVersion int64, migration, initializer MigrationFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.readOnly {
		s.mu.Unlock()
		return ErrReadOnly
	}
	if newVersion < s.schemaVersion {
		current := s.schemaVersion
		s.mu.Unlock()
		return fmt.Errorf("%w: current version %d, requested %d", ErrMigrationRequired, current, newVersion)
	}

	ownTx := !s.inTx
	if ownTx {
		s.takeSnapshotLocked()
		s.inTx = true
	}
	s.applySchemaLocked(newSchema)
	s.schemaVersion = newVersion
	s.mu.Unlock()

	// Callbacks re-enter the session, so they run unlocked.
	var err error
	if migration != nil {
		err = migration(s)
	}
	if err == nil && initializer != nil {
		err = initializer(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if ownTx {
			s.restoreSnapshotLocked()
			s.inTx = false
		}
		return err
	}
	if ownTx {
		s.snapshot = nil
		s.inTx = false
		return s.persistLocked()
	}
	return nil
}

// Compact rewrites the file to its minimal size. Requires no open
// transaction.
func (s *Session) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.inTx {
		return ErrInTransaction
	}
	if s.params.InMemory {
		return nil
	}
	return s.persistLocked()
}

// Convert writes a compacted copy of the session's current content to
// the file described by other, re-encrypting with other's key.
// Requires no open transaction.
func (s *Session) Convert(other OpenParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.inTx {
		return ErrInTransaction
	}
	if other.InMemory {
		return fmt.Errorf("cannot convert into an in-memory database")
	}
	if len(other.EncryptionKey) != 0 && len(other.EncryptionKey) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(other.EncryptionKey))
	}
	data, err := encodeFile(s.snapshotDoc(), other.EncryptionKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(other.Path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for copy: %w", err)
	}
	return helpers.WriteFileAtomic(other.Path, data)
}

func (s *Session) takeSnapshotLocked() {
	snap := &txSnapshot{
		schemaVersion: s.schemaVersion,
		schema:        make([]schema.CanonicalObjectSchema, len(s.schema)),
		tables:        make(map[TableKey]*Table, len(s.tables)),
		tablesByName:  make(map[string]TableKey, len(s.tablesByName)),
	}
	copy(snap.schema, s.schema)
	for key, table := range s.tables {
		snap.tables[key] = table.clone(s)
	}
	for name, key := range s.tablesByName {
		snap.tablesByName[name] = key
	}
	s.snapshot = snap
}

func (s *Session) restoreSnapshotLocked() {
	if s.snapshot == nil {
		return
	}
	s.schema = s.snapshot.schema
	s.schemaVersion = s.snapshot.schemaVersion
	s.tables = s.snapshot.tables
	s.tablesByName = s.snapshot.tablesByName
	s.snapshot = nil
}

func (s *Session) writableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if !s.inTx {
		return ErrNoTransaction
	}
	return nil
}

func (s *Session) persistLocked() error {
	if s.params.InMemory || s.readOnly {
		return nil
	}
	data, err := encodeFile(s.snapshotDoc(), s.params.EncryptionKey)
	if err != nil {
		return err
	}
	if err := helpers.WriteFileAtomic(s.path, data); err != nil {
		return err
	}
	s.logger.Debugw("persisted database", "path", s.path, "bytes", len(data))
	return nil
}
