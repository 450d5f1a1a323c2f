package engine

import (
	"fmt"

	"emberdb/src/helpers"
)

// Table is one class's physical storage: rows keyed by object key,
// with a stable insertion order for index-based scans.
type Table struct {
	session *Session

	key        TableKey
	name       string
	primaryKey string

	rows  map[ObjectKey]Row
	order []ObjectKey
}

func newTable(s *Session, key TableKey, name, primaryKey string) *Table {
	return &Table{
		session:    s,
		key:        key,
		name:       name,
		primaryKey: primaryKey,
		rows:       make(map[ObjectKey]Row),
	}
}

func (t *Table) Key() TableKey      { return t.key }
func (t *Table) Name() string       { return t.name }
func (t *Table) PrimaryKey() string { return t.primaryKey }

// Size reports the number of rows.
func (t *Table) Size() int {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	return len(t.order)
}

// Keys returns the object keys in stable insertion order.
func (t *Table) Keys() []ObjectKey {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	keys := make([]ObjectKey, len(t.order))
	copy(keys, t.order)
	return keys
}

// Object returns a copy of the row stored under key.
func (t *Table) Object(key ObjectKey) (Row, error) {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if t.session.closed {
		return nil, ErrClosed
	}
	row, ok := t.rows[key]
	if !ok {
		return nil, fmt.Errorf("%w: table %s has no object %s", ErrNotFound, t.name, key)
	}
	return row.Clone(), nil
}

// FindPrimaryKey looks up the object whose primary key column equals
// the encoded value. Absence is reported as ErrNotFound, distinct from
// any other lookup failure.
func (t *Table) FindPrimaryKey(encoded interface{}) (ObjectKey, error) {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if t.session.closed {
		return "", ErrClosed
	}
	if t.primaryKey == "" {
		return "", fmt.Errorf("%w: table %s", ErrNoPrimaryKey, t.name)
	}
	for _, key := range t.order {
		if columnEqual(t.rows[key][t.primaryKey], encoded) {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: table %s has no row with primary key %v", ErrNotFound, t.name, encoded)
}

// InsertRow adds a new row and returns its engine-assigned object key.
// A primary key collision fails with ErrDuplicateKey.
func (t *Table) InsertRow(row Row) (ObjectKey, error) {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if err := t.session.writableLocked(); err != nil {
		return "", err
	}
	if t.primaryKey != "" {
		pk := row[t.primaryKey]
		for _, key := range t.order {
			if columnEqual(t.rows[key][t.primaryKey], pk) {
				return "", fmt.Errorf("%w: table %s key %v", ErrDuplicateKey, t.name, pk)
			}
		}
	}
	key := ObjectKey(helpers.GenerateUUID())
	t.rows[key] = row.Clone()
	t.order = append(t.order, key)
	return key, nil
}

// SetRow replaces every column of an existing row.
func (t *Table) SetRow(key ObjectKey, row Row) error {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if err := t.session.writableLocked(); err != nil {
		return err
	}
	if _, ok := t.rows[key]; !ok {
		return fmt.Errorf("%w: table %s has no object %s", ErrNotFound, t.name, key)
	}
	t.rows[key] = row.Clone()
	return nil
}

// UpdateColumns overwrites only the supplied columns of an existing row.
func (t *Table) UpdateColumns(key ObjectKey, columns Row) error {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if err := t.session.writableLocked(); err != nil {
		return err
	}
	row, ok := t.rows[key]
	if !ok {
		return fmt.Errorf("%w: table %s has no object %s", ErrNotFound, t.name, key)
	}
	for name, value := range columns {
		row[name] = value
	}
	return nil
}

// RemoveObject deletes one row.
func (t *Table) RemoveObject(key ObjectKey) error {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if err := t.session.writableLocked(); err != nil {
		return err
	}
	if _, ok := t.rows[key]; !ok {
		return fmt.Errorf("%w: table %s has no object %s", ErrNotFound, t.name, key)
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes every row, leaving the table itself in place.
func (t *Table) Clear() error {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	if err := t.session.writableLocked(); err != nil {
		return err
	}
	t.rows = make(map[ObjectKey]Row)
	t.order = nil
	return nil
}

func (t *Table) clone(s *Session) *Table {
	out := newTable(s, t.key, t.name, t.primaryKey)
	out.order = make([]ObjectKey, len(t.order))
	copy(out.order, t.order)
	for key, row := range t.rows {
		out.rows[key] = row.Clone()
	}
	return out
}

// columnEqual compares stored column values. Integer columns may carry
// different widths after a BSON round trip, so numeric values compare
// by magnitude.
func columnEqual(a, b interface{}) bool {
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			return ai == bi
		}
		return false
	}
	return a == b
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
