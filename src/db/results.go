package db

import (
	"fmt"

	"emberdb/src/engine"
)

// Results is a lazy, re-iterable view over one class's full table.
// It holds no row data: every access goes back to the table, so a
// Results observes later writes and stays valid across transactions.
// Filtering happens on top of this view and is out of scope here.
type Results struct {
	db      *Database
	helpers *Helpers
}

// Class returns the class name the view scans.
func (r *Results) Class() string {
	return r.helpers.ObjectSchema.Name
}

// Len reports the current number of objects in the view.
func (r *Results) Len() (int, error) {
	table, err := r.table()
	if err != nil {
		return 0, err
	}
	return table.Size(), nil
}

// Get returns the object at index i in stable table order.
func (r *Results) Get(i int) (*Object, error) {
	table, err := r.table()
	if err != nil {
		return nil, err
	}
	keys := table.Keys()
	if i < 0 || i >= len(keys) {
		return nil, fmt.Errorf("%w: index %d out of range [0, %d)", ErrInvalidArgument, i, len(keys))
	}
	return r.helpers.wrap(r.db, keys[i]), nil
}

// All snapshots the view into a slice of wrapped objects.
func (r *Results) All() ([]*Object, error) {
	table, err := r.table()
	if err != nil {
		return nil, err
	}
	keys := table.Keys()
	out := make([]*Object, len(keys))
	for i, key := range keys {
		out[i] = r.helpers.wrap(r.db, key)
	}
	return out, nil
}

func (r *Results) table() (*engine.Table, error) {
	if r.db.IsClosed() {
		return nil, fmt.Errorf("%w: handle is closed", ErrIllegalState)
	}
	table, err := r.db.session.Table(r.helpers.TableKey)
	if err != nil {
		return nil, mapStateError(err)
	}
	return table, nil
}
