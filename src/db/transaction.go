package db

import "emberdb/src/schema"

// The transaction controller is a strict two-state machine: Idle and
// InTransaction. The engine enforces the same discipline underneath;
// this layer maps its state errors into ErrIllegalState.

// BeginTransaction moves the handle from Idle to InTransaction. There
// is no nesting.
func (d *Database) BeginTransaction() error {
	if err := d.session.BeginTransaction(); err != nil {
		return mapStateError(err)
	}
	d.txExtras = make(map[string]schema.CanonicalObjectSchema, len(d.extras))
	for name, c := range d.extras {
		d.txExtras[name] = c
	}
	return nil
}

// CommitTransaction persists all pending writes and returns to Idle.
func (d *Database) CommitTransaction() error {
	if err := d.session.CommitTransaction(); err != nil {
		return mapStateError(err)
	}
	d.txExtras = nil
	return nil
}

// CancelTransaction discards all pending writes and returns to Idle.
// The engine restores its snapshot, which may include a rolled-back
// schema change, so the class map is rebuilt against whatever schema
// survived the cancel. Stale helpers must never outlive a rollback.
func (d *Database) CancelTransaction() error {
	if err := d.session.CancelTransaction(); err != nil {
		return mapStateError(err)
	}
	if d.txExtras != nil {
		d.extras = d.txExtras
		d.txExtras = nil
	}
	return d.rebuildClassMap()
}

// IsInTransaction reports whether a write transaction is open.
func (d *Database) IsInTransaction() bool {
	return d.session.IsInTransaction()
}

// Write runs fn inside a transaction: begin, invoke, commit. Any error
// from fn cancels the transaction and is returned unchanged, so no
// partial commit ever occurs. fn must not begin a transaction itself.
func (d *Database) Write(fn func() error) error {
	if err := d.BeginTransaction(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if cancelErr := d.CancelTransaction(); cancelErr != nil {
			d.logger.Errorw("failed to cancel transaction", "path", d.path, "error", cancelErr)
		}
		return err
	}
	return d.CommitTransaction()
}

// RunWrite runs fn inside a transaction and passes its result through,
// with the same cancel-on-error contract as Write.
func RunWrite[T any](d *Database, fn func() (T, error)) (T, error) {
	var zero T
	if err := d.BeginTransaction(); err != nil {
		return zero, err
	}
	value, err := fn()
	if err != nil {
		if cancelErr := d.CancelTransaction(); cancelErr != nil {
			d.logger.Errorw("failed to cancel transaction", "path", d.path, "error", cancelErr)
		}
		return zero, err
	}
	if err := d.CommitTransaction(); err != nil {
		return zero, err
	}
	return value, nil
}
