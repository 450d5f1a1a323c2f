package db

import (
	"errors"
	"fmt"

	"emberdb/src/engine"
	"emberdb/src/schema"
)

// UpdateMode governs what Create does when a row with the same primary
// key already exists.
type UpdateMode string

const (
	// UpdateNever fails on a primary key collision.
	UpdateNever UpdateMode = "never"
	// UpdateModified overwrites only the properties present in the
	// supplied values.
	UpdateModified UpdateMode = "modified"
	// UpdateAll overwrites every declared property, applying defaults
	// for omitted ones.
	UpdateAll UpdateMode = "all"
)

// NormalizeUpdateMode folds the accepted shorthands into the
// three-valued enum: booleans (true selects UpdateAll, false
// UpdateNever), mode strings and UpdateMode values. Anything else
// fails with ErrInvalidArgument. Nothing past this boundary ever sees
// the shorthand forms.
func NormalizeUpdateMode(value interface{}) (UpdateMode, error) {
	switch v := value.(type) {
	case nil:
		return UpdateNever, nil
	case bool:
		if v {
			return UpdateAll, nil
		}
		return UpdateNever, nil
	case UpdateMode:
		return validUpdateMode(v)
	case string:
		return validUpdateMode(UpdateMode(v))
	default:
		return "", fmt.Errorf("%w: update mode %v (%T)", ErrInvalidArgument, value, value)
	}
}

func validUpdateMode(mode UpdateMode) (UpdateMode, error) {
	switch mode {
	case UpdateNever, UpdateModified, UpdateAll:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: update mode %q", ErrInvalidArgument, mode)
	}
}

// Create inserts a new object of the identified class, or updates an
// existing one per mode when the primary key collides. Values may be a
// property map or another typed object (which must still be attached).
// Defaults fill omitted properties. The caller must already hold an
// open write transaction; Create never opens one itself. Returns the
// wrapped object.
func (d *Database) Create(typ, values interface{}, mode UpdateMode) (*Object, error) {
	if d.IsClosed() {
		return nil, fmt.Errorf("%w: handle is closed", ErrIllegalState)
	}
	h, err := d.classes.helpersFor(typ)
	if err != nil {
		return nil, err
	}
	if h.ObjectSchema.TableType == schema.TableEmbedded {
		return nil, fmt.Errorf("%w: embedded class %q is created through its parent object", ErrUnsupportedOperation, h.ObjectSchema.Name)
	}
	if _, err := validUpdateMode(mode); err != nil {
		return nil, err
	}
	if !d.IsInTransaction() {
		return nil, fmt.Errorf("%w: create requires an open write transaction", ErrIllegalState)
	}

	valueMap, err := d.valuesMap(values)
	if err != nil {
		return nil, err
	}
	supplied, err := d.encodeSupplied(h, valueMap)
	if err != nil {
		return nil, err
	}

	table, err := d.session.Table(h.TableKey)
	if err != nil {
		return nil, mapStateError(err)
	}

	insert := func() (*Object, error) {
		full, err := d.completeRow(h, supplied)
		if err != nil {
			return nil, err
		}
		key, err := table.InsertRow(full)
		if err != nil {
			// Duplicate key errors surface unchanged.
			return nil, mapStateError(err)
		}
		return h.wrap(d, key), nil
	}

	if mode == UpdateNever {
		return insert()
	}

	pk := h.ObjectSchema.PrimaryKey
	if pk == "" {
		return nil, fmt.Errorf("%w: class %q has no primary key to update by", ErrSchemaMismatch, h.ObjectSchema.Name)
	}
	pkValue, ok := supplied[pk]
	if !ok {
		def, hasDef := h.ObjectSchema.Defaults[pk]
		if !hasDef {
			return nil, fmt.Errorf("%w: missing value for primary key %q of class %q", ErrInvalidArgument, pk, h.ObjectSchema.Name)
		}
		if pkValue, err = h.codecs[pk].Encode(def); err != nil {
			return nil, err
		}
	}
	existing, err := table.FindPrimaryKey(pkValue)
	if errors.Is(err, engine.ErrNotFound) {
		return insert()
	}
	if err != nil {
		return nil, mapStateError(err)
	}

	// The row already exists, so only the supplied columns matter for a
	// patch; the full row is required again only for a whole-row
	// overwrite.
	switch mode {
	case UpdateModified:
		err = table.UpdateColumns(existing, supplied)
	case UpdateAll:
		full, fullErr := d.completeRow(h, supplied)
		if fullErr != nil {
			return nil, fullErr
		}
		err = table.SetRow(existing, full)
	}
	if err != nil {
		return nil, mapStateError(err)
	}
	return h.wrap(d, existing), nil
}

// valuesMap folds the accepted value shapes into one property map. A
// typed object used as a source must still be attached.
func (d *Database) valuesMap(values interface{}) (map[string]interface{}, error) {
	switch v := values.(type) {
	case map[string]interface{}:
		return v, nil
	case *Object:
		if !v.IsValid() {
			return nil, fmt.Errorf("%w: source object has no backing row", ErrInvalidatedObject)
		}
		out := make(map[string]interface{}, len(v.helpers.ObjectSchema.Properties))
		for _, p := range v.helpers.ObjectSchema.Properties {
			value, err := v.Get(p.Name)
			if err != nil {
				return nil, err
			}
			if value != nil {
				out[p.Name] = value
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: values must be a property map or a typed object, got %T", ErrInvalidArgument, values)
	}
}

// encodeSupplied checks the supplied values against the class schema
// and encodes exactly the columns that were supplied, nothing more.
func (d *Database) encodeSupplied(h *Helpers, values map[string]interface{}) (engine.Row, error) {
	supplied := make(engine.Row, len(values))
	for name, value := range values {
		codec, ok := h.codecs[name]
		if !ok {
			return nil, fmt.Errorf("%w: class %q has no property %q", ErrInvalidArgument, h.ObjectSchema.Name, name)
		}
		encoded, err := codec.Encode(value)
		if err != nil {
			return nil, err
		}
		supplied[name] = encoded
	}
	return supplied, nil
}

// completeRow extends the supplied columns into a full row, filling
// defaults for omitted properties. An omitted non-optional property
// without a default fails with ErrInvalidArgument.
func (d *Database) completeRow(h *Helpers, supplied engine.Row) (engine.Row, error) {
	full := make(engine.Row, len(h.ObjectSchema.Properties))
	for _, p := range h.ObjectSchema.Properties {
		if encoded, ok := supplied[p.Name]; ok {
			full[p.Name] = encoded
			continue
		}
		if def, ok := h.ObjectSchema.Defaults[p.Name]; ok {
			encoded, err := h.codecs[p.Name].Encode(def)
			if err != nil {
				return nil, err
			}
			full[p.Name] = encoded
			continue
		}
		if !p.Optional {
			return nil, fmt.Errorf("%w: missing value for property %q of class %q", ErrInvalidArgument, p.Name, h.ObjectSchema.Name)
		}
		encoded, err := h.codecs[p.Name].Encode(nil)
		if err != nil {
			return nil, err
		}
		full[p.Name] = encoded
	}
	return full, nil
}

// Delete removes the subject's rows: a single object, a slice of
// objects or a Results view. Each object is validated as still
// attached before removal. Other subject shapes fail with
// ErrNotImplemented. Requires an open write transaction.
func (d *Database) Delete(subject interface{}) error {
	if d.IsClosed() {
		return fmt.Errorf("%w: handle is closed", ErrIllegalState)
	}
	if !d.IsInTransaction() {
		return fmt.Errorf("%w: delete requires an open write transaction", ErrIllegalState)
	}

	switch s := subject.(type) {
	case *Object:
		return d.deleteObject(s)
	case []*Object:
		for _, o := range s {
			if err := d.deleteObject(o); err != nil {
				return err
			}
		}
		return nil
	case *Results:
		objects, err := s.All()
		if err != nil {
			return err
		}
		for _, o := range objects {
			if err := d.deleteObject(o); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: cannot delete subject of type %T", ErrNotImplemented, subject)
	}
}

func (d *Database) deleteObject(o *Object) error {
	if !o.IsValid() {
		return fmt.Errorf("%w: object was deleted or its handle closed", ErrInvalidatedObject)
	}
	table, err := d.session.Table(o.helpers.TableKey)
	if err != nil {
		return mapStateError(err)
	}
	return mapStateError(table.RemoveObject(o.objectKey))
}

// DeleteModel removes all data and the schema entry for the named
// class, bumping the schema version by one. The class map is rebuilt
// against the post-migration schema before returning. Requires an
// open write transaction; a missing class surfaces the engine's own
// error.
func (d *Database) DeleteModel(name string) error {
	if d.IsClosed() {
		return fmt.Errorf("%w: handle is closed", ErrIllegalState)
	}
	if !d.IsInTransaction() {
		return fmt.Errorf("%w: deleteModel requires an open write transaction", ErrIllegalState)
	}
	if _, err := d.session.TableFor(name); err != nil {
		return err
	}

	remaining := make([]schema.CanonicalObjectSchema, 0, len(d.classes.ordered))
	for _, h := range d.classes.ordered {
		if h.ObjectSchema.Name != name {
			remaining = append(remaining, h.ObjectSchema)
		}
	}
	version := d.SchemaVersion() + 1
	return d.updateCanonicalSchema(remaining, version, nil)
}

// DeleteAll clears every table reachable from the current schema, row
// data only; schema and classes stay intact. Requires an open write
// transaction.
func (d *Database) DeleteAll() error {
	if d.IsClosed() {
		return fmt.Errorf("%w: handle is closed", ErrIllegalState)
	}
	if !d.IsInTransaction() {
		return fmt.Errorf("%w: deleteAll requires an open write transaction", ErrIllegalState)
	}
	for _, h := range d.classes.ordered {
		table, err := d.session.Table(h.TableKey)
		if err != nil {
			return mapStateError(err)
		}
		if err := table.Clear(); err != nil {
			return mapStateError(err)
		}
	}
	return nil
}

// ObjectForPrimaryKey looks one object up by primary key. Absence is
// not an error: the return is (nil, nil) when no row matches. A class
// without a primary key fails with ErrSchemaMismatch.
func (d *Database) ObjectForPrimaryKey(typ, key interface{}) (*Object, error) {
	if d.IsClosed() {
		return nil, fmt.Errorf("%w: handle is closed", ErrIllegalState)
	}
	h, err := d.classes.helpersFor(typ)
	if err != nil {
		return nil, err
	}
	pk := h.ObjectSchema.PrimaryKey
	if pk == "" {
		return nil, fmt.Errorf("%w: class %q has no primary key", ErrSchemaMismatch, h.ObjectSchema.Name)
	}
	encoded, err := h.codecs[pk].Encode(key)
	if err != nil {
		return nil, err
	}
	table, err := d.session.Table(h.TableKey)
	if err != nil {
		return nil, mapStateError(err)
	}
	objectKey, err := table.FindPrimaryKey(encoded)
	if errors.Is(err, engine.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapStateError(err)
	}
	return h.wrap(d, objectKey), nil
}

// Objects returns the lazy table-scan view for the identified class.
// Embedded and asymmetric classes are not queryable and fail with
// ErrUnsupportedOperation.
func (d *Database) Objects(typ interface{}) (*Results, error) {
	if d.IsClosed() {
		return nil, fmt.Errorf("%w: handle is closed", ErrIllegalState)
	}
	h, err := d.classes.helpersFor(typ)
	if err != nil {
		return nil, err
	}
	switch h.ObjectSchema.TableType {
	case schema.TableEmbedded:
		return nil, fmt.Errorf("%w: embedded class %q has no independent identity to query", ErrUnsupportedOperation, h.ObjectSchema.Name)
	case schema.TableAsymmetric:
		return nil, fmt.Errorf("%w: asymmetric class %q is write-only", ErrUnsupportedOperation, h.ObjectSchema.Name)
	}
	return &Results{db: d, helpers: h}, nil
}
