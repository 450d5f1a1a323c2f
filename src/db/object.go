package db

import (
	"errors"
	"fmt"

	"emberdb/src/engine"
	"emberdb/src/schema"
)

// Object is a thin wrapper around one stored row: a table key, an
// object key and the class helpers to decode its columns. It is backed
// by its handle and becomes invalid when the row is deleted or the
// handle closes.
type Object struct {
	db        *Database
	helpers   *Helpers
	objectKey engine.ObjectKey
}

// Class returns the object's class name.
func (o *Object) Class() string {
	return o.helpers.ObjectSchema.Name
}

// Key returns the engine-assigned object key.
func (o *Object) Key() engine.ObjectKey {
	return o.objectKey
}

// IsValid reports whether the object still references a live row on an
// open handle.
func (o *Object) IsValid() bool {
	if o == nil || o.db == nil || o.db.IsClosed() {
		return false
	}
	table, err := o.db.session.Table(o.helpers.TableKey)
	if err != nil {
		return false
	}
	_, err = table.Object(o.objectKey)
	return err == nil
}

// Get returns the value of the named property. Object links come back
// wrapped; list links come back as a slice of wrapped objects.
func (o *Object) Get(name string) (interface{}, error) {
	row, prop, err := o.fetch(name)
	if err != nil {
		return nil, err
	}
	codec, _ := o.helpers.codec(name)
	value := codec.Decode(row[name])

	switch prop.Type {
	case schema.TypeObject:
		return o.wrapLink(prop, value)
	case schema.TypeList:
		items, ok := value.([]interface{})
		if !ok || items == nil {
			return []*Object{}, nil
		}
		out := make([]*Object, 0, len(items))
		for _, item := range items {
			linked, err := o.wrapLink(prop, item)
			if err != nil {
				return nil, err
			}
			if linked != nil {
				out = append(out, linked.(*Object))
			}
		}
		return out, nil
	default:
		return value, nil
	}
}

// Set writes the named property. Requires an open write transaction.
func (o *Object) Set(name string, value interface{}) error {
	_, _, err := o.fetch(name)
	if err != nil {
		return err
	}
	if !o.db.IsInTransaction() {
		return fmt.Errorf("%w: setting a property requires an open write transaction", ErrIllegalState)
	}
	codec, _ := o.helpers.codec(name)
	encoded, err := codec.Encode(value)
	if err != nil {
		return err
	}
	table, err := o.db.session.Table(o.helpers.TableKey)
	if err != nil {
		return mapStateError(err)
	}
	return mapStateError(table.UpdateColumns(o.objectKey, engine.Row{name: encoded}))
}

// PrimaryKeyValue returns the object's primary key, or an error when
// the class declares none.
func (o *Object) PrimaryKeyValue() (interface{}, error) {
	pk := o.helpers.ObjectSchema.PrimaryKey
	if pk == "" {
		return nil, fmt.Errorf("%w: class %q has no primary key", ErrSchemaMismatch, o.Class())
	}
	return o.Get(pk)
}

func (o *Object) fetch(name string) (engine.Row, schema.Property, error) {
	prop, ok := o.helpers.ObjectSchema.Property(name)
	if !ok {
		return nil, prop, fmt.Errorf("%w: class %q has no property %q", ErrInvalidArgument, o.Class(), name)
	}
	if o.db.IsClosed() {
		return nil, prop, fmt.Errorf("%w: handle is closed", ErrInvalidatedObject)
	}
	table, err := o.db.session.Table(o.helpers.TableKey)
	if err != nil {
		return nil, prop, fmt.Errorf("%w: %v", ErrInvalidatedObject, err)
	}
	row, err := table.Object(o.objectKey)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, prop, fmt.Errorf("%w: row was deleted", ErrInvalidatedObject)
		}
		return nil, prop, err
	}
	return row, prop, nil
}

func (o *Object) wrapLink(prop schema.Property, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	key, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: malformed link in property %q", ErrInvalidArgument, prop.Name)
	}
	target, err := o.db.classes.helpersFor(prop.ObjectType)
	if err != nil {
		return nil, err
	}
	return target.wrap(o.db, engine.ObjectKey(key)), nil
}
