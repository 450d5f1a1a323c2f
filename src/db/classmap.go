package db

import (
	"fmt"
	"reflect"

	"emberdb/src/engine"
	"emberdb/src/schema"
)

// Helpers bundles everything this layer caches for one class: its
// canonical schema, the physical table key and per-property codecs.
type Helpers struct {
	ObjectSchema schema.CanonicalObjectSchema
	TableKey     engine.TableKey

	codecs map[string]propertyCodec
}

// codec returns the value codec for the named property.
func (h *Helpers) codec(name string) (propertyCodec, bool) {
	c, ok := h.codecs[name]
	return c, ok
}

func (h *Helpers) wrap(database *Database, key engine.ObjectKey) *Object {
	return &Object{db: database, helpers: h, objectKey: key}
}

// classMap resolves class identifiers to helpers. It is built once per
// schema generation and replaced wholesale on every schema change;
// helpers from an old generation must never survive a migration.
type classMap struct {
	byName  map[string]*Helpers
	byType  map[reflect.Type]string
	ordered []*Helpers
}

// newClassMap builds helpers against the session's live schema, with
// defaults and registered prototypes overlaid from the canonical
// configuration schema (the engine does not persist those).
func newClassMap(session *engine.Session, extras map[string]schema.CanonicalObjectSchema) (*classMap, error) {
	live := session.Schema()
	cm := &classMap{
		byName:  make(map[string]*Helpers, len(live)),
		byType:  make(map[reflect.Type]string),
		ordered: make([]*Helpers, 0, len(live)),
	}

	for _, c := range live {
		if extra, ok := extras[c.Name]; ok {
			c.Defaults = extra.Defaults
			c.Prototype = extra.Prototype
		}
		table, err := session.TableFor(c.Name)
		if err != nil {
			return nil, fmt.Errorf("schema lists class %q without a table: %w", c.Name, err)
		}

		h := &Helpers{
			ObjectSchema: c,
			TableKey:     table.Key(),
			codecs:       make(map[string]propertyCodec, len(c.Properties)),
		}
		for _, p := range c.Properties {
			h.codecs[p.Name] = propertyCodec{prop: p}
		}
		cm.byName[c.Name] = h
		cm.ordered = append(cm.ordered, h)

		if c.Prototype != nil {
			cm.byType[prototypeType(c.Prototype)] = c.Name
		}
	}
	return cm, nil
}

// helpersFor resolves a class identifier: a class name, a live typed
// object, a schema declaration, or a registered prototype type (as a
// value or a reflect.Type). Unknown identifiers fail with
// ErrClassNotFound.
func (cm *classMap) helpersFor(identifier interface{}) (*Helpers, error) {
	switch id := identifier.(type) {
	case string:
		if h, ok := cm.byName[id]; ok {
			return h, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrClassNotFound, id)
	case *Object:
		if id == nil {
			return nil, fmt.Errorf("%w: nil object", ErrClassNotFound)
		}
		if h, ok := cm.byName[id.Class()]; ok {
			return h, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrClassNotFound, id.Class())
	case schema.ObjectSchema:
		return cm.helpersFor(id.Name)
	case schema.CanonicalObjectSchema:
		return cm.helpersFor(id.Name)
	case reflect.Type:
		if name, ok := cm.byType[indirectType(id)]; ok {
			return cm.byName[name], nil
		}
		return nil, fmt.Errorf("%w: type %s is not registered", ErrClassNotFound, id)
	case nil:
		return nil, fmt.Errorf("%w: nil identifier", ErrClassNotFound)
	default:
		t := indirectType(reflect.TypeOf(identifier))
		if name, ok := cm.byType[t]; ok {
			return cm.byName[name], nil
		}
		return nil, fmt.Errorf("%w: type %T is not registered", ErrClassNotFound, identifier)
	}
}

func prototypeType(prototype interface{}) reflect.Type {
	if t, ok := prototype.(reflect.Type); ok {
		return indirectType(t)
	}
	return indirectType(reflect.TypeOf(prototype))
}

func indirectType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
