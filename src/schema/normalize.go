package schema

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrSchemaValidation is returned when a user-supplied schema
// declaration is malformed. Individual causes are wrapped so callers
// can match with errors.Is.
var ErrSchemaValidation = errors.New("schema validation failed")

// Normalize validates and canonicalizes a full schema set. All
// failures across the set are collected and reported together.
func Normalize(schemas []ObjectSchema) ([]CanonicalObjectSchema, error) {
	var errs error
	seen := make(map[string]bool, len(schemas))
	canonical := make([]CanonicalObjectSchema, 0, len(schemas))

	for _, s := range schemas {
		if seen[s.Name] {
			errs = multierr.Append(errs, fmt.Errorf("duplicate class name %q", s.Name))
			continue
		}
		seen[s.Name] = true

		c, err := NormalizeObjectSchema(s)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		canonical = append(canonical, c)
	}

	if errs != nil {
		if errors.Is(errs, ErrSchemaValidation) {
			return nil, errs
		}
		return nil, fmt.Errorf("%w: %w", ErrSchemaValidation, errs)
	}
	return canonical, nil
}

// NormalizeObjectSchema validates and canonicalizes a single class
// declaration.
func NormalizeObjectSchema(s ObjectSchema) (CanonicalObjectSchema, error) {
	var errs error

	if s.Name == "" {
		errs = multierr.Append(errs, errors.New("class name must not be empty"))
	}

	tableType := s.TableType
	if tableType == "" {
		tableType = TableTopLevel
	}
	switch tableType {
	case TableTopLevel, TableEmbedded, TableAsymmetric:
	default:
		errs = multierr.Append(errs, fmt.Errorf("class %q: unknown table type %q", s.Name, s.TableType))
	}

	primary := s.PrimaryKey
	names := make(map[string]bool, len(s.Properties))
	for _, p := range s.Properties {
		if p.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("class %q: property with empty name", s.Name))
			continue
		}
		if names[p.Name] {
			errs = multierr.Append(errs, fmt.Errorf("class %q: duplicate property %q", s.Name, p.Name))
			continue
		}
		names[p.Name] = true

		if !supportedTypes[p.Type] {
			errs = multierr.Append(errs, fmt.Errorf("class %q: property %q has unsupported type %q", s.Name, p.Name, p.Type))
		}
		if (p.Type == TypeObject || p.Type == TypeList) && p.ObjectType == "" {
			errs = multierr.Append(errs, fmt.Errorf("class %q: link property %q must declare an object type", s.Name, p.Name))
		}
		if p.PrimaryKey {
			if primary != "" && primary != p.Name {
				errs = multierr.Append(errs, fmt.Errorf("class %q: more than one property marked as primary key (%q, %q)", s.Name, primary, p.Name))
				continue
			}
			primary = p.Name
		}
	}

	if primary != "" {
		p, ok := firstProperty(s.Properties, primary)
		switch {
		case !ok:
			errs = multierr.Append(errs, fmt.Errorf("class %q: primary key %q does not match any property", s.Name, primary))
		case !primaryKeyTypes[p.Type]:
			errs = multierr.Append(errs, fmt.Errorf("class %q: primary key %q has non-key type %q", s.Name, primary, p.Type))
		case tableType != TableTopLevel:
			errs = multierr.Append(errs, fmt.Errorf("class %q: %s classes cannot declare a primary key", s.Name, tableType))
		}
	}

	if errs != nil {
		return CanonicalObjectSchema{}, fmt.Errorf("%w: %w", ErrSchemaValidation, errs)
	}

	defaults := make(map[string]interface{})
	props := make([]Property, len(s.Properties))
	copy(props, s.Properties)
	for i := range props {
		props[i].PrimaryKey = props[i].Name == primary
		if props[i].Default != nil {
			defaults[props[i].Name] = props[i].Default
		}
	}

	return CanonicalObjectSchema{
		Name:       s.Name,
		TableType:  tableType,
		PrimaryKey: primary,
		Properties: props,
		Defaults:   defaults,
		Prototype:  s.Prototype,
	}, nil
}

func firstProperty(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}
