package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"emberdb/src/schema"
)

// propertyCodec translates between application values and the
// primitive column representation of one declared property.
type propertyCodec struct {
	prop schema.Property
}

// Encode converts an application value to the property's column
// primitive. Untranslatable values fail with ErrInvalidArgument.
func (c propertyCodec) Encode(value interface{}) (interface{}, error) {
	if value == nil {
		if !c.prop.Optional {
			return nil, fmt.Errorf("%w: property %q is not optional", ErrInvalidArgument, c.prop.Name)
		}
		return nil, nil
	}

	switch c.prop.Type {
	case schema.TypeBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case schema.TypeInt:
		switch n := value.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n == float64(int64(n)) {
				return int64(n), nil
			}
		}
	case schema.TypeFloat, schema.TypeDouble:
		switch n := value.(type) {
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		}
	case schema.TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case schema.TypeData:
		if b, ok := value.([]byte); ok {
			out := make([]byte, len(b))
			copy(out, b)
			return out, nil
		}
	case schema.TypeDate:
		if ts, ok := value.(time.Time); ok {
			return ts.UTC(), nil
		}
	case schema.TypeUUID:
		switch v := value.(type) {
		case uuid.UUID:
			return v.String(), nil
		case string:
			parsed, err := uuid.Parse(v)
			if err != nil {
				return nil, fmt.Errorf("%w: property %q: %v", ErrInvalidArgument, c.prop.Name, err)
			}
			return parsed.String(), nil
		}
	case schema.TypeObject:
		switch v := value.(type) {
		case *Object:
			if !v.IsValid() {
				return nil, fmt.Errorf("%w: link value for property %q", ErrInvalidatedObject, c.prop.Name)
			}
			return string(v.Key()), nil
		case string:
			return v, nil
		}
	case schema.TypeList:
		var items []interface{}
		switch v := value.(type) {
		case []interface{}:
			items = v
		case []*Object:
			items = make([]interface{}, len(v))
			for i, o := range v {
				items[i] = o
			}
		case []string:
			items = make([]interface{}, len(v))
			for i, s := range v {
				items[i] = s
			}
		}
		if items != nil {
			linkCodec := propertyCodec{prop: schema.Property{
				Name:       c.prop.Name,
				Type:       schema.TypeObject,
				Optional:   true,
				ObjectType: c.prop.ObjectType,
			}}
			out := make([]interface{}, len(items))
			for i, item := range items {
				encoded, err := linkCodec.Encode(item)
				if err != nil {
					return nil, err
				}
				out[i] = encoded
			}
			return out, nil
		}
	}

	return nil, fmt.Errorf("%w: cannot store %T as %s property %q",
		ErrInvalidArgument, value, c.prop.Type, c.prop.Name)
}

// Decode converts a stored column primitive back to the value handed
// to application code. Link columns stay raw keys; the object wrapper
// turns them into typed objects.
func (c propertyCodec) Decode(stored interface{}) interface{} {
	if stored == nil {
		return nil
	}
	switch c.prop.Type {
	case schema.TypeInt:
		switch n := stored.(type) {
		case int32:
			return int64(n)
		case int64:
			return n
		}
	case schema.TypeUUID:
		if s, ok := stored.(string); ok {
			if parsed, err := uuid.Parse(s); err == nil {
				return parsed
			}
		}
	case schema.TypeDate:
		if ts, ok := stored.(time.Time); ok {
			return ts.UTC()
		}
	}
	return stored
}
