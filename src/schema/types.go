package schema

// PropertyType identifies the declared storage type of a property.
type PropertyType string

const (
	TypeBool   PropertyType = "bool"
	TypeInt    PropertyType = "int"
	TypeFloat  PropertyType = "float"
	TypeDouble PropertyType = "double"
	TypeString PropertyType = "string"
	TypeData   PropertyType = "data"
	TypeDate   PropertyType = "date"
	TypeUUID   PropertyType = "uuid"
	TypeObject PropertyType = "object"
	TypeList   PropertyType = "list"
)

// TableType selects the physical storage mode of a class.
type TableType string

const (
	// TableTopLevel rows have independent identity and are queryable.
	TableTopLevel TableType = "top-level"
	// TableEmbedded rows live inside a parent row and cannot be
	// queried on their own.
	TableEmbedded TableType = "embedded"
	// TableAsymmetric rows are write-only and never locally queryable.
	TableAsymmetric TableType = "asymmetric"
)

// Property declares a single field of an object class.
type Property struct {
	Name       string
	Type       PropertyType
	Optional   bool
	PrimaryKey bool
	Default    interface{}

	// ObjectType names the target class for object and list links.
	ObjectType string
}

// ObjectSchema is the user-supplied declaration of one object class.
type ObjectSchema struct {
	Name       string
	TableType  TableType
	PrimaryKey string
	Properties []Property

	// Prototype is an optional Go type registered for this class, so
	// the class map can resolve a typed value back to its class name.
	Prototype interface{}
}

// CanonicalObjectSchema is the validated, normalized form of an
// ObjectSchema. It is a pure value; producing one never touches the
// storage engine.
type CanonicalObjectSchema struct {
	Name       string
	TableType  TableType
	PrimaryKey string

	// Properties preserves declaration order for deterministic
	// iteration; order has no storage meaning.
	Properties []Property

	// Defaults maps property name to its declared default value.
	Defaults map[string]interface{}

	Prototype interface{}
}

// Property returns the named property declaration, if present.
func (c CanonicalObjectSchema) Property(name string) (Property, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// supportedTypes is the set of property types the engine can store.
var supportedTypes = map[PropertyType]bool{
	TypeBool:   true,
	TypeInt:    true,
	TypeFloat:  true,
	TypeDouble: true,
	TypeString: true,
	TypeData:   true,
	TypeDate:   true,
	TypeUUID:   true,
	TypeObject: true,
	TypeList:   true,
}

// primaryKeyTypes is the subset of types usable as a primary key.
var primaryKeyTypes = map[PropertyType]bool{
	TypeInt:    true,
	TypeString: true,
	TypeUUID:   true,
}
