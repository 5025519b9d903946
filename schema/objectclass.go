package schema

// ObjectClassKind defines the kind of an object class.
type ObjectClassKind int

const (
	// Structural object classes define the basic type of an entry. Every
	// entry must belong to exactly one structural class chain.
	Structural ObjectClassKind = iota

	// Auxiliary object classes add attributes to an entry of any
	// structural class.
	Auxiliary

	// Abstract object classes only serve as superclasses (e.g. "top").
	Abstract
)

// String returns the RFC 4512 keyword for the kind.
func (k ObjectClassKind) String() string {
	switch k {
	case Structural:
		return "STRUCTURAL"
	case Auxiliary:
		return "AUXILIARY"
	case Abstract:
		return "ABSTRACT"
	default:
		return "unknown"
	}
}

// ObjectClass represents an LDAP object class definition.
type ObjectClass struct {
	OID      string          // Object identifier (e.g. "2.5.6.6")
	Name     string          // Primary name (e.g. "person")
	Names    []string        // All names including aliases
	Desc     string          // Human-readable description
	Obsolete bool            // Definition is obsolete
	Sup      []string        // Superior class names or OIDs
	Kind     ObjectClassKind // STRUCTURAL, AUXILIARY or ABSTRACT
	Must     []string        // Required attribute names or OIDs
	May      []string        // Permitted attribute names or OIDs
}

// NewObjectClass creates a new ObjectClass with the given OID and name.
func NewObjectClass(oid, name string) *ObjectClass {
	return &ObjectClass{
		OID:   oid,
		Name:  name,
		Names: []string{name},
		Kind:  Structural,
	}
}

// AddName adds an alias name to this object class.
func (oc *ObjectClass) AddName(name string) {
	for _, n := range oc.Names {
		if n == name {
			return
		}
	}
	oc.Names = append(oc.Names, name)
	if oc.Name == "" {
		oc.Name = name
	}
}

// AddMustAttribute adds a required attribute.
func (oc *ObjectClass) AddMustAttribute(attr string) {
	oc.Must = append(oc.Must, attr)
}

// AddMayAttribute adds a permitted attribute.
func (oc *ObjectClass) AddMayAttribute(attr string) {
	oc.May = append(oc.May, attr)
}
