package schema

// AttributeUsage defines how an attribute is used in the directory.
type AttributeUsage int

const (
	// UserApplications indicates a user attribute that applications can
	// read and write. This is the default usage.
	UserApplications AttributeUsage = iota

	// DirectoryOperation indicates an operational attribute used by the
	// directory for its own purposes.
	DirectoryOperation

	// DistributedOperation indicates an operational attribute shared across
	// servers.
	DistributedOperation

	// DSAOperation indicates an operational attribute local to one server.
	DSAOperation
)

// String returns the string representation of the AttributeUsage.
func (u AttributeUsage) String() string {
	switch u {
	case UserApplications:
		return "userApplications"
	case DirectoryOperation:
		return "directoryOperation"
	case DistributedOperation:
		return "distributedOperation"
	case DSAOperation:
		return "dSAOperation"
	default:
		return "unknown"
	}
}

// IsOperational returns true if this usage indicates an operational attribute.
func (u AttributeUsage) IsOperational() bool {
	return u != UserApplications
}

// AttributeType represents an LDAP attribute type definition as published in
// the server's subschema subentry.
type AttributeType struct {
	OID         string         // Object identifier (e.g. "2.5.4.3")
	Name        string         // Primary name (e.g. "cn")
	Names       []string       // All names including aliases
	Desc        string         // Human-readable description
	Obsolete    bool           // Definition is obsolete
	Superior    string         // Parent attribute type name or OID
	Equality    string         // Equality matching rule
	Ordering    string         // Ordering matching rule
	Substring   string         // Substring matching rule
	Syntax      string         // Syntax OID
	SingleValue bool           // Attribute can hold only one value
	Collective  bool           // Attribute is collective
	NoUserMod   bool           // Attribute cannot be modified by users
	Usage       AttributeUsage // Usage class
}

// NewAttributeType creates a new AttributeType with the given OID and name.
func NewAttributeType(oid, name string) *AttributeType {
	return &AttributeType{
		OID:   oid,
		Name:  name,
		Names: []string{name},
		Usage: UserApplications,
	}
}

// AddName adds an alias name to this attribute type.
func (at *AttributeType) AddName(name string) {
	for _, n := range at.Names {
		if n == name {
			return
		}
	}
	at.Names = append(at.Names, name)
	if at.Name == "" {
		at.Name = name
	}
}

// IsSingleValued returns true if this attribute can have only one value.
func (at *AttributeType) IsSingleValued() bool {
	return at.SingleValue
}

// IsOperational returns true if this is an operational attribute.
func (at *AttributeType) IsOperational() bool {
	return at.Usage.IsOperational()
}
