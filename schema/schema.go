// Package schema models an LDAP server's published schema: attribute type
// and object class definitions indexed by OID and by any of their
// (case-insensitive) names.
package schema

import (
	"strings"
)

// Fold normalizes an attribute or class name for case-insensitive lookup.
func Fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Schema is the parsed representation of a server's schema. It is
// conceptually immutable once built; share it by reference.
type Schema struct {
	attrsByOID   map[string]*AttributeType
	attrOIDs     map[string]string // folded name -> OID
	classesByOID map[string]*ObjectClass
	classOIDs    map[string]string // folded name -> OID
}

// New returns an empty Schema.
func New() *Schema {
	return &Schema{
		attrsByOID:   make(map[string]*AttributeType),
		attrOIDs:     make(map[string]string),
		classesByOID: make(map[string]*ObjectClass),
		classOIDs:    make(map[string]string),
	}
}

// AddAttributeType registers an attribute type under its OID and all names.
func (s *Schema) AddAttributeType(at *AttributeType) {
	if at.OID != "" {
		s.attrsByOID[at.OID] = at
	}
	for _, name := range at.Names {
		s.attrOIDs[Fold(name)] = at.OID
	}
}

// AddObjectClass registers an object class under its OID and all names.
func (s *Schema) AddObjectClass(oc *ObjectClass) {
	if oc.OID != "" {
		s.classesByOID[oc.OID] = oc
	}
	for _, name := range oc.Names {
		s.classOIDs[Fold(name)] = oc.OID
	}
}

// AttrOID resolves an attribute name, alias or OID to the canonical OID.
// The empty string is returned for names unknown to the schema.
func (s *Schema) AttrOID(nameOrOID string) string {
	if _, ok := s.attrsByOID[nameOrOID]; ok {
		return nameOrOID
	}
	return s.attrOIDs[Fold(nameOrOID)]
}

// AttributeByOID returns the attribute type definition for the given OID.
func (s *Schema) AttributeByOID(oid string) *AttributeType {
	return s.attrsByOID[oid]
}

// AttributeByName returns the attribute type for a name, alias or OID.
func (s *Schema) AttributeByName(nameOrOID string) *AttributeType {
	if oid := s.AttrOID(nameOrOID); oid != "" {
		return s.attrsByOID[oid]
	}
	return nil
}

// ClassOID resolves an object class name, alias or OID to the canonical OID.
func (s *Schema) ClassOID(nameOrOID string) string {
	if _, ok := s.classesByOID[nameOrOID]; ok {
		return nameOrOID
	}
	return s.classOIDs[Fold(nameOrOID)]
}

// ObjectClassByOID returns the object class definition for the given OID.
func (s *Schema) ObjectClassByOID(oid string) *ObjectClass {
	return s.classesByOID[oid]
}

// ObjectClassByName returns the object class for a name, alias or OID.
func (s *Schema) ObjectClassByName(nameOrOID string) *ObjectClass {
	if oid := s.ClassOID(nameOrOID); oid != "" {
		return s.classesByOID[oid]
	}
	return nil
}

// AttributeTypes returns every registered attribute type definition.
func (s *Schema) AttributeTypes() []*AttributeType {
	attrs := make([]*AttributeType, 0, len(s.attrsByOID))
	for _, at := range s.attrsByOID {
		attrs = append(attrs, at)
	}
	return attrs
}

// ObjectClasses returns every registered object class definition.
func (s *Schema) ObjectClasses() []*ObjectClass {
	classes := make([]*ObjectClass, 0, len(s.classesByOID))
	for _, oc := range s.classesByOID {
		classes = append(classes, oc)
	}
	return classes
}

// EquateAttr reports whether two attribute names denote the same attribute,
// i.e. the schema maps both to the same OID. "uid" and "userID" are equal.
func (s *Schema) EquateAttr(a, b string) bool {
	oa, ob := s.AttrOID(a), s.AttrOID(b)
	return oa != "" && oa == ob
}

// SuperiorChain returns the transitive SUP closure of the named object
// class, starting with the class itself. Unknown superiors are skipped;
// each class appears once.
func (s *Schema) SuperiorChain(nameOrOID string) []*ObjectClass {
	var chain []*ObjectClass
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		oc := s.ObjectClassByName(n)
		if oc == nil || seen[oc.OID] {
			return
		}
		seen[oc.OID] = true
		chain = append(chain, oc)
		for _, sup := range oc.Sup {
			walk(sup)
		}
	}
	walk(nameOrOID)
	return chain
}
