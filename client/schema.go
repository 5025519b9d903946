package client

import (
	"errors"

	"github.com/jpdeplaix/ldapdir/entry"
	"github.com/jpdeplaix/ldapdir/schema"
)

// subschemaAttrs are the definition attributes asked of the subschema
// subentry. The operational ones must be named explicitly; "*" would not
// return them.
var subschemaAttrs = []string{
	"objectClasses",
	"attributeTypes",
	"matchingRules",
	"matchingRuleUse",
	"ldapSyntaxes",
	"dITStructureRules",
	"dITContentRules",
	"nameForms",
}

// RawSchema reads the server's subschema subentry: a base search on the
// root DSE for subschemaSubentry, then a base search on that DN for the
// definition attributes. The raw entry is returned unparsed.
func (m *Manager) RawSchema() (*entry.Entry, error) {
	dse, err := m.Search(&SearchRequest{
		BaseDN:     "",
		Scope:      ScopeBase,
		Attributes: []string{"subschemaSubentry"},
	})
	if err != nil {
		return nil, err
	}
	if len(dse.Entries) == 0 {
		return nil, NewError(ResultNoSuchObject, errors.New("ldapdir: server returned no root DSE"))
	}
	subschemaDN := dse.Entries[0].Values("subschemaSubentry")
	if len(subschemaDN) == 0 {
		return nil, NewError(ResultNoSuchAttribute, errors.New("ldapdir: root DSE has no subschemaSubentry"))
	}
	sub, err := m.Search(&SearchRequest{
		BaseDN:     subschemaDN[0],
		Scope:      ScopeBase,
		Filter:     "(objectClass=subschema)",
		Attributes: subschemaAttrs,
	})
	if err != nil {
		return nil, err
	}
	if len(sub.Entries) == 0 {
		return nil, NewError(ResultNoSuchObject, errors.New("ldapdir: subschema subentry not found"))
	}
	return sub.Entries[0], nil
}

// Schema fetches and parses the server schema. The parsed schema is
// memoized for the life of the manager.
func (m *Manager) Schema() (*schema.Schema, error) {
	if m.schema != nil {
		return m.schema, nil
	}
	raw, err := m.RawSchema()
	if err != nil {
		return nil, err
	}
	s, err := schema.Parse(raw.Values("attributeTypes"), raw.Values("objectClasses"))
	if err != nil {
		return nil, NewError(ResultDecodingError, err)
	}
	m.Debug.Dump(s)
	m.schema = s
	return s, nil
}
