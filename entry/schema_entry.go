package entry

import (
	"errors"
	"fmt"

	"github.com/jpdeplaix/ldapdir/schema"
)

// Flavor selects how strictly a schema-checked entry treats attributes the
// schema does not permit.
type Flavor int

const (
	// Optimistic completes the object-class set and silently hides unknown
	// or disallowed attributes from the checked view.
	Optimistic Flavor = iota

	// Pessimistic completes the object-class set and rejects unknown
	// object classes and disallowed attributes.
	Pessimistic
)

// InvalidObjectClassError reports an object class name unknown to the schema.
type InvalidObjectClassError struct {
	Class string
}

func (e *InvalidObjectClassError) Error() string {
	return fmt.Sprintf("ldapdir: invalid object class %q", e.Class)
}

// InvalidAttributeError reports an attribute not permitted by the entry's
// object-class cover.
type InvalidAttributeError struct {
	Attr string
}

func (e *InvalidAttributeError) Error() string {
	return fmt.Sprintf("ldapdir: invalid attribute %q", e.Attr)
}

// SingleValueError reports an add or replace that would leave more than one
// value on a SINGLE-VALUE attribute.
type SingleValueError struct {
	Attr string
}

func (e *SingleValueError) Error() string {
	return fmt.Sprintf("ldapdir: attribute %q is single-valued", e.Attr)
}

// ErrObjectClassRequired is returned when an entry without an objectClass
// attribute is validated for commit.
var ErrObjectClassRequired = errors.New("ldapdir: entry has no objectClass attribute")

// SchemaEntry binds an Entry to a schema. Every mutation recomputes the
// cached must/may/present/missing sets and re-runs object-class completion
// under the configured flavor.
type SchemaEntry struct {
	raw    *Entry
	schema *schema.Schema
	flavor Flavor

	must    map[string]bool // attribute OIDs required by the cover
	may     map[string]bool // attribute OIDs permitted by the cover
	present map[string]bool // OIDs of present, schema-known attributes
	missing map[string]bool // must minus present
	hidden  map[string]bool // folded names dropped from the checked view
}

// NewSchemaEntry returns an empty schema-checked entry.
func NewSchemaEntry(s *schema.Schema, flavor Flavor, dn string) *SchemaEntry {
	se, _ := OfEntry(s, flavor, New(dn))
	return se
}

// OfEntry wraps an existing entry. Completion runs immediately; under the
// pessimistic flavor the wrap fails if the entry violates the schema. The
// object-class values added by completion do not count as caller intent, so
// an entry that came in with an empty change log keeps it empty.
func OfEntry(s *schema.Schema, flavor Flavor, e *Entry) (*SchemaEntry, error) {
	se := &SchemaEntry{raw: e, schema: s, flavor: flavor}
	fresh := len(e.changes) == 0
	if err := se.refresh(); err != nil {
		return nil, err
	}
	if fresh {
		e.FlushChanges()
	}
	return se, nil
}

// Entry returns the underlying raw entry. Attributes hidden by the
// optimistic flavor remain reachable (and removable) through it.
func (se *SchemaEntry) Entry() *Entry { return se.raw }

// Schema returns the bound schema.
func (se *SchemaEntry) Schema() *schema.Schema { return se.schema }

// refresh recomputes the cached sets from the current object-class and
// attribute state.
func (se *SchemaEntry) refresh() error {
	se.must = make(map[string]bool)
	se.may = make(map[string]bool)
	se.present = make(map[string]bool)
	se.missing = make(map[string]bool)
	se.hidden = make(map[string]bool)

	cover := make(map[string]*schema.ObjectClass)
	for _, name := range se.raw.Values("objectClass") {
		chain := se.schema.SuperiorChain(name)
		if len(chain) == 0 {
			if se.flavor == Pessimistic {
				return &InvalidObjectClassError{Class: name}
			}
			continue
		}
		for _, oc := range chain {
			cover[oc.OID] = oc
		}
	}

	// Completion: surface the transitive SUP closure on the entry itself so
	// the server sees the full cover on commit.
	for _, oc := range cover {
		if oc.Name == "" {
			continue
		}
		if !containsFold(se.raw.Values("objectClass"), oc.Names) {
			se.raw.Add("objectClass", []string{oc.Name})
		}
	}

	for _, oc := range cover {
		for _, attr := range oc.Must {
			if oid := se.schema.AttrOID(attr); oid != "" {
				se.must[oid] = true
			}
		}
		for _, attr := range oc.May {
			if oid := se.schema.AttrOID(attr); oid != "" {
				se.may[oid] = true
			}
		}
	}

	for _, attr := range se.raw.Attributes() {
		oid := se.schema.AttrOID(attr)
		if fold(attr) == "objectclass" {
			if oid != "" {
				se.present[oid] = true
			}
			continue
		}
		if oid == "" || (!se.must[oid] && !se.may[oid]) {
			if se.flavor == Pessimistic {
				return &InvalidAttributeError{Attr: attr}
			}
			se.hidden[fold(attr)] = true
			continue
		}
		se.present[oid] = true
	}
	for oid := range se.must {
		if !se.present[oid] {
			se.missing[oid] = true
		}
	}
	return nil
}

func containsFold(vals []string, names []string) bool {
	for _, v := range vals {
		for _, n := range names {
			if fold(v) == fold(n) {
				return true
			}
		}
	}
	return false
}

// checkSingleValue rejects a candidate value set of more than one value on
// a SINGLE-VALUE attribute.
func (se *SchemaEntry) checkSingleValue(attr string, n int) error {
	if n <= 1 {
		return nil
	}
	if at := se.schema.AttributeByName(attr); at != nil && at.SingleValue {
		return &SingleValueError{Attr: attr}
	}
	return nil
}

// Add unions values into the attribute and revalidates.
func (se *SchemaEntry) Add(attr string, vals []string) error {
	candidate := len(se.raw.Values(attr))
	for _, v := range vals {
		if !contains(se.raw.Values(attr), v) {
			candidate++
		}
	}
	if err := se.checkSingleValue(attr, candidate); err != nil {
		return err
	}
	se.raw.Add(attr, vals)
	return se.refresh()
}

// Delete removes values (or the attribute) and revalidates.
func (se *SchemaEntry) Delete(attr string, vals []string) error {
	se.raw.Delete(attr, vals)
	return se.refresh()
}

// Replace overwrites the attribute's value set and revalidates.
func (se *SchemaEntry) Replace(attr string, vals []string) error {
	if err := se.checkSingleValue(attr, len(vals)); err != nil {
		return err
	}
	se.raw.Replace(attr, vals)
	return se.refresh()
}

// Modify applies records in order, stopping at the first violation.
func (se *SchemaEntry) Modify(mods []Mod) error {
	for _, m := range mods {
		var err error
		switch m.Op {
		case ModAdd:
			err = se.Add(m.Attr, m.Vals)
		case ModDelete:
			err = se.Delete(m.Attr, m.Vals)
		case ModReplace:
			err = se.Replace(m.Attr, m.Vals)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DN returns the entry's distinguished name.
func (se *SchemaEntry) DN() string { return se.raw.DN() }

// Exists reports attribute presence in the checked view.
func (se *SchemaEntry) Exists(attr string) bool {
	if se.hidden[fold(attr)] {
		return false
	}
	return se.raw.Exists(attr)
}

// Values returns the attribute's values, excluding hidden attributes.
func (se *SchemaEntry) Values(attr string) []string {
	if se.hidden[fold(attr)] {
		return nil
	}
	return se.raw.Values(attr)
}

// Attributes lists present attribute names, excluding hidden ones.
func (se *SchemaEntry) Attributes() []string {
	var names []string
	for _, attr := range se.raw.Attributes() {
		if !se.hidden[fold(attr)] {
			names = append(names, attr)
		}
	}
	return names
}

// Changes exposes the underlying change log.
func (se *SchemaEntry) Changes() []Mod { return se.raw.Changes() }

// FlushChanges empties the underlying change log.
func (se *SchemaEntry) FlushChanges() { se.raw.FlushChanges() }

// IsAllowed reports whether the attribute is in MUST∪MAY of the cover.
// Aliases match through the schema's name table.
func (se *SchemaEntry) IsAllowed(attr string) bool {
	oid := se.schema.AttrOID(attr)
	return oid != "" && (se.must[oid] || se.may[oid])
}

// IsMissing reports whether the attribute is required but absent.
func (se *SchemaEntry) IsMissing(attr string) bool {
	oid := se.schema.AttrOID(attr)
	return oid != "" && se.missing[oid]
}

// ListMust returns the canonical names of all required attributes.
func (se *SchemaEntry) ListMust() []string { return se.attrNames(se.must) }

// ListMay returns the canonical names of all optional attributes.
func (se *SchemaEntry) ListMay() []string { return se.attrNames(se.may) }

// ListAllowed returns the canonical names of MUST∪MAY.
func (se *SchemaEntry) ListAllowed() []string {
	union := make(map[string]bool, len(se.must)+len(se.may))
	for oid := range se.must {
		union[oid] = true
	}
	for oid := range se.may {
		union[oid] = true
	}
	return se.attrNames(union)
}

// ListMissing returns the canonical names of required-but-absent attributes.
func (se *SchemaEntry) ListMissing() []string { return se.attrNames(se.missing) }

// ListPresent returns the names of present attributes in the checked view.
func (se *SchemaEntry) ListPresent() []string { return se.Attributes() }

// Validate checks the entry is committable: it must carry an objectClass
// attribute. Missing required attributes are reported through ListMissing
// and left for the server to enforce.
func (se *SchemaEntry) Validate() error {
	if !se.raw.Exists("objectClass") {
		return ErrObjectClassRequired
	}
	return nil
}

func (se *SchemaEntry) attrNames(oids map[string]bool) []string {
	names := make([]string, 0, len(oids))
	for oid := range oids {
		if at := se.schema.AttributeByOID(oid); at != nil && at.Name != "" {
			names = append(names, at.Name)
		} else {
			names = append(names, oid)
		}
	}
	return names
}

// DiffSchema is the OID-aware variant of Diff: attribute identity follows
// the schema's name→OID table, so aliased spellings compare equal.
func DiffSchema(s *schema.Schema, a, b AttributeSource) []Mod {
	canon := func(attr string) string {
		if oid := s.AttrOID(attr); oid != "" {
			return oid
		}
		return fold(attr)
	}
	var mods []Mod
	seen := make(map[string]bool)
	bByKey := make(map[string][]string)
	for _, attr := range b.Attributes() {
		bByKey[canon(attr)] = b.Values(attr)
	}
	for _, attr := range a.Attributes() {
		key := canon(attr)
		seen[key] = true
		av := a.Values(attr)
		bv := bByKey[key]
		switch {
		case len(bv) == 0:
			mods = append(mods, Mod{Op: ModAdd, Attr: attr, Vals: av})
		case !sameValueSet(av, bv):
			mods = append(mods, Mod{Op: ModReplace, Attr: attr, Vals: av})
		}
	}
	for _, attr := range b.Attributes() {
		if !seen[canon(attr)] {
			mods = append(mods, Mod{Op: ModDelete, Attr: attr, Vals: nil})
		}
	}
	return mods
}
