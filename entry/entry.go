// Package entry implements the client-side directory entry model: a present
// attribute map plus an ordered log of pending modifications. The log, not
// the map, is what gets replayed against the server; the two are kept in
// lockstep so local state always matches what a successful commit would
// produce.
package entry

import (
	"strings"
)

// ChangeType describes the server operation an entry is destined for.
type ChangeType int

// Change types.
const (
	ChangeAdd ChangeType = iota
	ChangeModify
	ChangeDelete
	ChangeModDN
)

// String returns the LDIF changetype keyword.
func (t ChangeType) String() string {
	switch t {
	case ChangeAdd:
		return "add"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	case ChangeModDN:
		return "moddn"
	default:
		return "unknown"
	}
}

// ModOp is a modification operation kind, numbered per RFC 4511.
type ModOp int

// Modification operations.
const (
	ModAdd     ModOp = 0
	ModDelete  ModOp = 1
	ModReplace ModOp = 2
)

// String returns the LDIF keyword for the operation.
func (op ModOp) String() string {
	switch op {
	case ModAdd:
		return "add"
	case ModDelete:
		return "delete"
	case ModReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Mod is one pending modification record.
type Mod struct {
	Op   ModOp
	Attr string
	Vals []string
}

// Attribute is the wire-facing attribute record: a name and its values as
// they appear in a SearchResultEntry or AddRequest PDU.
type Attribute struct {
	Name string
	Vals []string
}

// ModDNInfo carries the rename parameters for an entry with changetype
// ChangeModDN.
type ModDNInfo struct {
	NewRDN       string
	DeleteOldRDN bool
	NewSuperior  string
}

// attrSlot keeps the caller's original spelling next to the value set.
type attrSlot struct {
	name string
	vals []string
}

// Entry is one directory object. Attribute names are case-insensitive;
// values are opaque strings compared byte for byte. The zero value is not
// usable; construct with New or FromSearchEntry.
type Entry struct {
	dn         string
	changeType ChangeType
	attrs      map[string]*attrSlot // key is the folded attribute name
	changes    []Mod
	modDN      *ModDNInfo
}

// New returns an empty entry with the given DN, destined to be added.
func New(dn string) *Entry {
	return &Entry{
		dn:         dn,
		changeType: ChangeAdd,
		attrs:      make(map[string]*attrSlot),
	}
}

// FromSearchEntry builds an entry from a decoded search result. The entry
// starts with an empty change log and changetype ChangeModify, i.e. it is
// treated as freshly read from the server.
func FromSearchEntry(dn string, attrs []Attribute) *Entry {
	e := New(dn)
	for _, a := range attrs {
		e.setPresent(a.Name, append([]string(nil), a.Vals...))
	}
	e.changeType = ChangeModify
	e.changes = nil
	return e
}

// ReferralDN is the sentinel DN given to entries built from search
// continuation references.
const ReferralDN = "cn=referral"

// FromReferral converts a search continuation reference into an entry
// carrying the referral URLs in a "ref" attribute. Referrals are never
// chased; they are handed to the caller for inspection.
func FromReferral(urls []string) *Entry {
	e := New(ReferralDN)
	e.setPresent("ref", append([]string(nil), urls...))
	e.changeType = ChangeModify
	e.changes = nil
	return e
}

// fold normalizes an attribute name for map lookup.
func fold(name string) string {
	return strings.ToLower(name)
}

// setPresent overwrites an attribute slot without touching the change log.
func (e *Entry) setPresent(attr string, vals []string) {
	if len(vals) == 0 {
		delete(e.attrs, fold(attr))
		return
	}
	e.attrs[fold(attr)] = &attrSlot{name: attr, vals: vals}
}

// DN returns the entry's distinguished name.
func (e *Entry) DN() string { return e.dn }

// SetDN replaces the entry's distinguished name.
func (e *Entry) SetDN(dn string) { e.dn = dn }

// ChangeType returns the pending server operation kind.
func (e *Entry) ChangeType() ChangeType { return e.changeType }

// SetChangeType sets the pending server operation kind.
func (e *Entry) SetChangeType(t ChangeType) { e.changeType = t }

// ModDNInfo returns the rename parameters, or nil if none were set.
func (e *Entry) ModDNInfo() *ModDNInfo { return e.modDN }

// SetModDN marks the entry for a ModifyDN operation with the given new RDN.
// newSuperior may be empty for a plain rename.
func (e *Entry) SetModDN(newRDN string, deleteOldRDN bool, newSuperior string) {
	e.changeType = ChangeModDN
	e.modDN = &ModDNInfo{NewRDN: newRDN, DeleteOldRDN: deleteOldRDN, NewSuperior: newSuperior}
}

// Exists reports whether the attribute has at least one value.
func (e *Entry) Exists(attr string) bool {
	_, ok := e.attrs[fold(attr)]
	return ok
}

// Values returns a copy of the attribute's value set, nil if absent.
func (e *Entry) Values(attr string) []string {
	slot, ok := e.attrs[fold(attr)]
	if !ok {
		return nil
	}
	return append([]string(nil), slot.vals...)
}

// Attributes lists the present attribute names in their original spelling.
func (e *Entry) Attributes() []string {
	names := make([]string, 0, len(e.attrs))
	for _, slot := range e.attrs {
		names = append(names, slot.name)
	}
	return names
}

// record appends to the change log. Entries destined for deletion carry no
// log; the server action is implied by the changetype alone.
func (e *Entry) record(op ModOp, attr string, vals []string) {
	if e.changeType == ChangeDelete {
		return
	}
	e.changes = append(e.changes, Mod{Op: op, Attr: attr, Vals: append([]string(nil), vals...)})
}

// Add unions vals into the attribute's value set, creating the attribute if
// absent, and logs the addition. Adding nothing to an absent attribute is a
// no-op.
func (e *Entry) Add(attr string, vals []string) {
	slot, ok := e.attrs[fold(attr)]
	if !ok {
		if len(vals) == 0 {
			return
		}
		slot = &attrSlot{name: attr}
		e.attrs[fold(attr)] = slot
	}
	for _, v := range vals {
		if !contains(slot.vals, v) {
			slot.vals = append(slot.vals, v)
		}
	}
	e.record(ModAdd, attr, vals)
}

// Delete removes the listed values from the attribute, or the whole
// attribute when vals is empty, and logs the deletion. A value-level delete
// that empties the attribute removes it from the present map but is still
// logged value-level: whether that was legal is the server's call.
func (e *Entry) Delete(attr string, vals []string) {
	if len(vals) == 0 {
		delete(e.attrs, fold(attr))
		e.record(ModDelete, attr, nil)
		return
	}
	if slot, ok := e.attrs[fold(attr)]; ok {
		remaining := slot.vals[:0]
		for _, v := range slot.vals {
			if !contains(vals, v) {
				remaining = append(remaining, v)
			}
		}
		slot.vals = remaining
		if len(slot.vals) == 0 {
			delete(e.attrs, fold(attr))
		}
	}
	e.record(ModDelete, attr, vals)
}

// Replace overwrites the attribute's value set with vals (deleting the
// attribute when vals is empty) and logs the replacement.
func (e *Entry) Replace(attr string, vals []string) {
	e.setPresent(attr, append([]string(nil), vals...))
	e.record(ModReplace, attr, vals)
}

// Modify applies each record in order, exactly as the corresponding
// primitive calls would.
func (e *Entry) Modify(mods []Mod) {
	for _, m := range mods {
		switch m.Op {
		case ModAdd:
			e.Add(m.Attr, m.Vals)
		case ModDelete:
			e.Delete(m.Attr, m.Vals)
		case ModReplace:
			e.Replace(m.Attr, m.Vals)
		}
	}
}

// Changes returns the pending modification log in issue order. The log is
// never compacted: the server applies mods in sequence and later ones may
// depend on the state left by earlier ones.
func (e *Entry) Changes() []Mod {
	return append([]Mod(nil), e.changes...)
}

// FlushChanges empties the change log without touching the present map.
// Call it after a successful commit, or to treat the entry as freshly read.
func (e *Entry) FlushChanges() {
	e.changes = nil
}

// ToAttributes exports the present attribute map as wire attribute records.
// The change log is ignored.
func (e *Entry) ToAttributes() []Attribute {
	attrs := make([]Attribute, 0, len(e.attrs))
	for _, slot := range e.attrs {
		attrs = append(attrs, Attribute{Name: slot.name, Vals: append([]string(nil), slot.vals...)})
	}
	return attrs
}

// Copy returns a deep copy of the entry, change log included.
func (e *Entry) Copy() *Entry {
	c := New(e.dn)
	c.changeType = e.changeType
	for k, slot := range e.attrs {
		c.attrs[k] = &attrSlot{name: slot.name, vals: append([]string(nil), slot.vals...)}
	}
	c.changes = append([]Mod(nil), e.changes...)
	if e.modDN != nil {
		info := *e.modDN
		c.modDN = &info
	}
	return c
}

func contains(vals []string, v string) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}
