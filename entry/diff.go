package entry

import "strings"

// AttributeSource is the minimal capability Diff needs from an entry-like
// value: enumerate attribute names and read a value set.
type AttributeSource interface {
	Attributes() []string
	Values(attr string) []string
}

// Diff returns the minimal modification list that transforms b's present
// state into a's. Per attribute: a full ADD when only a has it, a full
// DELETE when only b has it, a REPLACE with a's values when the sets
// differ. Attribute identity is by case-folded name; callers wanting
// OID-aware identity should diff through schema-checked views.
func Diff(a, b AttributeSource) []Mod {
	var mods []Mod
	seen := make(map[string]bool)
	for _, attr := range a.Attributes() {
		seen[strings.ToLower(attr)] = true
		av := a.Values(attr)
		bv := b.Values(attr)
		switch {
		case len(bv) == 0:
			mods = append(mods, Mod{Op: ModAdd, Attr: attr, Vals: av})
		case !sameValueSet(av, bv):
			mods = append(mods, Mod{Op: ModReplace, Attr: attr, Vals: av})
		}
	}
	for _, attr := range b.Attributes() {
		if !seen[strings.ToLower(attr)] {
			mods = append(mods, Mod{Op: ModDelete, Attr: attr, Vals: nil})
		}
	}
	return mods
}

// sameValueSet compares two value lists as multisets of exact byte strings:
// order is ignored, and a repeated value must repeat equally often in both.
func sameValueSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		if counts[v] == 0 {
			return false
		}
		counts[v]--
	}
	return true
}
