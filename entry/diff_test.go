package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffSelfIsEmpty(t *testing.T) {
	e := FromSearchEntry("cn=a,dc=x", []Attribute{
		{Name: "cn", Vals: []string{"a"}},
		{Name: "mail", Vals: []string{"a@x", "b@x"}},
	})
	assert.Empty(t, Diff(e, e))
}

func TestDiffAppliedConverges(t *testing.T) {
	a := FromSearchEntry("cn=a,dc=x", []Attribute{
		{Name: "cn", Vals: []string{"A"}},
		{Name: "mail", Vals: []string{"a@x"}},
		{Name: "description", Vals: []string{"d"}},
	})
	b := FromSearchEntry("cn=a,dc=x", []Attribute{
		{Name: "cn", Vals: []string{"a"}},
		{Name: "sn", Vals: []string{"b"}},
		{Name: "mail", Vals: []string{"a@x"}},
	})

	mods := Diff(a, b)
	b.Modify(mods)

	assert.ElementsMatch(t, a.Attributes(), b.Attributes())
	for _, attr := range a.Attributes() {
		assert.ElementsMatch(t, a.Values(attr), b.Values(attr), "attribute %s", attr)
	}
}

func TestDiffKinds(t *testing.T) {
	a := FromSearchEntry("cn=a,dc=x", []Attribute{
		{Name: "cn", Vals: []string{"A"}},
		{Name: "mail", Vals: []string{"a@x"}},
	})
	b := FromSearchEntry("cn=a,dc=x", []Attribute{
		{Name: "cn", Vals: []string{"a"}},
		{Name: "sn", Vals: []string{"b"}},
	})
	mods := Diff(a, b)

	kinds := map[string]ModOp{}
	for _, m := range mods {
		kinds[m.Attr] = m.Op
	}
	assert.Equal(t, ModReplace, kinds["cn"])
	assert.Equal(t, ModAdd, kinds["mail"])
	assert.Equal(t, ModDelete, kinds["sn"])
}

func TestDiffIsCaseInsensitive(t *testing.T) {
	a := FromSearchEntry("cn=a,dc=x", []Attribute{{Name: "Mail", Vals: []string{"a@x"}}})
	b := FromSearchEntry("cn=a,dc=x", []Attribute{{Name: "mail", Vals: []string{"a@x"}}})
	assert.Empty(t, Diff(a, b))
}
