package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeLogRoundtrip(t *testing.T) {
	e := FromSearchEntry("cn=a,dc=x", []Attribute{
		{Name: "cn", Vals: []string{"a"}},
		{Name: "sn", Vals: []string{"b"}},
	})
	e.Add("mail", []string{"a@x"})
	e.Delete("sn", []string{"b"})
	e.Replace("cn", []string{"A"})

	require.Equal(t, []Mod{
		{Op: ModAdd, Attr: "mail", Vals: []string{"a@x"}},
		{Op: ModDelete, Attr: "sn", Vals: []string{"b"}},
		{Op: ModReplace, Attr: "cn", Vals: []string{"A"}},
	}, e.Changes())

	assert.ElementsMatch(t, []string{"cn", "mail"}, e.Attributes())
	assert.Equal(t, []string{"A"}, e.Values("cn"))
	assert.Equal(t, []string{"a@x"}, e.Values("mail"))
	assert.False(t, e.Exists("sn"))
}

func TestAddUnionsValues(t *testing.T) {
	e := New("cn=a,dc=x")
	e.Add("mail", []string{"one@x", "two@x"})
	e.Add("mail", []string{"two@x", "three@x"})
	assert.ElementsMatch(t, []string{"one@x", "two@x", "three@x"}, e.Values("mail"))
}

func TestAddEmptyToAbsentIsNoOp(t *testing.T) {
	e := New("cn=a,dc=x")
	e.Add("mail", nil)
	assert.False(t, e.Exists("mail"))
	assert.Empty(t, e.Changes())
}

func TestCaseInsensitiveNames(t *testing.T) {
	e := New("cn=a,dc=x")
	e.Add("givenName", []string{"x"})
	assert.True(t, e.Exists("GIVENNAME"))
	assert.Equal(t, []string{"x"}, e.Values("givenname"))
	e.Delete("GivenName", nil)
	assert.False(t, e.Exists("givenName"))
}

func TestDeleteWholeAttribute(t *testing.T) {
	e := New("cn=a,dc=x")
	e.Add("mail", []string{"a@x", "b@x"})
	e.Delete("mail", nil)
	assert.False(t, e.Exists("mail"))
	mods := e.Changes()
	require.Len(t, mods, 2)
	assert.Equal(t, ModDelete, mods[1].Op)
	assert.Equal(t, "mail", mods[1].Attr)
	assert.Empty(t, mods[1].Vals)
}

func TestValueLevelDeleteEmptiesAttribute(t *testing.T) {
	e := New("cn=a,dc=x")
	e.Add("mail", []string{"a@x"})
	e.Delete("mail", []string{"a@x"})
	assert.False(t, e.Exists("mail"))
	// the log still records the value-level delete
	mods := e.Changes()
	require.Len(t, mods, 2)
	assert.Equal(t, ModDelete, mods[1].Op)
	assert.Equal(t, []string{"a@x"}, mods[1].Vals)
}

func TestReplaceEmptyDeletes(t *testing.T) {
	e := New("cn=a,dc=x")
	e.Add("mail", []string{"a@x"})
	e.Replace("mail", nil)
	assert.False(t, e.Exists("mail"))
}

func TestReplayChangesReproducesPresentMap(t *testing.T) {
	base := FromSearchEntry("cn=a,dc=x", []Attribute{
		{Name: "cn", Vals: []string{"a"}},
		{Name: "sn", Vals: []string{"b"}},
		{Name: "mail", Vals: []string{"a@x", "b@x"}},
	})
	e := base.Copy()
	e.Add("mail", []string{"c@x"})
	e.Delete("mail", []string{"a@x"})
	e.Replace("cn", []string{"A"})
	e.Delete("sn", nil)
	e.Add("description", []string{"d"})

	replayed := base.Copy()
	replayed.Modify(e.Changes())

	assert.ElementsMatch(t, e.Attributes(), replayed.Attributes())
	for _, attr := range e.Attributes() {
		assert.ElementsMatch(t, e.Values(attr), replayed.Values(attr), "attribute %s", attr)
	}
}

func TestDeleteChangetypeKeepsLogEmpty(t *testing.T) {
	e := New("cn=a,dc=x")
	e.SetChangeType(ChangeDelete)
	e.Add("mail", []string{"a@x"})
	e.Replace("cn", []string{"a"})
	assert.Empty(t, e.Changes())
	// the present map still moves
	assert.True(t, e.Exists("mail"))
}

func TestFlushChangesKeepsPresentMap(t *testing.T) {
	e := New("cn=a,dc=x")
	e.Add("cn", []string{"a"})
	e.FlushChanges()
	assert.Empty(t, e.Changes())
	assert.Equal(t, []string{"a"}, e.Values("cn"))
}

func TestModDNInfo(t *testing.T) {
	e := New("cn=a,dc=x")
	e.SetModDN("cn=b", true, "ou=people,dc=x")
	assert.Equal(t, ChangeModDN, e.ChangeType())
	require.NotNil(t, e.ModDNInfo())
	assert.Equal(t, "cn=b", e.ModDNInfo().NewRDN)
	assert.True(t, e.ModDNInfo().DeleteOldRDN)
	assert.Equal(t, "ou=people,dc=x", e.ModDNInfo().NewSuperior)
}

func TestFromReferral(t *testing.T) {
	e := FromReferral([]string{"ldap://other.example/dc=x"})
	assert.Equal(t, ReferralDN, e.DN())
	assert.Equal(t, []string{"ldap://other.example/dc=x"}, e.Values("ref"))
	assert.Empty(t, e.Changes())
}

func TestWireRoundtrip(t *testing.T) {
	e := FromSearchEntry("cn=a,dc=x", []Attribute{
		{Name: "cn", Vals: []string{"a"}},
		{Name: "mail", Vals: []string{"a@x", "b@x"}},
	})
	again := FromSearchEntry(e.DN(), e.ToAttributes())
	assert.Equal(t, e.DN(), again.DN())
	assert.ElementsMatch(t, e.Attributes(), again.Attributes())
	for _, attr := range e.Attributes() {
		assert.ElementsMatch(t, e.Values(attr), again.Values(attr))
	}
}
