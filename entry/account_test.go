package entry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccount(t *testing.T) *AccountEntry {
	t.Helper()
	se := NewSchemaEntry(testSchema(t), Optimistic, "uid=jdoe,dc=x")
	require.NoError(t, se.Replace("objectClass", []string{"inetOrgPerson", "posixAccount"}))
	require.NoError(t, se.Replace("cn", []string{"John Doe"}))
	require.NoError(t, se.Replace("sn", []string{"Doe"}))
	return NewAccountEntry(se)
}

func TestGeneratorOrder(t *testing.T) {
	ae := testAccount(t)
	var ran []string
	ae.RegisterGenerator(Generator{
		Name: "uidNumber",
		Fn: func(*Entry) ([]string, error) {
			ran = append(ran, "uidNumber")
			return []string{"1000"}, nil
		},
	})
	ae.RegisterGenerator(Generator{
		Name:     "homeDirectory",
		Required: []string{"uid", "uidNumber"},
		Fn: func(e *Entry) ([]string, error) {
			ran = append(ran, "homeDirectory")
			return []string{"/home/" + e.Values("uid")[0]}, nil
		},
	})
	ae.RegisterService(Service{
		Name:     "unix",
		Static:   []Attribute{{Name: "uid", Vals: []string{"jdoe"}}},
		Generate: []string{"homeDirectory", "uidNumber"},
	})

	require.NoError(t, ae.AddService("unix"))
	require.NoError(t, ae.Generate())

	assert.Equal(t, []string{"uidNumber", "homeDirectory"}, ran)
	assert.Equal(t, []string{"1000"}, ae.Values("uidNumber"))
	assert.Equal(t, []string{"/home/jdoe"}, ae.Values("homeDirectory"))
}

func TestGeneratorCycleLeavesEntryUnchanged(t *testing.T) {
	ae := testAccount(t)
	ae.RegisterGenerator(Generator{
		Name:     "uidNumber",
		Required: []string{"homeDirectory"},
		Fn:       func(*Entry) ([]string, error) { return []string{"1000"}, nil },
	})
	ae.RegisterGenerator(Generator{
		Name:     "homeDirectory",
		Required: []string{"uidNumber"},
		Fn:       func(*Entry) ([]string, error) { return []string{"/home/x"}, nil },
	})
	require.NoError(t, ae.AddGenerate("uidNumber"))
	require.NoError(t, ae.AddGenerate("homeDirectory"))

	err := ae.Generate()
	var sortErr *SortError
	require.ErrorAs(t, err, &sortErr)
	assert.ElementsMatch(t, []string{"uidnumber", "homedirectory"}, sortErr.Remaining)
	assert.False(t, ae.Exists("uidNumber"))
	assert.False(t, ae.Exists("homeDirectory"))
}

func TestAddGenerateUnknown(t *testing.T) {
	ae := testAccount(t)
	err := ae.AddGenerate("uidNumber")
	var genErr *NoGeneratorError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "uidNumber", genErr.Attr)
}

func TestGenerateMissingRequired(t *testing.T) {
	ae := testAccount(t)
	ae.RegisterGenerator(Generator{
		Name:     "homeDirectory",
		Required: []string{"uid"},
		Fn:       func(e *Entry) ([]string, error) { return []string{"/home/" + e.Values("uid")[0]}, nil },
	})
	require.NoError(t, ae.AddGenerate("homeDirectory"))

	err := ae.Generate()
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, []string{"uid"}, genErr.MissingRequired)
}

func TestGenerateWrapsGeneratorError(t *testing.T) {
	ae := testAccount(t)
	boom := errors.New("boom")
	ae.RegisterGenerator(Generator{
		Name: "uidNumber",
		Fn:   func(*Entry) ([]string, error) { return nil, boom },
	})
	require.NoError(t, ae.AddGenerate("uidNumber"))

	err := ae.Generate()
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorIs(t, err, boom)
}

func TestAddServiceUnknownDependency(t *testing.T) {
	ae := testAccount(t)
	ae.RegisterService(Service{Name: "mail", Depends: []string{"base"}})
	err := ae.AddService("mail")
	var depErr *ServiceDepError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "base", depErr.Dep)
}

func TestAddServiceUnsatisfiableGenerator(t *testing.T) {
	ae := testAccount(t)
	ae.RegisterGenerator(Generator{
		Name:     "homeDirectory",
		Required: []string{"uidNumber"},
		Fn:       func(*Entry) ([]string, error) { return []string{"/home/x"}, nil },
	})
	ae.RegisterService(Service{Name: "unix", Generate: []string{"homeDirectory"}})
	err := ae.AddService("unix")
	var depErr *GeneratorDepError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "homeDirectory", depErr.Attr)
}

func TestServiceDependencyChainApplies(t *testing.T) {
	ae := testAccount(t)
	ae.RegisterService(Service{
		Name:   "base",
		Static: []Attribute{{Name: "mail", Vals: []string{"jdoe@x"}}},
	})
	ae.RegisterService(Service{
		Name:    "mailbox",
		Depends: []string{"base"},
		Static:  []Attribute{{Name: "description", Vals: []string{"mailbox"}}},
	})
	require.NoError(t, ae.AddService("mailbox"))
	assert.Equal(t, []string{"jdoe@x"}, ae.Values("mail"))
	assert.Equal(t, []string{"mailbox"}, ae.Values("description"))
}

func TestAdaptServiceFiltersPresent(t *testing.T) {
	ae := testAccount(t)
	require.NoError(t, ae.Replace("mail", []string{"existing@x"}))
	ae.RegisterGenerator(Generator{Name: "uidNumber", Fn: func(*Entry) ([]string, error) { return []string{"1"}, nil }})
	ae.RegisterService(Service{
		Name:     "acct",
		Static:   []Attribute{{Name: "mail", Vals: []string{"new@x"}}, {Name: "uid", Vals: []string{"jdoe"}}},
		Generate: []string{"uidNumber"},
	})

	adapted, err := ae.AdaptService("acct")
	require.NoError(t, err)
	require.Len(t, adapted.Static, 1)
	assert.Equal(t, "uid", adapted.Static[0].Name)
	assert.Equal(t, []string{"uidNumber"}, adapted.Generate)

	// adding the service must not clobber the existing value
	require.NoError(t, ae.AddService("acct"))
	assert.Equal(t, []string{"existing@x"}, ae.Values("mail"))
}

func TestDefaultGenerators(t *testing.T) {
	ae := testAccount(t)
	for _, g := range DefaultGenerators() {
		ae.RegisterGenerator(g)
	}
	require.NoError(t, ae.AddGenerate("entryUUID"))
	require.NoError(t, ae.Generate())
	// entryUUID is not in the test schema cover, so it lands on the raw
	// entry and stays hidden from the checked view
	vals := ae.Entry().Values("entryUUID")
	require.Len(t, vals, 1)
	assert.Len(t, vals[0], 36)
}
