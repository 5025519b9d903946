package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Parse(
		[]string{
			`( 2.5.4.0 NAME 'objectClass' EQUALITY objectIdentifierMatch SYNTAX 1.3.6.1.4.1.1466.115.121.1.38 )`,
			`( 2.5.4.3 NAME ( 'cn' 'commonName' ) SYNTAX 1.3.6.1.4.1.1466.115.121.1.15 )`,
			`( 2.5.4.4 NAME ( 'sn' 'surname' ) SYNTAX 1.3.6.1.4.1.1466.115.121.1.15 )`,
			`( 0.9.2342.19200300.100.1.1 NAME ( 'uid' 'userID' ) SYNTAX 1.3.6.1.4.1.1466.115.121.1.15 )`,
			`( 0.9.2342.19200300.100.1.3 NAME 'mail' SYNTAX 1.3.6.1.4.1.1466.115.121.1.26 )`,
		},
		[]string{
			`( 2.5.6.0 NAME 'top' ABSTRACT MUST objectClass )`,
			`( 2.5.6.6 NAME 'person' SUP top STRUCTURAL MUST ( cn $ sn ) )`,
			`( 2.16.840.1.113730.3.2.2 NAME 'inetOrgPerson' SUP person STRUCTURAL MAY ( mail $ uid ) )`,
		},
	)
	require.NoError(t, err)
	return s
}

func TestAliasEquality(t *testing.T) {
	s := testSchema(t)
	assert.True(t, s.EquateAttr("uid", "userID"))
	assert.True(t, s.EquateAttr("UID", "userid"))
	assert.True(t, s.EquateAttr("uid", "0.9.2342.19200300.100.1.1"))
	assert.False(t, s.EquateAttr("uid", "mail"))
	assert.False(t, s.EquateAttr("uid", "unknown"))
	assert.False(t, s.EquateAttr("unknown", "unknown"))
}

func TestLookups(t *testing.T) {
	s := testSchema(t)
	assert.Equal(t, "2.5.4.3", s.AttrOID("commonName"))
	assert.Equal(t, "2.5.4.3", s.AttrOID("CN"))
	assert.Equal(t, "2.5.4.3", s.AttrOID("2.5.4.3"))
	assert.Equal(t, "", s.AttrOID("nope"))

	at := s.AttributeByName("surname")
	require.NotNil(t, at)
	assert.Equal(t, "sn", at.Name)

	oc := s.ObjectClassByName("INETORGPERSON")
	require.NotNil(t, oc)
	assert.Equal(t, "inetOrgPerson", oc.Name)
	assert.Nil(t, s.ObjectClassByName("nope"))
}

func TestSuperiorChain(t *testing.T) {
	s := testSchema(t)
	chain := s.SuperiorChain("inetOrgPerson")
	var names []string
	for _, oc := range chain {
		names = append(names, oc.Name)
	}
	assert.Equal(t, []string{"inetOrgPerson", "person", "top"}, names)

	assert.Empty(t, s.SuperiorChain("nope"))
}
