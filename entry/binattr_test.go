package entry

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// binarySID builds a SID blob: revision, sub-authority count, 48-bit
// big-endian identifier authority, then little-endian sub-authorities.
func binarySID(authority uint16, subs ...uint32) []byte {
	b := []byte{1, byte(len(subs)), 0, 0, 0, 0, 0, byte(authority)}
	for _, sub := range subs {
		var s [4]byte
		binary.LittleEndian.PutUint32(s[:], sub)
		b = append(b, s[:]...)
	}
	return b
}

func TestSIDString(t *testing.T) {
	s, err := SIDString(binarySID(5, 21, 1, 2, 3, 1105))
	require.NoError(t, err)
	assert.Equal(t, "S-1-5-21-1-2-3-1105", s)
}

func TestSIDStringTooShort(t *testing.T) {
	_, err := SIDString([]byte{1, 0})
	assert.Error(t, err)
	_, err = SIDString(nil)
	assert.Error(t, err)
}

func TestGUIDString(t *testing.T) {
	raw := []byte{
		0x78, 0x56, 0x34, 0x12,
		0x34, 0x12,
		0x34, 0x12,
		0x12, 0x34,
		0x12, 0x34, 0x56, 0x78, 0x90, 0x12,
	}
	s, err := GUIDString(raw)
	require.NoError(t, err)
	assert.Equal(t, "12345678-1234-1234-1234-123456789012", s)
}

func TestGUIDStringBadLength(t *testing.T) {
	_, err := GUIDString([]byte{1, 2, 3})
	assert.Error(t, err)
}
