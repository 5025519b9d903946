package entry

import (
	"fmt"

	"github.com/bwmarrin/go-objectsid"
)

// Helpers for the two binary Active Directory attributes that are useless
// to callers in raw form. Values still travel through the entry as opaque
// byte strings; these only render them.

// SIDString renders a binary objectSid value as S-1-5-21-... text.
func SIDString(raw []byte) (string, error) {
	if len(raw) < 8 {
		return "", fmt.Errorf("ldapdir: objectSid value too short (%d bytes)", len(raw))
	}
	return objectsid.Decode(raw).String(), nil
}

// GUIDString renders a binary objectGUID value in hyphenated form. AD
// stores the first three groups little-endian, unlike RFC 4122.
func GUIDString(raw []byte) (string, error) {
	if len(raw) != 16 {
		return "", fmt.Errorf("ldapdir: objectGUID value must be 16 bytes, got %d", len(raw))
	}
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		raw[3], raw[2], raw[1], raw[0],
		raw[5], raw[4],
		raw[7], raw[6],
		raw[8], raw[9],
		raw[10], raw[11], raw[12], raw[13], raw[14], raw[15]), nil
}
