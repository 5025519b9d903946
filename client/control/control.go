// Package control implements the request controls the connection manager
// sends and understands. Only the controls actually exercised by the
// manager live here; unknown response controls pass through as Raw.
package control

import (
	"fmt"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// Control OIDs.
const (
	// OIDPaging is the simple paged results control (RFC 2696).
	OIDPaging = "1.2.840.113556.1.4.319"
	// OIDManageDsaIT makes the server treat referral objects as plain
	// entries (RFC 3296).
	OIDManageDsaIT = "2.16.840.1.113730.3.4.2"
)

// TypeMap maps control OIDs to descriptions.
var TypeMap = map[string]string{
	OIDPaging:      "Paging",
	OIDManageDsaIT: "Manage DSA IT",
}

// Control is a request or response control.
type Control interface {
	// OID returns the control's type OID
	OID() string
	// Encode returns the BER packet for the control
	Encode() *ber.Packet
	// String returns a human-readable description
	String() string
}

// Encode wraps controls in the controls envelope of an LDAP message.
func Encode(controls ...Control) *ber.Packet {
	packet := ber.Encode(ber.ClassContext, ber.TypeConstructed, 0, nil, "Controls")
	for _, c := range controls {
		packet.AppendChild(c.Encode())
	}
	return packet
}

// Find returns the first control with the given OID, or nil.
func Find(controls []Control, oid string) Control {
	for _, c := range controls {
		if c.OID() == oid {
			return c
		}
	}
	return nil
}

// Paging is the simple paged results control.
type Paging struct {
	PagingSize uint32
	Cookie     []byte
}

// NewPaging returns a paging control with the given page size.
func NewPaging(pagingSize uint32) *Paging {
	return &Paging{PagingSize: pagingSize}
}

// OID returns the paging control OID.
func (c *Paging) OID() string { return OIDPaging }

// Encode returns the BER packet for the control.
func (c *Paging) Encode() *ber.Packet {
	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Control")
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, OIDPaging, "Control Type ("+TypeMap[OIDPaging]+")"))

	p2 := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, nil, "Control Value (Paging)")
	seq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Search Control Value")
	seq.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(c.PagingSize), "Paging Size"))
	cookie := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, nil, "Cookie")
	cookie.Value = c.Cookie
	cookie.Data.Write(c.Cookie)
	seq.AppendChild(cookie)
	p2.AppendChild(seq)

	packet.AppendChild(p2)
	return packet
}

// String returns a human-readable description.
func (c *Paging) String() string {
	return fmt.Sprintf("Paging(size=%d, cookie=%d bytes)", c.PagingSize, len(c.Cookie))
}

// SetCookie stores the continuation cookie from the previous page.
func (c *Paging) SetCookie(cookie []byte) {
	c.Cookie = cookie
}

// ManageDsaIT asks the server to return referral objects as entries.
type ManageDsaIT struct {
	Criticality bool
}

// OID returns the manageDsaIT control OID.
func (c *ManageDsaIT) OID() string { return OIDManageDsaIT }

// Encode returns the BER packet for the control.
func (c *ManageDsaIT) Encode() *ber.Packet {
	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Control")
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, OIDManageDsaIT, "Control Type ("+TypeMap[OIDManageDsaIT]+")"))
	if c.Criticality {
		packet.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, true, "Criticality"))
	}
	return packet
}

// String returns a human-readable description.
func (c *ManageDsaIT) String() string {
	return fmt.Sprintf("ManageDsaIT(critical=%t)", c.Criticality)
}

// Raw is a control this package does not interpret.
type Raw struct {
	ControlOID  string
	Criticality bool
	Value       []byte
}

// OID returns the control's type OID.
func (c *Raw) OID() string { return c.ControlOID }

// Encode returns the BER packet for the control.
func (c *Raw) Encode() *ber.Packet {
	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Control")
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, c.ControlOID, "Control Type"))
	if c.Criticality {
		packet.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, true, "Criticality"))
	}
	if c.Value != nil {
		value := ber.Encode(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, nil, "Control Value")
		value.Data.Write(c.Value)
		packet.AppendChild(value)
	}
	return packet
}

// String returns a human-readable description.
func (c *Raw) String() string {
	return fmt.Sprintf("Raw(oid=%s, critical=%t)", c.ControlOID, c.Criticality)
}

// Decode parses one control packet from a response envelope.
func Decode(packet *ber.Packet) (Control, error) {
	var oid string
	var criticality bool
	var value *ber.Packet
	switch len(packet.Children) {
	case 0:
		return nil, fmt.Errorf("at least one child is required for a control")
	case 1:
		oid, _ = packet.Children[0].Value.(string)
	case 2:
		oid, _ = packet.Children[0].Value.(string)
		// the second child is either criticality or value
		if b, ok := packet.Children[1].Value.(bool); ok {
			criticality = b
		} else {
			value = packet.Children[1]
		}
	case 3:
		oid, _ = packet.Children[0].Value.(string)
		criticality, _ = packet.Children[1].Value.(bool)
		value = packet.Children[2]
	default:
		return nil, fmt.Errorf("too many children for a control: %d", len(packet.Children))
	}

	switch oid {
	case OIDPaging:
		c := new(Paging)
		if value == nil {
			return c, nil
		}
		inner, err := ber.DecodePacketErr(value.Data.Bytes())
		if err != nil {
			return nil, fmt.Errorf("decoding paging control value: %w", err)
		}
		if len(inner.Children) != 2 {
			return nil, fmt.Errorf("malformed paging control value")
		}
		size, ok := inner.Children[0].Value.(int64)
		if !ok {
			return nil, fmt.Errorf("malformed paging size")
		}
		c.PagingSize = uint32(size)
		c.Cookie = inner.Children[1].Data.Bytes()
		return c, nil
	default:
		raw := &Raw{ControlOID: oid, Criticality: criticality}
		if value != nil {
			raw.Value = value.Data.Bytes()
		}
		return raw, nil
	}
}
