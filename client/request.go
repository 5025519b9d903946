package client

import (
	ber "github.com/go-asn1-ber/asn1-ber"

	"github.com/jpdeplaix/ldapdir/client/control"
)

// Application protocol op tags per RFC 4511.
const (
	ApplicationBindRequest           ber.Tag = 0
	ApplicationBindResponse          ber.Tag = 1
	ApplicationUnbindRequest         ber.Tag = 2
	ApplicationSearchRequest         ber.Tag = 3
	ApplicationSearchResultEntry     ber.Tag = 4
	ApplicationSearchResultDone      ber.Tag = 5
	ApplicationModifyRequest         ber.Tag = 6
	ApplicationModifyResponse        ber.Tag = 7
	ApplicationAddRequest            ber.Tag = 8
	ApplicationAddResponse           ber.Tag = 9
	ApplicationDeleteRequest         ber.Tag = 10
	ApplicationDeleteResponse        ber.Tag = 11
	ApplicationModifyDNRequest       ber.Tag = 12
	ApplicationModifyDNResponse      ber.Tag = 13
	ApplicationCompareRequest        ber.Tag = 14
	ApplicationCompareResponse       ber.Tag = 15
	ApplicationAbandonRequest        ber.Tag = 16
	ApplicationSearchResultReference ber.Tag = 19
	ApplicationExtendedRequest       ber.Tag = 23
	ApplicationExtendedResponse      ber.Tag = 24
)

const oidStartTLS = "1.3.6.1.4.1.1466.20037"

// Request is anything that can append its protocol op (and controls) to an
// LDAP message envelope.
type Request interface {
	AppendTo(*ber.Packet) error
}

// RequestFunc adapts a function to the Request interface.
type RequestFunc func(*ber.Packet) error

func (f RequestFunc) AppendTo(p *ber.Packet) error { return f(p) }

// Attribute is one attribute of an Add request.
type Attribute struct {
	// Type is the name of the LDAP attribute
	Type string
	// Vals are the LDAP attribute values
	Vals []string
}

func (a *Attribute) encode() *ber.Packet {
	seq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Attribute")
	seq.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, a.Type, "Type"))
	set := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "AttributeValue")
	for _, value := range a.Vals {
		set.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, value, "Vals"))
	}
	seq.AppendChild(set)
	return seq
}

// Modify operation choices.
const (
	AddAttribute     = 0
	DeleteAttribute  = 1
	ReplaceAttribute = 2
)

// PartialAttribute is the modification payload of a Modify request.
type PartialAttribute struct {
	Type string
	Vals []string
}

func (p *PartialAttribute) encode() *ber.Packet {
	seq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "PartialAttribute")
	seq.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, p.Type, "Type"))
	set := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "AttributeValue")
	for _, value := range p.Vals {
		set.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, value, "Vals"))
	}
	seq.AppendChild(set)
	return seq
}

// Change is one modification of a Modify request.
type Change struct {
	Operation    uint
	Modification PartialAttribute
}

func (c *Change) encode() *ber.Packet {
	change := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Change")
	change.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, uint64(c.Operation), "Operation"))
	change.AppendChild(c.Modification.encode())
	return change
}

// SimpleBindRequest is a version-aware simple bind.
type SimpleBindRequest struct {
	// Version is the protocol version, 2 or 3
	Version int
	// Username is the DN to bind as; empty for anonymous
	Username string
	// Password is the bind credential
	Password string
	// Controls are optional request controls
	Controls []control.Control
	// AllowEmptyPassword permits an unauthenticated bind
	AllowEmptyPassword bool
}

func (req *SimpleBindRequest) AppendTo(envelope *ber.Packet) error {
	version := req.Version
	if version == 0 {
		version = 3
	}
	pkt := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ApplicationBindRequest, nil, "Bind Request")
	pkt.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, version, "Version"))
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.Username, "User Name"))
	pkt.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 0, req.Password, "Password"))
	envelope.AppendChild(pkt)
	if len(req.Controls) > 0 {
		envelope.AppendChild(control.Encode(req.Controls...))
	}
	return nil
}

// AddRequest creates a new directory entry.
type AddRequest struct {
	// DN identifies the entry being added
	DN string
	// Attributes list the attributes of the new entry
	Attributes []Attribute
	// Controls are optional request controls
	Controls []control.Control
}

func (req *AddRequest) AppendTo(envelope *ber.Packet) error {
	pkt := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ApplicationAddRequest, nil, "Add Request")
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.DN, "DN"))
	attributes := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Attributes")
	for _, attribute := range req.Attributes {
		attributes.AppendChild(attribute.encode())
	}
	pkt.AppendChild(attributes)
	envelope.AppendChild(pkt)
	if len(req.Controls) > 0 {
		envelope.AppendChild(control.Encode(req.Controls...))
	}
	return nil
}

// Attribute appends an attribute with the given type and values.
func (req *AddRequest) Attribute(attrType string, attrVals []string) {
	req.Attributes = append(req.Attributes, Attribute{Type: attrType, Vals: attrVals})
}

// NewAddRequest returns an AddRequest for the given DN, with no attributes.
func NewAddRequest(dn string, controls ...control.Control) *AddRequest {
	return &AddRequest{DN: dn, Controls: controls}
}

// ModifyRequest alters an existing entry.
type ModifyRequest struct {
	// DN is the distinguished name of the entry being modified
	DN string
	// Changes are applied by the server in order
	Changes []Change
	// Controls are optional request controls
	Controls []control.Control
}

// AddAttribute appends an add-values change.
func (req *ModifyRequest) AddAttribute(attrType string, attrVals []string) {
	req.appendChange(AddAttribute, attrType, attrVals)
}

// DeleteAttribute appends a delete-values change.
func (req *ModifyRequest) DeleteAttribute(attrType string, attrVals []string) {
	req.appendChange(DeleteAttribute, attrType, attrVals)
}

// ReplaceAttribute appends a replace-values change.
func (req *ModifyRequest) ReplaceAttribute(attrType string, attrVals []string) {
	req.appendChange(ReplaceAttribute, attrType, attrVals)
}

func (req *ModifyRequest) appendChange(operation uint, attrType string, attrVals []string) {
	req.Changes = append(req.Changes, Change{
		Operation:    operation,
		Modification: PartialAttribute{Type: attrType, Vals: attrVals},
	})
}

func (req *ModifyRequest) AppendTo(envelope *ber.Packet) error {
	pkt := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ApplicationModifyRequest, nil, "Modify Request")
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.DN, "DN"))
	changes := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Changes")
	for _, change := range req.Changes {
		changes.AppendChild(change.encode())
	}
	pkt.AppendChild(changes)
	envelope.AppendChild(pkt)
	if len(req.Controls) > 0 {
		envelope.AppendChild(control.Encode(req.Controls...))
	}
	return nil
}

// NewModifyRequest returns a ModifyRequest for the given DN, with no changes.
func NewModifyRequest(dn string, controls ...control.Control) *ModifyRequest {
	return &ModifyRequest{DN: dn, Controls: controls}
}

// DeleteRequest removes an entry.
type DeleteRequest struct {
	// DN is the name of the directory entry to delete
	DN string
	// Controls are optional request controls
	Controls []control.Control
}

func (req *DeleteRequest) AppendTo(envelope *ber.Packet) error {
	pkt := ber.Encode(ber.ClassApplication, ber.TypePrimitive, ApplicationDeleteRequest, nil, "Del Request")
	pkt.Data.Write([]byte(req.DN))
	envelope.AppendChild(pkt)
	if len(req.Controls) > 0 {
		envelope.AppendChild(control.Encode(req.Controls...))
	}
	return nil
}

// NewDeleteRequest creates a delete request for the given DN and controls.
func NewDeleteRequest(dn string, controls ...control.Control) *DeleteRequest {
	return &DeleteRequest{DN: dn, Controls: controls}
}

// ModifyDNRequest renames an entry and optionally moves it under a new
// superior.
type ModifyDNRequest struct {
	DN           string
	NewRDN       string
	DeleteOldRDN bool
	NewSuperior  string
}

// NewModifyDNRequest creates a rename request. newSup moves the entry under
// a new parent; leave it empty to only change the RDN.
func NewModifyDNRequest(dn, rdn string, delOld bool, newSup string) *ModifyDNRequest {
	return &ModifyDNRequest{
		DN:           dn,
		NewRDN:       rdn,
		DeleteOldRDN: delOld,
		NewSuperior:  newSup,
	}
}

func (req *ModifyDNRequest) AppendTo(envelope *ber.Packet) error {
	pkt := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ApplicationModifyDNRequest, nil, "Modify DN Request")
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.DN, "DN"))
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.NewRDN, "New RDN"))
	pkt.AppendChild(ber.NewBoolean(ber.ClassUniversal, ber.TypePrimitive, ber.TagBoolean, req.DeleteOldRDN, "Delete old RDN"))
	if req.NewSuperior != "" {
		pkt.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 0, req.NewSuperior, "New Superior"))
	}
	envelope.AppendChild(pkt)
	return nil
}

// UnbindRequest terminates the session; it has no response.
type UnbindRequest struct{}

func (UnbindRequest) AppendTo(envelope *ber.Packet) error {
	envelope.AppendChild(ber.Encode(ber.ClassApplication, ber.TypePrimitive, ApplicationUnbindRequest, nil, "Unbind Request"))
	return nil
}

// AbandonRequest cancels an in-flight operation by message id; it has no
// response.
type AbandonRequest struct {
	MessageID int64
}

func (req AbandonRequest) AppendTo(envelope *ber.Packet) error {
	envelope.AppendChild(ber.NewInteger(ber.ClassApplication, ber.TypePrimitive, ApplicationAbandonRequest, req.MessageID, "Abandon Request"))
	return nil
}

// CompareRequest checks one attribute value assertion against an entry.
type CompareRequest struct {
	DN        string
	Attribute string
	Value     string
}

func (req *CompareRequest) AppendTo(envelope *ber.Packet) error {
	pkt := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ApplicationCompareRequest, nil, "Compare Request")
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.DN, "DN"))
	ava := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "AttributeValueAssertion")
	ava.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.Attribute, "AttributeDesc"))
	ava.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.Value, "AssertionValue"))
	pkt.AppendChild(ava)
	envelope.AppendChild(pkt)
	return nil
}
