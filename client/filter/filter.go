// Package filter compiles RFC 4515 search filter strings into their BER
// representation and back.
package filter

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// Filter choice tags.
const (
	And             ber.Tag = 0
	Or              ber.Tag = 1
	Not             ber.Tag = 2
	EqualityMatch   ber.Tag = 3
	Substrings      ber.Tag = 4
	GreaterOrEqual  ber.Tag = 5
	LessOrEqual     ber.Tag = 6
	Present         ber.Tag = 7
	ApproxMatch     ber.Tag = 8
	ExtensibleMatch ber.Tag = 9
)

// Substring choice tags.
const (
	SubstringsInitial ber.Tag = 0
	SubstringsAny     ber.Tag = 1
	SubstringsFinal   ber.Tag = 2
)

// MatchingRuleAssertion member tags.
const (
	RuleMatchingRule ber.Tag = 1
	RuleType         ber.Tag = 2
	RuleMatchValue   ber.Tag = 3
	RuleDNAttributes ber.Tag = 4
)

// Map maps filter choice tags to descriptions.
var Map = map[ber.Tag]string{
	And:             "And",
	Or:              "Or",
	Not:             "Not",
	EqualityMatch:   "Equality Match",
	Substrings:      "Substrings",
	GreaterOrEqual:  "Greater Or Equal",
	LessOrEqual:     "Less Or Equal",
	Present:         "Present",
	ApproxMatch:     "Approx Match",
	ExtensibleMatch: "Extensible Match",
}

// Error is a filter compile or decompile failure.
type Error struct {
	Message string
}

func (e Error) Error() string { return "filter: " + e.Message }

// Errorf builds an Error from a format string.
func Errorf(format string, args ...interface{}) Error {
	return Error{Message: fmt.Sprintf(format, args...)}
}

// Compile converts a string filter into its BER packet.
func Compile(filter string) (*ber.Packet, error) {
	if len(filter) == 0 || filter[0] != '(' {
		return nil, Error{"filter does not start with an '('"}
	}
	p, pos, err := compile(filter, 1)
	if err != nil {
		return nil, err
	}
	switch {
	case pos > len(filter):
		return nil, Error{"unexpected end of filter"}
	case pos < len(filter):
		return nil, Errorf("finished compiling filter with extra at end: %s", filter[pos:])
	}
	return p, nil
}

// compile parses one filter component starting just after its '('. It
// returns the packet and the position just after the matching ')'.
func compile(filter string, pos int) (*ber.Packet, int, error) {
	if pos >= len(filter) {
		return nil, pos, Error{"unexpected end of filter"}
	}
	var packet *ber.Packet
	var err error
	switch filter[pos] {
	case '(':
		return nil, pos, Error{"unexpected '(' in filter"}
	case '&':
		packet = ber.Encode(ber.ClassContext, ber.TypeConstructed, And, nil, Map[And])
		pos, err = compileSet(filter, pos+1, packet)
	case '|':
		packet = ber.Encode(ber.ClassContext, ber.TypeConstructed, Or, nil, Map[Or])
		pos, err = compileSet(filter, pos+1, packet)
	case '!':
		packet = ber.Encode(ber.ClassContext, ber.TypeConstructed, Not, nil, Map[Not])
		var child *ber.Packet
		pos++
		if pos >= len(filter) || filter[pos] != '(' {
			return nil, pos, Error{"expected '(' after '!'"}
		}
		child, pos, err = compile(filter, pos+1)
		if err != nil {
			return nil, pos, err
		}
		packet.AppendChild(child)
	default:
		packet, pos, err = compileCondition(filter, pos)
	}
	if err != nil {
		return nil, pos, err
	}
	if pos >= len(filter) {
		return nil, pos, Error{"unexpected end of filter"}
	}
	if filter[pos] != ')' {
		return nil, pos, Errorf("expected ')' at position %d", pos)
	}
	return packet, pos + 1, nil
}

// compileSet parses the components of an And/Or set.
func compileSet(filter string, pos int, parent *ber.Packet) (int, error) {
	for pos < len(filter) && filter[pos] == '(' {
		child, newPos, err := compile(filter, pos+1)
		if err != nil {
			return pos, err
		}
		parent.AppendChild(child)
		pos = newPos
	}
	if len(parent.Children) == 0 {
		return pos, Error{"error parsing filter set"}
	}
	return pos, nil
}

// compileCondition parses a simple, substring, present or extensible item.
func compileCondition(filter string, pos int) (*ber.Packet, int, error) {
	end := strings.IndexByte(filter[pos:], ')')
	if end == -1 {
		return nil, pos, Error{"unexpected end of filter"}
	}
	item := filter[pos : pos+end]
	eq := strings.IndexByte(item, '=')
	if eq <= 0 {
		return nil, pos, Errorf("missing attribute in filter item %q", item)
	}
	lhs, rhs := item[:eq], item[eq+1:]

	var tag ber.Tag
	switch lhs[len(lhs)-1] {
	case '>':
		tag, lhs = GreaterOrEqual, lhs[:len(lhs)-1]
	case '<':
		tag, lhs = LessOrEqual, lhs[:len(lhs)-1]
	case '~':
		tag, lhs = ApproxMatch, lhs[:len(lhs)-1]
	case ':':
		return compileExtensible(lhs[:len(lhs)-1], rhs, pos+end)
	default:
		tag = EqualityMatch
	}
	if lhs == "" {
		return nil, pos, Errorf("missing attribute in filter item %q", item)
	}

	if tag == EqualityMatch {
		switch {
		case rhs == "*":
			packet := ber.NewString(ber.ClassContext, ber.TypePrimitive, Present, lhs, Map[Present])
			return packet, pos + end, nil
		case strings.Contains(rhs, "*"):
			packet, err := compileSubstrings(lhs, rhs)
			return packet, pos + end, err
		}
	}

	value, err := unescape(rhs)
	if err != nil {
		return nil, pos, err
	}
	packet := ber.Encode(ber.ClassContext, ber.TypeConstructed, tag, nil, Map[tag])
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, lhs, "Attribute"))
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, value, "Condition"))
	return packet, pos + end, nil
}

// compileSubstrings builds a SubstringFilter from a value with unescaped
// '*' wildcards.
func compileSubstrings(attr, value string) (*ber.Packet, error) {
	packet := ber.Encode(ber.ClassContext, ber.TypeConstructed, Substrings, nil, Map[Substrings])
	packet.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attr, "Attribute"))
	seq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "Substrings")
	parts := strings.Split(value, "*")
	for i, part := range parts {
		if part == "" {
			continue
		}
		decoded, err := unescape(part)
		if err != nil {
			return nil, err
		}
		var tag ber.Tag
		switch {
		case i == 0:
			tag = SubstringsInitial
		case i == len(parts)-1:
			tag = SubstringsFinal
		default:
			tag = SubstringsAny
		}
		seq.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, tag, decoded, "Substring"))
	}
	if len(seq.Children) == 0 {
		return nil, Error{"substring filter without any substrings"}
	}
	packet.AppendChild(seq)
	return packet, nil
}

// compileExtensible builds a MatchingRuleAssertion from the lhs of ":=".
// Accepted forms: attr, attr:dn, attr:rule, attr:dn:rule, :rule, :dn:rule.
func compileExtensible(lhs, rhs string, endPos int) (*ber.Packet, int, error) {
	var attr, rule string
	dnAttributes := false
	for i, part := range strings.Split(lhs, ":") {
		switch {
		case i == 0:
			attr = part
		case strings.EqualFold(part, "dn"):
			dnAttributes = true
		case rule == "":
			rule = part
		default:
			return nil, endPos, Errorf("invalid extensible match %q", lhs)
		}
	}
	if attr == "" && rule == "" {
		return nil, endPos, Errorf("extensible match needs an attribute or a matching rule")
	}
	value, err := unescape(rhs)
	if err != nil {
		return nil, endPos, err
	}
	packet := ber.Encode(ber.ClassContext, ber.TypeConstructed, ExtensibleMatch, nil, Map[ExtensibleMatch])
	if rule != "" {
		packet.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, RuleMatchingRule, rule, "Matching Rule"))
	}
	if attr != "" {
		packet.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, RuleType, attr, "Type"))
	}
	packet.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, RuleMatchValue, value, "Match Value"))
	if dnAttributes {
		packet.AppendChild(ber.NewBoolean(ber.ClassContext, ber.TypePrimitive, RuleDNAttributes, dnAttributes, "DN Attributes"))
	}
	return packet, endPos, nil
}

// unescape decodes RFC 4515 backslash-hex escapes.
func unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			buf.WriteByte(s[i])
			continue
		}
		if i+3 > len(s) {
			return "", Error{"truncated escape sequence"}
		}
		b, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return "", Errorf("invalid escape sequence %q", s[i:i+3])
		}
		buf.WriteByte(b[0])
		i += 2
	}
	return buf.String(), nil
}

// escape encodes the characters RFC 4515 requires escaping.
func escape(s string) string {
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(', ')', '*', '\\', 0:
			fmt.Fprintf(&buf, "\\%02x", c)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.String()
}

// Escape encodes a literal value for inclusion in a filter string.
func Escape(s string) string { return escape(s) }

// Decompile converts a filter packet back into its string form.
func Decompile(p *ber.Packet) (string, error) {
	if p == nil {
		return "", Error{"cannot decompile empty packet"}
	}
	var buf bytes.Buffer
	buf.WriteByte('(')
	switch p.Tag {
	case And, Or:
		if p.Tag == And {
			buf.WriteByte('&')
		} else {
			buf.WriteByte('|')
		}
		for _, child := range p.Children {
			s, err := Decompile(child)
			if err != nil {
				return "", err
			}
			buf.WriteString(s)
		}
	case Not:
		buf.WriteByte('!')
		if len(p.Children) != 1 {
			return "", Error{"malformed not filter"}
		}
		s, err := Decompile(p.Children[0])
		if err != nil {
			return "", err
		}
		buf.WriteString(s)
	case Present:
		buf.WriteString(string(p.Data.Bytes()))
		buf.WriteString("=*")
	case Substrings:
		if len(p.Children) != 2 {
			return "", Error{"malformed substrings filter"}
		}
		buf.WriteString(string(p.Children[0].Data.Bytes()))
		buf.WriteByte('=')
		for i, child := range p.Children[1].Children {
			if i == 0 && child.Tag != SubstringsInitial {
				buf.WriteByte('*')
			}
			buf.WriteString(escape(string(child.Data.Bytes())))
			if child.Tag != SubstringsFinal {
				buf.WriteByte('*')
			}
		}
	case EqualityMatch, GreaterOrEqual, LessOrEqual, ApproxMatch:
		if len(p.Children) != 2 {
			return "", Error{"malformed attribute value assertion"}
		}
		buf.WriteString(string(p.Children[0].Data.Bytes()))
		switch p.Tag {
		case GreaterOrEqual:
			buf.WriteByte('>')
		case LessOrEqual:
			buf.WriteByte('<')
		case ApproxMatch:
			buf.WriteByte('~')
		}
		buf.WriteByte('=')
		buf.WriteString(escape(string(p.Children[1].Data.Bytes())))
	case ExtensibleMatch:
		var rule, attr, value string
		dnAttributes := false
		for _, child := range p.Children {
			switch child.Tag {
			case RuleMatchingRule:
				rule = string(child.Data.Bytes())
			case RuleType:
				attr = string(child.Data.Bytes())
			case RuleMatchValue:
				value = string(child.Data.Bytes())
			case RuleDNAttributes:
				dnAttributes, _ = child.Value.(bool)
			}
		}
		buf.WriteString(attr)
		if dnAttributes {
			buf.WriteString(":dn")
		}
		if rule != "" {
			buf.WriteByte(':')
			buf.WriteString(rule)
		}
		buf.WriteString(":=")
		buf.WriteString(escape(value))
	default:
		return "", Errorf("unknown filter tag %d", p.Tag)
	}
	buf.WriteByte(')')
	return buf.String(), nil
}
