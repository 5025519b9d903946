package filter

import (
	"testing"

	ber "github.com/go-asn1-ber/asn1-ber"
)

type compileTest struct {
	filterStr    string
	expectedType ber.Tag
}

var testFilters = []compileTest{
	{filterStr: "(&(sn=Miller)(givenName=John))", expectedType: And},
	{filterStr: "(|(sn=Miller)(givenName=John))", expectedType: Or},
	{filterStr: "(!(sn=Miller))", expectedType: Not},
	{filterStr: "(sn=Miller)", expectedType: EqualityMatch},
	{filterStr: "(sn=Mill*)", expectedType: Substrings},
	{filterStr: "(sn=*Mill)", expectedType: Substrings},
	{filterStr: "(sn=*Mill*)", expectedType: Substrings},
	{filterStr: "(sn=*i*le*)", expectedType: Substrings},
	{filterStr: "(sn=Mi*l*r)", expectedType: Substrings},
	{filterStr: "(sn=*)", expectedType: Present},
	{filterStr: "(sn>=Miller)", expectedType: GreaterOrEqual},
	{filterStr: "(sn<=Miller)", expectedType: LessOrEqual},
	{filterStr: "(sn~=Miller)", expectedType: ApproxMatch},
	{filterStr: "(objectGUID=\\61\\62\\63\\64)", expectedType: EqualityMatch},
	{filterStr: "(cn:caseExactMatch:=Fred Flintstone)", expectedType: ExtensibleMatch},
	{filterStr: "(sn:dn:2.4.6.8.10:=Barney Rubble)", expectedType: ExtensibleMatch},
	{filterStr: "(o:dn:=Ace Industry)", expectedType: ExtensibleMatch},
	{filterStr: "(:1.2.3:=Wilma Flintstone)", expectedType: ExtensibleMatch},
}

func TestCompile(t *testing.T) {
	t.Parallel()
	for _, test := range testFilters {
		p, err := Compile(test.filterStr)
		if err != nil {
			t.Errorf("Compile(%q): %v", test.filterStr, err)
			continue
		}
		if p.Tag != test.expectedType {
			t.Errorf("Compile(%q): got tag %d, want %d", test.filterStr, p.Tag, test.expectedType)
		}
	}
}

func TestCompileRoundtrip(t *testing.T) {
	t.Parallel()
	roundtrips := []string{
		"(&(sn=Miller)(givenName=John))",
		"(|(sn=Miller)(givenName=John))",
		"(!(sn=Miller))",
		"(sn=Miller)",
		"(sn=Mill*)",
		"(sn=*Mill)",
		"(sn=*i*le*)",
		"(sn>=Miller)",
		"(sn<=Miller)",
		"(sn~=Miller)",
		"(sn=*)",
	}
	for _, filterStr := range roundtrips {
		p, err := Compile(filterStr)
		if err != nil {
			t.Errorf("Compile(%q): %v", filterStr, err)
			continue
		}
		// the string form must survive a BER encode/decode cycle too
		decoded, err := ber.DecodePacketErr(p.Bytes())
		if err != nil {
			t.Errorf("DecodePacketErr(%q): %v", filterStr, err)
			continue
		}
		got, err := Decompile(decoded)
		if err != nil {
			t.Errorf("Decompile(%q): %v", filterStr, err)
			continue
		}
		if got != filterStr {
			t.Errorf("roundtrip of %q: got %q", filterStr, got)
		}
	}
}

func TestCompileEscapes(t *testing.T) {
	t.Parallel()
	p, err := Compile(`(cn=open\28paren)`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := string(p.Children[1].Data.Bytes()); got != "open(paren" {
		t.Errorf("unescaped value: got %q, want %q", got, "open(paren")
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()
	bad := []string{
		"",
		"sn=Miller",
		"(sn=Miller",
		"(sn=Miller))",
		"(&)",
		"(=Miller)",
		`(cn=bro\k3en)`,
	}
	for _, filterStr := range bad {
		if _, err := Compile(filterStr); err == nil {
			t.Errorf("Compile(%q): expected error", filterStr)
		}
	}
}
