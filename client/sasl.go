package client

import (
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/go-ntlmssp"
	ber "github.com/go-asn1-ber/asn1-ber"
)

// SASLClient is one SASL mechanism. Mechanism negotiation is left to the
// caller: pick a mechanism, hand it to BindSASL. Step is called once with a
// nil challenge to produce the initial response, then once per server
// challenge until it reports done.
type SASLClient interface {
	// Mechanism returns the SASL mechanism name sent in the bind request
	Mechanism() string
	// Step produces the next client response for the given challenge
	Step(challenge []byte) (response []byte, done bool, err error)
}

// saslBindRequest is one round of a SASL bind.
type saslBindRequest struct {
	Version     int
	Mechanism   string
	Credentials []byte
	// whether to include the credentials element at all
	HasCredentials bool
}

func (req *saslBindRequest) AppendTo(envelope *ber.Packet) error {
	version := req.Version
	if version == 0 {
		version = 3
	}
	pkt := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ApplicationBindRequest, nil, "Bind Request")
	pkt.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, version, "Version"))
	pkt.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "User Name"))
	auth := ber.Encode(ber.ClassContext, ber.TypeConstructed, 3, "", "authentication")
	auth.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, req.Mechanism, "SASL Mech"))
	if req.HasCredentials {
		auth.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, string(req.Credentials), "Credentials"))
	}
	pkt.AppendChild(auth)
	envelope.AppendChild(pkt)
	return nil
}

// serverSASLCreds extracts the serverSaslCreds element of a BindResponse.
func serverSASLCreds(packet *ber.Packet) []byte {
	if len(packet.Children) < 2 {
		return nil
	}
	for _, child := range packet.Children[1].Children {
		if child.ClassType == ber.ClassContext && child.Tag == 7 {
			return child.Data.Bytes()
		}
	}
	return nil
}

// SASLBind runs the challenge/response loop for the given mechanism.
func (cl *Conn) SASLBind(version int, sc SASLClient) error {
	response, done, err := sc.Step(nil)
	if err != nil {
		return err
	}
	req := &saslBindRequest{
		Version:        version,
		Mechanism:      sc.Mechanism(),
		Credentials:    response,
		HasCredentials: response != nil,
	}
	for {
		id, err := cl.Do(req)
		if err != nil {
			return err
		}
		packet, err := cl.ReadResponse(id)
		if err != nil {
			return err
		}
		ldapErr := GetLDAPError(packet)
		switch {
		case ldapErr == nil:
			return nil
		case IsErrorWithCode(ldapErr, ResultSaslBindInProgress) && !done:
			response, done, err = sc.Step(serverSASLCreds(packet))
			if err != nil {
				return err
			}
			req.Credentials = response
			req.HasCredentials = true
		default:
			return ldapErr
		}
	}
}

// ExternalSASL is the SASL/EXTERNAL mechanism: authentication is taken from
// the lower layer (a TLS client certificate or a unix socket peer).
type ExternalSASL struct {
	// AuthzID is the optional authorization identity
	AuthzID string
}

// Mechanism returns "EXTERNAL".
func (e *ExternalSASL) Mechanism() string { return "EXTERNAL" }

// Step returns the authorization identity in a single round.
func (e *ExternalSASL) Step([]byte) ([]byte, bool, error) {
	return []byte(e.AuthzID), true, nil
}

// DigestMD5SASL is the SASL DIGEST-MD5 mechanism (RFC 2831), qop=auth.
type DigestMD5SASL struct {
	// Host names the service; the digest URI is "ldap/<host>"
	Host string
	// Username is the authentication identity
	Username string
	// Password is the credential
	Password string
}

// Mechanism returns "DIGEST-MD5".
func (d *DigestMD5SASL) Mechanism() string { return "DIGEST-MD5" }

// Step sends no initial response, then answers the digest challenge.
func (d *DigestMD5SASL) Step(challenge []byte) ([]byte, bool, error) {
	if challenge == nil {
		return nil, false, nil
	}
	directives, err := parseDigestChallenge(string(challenge))
	if err != nil {
		return nil, false, err
	}
	return []byte(d.respond(directives)), true, nil
}

// parseDigestChallenge splits a digest-challenge into its directives.
// Directives are comma-separated key=value pairs; a value may be quoted,
// and commas inside quotes do not separate.
func parseDigestChallenge(challenge string) (map[string]string, error) {
	directives := make(map[string]string)
	rest := challenge
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq < 1 {
			return nil, fmt.Errorf("ldapdir: malformed digest-challenge near %q", rest)
		}
		key := strings.TrimSpace(rest[:eq])
		rest = rest[eq+1:]
		var value string
		if strings.HasPrefix(rest, `"`) {
			closing := strings.IndexByte(rest[1:], '"')
			if closing < 0 {
				return nil, errors.New("ldapdir: unterminated quote in digest-challenge")
			}
			value = rest[1 : 1+closing]
			rest = strings.TrimPrefix(rest[2+closing:], ",")
		} else if comma := strings.IndexByte(rest, ','); comma >= 0 {
			value = rest[:comma]
			rest = rest[comma+1:]
		} else {
			value, rest = rest, ""
		}
		directives[key] = value
	}
	return directives, nil
}

// respond builds the digest-response for a parsed challenge. Only qop=auth
// with a single nonce use is supported, which is all an LDAP bind needs.
func (d *DigestMD5SASL) respond(directives map[string]string) string {
	const nonceCount = "00000001"
	realm := directives["realm"]
	nonce := directives["nonce"]
	cnonce := newCnonce()
	uri := "ldap/" + strings.ToLower(d.Host)

	// RFC 2831: A1 is the raw hash of the identity joined with the nonces,
	// A2 names the operation; the response proves knowledge of both.
	a1 := md5Raw(strings.Join([]string{d.Username, realm, d.Password}, ":"))
	a1 = append(a1, []byte(":"+nonce+":"+cnonce)...)
	ha1 := md5Hex(string(a1))
	ha2 := md5Hex("AUTHENTICATE:" + uri)
	proof := md5Hex(strings.Join([]string{ha1, nonce, nonceCount, cnonce, "auth", ha2}, ":"))

	var resp strings.Builder
	writeDirective(&resp, "username", d.Username, true)
	writeDirective(&resp, "realm", realm, true)
	writeDirective(&resp, "nonce", nonce, true)
	writeDirective(&resp, "cnonce", cnonce, true)
	writeDirective(&resp, "nc", nonceCount, false)
	writeDirective(&resp, "qop", "auth", false)
	writeDirective(&resp, "digest-uri", uri, true)
	writeDirective(&resp, "response", proof, false)
	return resp.String()
}

// writeDirective appends one key=value pair, quoting when asked.
func writeDirective(b *strings.Builder, key, value string, quoted bool) {
	if b.Len() > 0 {
		b.WriteByte(',')
	}
	b.WriteString(key)
	b.WriteByte('=')
	if quoted {
		b.WriteByte('"')
		b.WriteString(value)
		b.WriteByte('"')
	} else {
		b.WriteString(value)
	}
}

func md5Raw(s string) []byte {
	sum := md5.Sum([]byte(s))
	return sum[:]
}

func md5Hex(s string) string {
	return hex.EncodeToString(md5Raw(s))
}

// newCnonce draws a fresh client nonce.
func newCnonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is broken
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// NTLMBind performs the NTLMSSP challenge bind used by Active Directory.
// Either password or hash must be set; hash enables pass-the-hash binds.
func (cl *Conn) NTLMBind(version int, domain, username, password, hash string) error {
	if password == "" && hash == "" {
		return NewError(ErrorEmptyPassword, errors.New("ldapdir: empty password not allowed by the client"))
	}
	negotiate, err := ntlmssp.NewNegotiateMessage(domain, "")
	if err != nil {
		return fmt.Errorf("generating ntlm negotiate message: %w", err)
	}
	packet, err := cl.ntlmRound(version, negotiate)
	if err != nil {
		return err
	}
	challenge := ntlmChallenge(packet)
	if challenge == nil {
		return GetLDAPError(packet)
	}
	var responseMessage []byte
	if password != "" {
		responseMessage, err = ntlmssp.ProcessChallenge(challenge, username, password, domain == "")
	} else {
		responseMessage, err = ntlmssp.ProcessChallengeWithHash(challenge, username, hash)
	}
	if err != nil {
		return fmt.Errorf("parsing ntlm-challenge: %w", err)
	}
	packet, err = cl.ntlmRound(version, responseMessage)
	if err != nil {
		return err
	}
	return GetLDAPError(packet)
}

// ntlmRound sends one bind request carrying an NTLMSSP message in the
// sicily authentication choice.
func (cl *Conn) ntlmRound(version int, message []byte) (*ber.Packet, error) {
	if version == 0 {
		version = 3
	}
	id, err := cl.Do(RequestFunc(func(envelope *ber.Packet) error {
		request := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ApplicationBindRequest, nil, "Bind Request")
		request.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, version, "Version"))
		request.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "User Name"))
		auth := ber.Encode(ber.ClassContext, ber.TypePrimitive, ber.TagEmbeddedPDV, nil, "authentication")
		auth.Data.Write(message)
		request.AppendChild(auth)
		envelope.AppendChild(request)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return cl.ReadResponse(id)
}

// ntlmChallenge digs the NTLMSSP challenge out of a bind response.
func ntlmChallenge(packet *ber.Packet) []byte {
	if len(packet.Children) < 2 || len(packet.Children[1].Children) < 2 {
		return nil
	}
	challenge := packet.Children[1].Children[1].ByteValue
	if len(challenge) < 7 || !bytes.Equal(challenge[:7], []byte("NTLMSSP")) {
		return nil
	}
	return challenge
}
