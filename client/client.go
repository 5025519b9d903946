// Package client implements the LDAP connection manager: a logical session
// multiplexed over a pool of resolved server endpoints, with transparent
// reconnection, rebind and one-shot retry of transport failures.
package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/creasty/defaults"

	"github.com/jpdeplaix/ldapdir/entry"
	"github.com/jpdeplaix/ldapdir/schema"
)

// ReferralPolicy is reserved. Referrals are currently always returned to
// the caller as ref entries and never chased.
type ReferralPolicy int

const (
	// ReferralReturn hands referrals back to the caller.
	ReferralReturn ReferralPolicy = iota
)

// Config configures a Manager.
type Config struct {
	// URLs lists the directory servers (ldap://, ldaps://, ldapi://),
	// tried in order; each hostname may resolve to several endpoints
	URLs []string
	// Version is the LDAP protocol version, 2 or 3
	Version int `default:"3"`
	// ConnectTimeout bounds each endpoint connection attempt
	ConnectTimeout time.Duration `default:"30s"`
	// TLSConfig is used for ldaps endpoints and StartTLS
	TLSConfig *tls.Config
	// ReferralPolicy is reserved
	ReferralPolicy ReferralPolicy
	// Debug enables protocol logging
	Debug bool
}

// endpoint is one resolved dial target.
type endpoint struct {
	scheme string // ldap, ldaps or ldapi
	host   string // original hostname, kept for TLS verification
	addr   string // resolved ip:port, or the socket path for ldapi
}

// Manager holds the logical session to a directory. It is synchronous:
// callers must serialize access themselves, and while a Stream is live no
// other operation may be issued.
type Manager struct {
	config    Config
	endpoints []endpoint
	next      int // round-robin cursor, never reset
	conn      *Conn
	rebind    func(*Conn) error // saved bind state, replayed on reconnect
	schema    *schema.Schema
	busy      *Stream
	closed    bool

	Debug debugging
}

// Open resolves the configured URLs into an endpoint pool and connects.
func Open(config Config) (*Manager, error) {
	if err := defaults.Set(&config); err != nil {
		return nil, NewError(ResultLocalError, err)
	}
	if config.Version < 2 || config.Version > 3 {
		return nil, NewError(ResultProtocolError, fmt.Errorf("ldapdir: unsupported protocol version %d", config.Version))
	}
	if len(config.URLs) == 0 {
		return nil, NewError(ResultParamError, errors.New("ldapdir: no server URLs configured"))
	}
	eps, err := resolveEndpoints(config.URLs)
	if err != nil {
		return nil, err
	}
	m := &Manager{config: config, endpoints: eps}
	m.Debug.Enable(config.Debug)
	if err := m.connect(); err != nil {
		return nil, err
	}
	return m, nil
}

// resolveEndpoints expands each URL into one endpoint per resolved address,
// in input order. A hostname that does not resolve right now stays in the
// pool unresolved; dialing it will retry the lookup.
func resolveEndpoints(urls []string) ([]endpoint, error) {
	var eps []endpoint
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, NewError(ResultParamError, fmt.Errorf("ldapdir: invalid URL %q: %v", raw, err))
		}
		switch u.Scheme {
		case "ldapi":
			path := u.Path
			if path == "" || path == "/" {
				path = "/var/run/slapd/ldapi"
			}
			eps = append(eps, endpoint{scheme: "ldapi", addr: path})
		case "ldap", "ldaps":
			host, port, err := net.SplitHostPort(u.Host)
			if err != nil {
				// assume the error is a missing port
				host = u.Host
				port = ""
			}
			if port == "" {
				if u.Scheme == "ldaps" {
					port = "636"
				} else {
					port = "389"
				}
			}
			ips, err := net.LookupHost(host)
			if err != nil || len(ips) == 0 {
				eps = append(eps, endpoint{scheme: u.Scheme, host: host, addr: net.JoinHostPort(host, port)})
				continue
			}
			for _, ip := range ips {
				eps = append(eps, endpoint{scheme: u.Scheme, host: host, addr: net.JoinHostPort(ip, port)})
			}
		default:
			return nil, NewError(ResultParamError, fmt.Errorf("ldapdir: unknown scheme %q", u.Scheme))
		}
	}
	return eps, nil
}

// dialEndpoint opens the transport for one endpoint.
func dialEndpoint(ep endpoint, timeout time.Duration, tc *tls.Config) (*Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	var c net.Conn
	var err error
	isTLS := false
	switch ep.scheme {
	case "ldapi":
		c, err = d.Dial("unix", ep.addr)
	case "ldap":
		c, err = d.Dial("tcp", ep.addr)
	case "ldaps":
		cfg := tc
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" && ep.host != "" {
			cfg = cfg.Clone()
			cfg.ServerName = ep.host
		}
		c, err = tls.DialWithDialer(d, "tcp", ep.addr, cfg)
		isTLS = true
	default:
		return nil, NewError(ResultParamError, fmt.Errorf("ldapdir: unknown scheme %q", ep.scheme))
	}
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, NewError(ResultTimeout, err)
		}
		return nil, NewError(ResultConnectError, err)
	}
	return NewConn(c, isTLS), nil
}

// connect walks the endpoint pool round-robin until a transport opens and
// the saved bind state replays. The cursor is never reset, so consecutive
// reconnects keep rotating through the pool.
func (m *Manager) connect() error {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	var lastErr error
	for attempts := 0; attempts < len(m.endpoints); attempts++ {
		ep := m.endpoints[m.next%len(m.endpoints)]
		m.next++
		m.Debug.Printf("connecting to %s://%s", ep.scheme, ep.addr)
		cl, err := dialEndpoint(ep, m.config.ConnectTimeout, m.config.TLSConfig)
		if err != nil {
			lastErr = err
			continue
		}
		cl.Debug = m.Debug
		if m.rebind != nil {
			if err := m.rebind(cl); err != nil {
				cl.Close()
				if isTransient(err) {
					lastErr = err
					continue
				}
				return err
			}
		}
		m.conn = cl
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("ldapdir: empty endpoint pool")
	}
	return NewError(ResultServerDown, fmt.Errorf("ldapdir: no reachable endpoint: %v", lastErr))
}

// do runs one operation with the single-retry policy: a transport-family
// failure triggers one transparent reconnect and reissue, any LDAP result
// code surfaces immediately.
func (m *Manager) do(op func(*Conn) error) error {
	if m.closed {
		return NewError(ResultServerDown, errors.New("ldapdir: manager is unbound"))
	}
	if m.busy != nil {
		return NewError(ResultOperationsError, errors.New("ldapdir: a search stream is in progress"))
	}
	if m.conn == nil || m.conn.Closed() {
		if err := m.connect(); err != nil {
			return err
		}
	}
	err := op(m.conn)
	if err == nil || !isTransient(err) {
		return err
	}
	m.Debug.Printf("transport failure, reconnecting: %v", err)
	if cerr := m.connect(); cerr != nil {
		return cerr
	}
	return op(m.conn)
}

// SimpleBind sends one simple bind on this connection.
func (cl *Conn) SimpleBind(req *SimpleBindRequest) error {
	if req.Password == "" && !req.AllowEmptyPassword {
		return NewError(ErrorEmptyPassword, errors.New("ldapdir: empty password not allowed by the client"))
	}
	return cl.result(req)
}

// Bind authenticates with a DN and password. The empty DN with no password
// is the anonymous bind. The credentials are saved before sending so a
// reconnect can bind again.
func (m *Manager) Bind(dn, password string) error {
	m.rebind = func(cl *Conn) error {
		return cl.SimpleBind(&SimpleBindRequest{
			Version:            m.config.Version,
			Username:           dn,
			Password:           password,
			AllowEmptyPassword: password == "",
		})
	}
	rebind := m.rebind
	return m.do(func(cl *Conn) error { return rebind(cl) })
}

// BindSASL authenticates with the given SASL mechanism. The mechanism is
// saved for rebind on reconnect, so its Step must be repeatable.
func (m *Manager) BindSASL(sc SASLClient) error {
	m.rebind = func(cl *Conn) error { return cl.SASLBind(m.config.Version, sc) }
	rebind := m.rebind
	return m.do(func(cl *Conn) error { return rebind(cl) })
}

// BindNTLM authenticates with the NTLMSSP handshake. Pass either a
// password or an NT hash.
func (m *Manager) BindNTLM(domain, username, password, hash string) error {
	m.rebind = func(cl *Conn) error { return cl.NTLMBind(m.config.Version, domain, username, password, hash) }
	rebind := m.rebind
	return m.do(func(cl *Conn) error { return rebind(cl) })
}

// Add creates the entry on the server from its present attribute map.
func (m *Manager) Add(e *entry.Entry) error {
	req := NewAddRequest(e.DN())
	for _, attr := range e.ToAttributes() {
		req.Attribute(attr.Name, attr.Vals)
	}
	return m.do(func(cl *Conn) error { return cl.result(req) })
}

// Modify applies the modification records to the named entry, in order, as
// one Modify request.
func (m *Manager) Modify(dn string, mods []entry.Mod) error {
	req := NewModifyRequest(dn)
	for _, mod := range mods {
		switch mod.Op {
		case entry.ModAdd:
			req.AddAttribute(mod.Attr, mod.Vals)
		case entry.ModDelete:
			req.DeleteAttribute(mod.Attr, mod.Vals)
		case entry.ModReplace:
			req.ReplaceAttribute(mod.Attr, mod.Vals)
		}
	}
	return m.do(func(cl *Conn) error { return cl.result(req) })
}

// Delete removes the named entry.
func (m *Manager) Delete(dn string) error {
	req := NewDeleteRequest(dn)
	return m.do(func(cl *Conn) error { return cl.result(req) })
}

// ModifyDN renames an entry. A non-empty newSuperior moves it and requires
// protocol version 3.
func (m *Manager) ModifyDN(dn, newRDN string, deleteOldRDN bool, newSuperior string) error {
	if newSuperior != "" && m.config.Version < 3 {
		return NewError(ResultProtocolError, errors.New("ldapdir: newSuperior requires protocol version 3"))
	}
	req := NewModifyDNRequest(dn, newRDN, deleteOldRDN, newSuperior)
	return m.do(func(cl *Conn) error { return cl.result(req) })
}

// Compare checks an attribute value assertion against an entry.
func (m *Manager) Compare(dn, attr, value string) (bool, error) {
	var matched bool
	err := m.do(func(cl *Conn) error {
		err := cl.result(&CompareRequest{DN: dn, Attribute: attr, Value: value})
		switch {
		case IsErrorWithCode(err, ResultCompareTrue):
			matched = true
			return nil
		case IsErrorWithCode(err, ResultCompareFalse):
			matched = false
			return nil
		}
		return err
	})
	return matched, err
}

// Search runs a buffered search and returns all result entries at once.
func (m *Manager) Search(req *SearchRequest) (*SearchResult, error) {
	var result *SearchResult
	err := m.do(func(cl *Conn) error {
		var err error
		result, err = cl.Search(req)
		return err
	})
	return result, err
}

// SearchWithPaging runs a buffered search with the paged results control.
func (m *Manager) SearchWithPaging(req *SearchRequest, pagingSize uint32) (*SearchResult, error) {
	var result *SearchResult
	err := m.do(func(cl *Conn) error {
		var err error
		result, err = cl.SearchWithPaging(req, pagingSize)
		return err
	})
	return result, err
}

// SearchStream starts a streaming search and returns its pull cursor. The
// manager refuses further operations until the stream is drained or
// abandoned.
func (m *Manager) SearchStream(req *SearchRequest) (*Stream, error) {
	var stream *Stream
	err := m.do(func(cl *Conn) error {
		id, err := cl.Do(req)
		if err != nil {
			return err
		}
		stream = &Stream{m: m, cl: cl, id: id}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.busy = stream
	return stream, nil
}

// UpdateEntry commits an entry's pending state: Add, Delete or ModifyDN per
// its changetype, otherwise its change log as a single Modify. The log is
// flushed only on full success, so a rejected commit can be inspected,
// corrected and retried.
func (m *Manager) UpdateEntry(e *entry.Entry) error {
	var err error
	switch e.ChangeType() {
	case entry.ChangeAdd:
		err = m.Add(e)
	case entry.ChangeDelete:
		err = m.Delete(e.DN())
	case entry.ChangeModDN:
		info := e.ModDNInfo()
		if info == nil {
			return NewError(ResultParamError, errors.New("ldapdir: entry has changetype moddn but no rename info"))
		}
		err = m.ModifyDN(e.DN(), info.NewRDN, info.DeleteOldRDN, info.NewSuperior)
	case entry.ChangeModify:
		mods := e.Changes()
		if len(mods) == 0 {
			return nil
		}
		// Re-read by DN first so a vanished entry surfaces as
		// NoSuchObject instead of a half-applied Modify.
		if _, err = m.Search(&SearchRequest{
			BaseDN:     e.DN(),
			Scope:      ScopeBase,
			Attributes: []string{"objectClass"},
		}); err == nil {
			err = m.Modify(e.DN(), mods)
		}
	default:
		return NewError(ResultParamError, fmt.Errorf("ldapdir: unknown changetype %v", e.ChangeType()))
	}
	if err == nil {
		e.FlushChanges()
	}
	return err
}

// Unbind sends an unbind request and closes the connection. The manager is
// unusable afterwards.
func (m *Manager) Unbind() error {
	err := m.do(func(cl *Conn) error { return cl.Unbind() })
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.closed = true
	return err
}
