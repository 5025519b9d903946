package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// Conn is one physical LDAP connection, driven synchronously: a request is
// written and its responses are read on the caller's goroutine, so the only
// suspension points are the socket writes and reads. There is no internal
// locking; serialization is the Manager's job. Message ids are monotonic,
// starting at 1.
type Conn struct {
	conn   net.Conn
	isTLS  bool
	nextID int64
	closed bool

	Debug debugging
}

// NewConn wraps an established network connection.
func NewConn(conn net.Conn, isTLS bool) *Conn {
	return &Conn{conn: conn, isTLS: isTLS, nextID: 1}
}

// Close shuts down the network connection. Closing twice is harmless.
func (cl *Conn) Close() {
	if cl.closed {
		return
	}
	cl.closed = true
	if err := cl.conn.Close(); err != nil {
		cl.Debug.Printf("closing connection: %v", err)
	}
}

// Closed reports whether the connection has been shut down, by Unbind or by
// a transport failure.
func (cl *Conn) Closed() bool {
	return cl.closed
}

// nextMessageID hands out the next message id.
func (cl *Conn) nextMessageID() int64 {
	id := cl.nextID
	cl.nextID++
	return id
}

// Do wraps the request in an LDAP envelope under a fresh message id and
// writes it out. The returned id selects which responses to read; requests
// without a response (unbind, abandon) simply never read it.
func (cl *Conn) Do(req Request) (int64, error) {
	if cl.closed {
		return 0, NewError(ResultServerDown, errors.New("ldapdir: connection closed"))
	}
	id := cl.nextMessageID()
	packet := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAP Request")
	packet.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, id, "MessageID"))
	if err := req.AppendTo(packet); err != nil {
		return 0, err
	}
	cl.Debug.Packet("send", packet)
	if _, err := cl.conn.Write(packet.Bytes()); err != nil {
		cl.Close()
		return 0, NewError(ResultServerDown, fmt.Errorf("ldapdir: writing request %d: %v", id, err))
	}
	return id, nil
}

// ReadResponse blocks on the transport until the next response envelope for
// the given message id arrives. Envelopes under any other id are leftovers
// of an abandoned operation and are dropped.
func (cl *Conn) ReadResponse(id int64) (*ber.Packet, error) {
	if cl.closed {
		return nil, NewError(ResultServerDown, errors.New("ldapdir: connection closed"))
	}
	for {
		packet, err := ber.ReadPacket(cl.conn)
		if err != nil {
			cl.Close()
			return nil, NewError(ResultServerDown, fmt.Errorf("ldapdir: reading response for %d: %v", id, err))
		}
		if len(packet.Children) < 2 {
			return nil, NewError(ResultDecodingError, errors.New("ldapdir: malformed response envelope"))
		}
		got, ok := packet.Children[0].Value.(int64)
		if !ok {
			return nil, NewError(ResultDecodingError, errors.New("ldapdir: response envelope without message id"))
		}
		if got != id {
			cl.Debug.Printf("dropping response for abandoned message %d while waiting for %d", got, id)
			continue
		}
		cl.Debug.Packet("recv", packet)
		return packet, nil
	}
}

// result writes a request and surfaces the result of its single response.
func (cl *Conn) result(req Request) error {
	id, err := cl.Do(req)
	if err != nil {
		return err
	}
	packet, err := cl.ReadResponse(id)
	if err != nil {
		return err
	}
	return GetLDAPError(packet)
}

// Unbind sends an unbind request. Unbind has no response; the connection is
// expected to be closed right after.
func (cl *Conn) Unbind() error {
	_, err := cl.Do(UnbindRequest{})
	return err
}

// StartTLS upgrades the connection with the StartTLS extended operation.
func (cl *Conn) StartTLS(config *tls.Config) error {
	if cl.isTLS {
		return NewError(ErrorNetwork, errors.New("ldapdir: already encrypted"))
	}
	err := cl.result(RequestFunc(func(envelope *ber.Packet) error {
		request := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ApplicationExtendedRequest, nil, "Start TLS")
		request.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 0, oidStartTLS, "TLS Extended Command"))
		envelope.AppendChild(request)
		return nil
	}))
	if err != nil {
		return err
	}
	tlsConn := tls.Client(cl.conn, config)
	if err := tlsConn.Handshake(); err != nil {
		cl.Close()
		return NewError(ErrorNetwork, fmt.Errorf("TLS handshake failed (%v)", err))
	}
	cl.isTLS = true
	cl.conn = tlsConn
	return nil
}

// TLSConnectionState returns the TLS state, zero values when not on TLS.
func (cl *Conn) TLSConnectionState() (state tls.ConnectionState, ok bool) {
	tc, ok := cl.conn.(*tls.Conn)
	if !ok {
		return
	}
	return tc.ConnectionState(), true
}
