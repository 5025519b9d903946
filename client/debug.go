package client

import (
	"log"

	"github.com/davecgh/go-spew/spew"
	ber "github.com/go-asn1-ber/asn1-ber"
)

// debugging gates the protocol trace. It defaults to off; Open copies the
// Config.Debug flag onto the Manager and the Manager onto every connection
// it dials, so one switch covers dialing, sends, receives and drops.
type debugging bool

// Enable switches the trace on or off.
func (d *debugging) Enable(on bool) {
	*d = debugging(on)
}

// Printf writes one trace line.
func (d debugging) Printf(format string, args ...interface{}) {
	if d {
		log.Printf("ldapdir: "+format, args...)
	}
}

// Packet traces a request or response envelope in BER tree form.
// direction is "send" or "recv".
func (d debugging) Packet(direction string, p *ber.Packet) {
	if d {
		log.Printf("ldapdir: %s envelope", direction)
		ber.WritePacket(log.Writer(), p)
	}
}

// Dump traces the full structure of a decoded value, e.g. a parsed schema.
func (d debugging) Dump(v interface{}) {
	if d {
		spew.Fdump(log.Writer(), v)
	}
}
