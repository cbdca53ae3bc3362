package wire

import (
	"encoding/hex"
	"net"
)

// RData is the payload of a resource record.
type RData interface {
	Len() int
	appendTo(packet []byte) []byte
	String() string
}

type A [4]byte

func (a A) Len() int { return len(a) }
func (a A) appendTo(packet []byte) []byte { return append(packet, a[:]...) }
func (a A) String() string { return net.IP(a[:]).String() }
func (a A) IP() net.IP { return net.IP(append([]byte(nil), a[:]...)) }

type AAAA [16]byte

func (aaaa AAAA) Len() int { return len(aaaa) }
func (aaaa AAAA) appendTo(packet []byte) []byte { return append(packet, aaaa[:]...) }
func (aaaa AAAA) String() string { return net.IP(aaaa[:]).String() }
func (aaaa AAAA) IP() net.IP { return net.IP(append([]byte(nil), aaaa[:]...)) }

// Opaque holds the RDATA of any record that is not decoded.
type Opaque []byte

func (opaque Opaque) Len() int { return len(opaque) }
func (opaque Opaque) appendTo(packet []byte) []byte { return append(packet, opaque...) }
func (opaque Opaque) String() string { return "\\# " + hex.EncodeToString(opaque) }

func decodeRData(rrType uint16, data []byte) RData {
	switch {
	case rrType == TypeA && len(data) == 4:
		var a A
		copy(a[:], data)
		return a
	case rrType == TypeAAAA && len(data) == 16:
		var aaaa AAAA
		copy(aaaa[:], data)
		return aaaa
	}
	return Opaque(append([]byte(nil), data...))
}
