// Package wire converts DNS messages between their wire format and a
// structured representation.
//
// Names are kept in their wire encoding. Compression pointers found at the
// end of resource record names are copied as-is and never followed, so a
// parsed message packs back to the exact bytes it was parsed from. RDATA is
// decoded for A and AAAA records only; everything else is carried as opaque
// bytes.
package wire

import (
	"fmt"
)

const (
	HeaderSize        = 12
	MaxUDPMessageSize = 512
	maxSectionEntries = 0xffff
)

const (
	FlagResponse           = uint16(0x8000)
	FlagAuthoritative      = uint16(0x0400)
	FlagTruncated          = uint16(0x0200)
	FlagRecursionDesired   = uint16(0x0100)
	FlagRecursionAvailable = uint16(0x0080)
	rcodeMask              = uint16(0x000f)
)

const (
	RcodeSuccess        = 0
	RcodeFormatError    = 1
	RcodeServerFailure  = 2
	RcodeNameError      = 3
	RcodeNotImplemented = 4
	RcodeRefused        = 5
)

type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// IsRequest reports whether the QR bit is clear. No other flag is looked at.
func (header *Header) IsRequest() bool {
	return header.Flags&FlagResponse == 0
}

func (header *Header) Rcode() int {
	return int(header.Flags & rcodeMask)
}

type Message struct {
	Header      Header
	Questions   []Question
	Answers     []ResourceRecord
	Authorities []ResourceRecord
	Additionals []ResourceRecord
}

// AppendAnswers adds records to the answer section and bumps ANCount.
func (msg *Message) AppendAnswers(records ...ResourceRecord) {
	msg.Answers = append(msg.Answers, records...)
	msg.Header.ANCount += uint16(len(records))
}

// SetResponse turns the message into a response carrying rcode. Recursion
// is always advertised as available, since this is what a forwarder does.
func (msg *Message) SetResponse(rcode int) {
	flags := msg.Header.Flags | FlagResponse | FlagRecursionAvailable
	msg.Header.Flags = flags&^rcodeMask | uint16(rcode)&rcodeMask
}

// Copy returns a copy whose sections can be modified independently.
// Records themselves are never mutated and are shared.
func (msg *Message) Copy() *Message {
	return &Message{
		Header:      msg.Header,
		Questions:   append([]Question(nil), msg.Questions...),
		Answers:     append([]ResourceRecord(nil), msg.Answers...),
		Authorities: append([]ResourceRecord(nil), msg.Authorities...),
		Additionals: append([]ResourceRecord(nil), msg.Additionals...),
	}
}

// MinTTL returns the smallest TTL found in the answer section.
func (msg *Message) MinTTL() (uint32, bool) {
	if len(msg.Answers) == 0 {
		return 0, false
	}
	minTTL := msg.Answers[0].TTL
	for _, answer := range msg.Answers[1:] {
		if answer.TTL < minTTL {
			minTTL = answer.TTL
		}
	}
	return minTTL, true
}

func (msg *Message) String() string {
	name, qtype := "-", "-"
	if len(msg.Questions) > 0 {
		name = msg.Questions[0].Name.String()
		qtype = TypeString(msg.Questions[0].Type)
	}
	return fmt.Sprintf("[%d] %s %s (qd=%d an=%d ns=%d ar=%d)",
		msg.Header.ID, name, qtype,
		len(msg.Questions), len(msg.Answers), len(msg.Authorities), len(msg.Additionals))
}

type Question struct {
	Name  Name
	Type  uint16
	Class uint16
}

func (question Question) String() string {
	return fmt.Sprintf("%s %s %s", question.Name, ClassString(question.Class), TypeString(question.Type))
}

type ResourceRecord struct {
	Name  Name
	Type  uint16
	Class uint16
	TTL   uint32
	// RDLength mirrors the wire field. Packing always writes the actual
	// length of Data.
	RDLength uint16
	Data     RData
}

func NewA(name Name, ttl uint32, ip [4]byte) ResourceRecord {
	return ResourceRecord{Name: name, Type: TypeA, Class: ClassINET, TTL: ttl, RDLength: 4, Data: A(ip)}
}

func NewAAAA(name Name, ttl uint32, ip [16]byte) ResourceRecord {
	return ResourceRecord{Name: name, Type: TypeAAAA, Class: ClassINET, TTL: ttl, RDLength: 16, Data: AAAA(ip)}
}

func (rr ResourceRecord) String() string {
	data := "-"
	if rr.Data != nil {
		data = rr.Data.String()
	}
	return fmt.Sprintf("%s\t%d\t%s\t%s\t%s", rr.Name, rr.TTL, ClassString(rr.Class), TypeString(rr.Type), data)
}
