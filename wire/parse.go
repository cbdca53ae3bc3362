package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrMalformedMessage = errors.New("malformed DNS message")

type MalformedMessageError struct {
	Offset int
	Reason string
}

func (err *MalformedMessageError) Error() string {
	return fmt.Sprintf("%v at offset %d: %s", ErrMalformedMessage, err.Offset, err.Reason)
}

func (err *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

type parser struct {
	packet []byte
	offset int
}

func (p *parser) fail(format string, args ...interface{}) error {
	return &MalformedMessageError{Offset: p.offset, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) need(n int, what string) error {
	if n < 0 || len(p.packet)-p.offset < n {
		return p.fail("%s needs %d bytes, %d left", what, n, len(p.packet)-p.offset)
	}
	return nil
}

func (p *parser) uint16(what string) (uint16, error) {
	if err := p.need(2, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(p.packet[p.offset:])
	p.offset += 2
	return v, nil
}

func (p *parser) uint32(what string) (uint32, error) {
	if err := p.need(4, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(p.packet[p.offset:])
	p.offset += 4
	return v, nil
}

// name reads labels up to the root label, or up to a compression pointer
// when allowPointer is set. Pointers are never followed.
func (p *parser) name(allowPointer bool) (Name, error) {
	start := p.offset
	for {
		if err := p.need(1, "label length"); err != nil {
			return "", err
		}
		length := int(p.packet[p.offset])
		switch {
		case length == 0:
			p.offset++
			if p.offset-start > MaxNameLength {
				p.offset = start
				return "", p.fail("name longer than %d bytes", MaxNameLength)
			}
			return Name(p.packet[start:p.offset]), nil
		case length&pointerMask == pointerMask:
			if !allowPointer {
				return "", p.fail("compression pointer in a question name")
			}
			if err := p.need(2, "compression pointer"); err != nil {
				return "", err
			}
			p.offset += 2
			return Name(p.packet[start:p.offset]), nil
		case length&pointerMask != 0:
			return "", p.fail("reserved label type 0x%02x", length&pointerMask)
		}
		if err := p.need(1+length, "label"); err != nil {
			return "", err
		}
		p.offset += 1 + length
	}
}

func (p *parser) header() (Header, error) {
	var header Header
	if err := p.need(HeaderSize, "header"); err != nil {
		return header, err
	}
	fields := []*uint16{&header.ID, &header.Flags, &header.QDCount, &header.ANCount, &header.NSCount, &header.ARCount}
	for _, field := range fields {
		*field = binary.BigEndian.Uint16(p.packet[p.offset:])
		p.offset += 2
	}
	return header, nil
}

func (p *parser) question() (Question, error) {
	var question Question
	var err error
	if question.Name, err = p.name(false); err != nil {
		return question, err
	}
	if question.Type, err = p.uint16("question type"); err != nil {
		return question, err
	}
	question.Class, err = p.uint16("question class")
	return question, err
}

func (p *parser) record() (ResourceRecord, error) {
	var rr ResourceRecord
	var err error
	if rr.Name, err = p.name(true); err != nil {
		return rr, err
	}
	if rr.Type, err = p.uint16("record type"); err != nil {
		return rr, err
	}
	if rr.Class, err = p.uint16("record class"); err != nil {
		return rr, err
	}
	if rr.TTL, err = p.uint32("record TTL"); err != nil {
		return rr, err
	}
	if rr.RDLength, err = p.uint16("record data length"); err != nil {
		return rr, err
	}
	if err = p.need(int(rr.RDLength), "record data"); err != nil {
		return rr, err
	}
	rr.Data = decodeRData(rr.Type, p.packet[p.offset:p.offset+int(rr.RDLength)])
	p.offset += int(rr.RDLength)
	return rr, nil
}

func (p *parser) records(count uint16) ([]ResourceRecord, error) {
	if count == 0 {
		return nil, nil
	}
	// every record takes at least 11 bytes, bound the allocation by what is left
	capacity := int(count)
	if left := (len(p.packet) - p.offset) / 11; left < capacity {
		capacity = left
	}
	records := make([]ResourceRecord, 0, capacity)
	for i := 0; i < int(count); i++ {
		rr, err := p.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rr)
	}
	return records, nil
}

// Parse decodes a DNS message. Bytes following the last record announced by
// the header are ignored.
func Parse(packet []byte) (*Message, error) {
	p := parser{packet: packet}
	header, err := p.header()
	if err != nil {
		return nil, err
	}
	msg := &Message{Header: header}
	if header.QDCount > 0 {
		capacity := int(header.QDCount)
		if left := (len(packet) - p.offset) / 5; left < capacity {
			capacity = left
		}
		msg.Questions = make([]Question, 0, capacity)
		for i := 0; i < int(header.QDCount); i++ {
			question, err := p.question()
			if err != nil {
				return nil, err
			}
			msg.Questions = append(msg.Questions, question)
		}
	}
	if msg.Answers, err = p.records(header.ANCount); err != nil {
		return nil, err
	}
	if msg.Authorities, err = p.records(header.NSCount); err != nil {
		return nil, err
	}
	if msg.Additionals, err = p.records(header.ARCount); err != nil {
		return nil, err
	}
	return msg, nil
}
