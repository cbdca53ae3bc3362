package wire

import (
	"encoding/binary"
	"fmt"
)

// Pack serializes the message. Header counts are taken from the section
// lengths, not from the Header fields.
func (msg *Message) Pack() ([]byte, error) {
	for _, section := range []struct {
		name  string
		count int
	}{
		{"question", len(msg.Questions)},
		{"answer", len(msg.Answers)},
		{"authority", len(msg.Authorities)},
		{"additional", len(msg.Additionals)},
	} {
		if section.count > maxSectionEntries {
			return nil, fmt.Errorf("Too many %s entries: %d", section.name, section.count)
		}
	}
	packet := make([]byte, 0, MaxUDPMessageSize)
	packet = binary.BigEndian.AppendUint16(packet, msg.Header.ID)
	packet = binary.BigEndian.AppendUint16(packet, msg.Header.Flags)
	packet = binary.BigEndian.AppendUint16(packet, uint16(len(msg.Questions)))
	packet = binary.BigEndian.AppendUint16(packet, uint16(len(msg.Answers)))
	packet = binary.BigEndian.AppendUint16(packet, uint16(len(msg.Authorities)))
	packet = binary.BigEndian.AppendUint16(packet, uint16(len(msg.Additionals)))

	for _, question := range msg.Questions {
		if err := question.Name.validate(false); err != nil {
			return nil, fmt.Errorf("Question [%s]: %w", question.Name, err)
		}
		packet = append(packet, question.Name...)
		packet = binary.BigEndian.AppendUint16(packet, question.Type)
		packet = binary.BigEndian.AppendUint16(packet, question.Class)
	}
	var err error
	for _, section := range [][]ResourceRecord{msg.Answers, msg.Authorities, msg.Additionals} {
		for _, rr := range section {
			if packet, err = rr.appendTo(packet); err != nil {
				return nil, err
			}
		}
	}
	return packet, nil
}

func (rr *ResourceRecord) appendTo(packet []byte) ([]byte, error) {
	if err := rr.Name.validate(true); err != nil {
		return nil, fmt.Errorf("Record [%s]: %w", rr.Name, err)
	}
	dataLen := 0
	if rr.Data != nil {
		dataLen = rr.Data.Len()
	}
	if dataLen > 0xffff {
		return nil, fmt.Errorf("Record [%s]: data too large (%d bytes)", rr.Name, dataLen)
	}
	packet = append(packet, rr.Name...)
	packet = binary.BigEndian.AppendUint16(packet, rr.Type)
	packet = binary.BigEndian.AppendUint16(packet, rr.Class)
	packet = binary.BigEndian.AppendUint32(packet, rr.TTL)
	packet = binary.BigEndian.AppendUint16(packet, uint16(dataLen))
	if rr.Data != nil {
		packet = rr.Data.appendTo(packet)
	}
	return packet, nil
}
