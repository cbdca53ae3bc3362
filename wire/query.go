package wire

import (
	"github.com/miekg/dns"
)

// NewQuery builds a recursive query for the given questions with a random
// transaction ID.
func NewQuery(questions ...Question) *Message {
	return &Message{
		Header: Header{
			ID:      dns.Id(),
			Flags:   FlagRecursionDesired,
			QDCount: uint16(len(questions)),
		},
		Questions: append([]Question(nil), questions...),
	}
}

func NewQuestion(name string, qtype uint16) (Question, error) {
	encoded, err := NewName(name)
	if err != nil {
		return Question{}, err
	}
	return Question{Name: encoded, Type: qtype, Class: ClassINET}, nil
}
