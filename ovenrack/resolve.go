package ovenrack

import (
	"fmt"
	"io"
	"strings"

	"github.com/miekg/dns"

	"github.com/ovenrack/ovenrack/wire"
)

var resolveQTypes = []uint16{wire.TypeA, wire.TypeAAAA, wire.TypeCNAME, wire.TypeNS, wire.TypeMX, wire.TypeTXT}

// Resolve prints what the upstream returns for the usual record types of name.
func Resolve(out io.Writer, forwarder Forwarder, name string) error {
	fmt.Fprintf(out, "Resolving [%s] using [%v]\n\n", name, forwarder)
	for _, qtype := range resolveQTypes {
		question, err := wire.NewQuestion(name, qtype)
		if err != nil {
			return err
		}
		label := wire.TypeString(qtype) + ":"
		fmt.Fprintf(out, "%-8s", label)
		response, err := forwarder.Query(wire.NewQuery(question))
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
			continue
		}
		values, err := answerValues(response, qtype)
		if err != nil {
			fmt.Fprintf(out, "unreadable response: %v\n", err)
			continue
		}
		switch {
		case response.Header.Rcode() != wire.RcodeSuccess:
			fmt.Fprintln(out, rcodeString(response.Header.Rcode()))
		case len(values) == 0:
			fmt.Fprintln(out, "-")
		default:
			fmt.Fprintln(out, strings.Join(values, ", "))
		}
	}
	fmt.Fprintln(out, "")
	return nil
}

// answerValues renders the record data of the answers of type qtype.
// Record types kept opaque by the codec are decoded with miekg/dns.
func answerValues(response *wire.Message, qtype uint16) ([]string, error) {
	packet, err := response.Pack()
	if err != nil {
		return nil, err
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(packet); err != nil {
		return nil, err
	}
	values := make([]string, 0, len(msg.Answer))
	for _, answer := range msg.Answer {
		if answer.Header().Rrtype != qtype {
			continue
		}
		values = append(values, strings.TrimPrefix(answer.String(), answer.Header().String()))
	}
	return values, nil
}
