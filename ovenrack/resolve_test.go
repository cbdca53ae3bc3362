package ovenrack

import (
	"bytes"
	"strings"
	"testing"

	"github.com/powerman/check"

	"github.com/ovenrack/ovenrack/wire"
)

// cnameForwarder answers CNAME questions with an uncompressed target.
type cnameForwarder struct {
	*fakeForwarder
}

func (forwarder *cnameForwarder) Query(request *wire.Message) (*wire.Message, error) {
	response, err := forwarder.fakeForwarder.Query(request)
	if err != nil {
		return nil, err
	}
	question := request.Questions[0]
	if question.Type == wire.TypeCNAME {
		target := wire.MustName("edge.example.net")
		response.AppendAnswers(wire.ResourceRecord{
			Name: question.Name, Type: wire.TypeCNAME, Class: wire.ClassINET, TTL: 60,
			RDLength: uint16(len(target)), Data: wire.Opaque(target),
		})
	}
	if question.Type == wire.TypeMX {
		response.SetResponse(wire.RcodeNameError)
	}
	return response, nil
}

func TestResolve(tt *testing.T) {
	t := check.T(tt)
	forwarder := &cnameForwarder{fakeForwarder: newFakeForwarder(60)}
	var out bytes.Buffer
	t.Must(t.Nil(Resolve(&out, forwarder, "www.example.com")))

	lines := strings.Split(out.String(), "\n")
	t.Must(t.True(len(lines) > 7))
	t.Equal(lines[0], "Resolving [www.example.com] using [fake]")
	t.Equal(strings.TrimSpace(lines[2]), "A:      192.0.2.1")
	t.Equal(strings.TrimSpace(lines[3]), "AAAA:   -")
	t.Equal(strings.TrimSpace(lines[4]), "CNAME:  edge.example.net.")
	t.Equal(strings.TrimSpace(lines[6]), "MX:     NXDOMAIN")
	t.Equal(forwarder.count(), len(resolveQTypes))
}
