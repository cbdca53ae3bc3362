package ovenrack

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/powerman/check"

	"github.com/ovenrack/ovenrack/wire"
)

func TestProxyServesFromCache(tt *testing.T) {
	verbose()
	t := check.T(tt)
	clock := newFakeClock()
	cache := newTestCache(clock)
	forwarder := newFakeForwarder(30)
	proxy := NewProxy(cache, forwarder)
	question := mustQuestion(t, "example.com", wire.TypeA)

	request := wire.NewQuery(question)
	response, err := proxy.Query(request)
	t.Must(t.Nil(err))
	t.Equal(forwarder.count(), 1)
	t.Len(response.Answers, 1)

	clock.Advance(10 * time.Second)
	request = wire.NewQuery(question)
	response, err = proxy.Query(request)
	t.Must(t.Nil(err))
	t.Equal(forwarder.count(), 1, "answered from the cache")
	t.Equal(response.Header.ID, request.Header.ID)
	t.False(response.Header.IsRequest())
	t.Equal(response.Header.Flags&wire.FlagRecursionAvailable, wire.FlagRecursionAvailable)
	t.Equal(response.Header.ANCount, uint16(1))
	t.DeepEqual(response.Questions, request.Questions)
	t.Equal(response.Answers[0].Data, wire.RData(wire.A{192, 0, 2, 1}))
	t.Len(request.Answers, 0, "the request is not modified")

	clock.Advance(6 * time.Second)
	_, err = proxy.Query(wire.NewQuery(question))
	t.Nil(err)
	t.Equal(forwarder.count(), 2, "the entry expired after 15s")
	_, ok := cache.Lookup(wire.NewQuery(question))
	t.True(ok, "the fresh answer was cached")
}

func TestProxyUpstreamFailure(tt *testing.T) {
	t := check.T(tt)
	forwarder := newFakeForwarder(30)
	forwarder.setErr(errFakeUpstream)
	proxy := NewProxy(newTestCache(newFakeClock()), forwarder)

	_, err := proxy.Query(wire.NewQuery(mustQuestion(t, "example.com", wire.TypeA)))
	t.True(errors.Is(err, errFakeUpstream))

	msg := new(dns.Msg)
	msg.SetQuestion("example.com.", dns.TypeA)
	query, err := msg.Pack()
	t.Must(t.Nil(err))
	packet, err := proxy.HandlePacket(query)
	t.Must(t.Nil(err))
	reply := new(dns.Msg)
	t.Must(t.Nil(reply.Unpack(packet)))
	t.Equal(reply.Id, msg.Id)
	t.True(reply.Response)
	t.Equal(reply.Rcode, dns.RcodeServerFailure)
	t.Len(reply.Answer, 0)
}

func TestProxyHandlePacketDropsInvalidPackets(tt *testing.T) {
	t := check.T(tt)
	forwarder := newFakeForwarder(30)
	proxy := NewProxy(newTestCache(newFakeClock()), forwarder)

	_, err := proxy.HandlePacket([]byte{0x12, 0x34, 0x01, 0x00, 0x00, 0x01})
	t.True(errors.Is(err, wire.ErrMalformedMessage))

	msg := new(dns.Msg)
	msg.SetQuestion("example.com.", dns.TypeA)
	msg.Response = true
	response, err := msg.Pack()
	t.Must(t.Nil(err))
	_, err = proxy.HandlePacket(response)
	t.True(errors.Is(err, errNotARequest))
	t.Equal(forwarder.count(), 0)
}

func TestProxyEndToEnd(tt *testing.T) {
	verbose()
	t := check.T(tt)
	upstream := &fakeUpstream{ttl: 30}
	us, err := startServerUDP(t, upstream)
	t.Must(t.Nil(err))
	defer us.Shutdown()
	serverAddr, err := toServerAddr(us)
	t.Must(t.Nil(err))
	target, err := ParseUpstream(serverAddr)
	t.Must(t.Nil(err))
	client, err := NewDestClient(target, newTestXTransport(nil))
	t.Must(t.Nil(err))
	defer client.Close()

	clock := newFakeClock()
	proxy := NewProxy(newTestCache(clock), client)
	var queryLog bytes.Buffer
	proxy.QueryLog, err = NewQueryLog(&queryLog, "tsv", nil)
	t.Must(t.Nil(err))

	exchange := func() *dns.Msg {
		msg := new(dns.Msg)
		msg.SetQuestion("example.com.", dns.TypeA)
		query, err := msg.Pack()
		t.Must(t.Nil(err))
		packet, err := proxy.HandlePacket(query)
		t.Must(t.Nil(err))
		reply := new(dns.Msg)
		t.Must(t.Nil(reply.Unpack(packet)))
		t.Equal(reply.Id, msg.Id)
		t.True(reply.Response)
		t.Must(t.Len(reply.Answer, 1))
		t.Equal(reply.Answer[0].(*dns.A).A.String(), "192.0.2.1")
		return reply
	}

	exchange()
	t.Len(upstream.receivedIDs(), 1)
	clock.Advance(14 * time.Second)
	exchange()
	t.Len(upstream.receivedIDs(), 1, "second query answered from the cache")
	clock.Advance(2 * time.Second)
	exchange()
	t.Len(upstream.receivedIDs(), 2, "the entry had expired")

	lines := strings.Split(strings.TrimSpace(queryLog.String()), "\n")
	t.Must(t.Len(lines, 3))
	t.Contains(lines[0], "\texample.com\tA\tNOERROR\t1\t")
	t.Contains(lines[1], "\tcache\t")
	t.Contains(lines[2], "\t"+serverAddr+"\t")
}
