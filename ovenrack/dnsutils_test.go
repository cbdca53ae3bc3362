package ovenrack

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jedisct1/dlog"
	"github.com/miekg/dns"
	"github.com/powerman/check"

	"github.com/ovenrack/ovenrack/wire"
)

func TestMain(m *testing.M) {
	dlog.Init("ovenrack", dlog.SeverityWarning, "DAEMON")
	dlog.UseSyslog(false)
	m.Run()
}

func verbose() {
	if testing.Verbose() {
		dlog.SetLogLevel(dlog.SeverityDebug)
		dlog.UseSyslog(false)
	}
}

// fakeClock drives the cache in tests.
type fakeClock struct {
	sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2021, 11, 4, 12, 0, 0, 0, time.UTC)}
}

func (clock *fakeClock) Now() time.Time {
	clock.Lock()
	defer clock.Unlock()
	return clock.now
}

func (clock *fakeClock) Advance(d time.Duration) {
	clock.Lock()
	clock.now = clock.now.Add(d)
	clock.Unlock()
}

func newTestCache(clock *fakeClock) *Cache {
	cache := NewCache()
	cache.now = clock.Now
	return cache
}

// fakeForwarder answers A questions with 192.0.2.1.
type fakeForwarder struct {
	sync.Mutex
	queries []*wire.Message
	ttl     uint32
	err     error
	called  chan struct{}
}

func newFakeForwarder(ttl uint32) *fakeForwarder {
	return &fakeForwarder{ttl: ttl, called: make(chan struct{}, 16)}
}

func (forwarder *fakeForwarder) Query(request *wire.Message) (*wire.Message, error) {
	forwarder.Lock()
	forwarder.queries = append(forwarder.queries, request)
	err := forwarder.err
	forwarder.Unlock()
	select {
	case forwarder.called <- struct{}{}:
	default:
	}
	if err != nil {
		return nil, err
	}
	response := request.Copy()
	for _, question := range request.Questions {
		if question.Type == wire.TypeA {
			response.AppendAnswers(wire.NewA(question.Name, forwarder.ttl, [4]byte{192, 0, 2, 1}))
		}
	}
	response.SetResponse(wire.RcodeSuccess)
	return response, nil
}

func (forwarder *fakeForwarder) count() int {
	forwarder.Lock()
	defer forwarder.Unlock()
	return len(forwarder.queries)
}

func (forwarder *fakeForwarder) setErr(err error) {
	forwarder.Lock()
	forwarder.err = err
	forwarder.Unlock()
}

func (forwarder *fakeForwarder) String() string {
	return "fake"
}

var errFakeUpstream = errors.New("fake upstream is down")

func mustQuestion(t *check.C, name string, qtype uint16) wire.Question {
	question, err := wire.NewQuestion(name, qtype)
	t.Must(t.Nil(err))
	return question
}

func responseFor(question wire.Question, ttl uint32) *wire.Message {
	response := wire.NewQuery(question)
	response.AppendAnswers(wire.NewA(question.Name, ttl, [4]byte{192, 0, 2, 1}))
	response.SetResponse(wire.RcodeSuccess)
	return response
}

// fakeUpstream is a DNS server handler that records the IDs it receives.
type fakeUpstream struct {
	sync.Mutex
	ids []uint16
	ttl uint32
}

func (upstream *fakeUpstream) reply(req *dns.Msg) *dns.Msg {
	upstream.Lock()
	upstream.ids = append(upstream.ids, req.Id)
	upstream.Unlock()
	m := new(dns.Msg)
	m.SetReply(req)
	m.RecursionAvailable = true
	if len(req.Question) > 0 && req.Question[0].Qtype == dns.TypeA {
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: upstream.ttl},
			A:   net.IPv4(192, 0, 2, 1),
		})
	}
	return m
}

func (upstream *fakeUpstream) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	w.WriteMsg(upstream.reply(req))
}

func (upstream *fakeUpstream) receivedIDs() []uint16 {
	upstream.Lock()
	defer upstream.Unlock()
	return append([]uint16(nil), upstream.ids...)
}

func toServerAddr(s *dns.Server) (string, error) {
	var h, p string
	var err error
	if strings.HasPrefix(s.Net, "udp") {
		h, p, err = net.SplitHostPort(s.PacketConn.LocalAddr().String())
	} else {
		h, p, err = net.SplitHostPort(s.Listener.Addr().String())
	}
	if err != nil {
		return "", err
	}
	if net.ParseIP(h).To4() == nil {
		return "[::1]:" + p, nil
	}
	return "127.0.0.1:" + p, nil
}

func startServerUDP(t *check.C, h dns.Handler) (*dns.Server, error) {
	waitLock := sync.Mutex{}
	server := &dns.Server{Addr: "127.0.0.1:0", Net: "udp", ReadTimeout: time.Hour, WriteTimeout: time.Hour, NotifyStartedFunc: waitLock.Unlock, Handler: h}
	waitLock.Lock()

	go func() {
		err := server.ListenAndServe()
		t.Nil(err)
	}()
	waitLock.Lock()
	return server, nil
}

func startServerTLS(t *check.C, cert tls.Certificate, h dns.Handler) (*dns.Server, error) {
	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return nil, err
	}
	waitLock := sync.Mutex{}
	server := &dns.Server{Listener: listener, Net: "tcp-tls", NotifyStartedFunc: waitLock.Unlock, Handler: h}
	waitLock.Lock()

	go func() {
		err := server.ActivateAndServe()
		t.Nil(err)
	}()
	waitLock.Lock()
	return server, nil
}

func selfSignedCertificate(t *check.C, hostname string) (tls.Certificate, *x509.CertPool) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	t.Must(t.Nil(err))
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: hostname},
		DNSNames:              []string{hostname},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	t.Must(t.Nil(err))
	leaf, err := x509.ParseCertificate(der)
	t.Must(t.Nil(err))
	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, pool
}

func newTestXTransport(roots *x509.CertPool) *XTransport {
	xTransport := NewXTransport()
	xTransport.Timeout = 2 * time.Second
	xTransport.RootCAs = roots
	return xTransport
}
