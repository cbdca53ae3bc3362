package ovenrack

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jedisct1/dlog"
)

// tlsTransport keeps a single TLS session open to a DNS-over-TLS server.
// Messages are framed with a 2-byte big-endian length.
type tlsTransport struct {
	upstream   Upstream
	xTransport *XTransport
	conn       net.Conn
}

func newTLSTransport(upstream Upstream, xTransport *XTransport) (*tlsTransport, error) {
	transport := &tlsTransport{upstream: upstream, xTransport: xTransport}
	if err := transport.connect(); err != nil {
		return nil, err
	}
	return transport, nil
}

func (transport *tlsTransport) connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), transport.xTransport.Timeout)
	defer cancel()
	conn, err := transport.xTransport.DialTLS(ctx, transport.upstream.Address, transport.upstream.Hostname)
	if err != nil {
		return err
	}
	state := conn.ConnectionState()
	dlog.Debugf("[%v] TLS session established (version 0x%04x, resumed: %v)", transport.upstream, state.Version, state.DidResume)
	transport.conn = conn
	return nil
}

func (transport *tlsTransport) roundTrip(prefixed []byte) ([]byte, error) {
	if err := transport.conn.SetDeadline(time.Now().Add(transport.xTransport.Timeout)); err != nil {
		return nil, err
	}
	if _, err := transport.conn.Write(prefixed); err != nil {
		return nil, err
	}
	return ReadPrefixed(transport.conn)
}

// exchange reconnects once when the session breaks, which servers do
// routinely after an idle period.
func (transport *tlsTransport) exchange(packet []byte) ([]byte, error) {
	prefixed, err := PrefixWithSize(packet)
	if err != nil {
		return nil, err
	}
	if transport.conn != nil {
		reply, err := transport.roundTrip(prefixed)
		if err == nil {
			return reply, nil
		}
		dlog.Debugf("[%v] TLS session failed: %v - reconnecting", transport.upstream, err)
		transport.conn.Close()
		transport.conn = nil
	}
	if err := transport.connect(); err != nil {
		return nil, err
	}
	reply, err := transport.roundTrip(prefixed)
	if err != nil {
		transport.conn.Close()
		transport.conn = nil
		return nil, err
	}
	return reply, nil
}

func (transport *tlsTransport) Close() error {
	if transport.conn == nil {
		return errors.New("TLS session already closed")
	}
	err := transport.conn.Close()
	transport.conn = nil
	return err
}
