package ovenrack

import (
	"time"
)

type dohTransport struct {
	upstream   Upstream
	xTransport *XTransport
}

func newDoHTransport(upstream Upstream, xTransport *XTransport) (*dohTransport, error) {
	if upstream.BootstrapIP != nil {
		host, _ := ExtractHostAndPort(upstream.URL.Host, -1)
		xTransport.saveCachedIP(host, upstream.BootstrapIP, -1*time.Second)
	}
	if xTransport.transport == nil {
		xTransport.RebuildTransport()
	}
	return &dohTransport{upstream: upstream, xTransport: xTransport}, nil
}

func (transport *dohTransport) exchange(packet []byte) ([]byte, error) {
	reply, _, err := transport.xTransport.DoHQuery(transport.upstream.URL, packet, 0)
	return reply, err
}

func (transport *dohTransport) Close() error {
	transport.xTransport.transport.CloseIdleConnections()
	return nil
}
