package ovenrack

import (
	"net"
	"testing"
	"time"

	"github.com/powerman/check"
)

func TestCheckResolver(tt *testing.T) {
	t := check.T(tt)
	t.Nil(CheckResolver("9.9.9.9:53"))
	t.Nil(CheckResolver("[2620:fe::fe]:53"))
	t.NotNil(CheckResolver("9.9.9.9"))
	t.NotNil(CheckResolver("dns.quad9.net:53"))
}

func TestCachedIPs(tt *testing.T) {
	t := check.T(tt)
	xTransport := NewXTransport()
	ip := net.ParseIP("192.0.2.10")

	_, ok := xTransport.loadCachedIP("doh.example.net", true)
	t.False(ok)

	xTransport.saveCachedIP("doh.example.net", ip, -1)
	cached, ok := xTransport.loadCachedIP("doh.example.net", true)
	t.True(ok)
	t.True(cached.Equal(ip))

	past := time.Now().Add(-time.Minute)
	xTransport.cachedIPs.Add("expired.example.net", &CachedIPItem{ip: ip, expiration: &past})
	_, ok = xTransport.loadCachedIP("expired.example.net", false)
	t.True(ok)
	_, ok = xTransport.loadCachedIP("expired.example.net", true)
	t.False(ok)
	t.False(xTransport.cachedIPs.Contains("expired.example.net"))

	for i := 0; i < CachedIPsSize+1; i++ {
		xTransport.saveCachedIP(net.IPv4(10, 0, byte(i>>8), byte(i)).String()+".example", ip, -1)
	}
	t.Equal(xTransport.cachedIPs.Len(), CachedIPsSize)
}

func TestResolveHostSkipsAddresses(tt *testing.T) {
	t := check.T(tt)
	xTransport := NewXTransport()
	t.Nil(xTransport.resolveHost("192.0.2.10"))
	t.Nil(xTransport.resolveHost("2001:db8::1"))
	t.Equal(xTransport.cachedIPs.Len(), 0)
}
