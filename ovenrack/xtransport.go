package ovenrack

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jedisct1/dlog"
	"github.com/miekg/dns"
	"golang.org/x/net/http2"
	netproxy "golang.org/x/net/proxy"
)

const (
	DefaultFallbackResolver = "9.9.9.9:53"
	DefaultKeepAlive        = 5 * time.Second
	SystemResolverTTL       = 24 * time.Hour
	CachedIPsSize           = 64
	MaxHTTPBodyLength       = 1000000
)

type CachedIPItem struct {
	ip         net.IP
	expiration *time.Time
}

// XTransport holds the settings and the connection state shared by the
// upstream transports: HTTP client for DoH, TLS dialer for DoT, and the
// cache of resolved upstream host names.
type XTransport struct {
	transport                *http.Transport
	KeepAlive                time.Duration
	Timeout                  time.Duration
	UDPRetries               int
	cachedIPs                *lru.Cache
	FallbackResolver         string
	IgnoreSystemDNS          bool
	UseIPv4                  bool
	UseIPv6                  bool
	TLSDisableSessionTickets bool
	TLSCipherSuite           []uint16
	RootCAs                  *x509.CertPool
	ProxyDialer              *netproxy.Dialer
	HTTPProxyFunction        func(*http.Request) (*url.URL, error)
	sessionCache             tls.ClientSessionCache
}

func NewXTransport() *XTransport {
	if err := CheckResolver(DefaultFallbackResolver); err != nil {
		panic("DefaultFallbackResolver does not parse")
	}
	cachedIPs, err := lru.New(CachedIPsSize)
	if err != nil {
		panic(err)
	}
	xTransport := XTransport{
		cachedIPs:                cachedIPs,
		KeepAlive:                DefaultKeepAlive,
		Timeout:                  DefaultTimeout,
		UDPRetries:               DefaultUDPRetries,
		FallbackResolver:         DefaultFallbackResolver,
		IgnoreSystemDNS:          false,
		UseIPv4:                  true,
		UseIPv6:                  false,
		TLSDisableSessionTickets: false,
		TLSCipherSuite:           nil,
		sessionCache:             tls.NewLRUClientSessionCache(10),
	}
	return &xTransport
}

// If ttl < 0, never expire
// Otherwise, ttl is set to max(ttl, xTransport.Timeout)
func (xTransport *XTransport) saveCachedIP(host string, ip net.IP, ttl time.Duration) {
	item := &CachedIPItem{ip: ip, expiration: nil}
	if ttl >= 0 {
		if ttl < xTransport.Timeout {
			ttl = xTransport.Timeout
		}
		expiration := time.Now().Add(ttl)
		item.expiration = &expiration
	}
	xTransport.cachedIPs.Add(host, item)
}

func (xTransport *XTransport) loadCachedIP(host string, deleteIfExpired bool) (net.IP, bool) {
	value, ok := xTransport.cachedIPs.Get(host)
	if !ok {
		return nil, false
	}
	item := value.(*CachedIPItem)
	expiration := item.expiration
	if deleteIfExpired && expiration != nil && time.Until(*expiration) < 0 {
		xTransport.cachedIPs.Remove(host)
		return nil, false
	}
	return item.ip, true
}

func (xTransport *XTransport) dialContext(ctx context.Context, network, addrStr string, defaultPort int) (net.Conn, error) {
	host, port := ExtractHostAndPort(addrStr, defaultPort)
	ipOnly := host
	if cachedIP, ok := xTransport.loadCachedIP(host, false); ok {
		ipOnly = cachedIP.String()
	} else if ParseIP(host) == nil {
		dlog.Debugf("[%s] IP address was not cached", host)
	}
	addrStr = net.JoinHostPort(ipOnly, strconv.Itoa(port))
	if xTransport.ProxyDialer == nil {
		dialer := &net.Dialer{Timeout: xTransport.Timeout, KeepAlive: xTransport.Timeout}
		return dialer.DialContext(ctx, network, addrStr)
	}
	return (*xTransport.ProxyDialer).Dial(network, addrStr)
}

func (xTransport *XTransport) tlsClientConfig(serverName string) *tls.Config {
	tlsClientConfig := tls.Config{
		ServerName:             serverName,
		RootCAs:                xTransport.RootCAs,
		SessionTicketsDisabled: xTransport.TLSDisableSessionTickets,
		MinVersion:             tls.VersionTLS12,
	}
	if !xTransport.TLSDisableSessionTickets {
		tlsClientConfig.ClientSessionCache = xTransport.sessionCache
	}
	if xTransport.TLSCipherSuite != nil {
		tlsClientConfig.CipherSuites = xTransport.TLSCipherSuite
	}
	return &tlsClientConfig
}

func (xTransport *XTransport) RebuildTransport() {
	dlog.Debug("Rebuilding transport")
	if xTransport.transport != nil {
		xTransport.transport.CloseIdleConnections()
	}
	timeout := xTransport.Timeout
	transport := &http.Transport{
		DisableKeepAlives:      false,
		DisableCompression:     true,
		MaxIdleConns:           1,
		IdleConnTimeout:        xTransport.KeepAlive,
		ResponseHeaderTimeout:  timeout,
		ExpectContinueTimeout:  timeout,
		MaxResponseHeaderBytes: 4096,
		DialContext: func(ctx context.Context, network, addrStr string) (net.Conn, error) {
			return xTransport.dialContext(ctx, network, addrStr, 443)
		},
		TLSClientConfig: xTransport.tlsClientConfig(""),
	}
	if xTransport.HTTPProxyFunction != nil {
		transport.Proxy = xTransport.HTTPProxyFunction
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		dlog.Warnf("HTTP/2 not available: %v", err)
	}
	xTransport.transport = transport
}

// DialTLS opens a TLS session to address, verifying the certificate against serverName.
func (xTransport *XTransport) DialTLS(ctx context.Context, address string, serverName string) (*tls.Conn, error) {
	conn, err := xTransport.dialContext(ctx, "tcp", address, DefaultDoTPort)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(conn, xTransport.tlsClientConfig(serverName))
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		if xTransport.TLSCipherSuite != nil && strings.Contains(err.Error(), "handshake failure") {
			dlog.Warnf("TLS handshake failure - Try changing or deleting the tls_cipher_suite value in the configuration file")
		}
		return nil, err
	}
	return tlsConn, nil
}

func (xTransport *XTransport) resolveUsingSystem(host string) (ip net.IP, ttl time.Duration, err error) {
	ttl = SystemResolverTTL
	var foundIPs []string
	foundIPs, err = net.LookupHost(host)
	if err != nil {
		return
	}
	ips := make([]net.IP, 0)
	for _, ip := range foundIPs {
		if foundIP := net.ParseIP(ip); foundIP != nil {
			if xTransport.UseIPv4 {
				if ipv4 := foundIP.To4(); ipv4 != nil {
					ips = append(ips, foundIP)
				}
			}
			if xTransport.UseIPv6 {
				if foundIP.To4() == nil {
					ips = append(ips, foundIP)
				}
			}
		}
	}
	if len(ips) > 0 {
		ip = ips[rand.Intn(len(ips))]
	} else {
		err = fmt.Errorf("No usable address found for [%s]", host)
	}
	return
}

func (xTransport *XTransport) resolveUsingResolver(proto, host string, resolver string) (ip net.IP, ttl time.Duration, err error) {
	dnsClient := dns.Client{Net: proto, Timeout: xTransport.Timeout}
	qtypes := make([]uint16, 0, 2)
	if xTransport.UseIPv4 {
		qtypes = append(qtypes, dns.TypeA)
	}
	if xTransport.UseIPv6 {
		qtypes = append(qtypes, dns.TypeAAAA)
	}
	err = fmt.Errorf("No usable address found for [%s]", host)
	for _, qtype := range qtypes {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		var in *dns.Msg
		if in, _, err = dnsClient.Exchange(msg, resolver); err != nil {
			continue
		}
		answers := make([]dns.RR, 0)
		for _, answer := range in.Answer {
			if answer.Header().Rrtype == qtype {
				answers = append(answers, answer)
			}
		}
		if len(answers) == 0 {
			err = fmt.Errorf("No %s record found for [%s]", dns.TypeToString[qtype], host)
			continue
		}
		answer := answers[rand.Intn(len(answers))]
		switch rr := answer.(type) {
		case *dns.A:
			ip = rr.A
		case *dns.AAAA:
			ip = rr.AAAA
		}
		ttl = time.Duration(answer.Header().Ttl) * time.Second
		return ip, ttl, nil
	}
	return
}

func (xTransport *XTransport) resolveHost(host string) (err error) {
	if xTransport.ProxyDialer != nil || xTransport.HTTPProxyFunction != nil {
		return
	}
	if len(host) == 0 || ParseIP(host) != nil {
		return
	}
	if _, ok := xTransport.loadCachedIP(host, true); ok {
		return
	}
	var foundIP net.IP
	var ttl time.Duration
	if !xTransport.IgnoreSystemDNS {
		foundIP, ttl, err = xTransport.resolveUsingSystem(host)
	}
	if xTransport.IgnoreSystemDNS || err != nil {
		for _, proto := range []string{"udp", "tcp"} {
			if err != nil {
				dlog.Noticef("System DNS configuration not usable yet, exceptionally resolving [%s] using resolver %s[%s]", host, proto, xTransport.FallbackResolver)
			} else {
				dlog.Debugf("Resolving [%s] using resolver %s[%s]", host, proto, xTransport.FallbackResolver)
			}
			foundIP, ttl, err = xTransport.resolveUsingResolver(proto, host, xTransport.FallbackResolver)
			if err == nil {
				break
			}
		}
	}
	if err != nil {
		return
	}
	xTransport.saveCachedIP(host, foundIP, ttl)
	dlog.Debugf("[%s] IP address [%s] added to the cache, valid for %v", host, foundIP, ttl)
	return
}

func (xTransport *XTransport) Fetch(method string, url *url.URL, accept string, contentType string, body []byte, timeout time.Duration) ([]byte, time.Duration, error) {
	if timeout <= 0 {
		timeout = xTransport.Timeout
	}
	if xTransport.transport == nil {
		xTransport.RebuildTransport()
	}
	client := http.Client{Transport: xTransport.transport, Timeout: timeout}
	header := map[string][]string{"User-Agent": {"ovenrack"}}
	if len(accept) > 0 {
		header["Accept"] = []string{accept}
	}
	if len(contentType) > 0 {
		header["Content-Type"] = []string{contentType}
	}
	host, _ := ExtractHostAndPort(url.Host, 0)
	if err := xTransport.resolveHost(host); err != nil {
		return nil, 0, err
	}
	req := &http.Request{
		Method: method,
		URL:    url,
		Header: header,
		Close:  false,
	}
	if body != nil {
		req.ContentLength = int64(len(body))
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	start := time.Now()
	resp, err := client.Do(req)
	rtt := time.Since(start)
	if err == nil {
		if resp == nil {
			err = errors.New("Webserver returned an error")
		} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err = errors.New(resp.Status)
			resp.Body.Close()
		}
	} else {
		xTransport.transport.CloseIdleConnections()
	}
	if err != nil {
		dlog.Debugf("[%s]: [%s]", req.URL, err)
		if xTransport.TLSCipherSuite != nil && strings.Contains(err.Error(), "handshake failure") {
			dlog.Warnf("TLS handshake failure - Try changing or deleting the tls_cipher_suite value in the configuration file")
			xTransport.TLSCipherSuite = nil
			xTransport.RebuildTransport()
		}
		return nil, rtt, err
	}
	defer resp.Body.Close()
	bin, err := io.ReadAll(io.LimitReader(resp.Body, MaxHTTPBodyLength))
	if err != nil {
		return nil, rtt, err
	}
	return bin, rtt, nil
}

func (xTransport *XTransport) Post(url *url.URL, accept string, contentType string, body []byte, timeout time.Duration) ([]byte, time.Duration, error) {
	return xTransport.Fetch("POST", url, accept, contentType, body, timeout)
}

func (xTransport *XTransport) DoHQuery(url *url.URL, body []byte, timeout time.Duration) ([]byte, time.Duration, error) {
	return xTransport.Post(url, DNSMessageMediaType, DNSMessageMediaType, body, timeout)
}

func CheckResolver(resolver string) error {
	host, port := ExtractHostAndPort(resolver, -1)
	if ip := ParseIP(host); ip == nil {
		return fmt.Errorf("Host does not parse as IP '%s'", resolver)
	} else if port == -1 {
		return fmt.Errorf("Port missing '%s'", resolver)
	} else if _, err := strconv.ParseUint(strconv.Itoa(port), 10, 16); err != nil {
		return fmt.Errorf("Port does not parse '%s' [%v]", resolver, err)
	}
	return nil
}
