package ovenrack

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	stamps "github.com/jedisct1/go-dnsstamps"
)

type Protocol int

const (
	ProtoUDP Protocol = iota
	ProtoTLS
	ProtoDoH
)

const (
	DefaultDNSPort = 53
	DefaultDoTPort = 853
)

func (proto Protocol) String() string {
	switch proto {
	case ProtoUDP:
		return "udp"
	case ProtoTLS:
		return "tls"
	case ProtoDoH:
		return "doh"
	}
	return "unknown"
}

type Upstream struct {
	Proto Protocol
	// Address is ip:port for UDP and TLS upstreams.
	Address string
	// Hostname is verified against the DoT server certificate.
	Hostname string
	URL      *url.URL
	// BootstrapIP, when set, is used to reach the DoH server without resolving its name.
	BootstrapIP net.IP
	raw         string
}

func (upstream Upstream) String() string {
	if len(upstream.raw) > 0 {
		return upstream.raw
	}
	switch upstream.Proto {
	case ProtoTLS:
		return upstream.Address + "#" + upstream.Hostname
	case ProtoDoH:
		if upstream.URL != nil {
			return upstream.URL.String()
		}
	}
	return upstream.Address
}

// ParseUpstream accepts a bare IP address (plain DNS), an address followed
// by #hostname (DNS-over-TLS), an https:// URL or a DoH sdns:// stamp.
func ParseUpstream(str string) (Upstream, error) {
	str = strings.TrimSpace(str)
	switch {
	case len(str) == 0:
		return Upstream{}, &ConfigError{Setting: "upstream", Reason: "empty upstream"}
	case strings.HasPrefix(str, "sdns://"):
		return parseStampUpstream(str)
	case strings.HasPrefix(str, "https://"):
		return parseDoHUpstream(str)
	case strings.Contains(str, "://"):
		return Upstream{}, &ConfigError{Setting: "upstream", Value: str, Reason: "unsupported scheme"}
	}
	if idx := strings.LastIndexByte(str, '#'); idx >= 0 {
		hostname := strings.TrimSuffix(str[idx+1:], ".")
		if len(hostname) == 0 || strings.ContainsAny(hostname, " /:#") {
			return Upstream{}, &ConfigError{Setting: "upstream", Value: str, Reason: "a DNS-over-TLS upstream needs a hostname after '#'"}
		}
		address, err := parseIPAddress(str[:idx], DefaultDoTPort)
		if err != nil {
			return Upstream{}, &ConfigError{Setting: "upstream", Value: str, Reason: err.Error()}
		}
		return Upstream{Proto: ProtoTLS, Address: address, Hostname: hostname, raw: str}, nil
	}
	address, err := parseIPAddress(str, DefaultDNSPort)
	if err != nil {
		return Upstream{}, &ConfigError{Setting: "upstream", Value: str, Reason: err.Error()}
	}
	return Upstream{Proto: ProtoUDP, Address: address, raw: str}, nil
}

func parseIPAddress(str string, defaultPort int) (string, error) {
	host, port := ExtractHostAndPort(str, defaultPort)
	ip := ParseIP(host)
	if ip == nil {
		return "", &ConfigError{Setting: "address", Value: str, Reason: "host does not parse as an IP address"}
	}
	if port <= 0 || port > 0xffff {
		return "", &ConfigError{Setting: "address", Value: str, Reason: "port out of range"}
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(port)), nil
}

func parseDoHUpstream(str string) (Upstream, error) {
	u, err := url.Parse(str)
	if err != nil {
		return Upstream{}, &ConfigError{Setting: "upstream", Value: str, Reason: err.Error()}
	}
	if len(u.Host) == 0 {
		return Upstream{}, &ConfigError{Setting: "upstream", Value: str, Reason: "missing host"}
	}
	return Upstream{Proto: ProtoDoH, URL: u, raw: str}, nil
}

func parseStampUpstream(str string) (Upstream, error) {
	stamp, err := stamps.NewServerStampFromString(str)
	if err != nil {
		return Upstream{}, &ConfigError{Setting: "upstream", Value: str, Reason: err.Error()}
	}
	if stamp.Proto != stamps.StampProtoTypeDoH {
		return Upstream{}, &ConfigError{Setting: "upstream", Value: str, Reason: "only DoH stamps are supported, not " + stamp.Proto.String()}
	}
	if len(stamp.ProviderName) == 0 {
		return Upstream{}, &ConfigError{Setting: "upstream", Value: str, Reason: "stamp has no host name"}
	}
	upstream := Upstream{
		Proto: ProtoDoH,
		URL:   &url.URL{Scheme: "https", Host: stamp.ProviderName, Path: stamp.Path},
		raw:   str,
	}
	if len(stamp.ServerAddrStr) > 0 {
		ipOnly, _ := ExtractHostAndPort(stamp.ServerAddrStr, -1)
		upstream.BootstrapIP = ParseIP(ipOnly)
	}
	return upstream, nil
}
