package ovenrack

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	MinDNSPacketSize = 12
	MaxDNSPacketSize = 4096
	// MaxDNSUDPPacketSize is the listener buffer size; larger datagrams are truncated by the kernel.
	MaxDNSUDPPacketSize = 512
	DefaultTimeout      = 5 * time.Second
	DefaultUDPRetries   = 2
	DNSMessageMediaType = "application/dns-message"
)

func PrefixWithSize(packet []byte) ([]byte, error) {
	packetLen := len(packet)
	if packetLen > 0xffff {
		return packet, errors.New("Packet too large")
	}
	packet = append(append(make([]byte, 0, 2+packetLen), 0, 0), packet...)
	binary.BigEndian.PutUint16(packet[0:2], uint16(packetLen))
	return packet, nil
}

// ReadPrefixed reads a 2-byte big-endian length, then exactly that many bytes.
func ReadPrefixed(conn io.Reader) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	packetLength := int(binary.BigEndian.Uint16(prefix[:]))
	if packetLength < MinDNSPacketSize {
		return nil, errors.New("Packet too short")
	}
	packet := make([]byte, packetLength)
	if _, err := io.ReadFull(conn, packet); err != nil {
		return nil, err
	}
	return packet, nil
}

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func StringQuote(str string) string {
	str = strconv.QuoteToGraphic(str)
	return str[1 : len(str)-1]
}

func ParseIP(ipStr string) net.IP {
	return net.ParseIP(strings.TrimRight(strings.TrimLeft(ipStr, "["), "]"))
}

// ExtractHostAndPort parses a string containing a host and optional port.
// If no port is present or cannot be parsed, the defaultPort is returned.
func ExtractHostAndPort(str string, defaultPort int) (host string, port int) {
	host, port = str, defaultPort
	if ip := ParseIP(str); ip != nil {
		return ip.String(), port
	}
	if idx := strings.LastIndex(str, ":"); idx >= 0 && idx < len(str)-1 {
		if portX, err := strconv.Atoi(str[idx+1:]); err == nil {
			host, port = host[:idx], portX
		}
	}
	return strings.TrimRight(strings.TrimLeft(host, "["), "]"), port
}

func isTimeout(err error) bool {
	var neterr net.Error
	return errors.As(err, &neterr) && neterr.Timeout()
}
