package ovenrack

import (
	"encoding/binary"
	"errors"
	"net"
	"time"

	"github.com/jedisct1/dlog"
)

type udpTransport struct {
	upstream Upstream
	conn     *net.UDPConn
	timeout  time.Duration
	retries  int
	buffer   []byte
}

func newUDPTransport(upstream Upstream, timeout time.Duration, retries int) (*udpTransport, error) {
	remoteAddr, err := net.ResolveUDPAddr("udp", upstream.Address)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, remoteAddr)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &udpTransport{
		upstream: upstream,
		conn:     conn,
		timeout:  timeout,
		retries:  Max(0, retries),
		buffer:   make([]byte, MaxDNSPacketSize),
	}, nil
}

// exchange resends the query after every read timeout, up to the retry
// budget. Datagrams that do not carry the query ID are late replies to
// earlier attempts and are skipped.
func (transport *udpTransport) exchange(packet []byte) ([]byte, error) {
	if len(packet) < MinDNSPacketSize {
		return nil, errors.New("Query too short")
	}
	id := binary.BigEndian.Uint16(packet[0:2])
	var lastErr error
	for try := 0; try <= transport.retries; try++ {
		if try > 0 {
			dlog.Debugf("[%v] no reply after %v, retrying (%d/%d)", transport.upstream, transport.timeout, try, transport.retries)
		}
		if _, err := transport.conn.Write(packet); err != nil {
			return nil, err
		}
		if err := transport.conn.SetReadDeadline(time.Now().Add(transport.timeout)); err != nil {
			return nil, err
		}
		for {
			length, err := transport.conn.Read(transport.buffer)
			if err != nil {
				if isTimeout(err) {
					lastErr = err
					break
				}
				return nil, err
			}
			if length < MinDNSPacketSize || binary.BigEndian.Uint16(transport.buffer[0:2]) != id {
				dlog.Debugf("[%v] discarding unexpected datagram (%d bytes)", transport.upstream, length)
				continue
			}
			return append([]byte(nil), transport.buffer[:length]...), nil
		}
	}
	return nil, lastErr
}

func (transport *udpTransport) Close() error {
	return transport.conn.Close()
}
