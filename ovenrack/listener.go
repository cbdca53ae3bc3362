package ovenrack

import (
	"errors"
	"net"

	"github.com/jedisct1/dlog"
	clocksmith "github.com/jedisct1/go-clocksmith"
)

func (proxy *Proxy) udpListenerFromAddr(listenAddr *net.UDPAddr) (*net.UDPConn, error) {
	clientPc, err := net.ListenUDP("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	dlog.Noticef("Now listening to %v [UDP]", clientPc.LocalAddr())
	return clientPc, nil
}

// udpListener handles one datagram at a time until the socket is closed.
func (proxy *Proxy) udpListener(clientPc net.PacketConn) {
	defer clientPc.Close()
	buffer := make([]byte, MaxDNSUDPPacketSize)
	for {
		length, clientAddr, err := clientPc.ReadFrom(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			dlog.Debugf("UDP read error: %v", err)
			continue
		}
		if length < MinDNSPacketSize {
			continue
		}
		response, err := proxy.processIncomingQuery(clientAddr, buffer[:length])
		if err != nil {
			continue
		}
		proxy.sendWithRetries(clientPc, response, clientAddr)
	}
}

func (proxy *Proxy) sendWithRetries(clientPc net.PacketConn, response []byte, clientAddr net.Addr) bool {
	tries := Max(1, proxy.SendRetries)
	for try := 1; ; try++ {
		_, err := clientPc.WriteTo(response, clientAddr)
		if err == nil {
			return true
		}
		if try >= tries || errors.Is(err, net.ErrClosed) {
			dlog.Warnf("Unable to send a response to [%v] after %d attempts: %v", clientAddr, try, err)
			return false
		}
		dlog.Debugf("Sending a response to [%v] failed (%v), retrying in %v", clientAddr, err, proxy.SendRetryDelay)
		clocksmith.Sleep(proxy.SendRetryDelay)
	}
}
