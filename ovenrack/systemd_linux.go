//go:build !android
// +build !android

package ovenrack

import (
	"fmt"
	"io"
	"net"

	"github.com/coreos/go-systemd/activation"
	"github.com/jedisct1/dlog"
)

// SystemDListeners serves the UDP sockets passed by systemd. Stream sockets
// are refused: queries are only accepted over UDP.
func (proxy *Proxy) SystemDListeners() (io.Closer, error) {
	files := activation.Files(true)

	var mc multiCloser
	for i, file := range files {
		defer file.Close()
		if pc, err := net.FilePacketConn(file); err == nil {
			dlog.Noticef("Wiring systemd UDP socket #%d, %s, %s", i, file.Name(), pc.LocalAddr())
			mc = append(mc, pc)
			go proxy.udpListener(pc)
			continue
		}
		mc.Close()
		return nil, fmt.Errorf("Could not wire systemd socket #%d, %s: only UDP sockets are supported", i, file.Name())
	}

	return mc, nil
}
