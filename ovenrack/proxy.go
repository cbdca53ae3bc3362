package ovenrack

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jedisct1/dlog"

	"github.com/ovenrack/ovenrack/wire"
)

const (
	DefaultSendRetries    = 3
	DefaultSendRetryDelay = 100 * time.Millisecond
)

var errNotARequest = errors.New("Not a request")

// Proxy answers queries from its cache and forwards misses.
type Proxy struct {
	ListenAddresses []string
	SendRetries     int
	SendRetryDelay  time.Duration
	QueryLog        *QueryLog
	cache           *Cache
	forwarder       Forwarder
	prefetcher      *Prefetcher
	closers         multiCloser
}

func NewProxy(cache *Cache, forwarder Forwarder) *Proxy {
	return &Proxy{
		SendRetries:    DefaultSendRetries,
		SendRetryDelay: DefaultSendRetryDelay,
		cache:          cache,
		forwarder:      forwarder,
		prefetcher:     NewPrefetcher(cache, forwarder),
	}
}

func (proxy *Proxy) Cache() *Cache {
	return proxy.cache
}

// Query answers from the cache when every question is cached, otherwise
// forwards the request and caches the reply.
func (proxy *Proxy) Query(request *wire.Message) (*wire.Message, error) {
	response, _, err := proxy.query(request)
	return response, err
}

func (proxy *Proxy) query(request *wire.Message) (*wire.Message, bool, error) {
	if answers, ok := proxy.cache.Lookup(request); ok {
		response := request.Copy()
		response.AppendAnswers(answers...)
		response.SetResponse(wire.RcodeSuccess)
		return response, true, nil
	}
	response, err := proxy.forwarder.Query(request)
	if err != nil {
		return nil, false, err
	}
	proxy.cache.Insert(response)
	return response, false, nil
}

// HandlePacket processes one raw query and returns the raw response.
func (proxy *Proxy) HandlePacket(packet []byte) ([]byte, error) {
	return proxy.processIncomingQuery(nil, packet)
}

func (proxy *Proxy) processIncomingQuery(clientAddr net.Addr, packet []byte) ([]byte, error) {
	start := time.Now()
	request, err := wire.Parse(packet)
	if err != nil {
		dlog.Debugf("Dropping query from [%v]: %v", clientAddr, err)
		return nil, err
	}
	if !request.Header.IsRequest() {
		dlog.Debugf("Dropping response received from [%v]", clientAddr)
		return nil, errNotARequest
	}
	response, cached, err := proxy.query(request)
	source := "cache"
	if !cached {
		source = fmt.Sprint(proxy.forwarder)
	}
	if err != nil {
		dlog.Warnf("Query [%v]: %v", request, err)
		response = request.Copy()
		response.Answers, response.Authorities, response.Additionals = nil, nil, nil
		response.SetResponse(wire.RcodeServerFailure)
	}
	dlog.Debugf("%v answered from %s", request, source)
	if proxy.QueryLog != nil {
		if err := proxy.QueryLog.Log(clientAddr, request, response, source, time.Since(start)); err != nil {
			dlog.Warnf("Query log: %v", err)
		}
	}
	return response.Pack()
}

// StartProxy binds the listening sockets and starts the prefetcher. It
// returns once everything is running; closing quit shuts it all down.
func (proxy *Proxy) StartProxy(quit <-chan struct{}) error {
	for _, listenAddrStr := range proxy.ListenAddresses {
		listenUDPAddr, err := net.ResolveUDPAddr("udp", listenAddrStr)
		if err != nil {
			proxy.closers.Close()
			return &ConfigError{Setting: "listen_addresses", Value: listenAddrStr, Reason: err.Error()}
		}
		clientPc, err := proxy.udpListenerFromAddr(listenUDPAddr)
		if err != nil {
			proxy.closers.Close()
			return err
		}
		proxy.closers = append(proxy.closers, clientPc)
		go proxy.udpListener(clientPc)
	}
	systemdCloser, err := proxy.SystemDListeners()
	if err != nil {
		proxy.closers.Close()
		return err
	}
	proxy.closers = append(proxy.closers, systemdCloser)
	go proxy.prefetcher.Run(quit)
	go func() {
		<-quit
		proxy.closers.Close()
	}()
	return nil
}

type multiCloser []io.Closer

func (mc multiCloser) Close() (err error) {
	for _, c := range mc {
		if cerr := c.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}
