package ovenrack

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/jedisct1/dlog"

	"github.com/ovenrack/ovenrack/wire"
)

const RTTEwmaDecay = 10.0

// Forwarder answers a query by asking somebody else.
type Forwarder interface {
	Query(request *wire.Message) (*wire.Message, error)
}

// destTransport performs one raw round trip with an upstream resolver.
type destTransport interface {
	exchange(packet []byte) ([]byte, error)
	Close() error
}

// DestClient forwards queries to a single upstream resolver. Outgoing
// transaction IDs are incremented by one and decremented again on the
// reply, so that queries copied verbatim from another client never reach
// the upstream with their original ID.
type DestClient struct {
	sync.Mutex
	upstream  Upstream
	transport destTransport
	rtt       ewma.MovingAverage
	queries   atomic.Uint64
	failures  atomic.Uint64
}

func NewDestClient(upstream Upstream, xTransport *XTransport) (*DestClient, error) {
	var transport destTransport
	var err error
	switch upstream.Proto {
	case ProtoUDP:
		transport, err = newUDPTransport(upstream, xTransport.Timeout, xTransport.UDPRetries)
	case ProtoTLS:
		transport, err = newTLSTransport(upstream, xTransport)
	case ProtoDoH:
		transport, err = newDoHTransport(upstream, xTransport)
	default:
		return nil, &ConfigError{Setting: "upstream", Value: upstream.String(), Reason: "unsupported protocol"}
	}
	if err != nil {
		return nil, unavailable(upstream, err)
	}
	dlog.Noticef("Forwarding queries to [%v] (%v)", upstream, upstream.Proto)
	return newDestClientWithTransport(upstream, transport), nil
}

func newDestClientWithTransport(upstream Upstream, transport destTransport) *DestClient {
	return &DestClient{upstream: upstream, transport: transport, rtt: ewma.NewMovingAverage(RTTEwmaDecay)}
}

func (client *DestClient) Query(request *wire.Message) (*wire.Message, error) {
	outgoing := request.Copy()
	outgoing.Header.ID = request.Header.ID + 1
	packet, err := outgoing.Pack()
	if err != nil {
		return nil, err
	}
	client.queries.Add(1)

	client.Lock()
	start := time.Now()
	reply, err := client.transport.exchange(packet)
	elapsed := time.Since(start)
	if err == nil {
		client.rtt.Add(float64(elapsed.Milliseconds()))
	}
	client.Unlock()

	if err != nil {
		client.failures.Add(1)
		return nil, unavailable(client.upstream, err)
	}
	response, err := wire.Parse(reply)
	if err != nil {
		client.failures.Add(1)
		return nil, fmt.Errorf("[%v]: %w", client.upstream, err)
	}
	if response.Header.IsRequest() {
		client.failures.Add(1)
		return nil, fmt.Errorf("%w: [%v] sent a query instead of a response", ErrProtocolViolation, client.upstream)
	}
	response.Header.ID--
	dlog.Debugf("[%v] %d --> %d answered in %dms", client.upstream, request.Header.ID, outgoing.Header.ID, elapsed.Milliseconds())
	return response, nil
}

// RTT returns the moving average of successful round trips.
func (client *DestClient) RTT() time.Duration {
	client.Lock()
	defer client.Unlock()
	return time.Duration(client.rtt.Value() * float64(time.Millisecond))
}

func (client *DestClient) Stats() (queries uint64, failures uint64) {
	return client.queries.Load(), client.failures.Load()
}

func (client *DestClient) String() string {
	return client.upstream.String()
}

func (client *DestClient) Close() error {
	client.Lock()
	defer client.Unlock()
	return client.transport.Close()
}
