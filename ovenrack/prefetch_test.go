package ovenrack

import (
	"testing"
	"time"

	"github.com/powerman/check"

	"github.com/ovenrack/ovenrack/wire"
)

func TestPrefetcherStep(tt *testing.T) {
	verbose()
	t := check.T(tt)
	clock := newFakeClock()
	cache := newTestCache(clock)
	forwarder := newFakeForwarder(30)
	prefetcher := NewPrefetcher(cache, forwarder)
	question := mustQuestion(t, "example.com", wire.TypeA)
	start := clock.Now()
	cache.Insert(responseFor(question, 30))

	wake, refreshed := prefetcher.step()
	t.False(refreshed)
	t.Equal(wake, start.Add(15*time.Second))
	t.Equal(forwarder.count(), 0)

	clock.Advance(16 * time.Second)
	_, ok := cache.Lookup(wire.NewQuery(question))
	t.False(ok)
	_, refreshed = prefetcher.step()
	t.True(refreshed)
	t.Must(t.Equal(forwarder.count(), 1))
	t.DeepEqual(forwarder.queries[0].Questions, []wire.Question{question})
	t.True(forwarder.queries[0].Header.IsRequest())

	_, ok = cache.Lookup(wire.NewQuery(question))
	t.True(ok, "the refresh re-armed the entry")
	wake, refreshed = prefetcher.step()
	t.False(refreshed)
	t.Equal(wake, clock.Now().Add(15*time.Second))
}

func TestPrefetcherFailureLeavesEntryExpired(tt *testing.T) {
	t := check.T(tt)
	clock := newFakeClock()
	cache := newTestCache(clock)
	forwarder := newFakeForwarder(30)
	forwarder.setErr(errFakeUpstream)
	prefetcher := NewPrefetcher(cache, forwarder)
	question := mustQuestion(t, "example.com", wire.TypeA)
	cache.Insert(responseFor(question, 30))

	clock.Advance(20 * time.Second)
	_, refreshed := prefetcher.step()
	t.True(refreshed)
	t.Equal(forwarder.count(), 1)
	_, ok := cache.Lookup(wire.NewQuery(question))
	t.False(ok)

	wake, refreshed := prefetcher.step()
	t.False(refreshed, "a failed key is not retried by the prefetcher")
	t.Equal(wake, clock.Now().Add(PrefetchIdleInterval))
	t.Equal(forwarder.count(), 1)
}

func TestPrefetcherRun(tt *testing.T) {
	t := check.T(tt)
	clock := newFakeClock()
	cache := newTestCache(clock)
	forwarder := newFakeForwarder(60)
	prefetcher := NewPrefetcher(cache, forwarder)

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		prefetcher.Run(quit)
		close(done)
	}()

	question := mustQuestion(t, "example.com", wire.TypeA)
	cache.Insert(responseFor(question, 30))
	clock.Advance(time.Minute)
	// wake the prefetcher up, the inserted entry is now due
	cache.Insert(responseFor(mustQuestion(t, "example.org", wire.TypeA), 3600))

	select {
	case <-forwarder.called:
	case <-time.After(5 * time.Second):
		t.Fatal("prefetcher did not refresh the due entry")
	}
	close(quit)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("prefetcher did not stop")
	}
	t.Equal(forwarder.count(), 1)
	_, ok := cache.Lookup(wire.NewQuery(question))
	t.True(ok)
}
