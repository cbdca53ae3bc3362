package ovenrack

import (
	"time"

	"github.com/jedisct1/dlog"

	"github.com/ovenrack/ovenrack/wire"
)

// Prefetcher refreshes cache entries as they reach their expiry, earliest
// first, one at a time.
type Prefetcher struct {
	cache     *Cache
	forwarder Forwarder
}

func NewPrefetcher(cache *Cache, forwarder Forwarder) *Prefetcher {
	return &Prefetcher{cache: cache, forwarder: forwarder}
}

func (prefetcher *Prefetcher) Run(quit <-chan struct{}) {
	dlog.Debug("Prefetcher started")
	for {
		wake, refreshed := prefetcher.step()
		if refreshed {
			select {
			case <-quit:
				return
			default:
			}
			continue
		}
		delay := wake.Sub(prefetcher.cache.now())
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-prefetcher.cache.Wakeup():
			timer.Stop()
		case <-quit:
			timer.Stop()
			dlog.Debug("Prefetcher stopped")
			return
		}
	}
}

// step refreshes at most one due key. If nothing was due, it returns the
// instant at which to look again.
func (prefetcher *Prefetcher) step() (time.Time, bool) {
	key, wake, due := prefetcher.cache.NextDue()
	if !due {
		return wake, false
	}
	query := wire.NewQuery(key)
	response, err := prefetcher.forwarder.Query(query)
	if err != nil {
		dlog.Warnf("Unable to refresh [%v]: %v", key, err)
		return wake, true
	}
	if response.Header.Rcode() != wire.RcodeSuccess {
		dlog.Debugf("Refresh of [%v] returned rcode %d", key, response.Header.Rcode())
	}
	prefetcher.cache.Insert(response)
	dlog.Debugf("Refreshed [%v]", key)
	return wake, true
}
