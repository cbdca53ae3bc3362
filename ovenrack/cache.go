package ovenrack

import (
	"container/heap"
	"sync"
	"time"

	"github.com/ovenrack/ovenrack/wire"
)

const (
	// CacheGracePeriod is taken off every TTL so that entries get refreshed
	// before clients could observe them as stale.
	CacheGracePeriod = 15 * time.Second
	// PrefetchIdleInterval is how long the prefetcher waits when nothing is cached.
	PrefetchIdleInterval = 1 * time.Second
)

// CacheKey is a single question. Only the first question of a response is
// used as a key.
type CacheKey = wire.Question

type CachedResponse struct {
	answers []wire.ResourceRecord
	expiry  time.Time
}

type expiryItem struct {
	key    CacheKey
	expiry time.Time
}

// expiryIndex is a min-heap of expiry instants. Entries are never removed
// when a key is overwritten, so an item may be stale.
type expiryIndex []expiryItem

func (index expiryIndex) Len() int           { return len(index) }
func (index expiryIndex) Less(i, j int) bool { return index[i].expiry.Before(index[j].expiry) }
func (index expiryIndex) Swap(i, j int)      { index[i], index[j] = index[j], index[i] }

func (index *expiryIndex) Push(x interface{}) {
	*index = append(*index, x.(expiryItem))
}

func (index *expiryIndex) Pop() interface{} {
	old := *index
	n := len(old)
	item := old[n-1]
	*index = old[:n-1]
	return item
}

// Cache maps questions to answer sets. The map and the expiry index are
// guarded together by the embedded mutex, which is never held across
// network I/O.
type Cache struct {
	sync.Mutex
	entries map[CacheKey]CachedResponse
	index   expiryIndex
	now     func() time.Time
	wakeup  chan struct{}
	hits    uint64
	misses  uint64
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[CacheKey]CachedResponse),
		now:     time.Now,
		wakeup:  make(chan struct{}, 1),
	}
}

// Lookup returns the answers for every question of msg, in question order.
// It is a hit only if each question is cached and unexpired.
func (cache *Cache) Lookup(msg *wire.Message) ([]wire.ResourceRecord, bool) {
	cache.Lock()
	defer cache.Unlock()
	if len(msg.Questions) == 0 {
		cache.misses++
		return nil, false
	}
	now := cache.now()
	var answers []wire.ResourceRecord
	for _, question := range msg.Questions {
		cached, ok := cache.entries[question]
		if !ok || !now.Before(cached.expiry) {
			cache.misses++
			return nil, false
		}
		answers = append(answers, cached.answers...)
	}
	cache.hits++
	return answers, true
}

// Insert stores the answers of response under its first question. When the
// smallest TTL does not exceed the grace period, the entry is stored as
// already expired and is not scheduled for prefetching.
func (cache *Cache) Insert(response *wire.Message) {
	if len(response.Questions) == 0 || len(response.Answers) == 0 {
		return
	}
	minTTL, _ := response.MinTTL()
	key := response.Questions[0]
	answers := append([]wire.ResourceRecord(nil), response.Answers...)

	cache.Lock()
	now := cache.now()
	ttl := time.Duration(minTTL) * time.Second
	if ttl <= CacheGracePeriod {
		cache.entries[key] = CachedResponse{answers: answers, expiry: now}
		cache.Unlock()
		return
	}
	expiry := now.Add(ttl - CacheGracePeriod)
	cache.entries[key] = CachedResponse{answers: answers, expiry: expiry}
	heap.Push(&cache.index, expiryItem{key: key, expiry: expiry})
	cache.Unlock()

	select {
	case cache.wakeup <- struct{}{}:
	default:
	}
}

// NextDue pops the earliest expiry if it has passed and returns its key.
// Otherwise it returns when to check again: the earliest expiry, or one
// idle interval from now if nothing is scheduled.
func (cache *Cache) NextDue() (key CacheKey, wake time.Time, due bool) {
	cache.Lock()
	defer cache.Unlock()
	now := cache.now()
	for len(cache.index) > 0 {
		head := cache.index[0]
		if now.Before(head.expiry) {
			return key, head.expiry, false
		}
		heap.Pop(&cache.index)
		if cached, ok := cache.entries[head.key]; !ok || !cached.expiry.Equal(head.expiry) {
			continue
		}
		return head.key, now, true
	}
	return key, now.Add(PrefetchIdleInterval), false
}

// Wakeup is signalled after each insert that scheduled a new expiry.
func (cache *Cache) Wakeup() <-chan struct{} {
	return cache.wakeup
}

func (cache *Cache) Len() int {
	cache.Lock()
	defer cache.Unlock()
	return len(cache.entries)
}

func (cache *Cache) HitRatio() float64 {
	cache.Lock()
	defer cache.Unlock()
	total := cache.hits + cache.misses
	if total == 0 {
		return 0
	}
	return float64(cache.hits) / float64(total)
}
