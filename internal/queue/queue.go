// Package queue holds the master's suite queue: suites waiting for dispatch,
// ordered so the longest-running suites are served first. A whitelist can
// restrict membership and pin the order to its own index order.
package queue

import (
	"sort"
	"sync"

	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// Queue is the duration-ordered suite queue. Safe for concurrent use; the
// dispatch loop is the only writer, but metrics and the heartbeat read it.
type Queue struct {
	mu sync.Mutex

	// items is kept sorted for dispatch. Pop serves items[0].
	items []protocol.SuitePair

	// durations maps suite key to historical duration in seconds.
	// Suites with no entry sort ahead of everything else.
	durations map[string]float64

	// seen is every key ever enqueued, so re-reported suites are dropped.
	seen map[string]bool

	// whitelist, when non-empty, is the only admissible set. whitelistIdx
	// maps key to its position; order is re-imposed once awaited drains.
	whitelist    []protocol.SuitePair
	whitelistIdx map[string]int

	// awaited is the whitelisted suites that have not arrived yet.
	awaited map[string]bool
}

// New creates a queue using the given historical durations, keyed by
// SuitePair.Key. A nil map means every suite has unknown duration.
func New(durations map[string]float64) *Queue {
	if durations == nil {
		durations = map[string]float64{}
	}
	return &Queue{
		durations: durations,
		seen:      map[string]bool{},
		awaited:   map[string]bool{},
	}
}

// SetWhitelist restricts the queue to exactly these suites, in this order.
// Suites already queued that are not whitelisted are evicted. Whitelisted
// suites not yet queued become awaited; Pop answers WAIT until they arrive.
func (q *Queue) SetWhitelist(pairs []protocol.SuitePair) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.whitelist = append([]protocol.SuitePair(nil), pairs...)
	q.whitelistIdx = make(map[string]int, len(pairs))
	q.awaited = make(map[string]bool, len(pairs))
	for i, p := range pairs {
		key := p.Key()
		q.whitelistIdx[key] = i
		if !q.seen[key] {
			q.awaited[key] = true
		}
	}

	kept := q.items[:0]
	for _, p := range q.items {
		if _, ok := q.whitelistIdx[p.Key()]; ok {
			kept = append(kept, p)
		}
	}
	q.items = kept
	q.resortLocked()
}

// Add enqueues a suite. Returns false when the suite was dropped: already
// seen, or excluded by the whitelist.
func (q *Queue) Add(pair protocol.SuitePair) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := pair.Key()
	if q.seen[key] {
		return false
	}
	if q.whitelistIdx != nil {
		if _, ok := q.whitelistIdx[key]; !ok {
			return false
		}
	}
	q.seen[key] = true
	delete(q.awaited, key)

	q.items = append(q.items, pair)
	q.resortLocked()
	return true
}

// Pop removes and returns the front suite. ok is false when the queue is
// empty; callers then consult Awaiting to decide between WAIT and done.
func (q *Queue) Pop() (pair protocol.SuitePair, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return protocol.SuitePair{}, false
	}
	pair = q.items[0]
	q.items = q.items[1:]
	return pair, true
}

// Len reports how many suites are queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Awaiting reports whether whitelisted suites have yet to arrive.
func (q *Queue) Awaiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.awaited) > 0
}

// AwaitedCount reports how many whitelisted suites have yet to arrive.
func (q *Queue) AwaitedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.awaited)
}

// AwaitedPairs returns the whitelisted suites that have not arrived yet,
// in whitelist order.
func (q *Queue) AwaitedPairs() []protocol.SuitePair {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []protocol.SuitePair
	for _, p := range q.whitelist {
		if q.awaited[p.Key()] {
			out = append(out, p)
		}
	}
	return out
}

// WhitelistSatisfied reports whether a whitelist is set and every suite in
// it has arrived. Used to interrupt discovery early.
func (q *Queue) WhitelistSatisfied() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.whitelistIdx != nil && len(q.awaited) == 0
}

// Snapshot returns the queued suites in dispatch order.
func (q *Queue) Snapshot() []protocol.SuitePair {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]protocol.SuitePair(nil), q.items...)
}

// resortLocked re-sorts items for dispatch. With a fully-arrived whitelist
// the whitelist index order wins; otherwise longest historical duration
// first, with unknown-duration suites ahead of all known ones.
func (q *Queue) resortLocked() {
	if q.whitelistIdx != nil && len(q.awaited) == 0 {
		sort.SliceStable(q.items, func(i, j int) bool {
			return q.whitelistIdx[q.items[i].Key()] < q.whitelistIdx[q.items[j].Key()]
		})
		return
	}
	sort.SliceStable(q.items, func(i, j int) bool {
		di, iKnown := q.durations[q.items[i].Key()]
		dj, jKnown := q.durations[q.items[j].Key()]
		if iKnown != jKnown {
			return !iKnown
		}
		return di > dj
	})
}
