// Package dedupe tracks idempotency keys of mutating requests so a retried
// request replays the first response instead of repeating its effect.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// State is the outcome of claiming a key.
type State int

const (
	// StateNew means the caller now owns the key and must Complete or
	// Release it.
	StateNew State = iota
	// StateReplay means the key completed earlier; the recorded response
	// is returned.
	StateReplay
	// StateInFlight means another request holds the key.
	StateInFlight
	// StateMismatch means the key was used for a different request.
	StateMismatch
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReplay:
		return "replay"
	case StateInFlight:
		return "in_flight"
	case StateMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Response is what gets replayed for a completed key.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Deduper records idempotency keys and the responses they produced.
type Deduper interface {
	// Begin atomically claims key for a request identified by fingerprint.
	// The recorded response is only meaningful for StateReplay.
	Begin(ctx context.Context, key string, fingerprint uint64) (Response, State)

	// Complete stores the response of a claimed key.
	Complete(ctx context.Context, key string, resp Response)

	// Release drops a claimed key so the request can be retried. It is
	// used when the request failed without effect.
	Release(ctx context.Context, key string)

	Size() int64
}

// Fingerprint hashes the parts identifying a request (method, path, body).
func Fingerprint(parts ...[]byte) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.Write(p)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// node is an entry of the recency list, newest at head.
type node struct {
	key         string
	fingerprint uint64
	done        bool
	resp        Response
	expires     time.Time
	prev, next  *node
}

func (n *node) reset() {
	*n = node{}
}

// inMemoryDeduper keeps keys in a map plus a doubly linked list ordered by
// insertion. When bounded, the oldest key is evicted first.
type inMemoryDeduper struct {
	mu       sync.Mutex
	seen     map[string]*node
	head     *node
	tail     *node
	maxSize  int
	ttl      time.Duration
	now      func() time.Time
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 10000,
		ttl:     24 * time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*node)
	d.nodePool = sync.Pool{
		New: func() interface{} {
			return &node{}
		},
	}
	return d
}

func (d *inMemoryDeduper) Begin(ctx context.Context, key string, fingerprint uint64) (Response, State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if n, ok := d.seen[key]; ok {
		if d.ttl <= 0 || now.Before(n.expires) {
			switch {
			case n.fingerprint != fingerprint:
				return Response{}, StateMismatch
			case !n.done:
				return Response{}, StateInFlight
			default:
				return n.resp, StateReplay
			}
		}
		d.remove(n)
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	n := d.nodePool.Get().(*node)
	n.key = key
	n.fingerprint = fingerprint
	n.expires = now.Add(d.ttl)
	d.pushFront(n)
	d.seen[key] = n
	d.size.Add(1)
	return Response{}, StateNew
}

func (d *inMemoryDeduper) Complete(ctx context.Context, key string, resp Response) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.seen[key]
	if !ok {
		return
	}
	body := make([]byte, len(resp.Body))
	copy(body, resp.Body)
	resp.Body = body
	n.resp = resp
	n.done = true
}

func (d *inMemoryDeduper) Release(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.seen[key]; ok && !n.done {
		d.remove(n)
	}
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// Must be called with d.mu held.
func (d *inMemoryDeduper) pushFront(n *node) {
	n.next = d.head
	if d.head != nil {
		d.head.prev = n
	}
	d.head = n
	if d.tail == nil {
		d.tail = n
	}
}

// Must be called with d.mu held.
func (d *inMemoryDeduper) remove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	delete(d.seen, n.key)
	n.reset()
	d.nodePool.Put(n)
	d.size.Add(-1)
}

// evictOldest removes the least recently added key.
// Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	if d.tail != nil {
		d.remove(d.tail)
	}
}
