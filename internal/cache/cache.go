// Package cache implements the optional question -> response collaborator
// named in the design's external-interfaces section. It is absent by
// default; the Processor and Egress stages skip it entirely when nil.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nolancs/RelayDNS/internal/wire"
)

// Cache is the question -> response collaborator. Implementations must be
// safe under concurrent callers; Lookup and Publish are called from the
// Processor and Egress stages of every Processor/Egress worker.
type Cache interface {
	// Lookup returns a cached raw response template for the given
	// question, or (nil, false) on a miss. The returned slice must not be
	// the same backing array a caller mutates — implementations return a
	// defensive copy.
	Lookup(name string, qtype, qclass uint16) ([]byte, bool)

	// Publish stores raw (a complete response datagram, including its own
	// answer count/RRs) under the given question. Implementations may
	// silently discard on conflict or pressure; no TTL semantics are
	// imposed by the collaborator interface itself.
	Publish(name string, qtype, qclass uint16, raw []byte)
}

type entry struct {
	raw     []byte
	expires time.Time
}

// LRUCache is a bounded, TTL-aware Cache backed by a hashicorp/golang-lru
// LRU. Unlike the naive qname-only keying in the original reference design,
// entries are keyed by (qname, qtype, qclass) — an A and an AAAA query for
// the same name are different answers and must not collide.
type LRUCache struct {
	lru *lru.Cache[key, entry]
	ttl time.Duration
	now func() time.Time
}

type key struct {
	name   string
	qtype  uint16
	qclass uint16
}

// New returns an LRUCache holding at most size entries, each valid for at
// most ttl after being published. size must be positive.
func New(size int, ttl time.Duration) (*LRUCache, error) {
	backing, err := lru.New[key, entry](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{lru: backing, ttl: ttl, now: time.Now}, nil
}

// Lookup implements Cache.
func (c *LRUCache) Lookup(name string, qtype, qclass uint16) ([]byte, bool) {
	k := key{name: name, qtype: qtype, qclass: qclass}

	e, ok := c.lru.Get(k)
	if !ok {
		return nil, false
	}

	if c.now().After(e.expires) {
		c.lru.Remove(k)
		return nil, false
	}

	out := make([]byte, len(e.raw))
	copy(out, e.raw)
	return out, true
}

// Publish implements Cache. Responses whose header decodes as a query
// (QR=0) or that fail to decode at all are ignored — this collaborator only
// ever stores answers.
func (c *LRUCache) Publish(name string, qtype, qclass uint16, raw []byte) {
	h, err := wire.DecodeHeader(raw)
	if err != nil || !h.QR {
		return
	}

	stored := make([]byte, len(raw))
	copy(stored, raw)

	c.lru.Add(key{name: name, qtype: qtype, qclass: qclass}, entry{
		raw:     stored,
		expires: c.now().Add(c.ttl),
	})
}

// Len reports the number of entries currently cached, for metrics/tests.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}
