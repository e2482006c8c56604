package proxy

import (
	"errors"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nolancs/RelayDNS/internal/cache"
	"github.com/nolancs/RelayDNS/internal/metrics"
)

// Config holds everything New needs to open the two sockets and size the
// pipeline. ClientAddr and UpstreamAddr are the only required fields; the
// rest have defaults matching the design's stated defaults (§4.7, §8.3).
type Config struct {
	// ClientAddr is the local address the proxy listens on for client
	// queries.
	ClientAddr *net.UDPAddr

	// UpstreamAddr is the single resolver every query is forwarded to,
	// resolved once by the caller at startup (§6).
	UpstreamAddr *net.UDPAddr

	// RequestTimeout is how long a Request may sit in the Correlator
	// before the Sweeper actively times it out, or Egress passively
	// rejects a late reply. Default 2s.
	RequestTimeout time.Duration

	// ScanInterval is how often the Sweeper walks the Correlator's FIFO.
	// Default 1s.
	ScanInterval time.Duration

	// ProcessorWorkers is the number of concurrent Processor goroutines.
	// Default 1.
	ProcessorWorkers int

	// EgressWorkers is the number of concurrent Egress goroutines reading
	// the upstream socket. Default 1.
	EgressWorkers int

	// QueueSize bounds the ingress queue. The design describes the queue
	// as conceptually unbounded but permits an implementation to impose a
	// bound and document a drop policy (§4.4); this implementation drops
	// the newest datagram and counts it under ReasonQueueOverflow once
	// the queue is full. Default 4096.
	QueueSize int

	// Cache is the optional question->response collaborator (§6). Nil
	// disables it entirely; no fast path is attempted and no publish
	// happens.
	Cache cache.Cache

	// Metrics receives the statistics counters from §5. If nil, a
	// Registry is created against prometheus.DefaultRegisterer.
	Metrics *metrics.Registry
}

func (c *Config) setDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 2 * time.Second
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = time.Second
	}
	if c.ProcessorWorkers <= 0 {
		c.ProcessorWorkers = 1
	}
	if c.EgressWorkers <= 0 {
		c.EgressWorkers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New(prometheus.DefaultRegisterer)
	}
}

func (c Config) validate() error {
	if c.ClientAddr == nil {
		return errors.New("proxy: ClientAddr is required")
	}
	if c.UpstreamAddr == nil {
		return errors.New("proxy: UpstreamAddr is required")
	}
	return nil
}
