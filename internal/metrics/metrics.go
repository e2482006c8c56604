// Package metrics exposes the proxy's statistics counters named in the
// design's state-and-concurrency section as Prometheus collectors, grounded
// on semihalev-sdns/middleware/metrics's CounterVec-per-event pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// DropReason labels the counter vector below. Values are exported so the
// proxy package can increment without string literals scattered around.
type DropReason string

const (
	ReasonShortPacket     DropReason = "short_packet"
	ReasonMalformedLabel  DropReason = "malformed_label"
	ReasonOversized       DropReason = "oversized"
	ReasonUnexpectedQR    DropReason = "unexpected_qr"
	ReasonForeignUpstream DropReason = "foreign_upstream"
	ReasonNoIDAvailable   DropReason = "no_id_available"
	ReasonTimeoutActive   DropReason = "timeout_active"
	ReasonTimeoutPassive  DropReason = "timeout_passive"
	ReasonQueueOverflow   DropReason = "queue_overflow"
	ReasonSendFailed      DropReason = "send_failed"
)

// Registry wraps the named counters plus an in-flight occupancy gauge. A nil
// *Registry is never used; New always returns a usable value, mirroring the
// Cache collaborator's "absent means skip, not nil-panic" convention.
type Registry struct {
	packetsIn  prometheus.Counter
	packetsOut prometheus.Counter
	requests   prometheus.Counter
	served     prometheus.Counter
	timeOuts   prometheus.Counter
	dropped    *prometheus.CounterVec
	inFlight   prometheus.Gauge
}

// New constructs a Registry and registers its collectors against reg. Pass
// prometheus.DefaultRegisterer for the process-wide default registry, or a
// fresh prometheus.NewRegistry() in tests to avoid collisions across runs.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		packetsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaydns_packets_in_total",
			Help: "Datagrams read off either UDP socket.",
		}),
		packetsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaydns_packets_out_total",
			Help: "Datagrams written to either UDP socket.",
		}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaydns_requests_total",
			Help: "Client queries admitted past decode and QR validation.",
		}),
		served: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaydns_served_total",
			Help: "Requests delivered to the client with a matched reply.",
		}),
		timeOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaydns_timeouts_total",
			Help: "Requests that expired before any matching reply arrived.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaydns_dropped_total",
			Help: "Requests dropped, by reason.",
		}, []string{"reason"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaydns_in_flight",
			Help: "Requests currently occupying a Correlator slot.",
		}),
	}

	reg.MustRegister(r.packetsIn, r.packetsOut, r.requests, r.served, r.timeOuts, r.dropped, r.inFlight)
	return r
}

func (r *Registry) PacketIn()  { r.packetsIn.Inc() }
func (r *Registry) PacketOut() { r.packetsOut.Inc() }
func (r *Registry) Request()   { r.requests.Inc() }
func (r *Registry) Served()    { r.served.Inc() }
func (r *Registry) TimedOut()  { r.timeOuts.Inc() }

func (r *Registry) Drop(reason DropReason) {
	r.dropped.WithLabelValues(string(reason)).Inc()
}

// DropBy increments a drop reason by n in one step, used by the Sweeper
// which reports a batch count rather than one event at a time.
func (r *Registry) DropBy(reason DropReason, n int) {
	r.dropped.WithLabelValues(string(reason)).Add(float64(n))
}

// TimedOutBy increments the timeouts counter by n, used by the Sweeper.
func (r *Registry) TimedOutBy(n int) {
	r.timeOuts.Add(float64(n))
}

// SetInFlight records the Correlator's current occupancy. Callers sample
// this periodically (e.g. alongside each Sweeper tick) rather than wiring
// it through every Install/TakeById call.
func (r *Registry) SetInFlight(n int) {
	r.inFlight.Set(float64(n))
}

// Snapshot is a point-in-time read of the five named counters, used for the
// startup/shutdown banner logging and for tests; it does not read dropped
// reasons or the in-flight gauge since those aren't part of that log line.
type Snapshot struct {
	PacketsIn  float64
	PacketsOut float64
	Requests   float64
	Served     float64
	TimeOuts   float64
}

// Processing is the derived count of requests neither served nor timed out
// yet: still queued, in flight, or otherwise unaccounted for.
func (s Snapshot) Processing() float64 {
	return s.Requests - s.Served - s.TimeOuts
}

func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		PacketsIn:  readCounter(r.packetsIn),
		PacketsOut: readCounter(r.packetsOut),
		Requests:   readCounter(r.requests),
		Served:     readCounter(r.served),
		TimeOuts:   readCounter(r.timeOuts),
	}
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
