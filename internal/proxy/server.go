// Package proxy wires the wire codec, the Correlator and the cache
// collaborator into the four concurrent stages described in the design:
// Ingress, Processor, Egress and Sweeper, sharing two UDP sockets and one
// Correlator instance. Stage orchestration follows semihalev-sdns's
// errgroup.WithContext pattern for parallel lookups, generalised here to
// long-running stage loops rather than one-shot fan-out.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nolancs/RelayDNS/internal/cache"
	"github.com/nolancs/RelayDNS/internal/correlator"
	"github.com/nolancs/RelayDNS/internal/log"
	"github.com/nolancs/RelayDNS/internal/metrics"
	"github.com/nolancs/RelayDNS/internal/request"
)

// Server owns the two UDP sockets, the Correlator, and the ingress queue
// connecting Ingress to the Processor pool. It has no notion of its own
// running/stopped state beyond the context passed to Run; cancel that
// context and close sockets to unblock the stages, per the design's
// cancellation model (§5, §9).
type Server struct {
	cfg Config

	clientConn   *net.UDPConn
	upstreamConn *net.UDPConn

	corr  *correlator.Correlator
	queue chan *request.Request
	cache cache.Cache

	metrics *metrics.Registry

	closeOnce sync.Once
}

// New opens both UDP sockets and returns a Server ready for Run. The client
// socket binds to cfg.ClientAddr; the upstream socket binds to an ephemeral
// local port and is deliberately left unconnected (ListenUDP, not DialUDP)
// so Egress can perform its own source-address check (§4.6) rather than
// relying on the kernel to filter by peer address.
func New(cfg Config) (*Server, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clientConn, err := net.ListenUDP("udp", cfg.ClientAddr)
	if err != nil {
		return nil, fmt.Errorf("proxy: listen client socket: %w", err)
	}

	upstreamConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		_ = clientConn.Close()
		return nil, fmt.Errorf("proxy: open upstream socket: %w", err)
	}

	return &Server{
		cfg:          cfg,
		clientConn:   clientConn,
		upstreamConn: upstreamConn,
		corr:         correlator.New(),
		queue:        make(chan *request.Request, cfg.QueueSize),
		cache:        cfg.Cache,
		metrics:      cfg.Metrics,
	}, nil
}

// ClientAddr returns the address the client socket is actually bound to,
// useful in tests that ask for an ephemeral port (:0).
func (s *Server) ClientAddr() *net.UDPAddr {
	return s.clientConn.LocalAddr().(*net.UDPAddr)
}

// Run starts all four stages and blocks until ctx is cancelled and every
// stage has exited. Shutdown is complete when Run returns, matching the
// design's "shutdown is complete when all four stages have exited" (§5).
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	go func() {
		<-ctx.Done()
		s.closeSockets()
	}()

	g.Go(func() error {
		s.ingress(ctx)
		return nil
	})

	for i := 0; i < s.cfg.ProcessorWorkers; i++ {
		g.Go(func() error {
			s.processor(ctx)
			return nil
		})
	}

	for i := 0; i < s.cfg.EgressWorkers; i++ {
		g.Go(func() error {
			s.egress(ctx)
			return nil
		})
	}

	g.Go(func() error {
		s.sweeper(ctx)
		return nil
	})

	err := g.Wait()
	log.Sugar.Infow("proxy stopped", "snapshot", s.metrics.Snapshot())
	return err
}

func (s *Server) closeSockets() {
	s.closeOnce.Do(func() {
		_ = s.clientConn.Close()
		_ = s.upstreamConn.Close()
	})
}

func (s *Server) sendToUpstream(raw []byte) error {
	if _, err := s.upstreamConn.WriteToUDP(raw, s.cfg.UpstreamAddr); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	s.metrics.PacketOut()
	return nil
}

func (s *Server) sendToClient(raw []byte, addr *net.UDPAddr) error {
	if _, err := s.clientConn.WriteToUDP(raw, addr); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	s.metrics.PacketOut()
	return nil
}
