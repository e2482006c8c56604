package proxy

import (
	"context"

	"github.com/nolancs/RelayDNS/internal/log"
	"github.com/nolancs/RelayDNS/internal/metrics"
	"github.com/nolancs/RelayDNS/internal/request"
	"github.com/nolancs/RelayDNS/internal/wire"
)

// ingress implements stage §4.4. It is the sole producer on s.queue and
// closes it on exit so the Processor pool can drain and stop cleanly.
func (s *Server) ingress(ctx context.Context) {
	defer close(s.queue)

	buf := make([]byte, wire.MaxPacketSize+1)

	for {
		n, addr, err := s.clientConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Sugar.Warnw("ingress read error", "error", err)
			continue
		}

		s.metrics.PacketIn()

		if n > wire.MaxPacketSize {
			s.metrics.Drop(metrics.ReasonOversized)
			log.Sugar.Warnw("ingress dropped oversized datagram", "bytes", n, "from", addr)
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		req := &request.Request{Raw: raw, ClientAddr: addr}

		select {
		case s.queue <- req:
		default:
			s.metrics.Drop(metrics.ReasonQueueOverflow)
			log.Sugar.Warnw("ingress queue full, dropping newest", "from", addr)
		}
	}
}
