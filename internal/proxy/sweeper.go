package proxy

import (
	"context"
	"time"

	"github.com/nolancs/RelayDNS/internal/log"
	"github.com/nolancs/RelayDNS/internal/metrics"
)

// sweeper implements stage §4.7: the only loop with no blocking I/O of its
// own, so ctx.Done() is checked directly rather than discovered via a
// closed socket.
func (s *Server) sweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.corr.Sweep(time.Now(), s.cfg.RequestTimeout)
			if n > 0 {
				s.metrics.TimedOutBy(n)
				s.metrics.DropBy(metrics.ReasonTimeoutActive, n)
				log.Sugar.Infow("sweeper reclaimed expired requests", "count", n)
			}
			s.metrics.SetInFlight(s.corr.Occupied())
		}
	}
}
