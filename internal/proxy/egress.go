package proxy

import (
	"context"
	"net"
	"time"

	"github.com/nolancs/RelayDNS/internal/log"
	"github.com/nolancs/RelayDNS/internal/metrics"
	"github.com/nolancs/RelayDNS/internal/wire"
)

// egress implements stage §4.6. Multiple instances may read the same
// upstream socket concurrently; net.UDPConn is safe for that.
func (s *Server) egress(ctx context.Context) {
	buf := make([]byte, wire.MaxPacketSize+1)

	for {
		n, src, err := s.upstreamConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Sugar.Warnw("egress read error", "error", err)
			continue
		}

		s.metrics.PacketIn()

		if n > wire.MaxPacketSize {
			s.metrics.Drop(metrics.ReasonOversized)
			log.Sugar.Warnw("egress dropped oversized datagram", "bytes", n, "from", src)
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		s.handleUpstreamReply(raw, src)
	}
}

func (s *Server) handleUpstreamReply(raw []byte, src *net.UDPAddr) {
	if !addrEqual(src, s.cfg.UpstreamAddr) {
		s.metrics.Drop(metrics.ReasonForeignUpstream)
		log.Sugar.Warnw("egress dropped reply from unconfigured source", "from", src, "upstream", s.cfg.UpstreamAddr)
		return
	}

	h, err := wire.DecodeHeader(raw)
	if err != nil || !h.QR {
		s.metrics.Drop(metrics.ReasonUnexpectedQR)
		log.Sugar.Warnw("egress dropped non-response from upstream", "error", err)
		return
	}

	req := s.corr.TakeById(h.ID)
	if req == nil {
		// Already delivered or swept; a late duplicate or a reply for an
		// ID nobody installed. Dropped silently per §4.6 step 6.
		return
	}

	if now := time.Now(); req.Age(now) >= s.cfg.RequestTimeout {
		s.metrics.Drop(metrics.ReasonTimeoutPassive)
		s.metrics.TimedOutBy(1)
		log.Sugar.Warnw("egress dropped late reply", "proxyID", h.ID, "age", req.Age(now))
		return
	}

	wire.WriteID(raw, req.ClientID)

	if err := s.sendToClient(raw, req.ClientAddr); err != nil {
		log.Sugar.Warnw("egress send to client failed", "error", err, "to", req.ClientAddr)
		return
	}

	s.metrics.Served()

	if s.cache != nil {
		s.cache.Publish(req.QName, req.QType, req.QClass, raw)
	}
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
