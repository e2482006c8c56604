package proxy

import (
	"context"
	"errors"
	"time"

	"github.com/nolancs/RelayDNS/internal/log"
	"github.com/nolancs/RelayDNS/internal/metrics"
	"github.com/nolancs/RelayDNS/internal/request"
	"github.com/nolancs/RelayDNS/internal/wire"
)

// processor implements stage §4.5. Any number of these may run concurrently
// against the same queue and Correlator; ctx is unused directly since the
// queue closing (by ingress) is what ends the range loop.
func (s *Server) processor(ctx context.Context) {
	for req := range s.queue {
		s.handleRequest(req)
	}
}

func (s *Server) handleRequest(req *request.Request) {
	h, err := wire.DecodeHeader(req.Raw)
	if err != nil {
		s.metrics.Drop(reasonForDecodeErr(err))
		log.Sugar.Warnw("processor dropped undecodable header", "error", err, "from", req.ClientAddr)
		return
	}

	if h.QR {
		s.metrics.Drop(metrics.ReasonUnexpectedQR)
		log.Sugar.Warnw("processor dropped response arriving on client socket", "id", h.ID, "from", req.ClientAddr)
		return
	}

	q, _, err := wire.DecodeQuestion(req.Raw, wire.HeaderSize)
	if err != nil {
		s.metrics.Drop(reasonForDecodeErr(err))
		log.Sugar.Warnw("processor dropped undecodable question", "error", err, "from", req.ClientAddr)
		return
	}

	req.ClientID = h.ID
	req.QName = q.Name
	req.QType = q.QType
	req.QClass = q.QClass

	s.metrics.Request()

	if s.cache != nil {
		if cached, ok := s.cache.Lookup(q.Name, q.QType, q.QClass); ok {
			wire.WriteID(cached, req.ClientID)
			if err := s.sendToClient(cached, req.ClientAddr); err != nil {
				log.Sugar.Warnw("processor cache-path send failed", "error", err, "to", req.ClientAddr)
				return
			}
			s.metrics.Served()
			return
		}
	}

	now := time.Now()
	proxyID, err := s.corr.Install(req, now)
	if err != nil {
		s.metrics.Drop(metrics.ReasonNoIDAvailable)
		log.Sugar.Warnw("processor could not install request", "error", err, "qname", q.Name)
		return
	}

	wire.WriteID(req.Raw, proxyID)

	if err := s.sendToUpstream(req.Raw); err != nil {
		s.corr.TakeById(proxyID)
		s.metrics.Drop(metrics.ReasonSendFailed)
		log.Sugar.Warnw("processor upstream send failed", "error", err, "proxyID", proxyID)
		return
	}
}

func reasonForDecodeErr(err error) metrics.DropReason {
	switch {
	case errors.Is(err, wire.ErrShortPacket):
		return metrics.ReasonShortPacket
	case errors.Is(err, wire.ErrMalformedLabel):
		return metrics.ReasonMalformedLabel
	default:
		return metrics.ReasonShortPacket
	}
}
