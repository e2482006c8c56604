package proxy

import "errors"

// Errors surfaced by the stages, per the design's error-handling table (§7).
// The wire codec's own ErrShortPacket/ErrMalformedLabel/ErrPacketTooLarge and
// the Correlator's ErrNoIDAvailable are surfaced directly; these cover the
// remaining categories that are specific to stage behavior.
var (
	ErrUnexpectedQR    = errors.New("proxy: unexpected QR flag")
	ErrForeignUpstream = errors.New("proxy: reply from unconfigured source")
	ErrSendFailed      = errors.New("proxy: sendto failed")
)
