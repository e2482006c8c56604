package wire

import "encoding/binary"

// HeaderSize is the fixed length of a DNS message header (RFC 1035 §4.1.1).
const HeaderSize = 12

// MaxPacketSize is the largest datagram the proxy will accept on either
// socket; anything bigger is dropped per §4.4/§4.6 of the design.
const MaxPacketSize = 512

// Header is the decoded form of the fixed 12-byte DNS header. Z (bits 4-6)
// is defined by RFC 1035 but carries no meaning for this proxy and is not
// exposed.
type Header struct {
	ID      uint16
	QR      bool
	Opcode  uint8
	AA      bool
	TC      bool
	RD      bool
	RA      bool
	RCode   uint8
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// DecodeHeader reads the fixed 12-byte header from the front of raw.
// raw must be at least HeaderSize bytes; anything shorter is ErrShortPacket.
func DecodeHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, ErrShortPacket
	}

	flags := binary.BigEndian.Uint16(raw[2:4])

	return Header{
		ID:      binary.BigEndian.Uint16(raw[0:2]),
		QR:      flags&0x8000 != 0,
		Opcode:  uint8(flags>>11) & 0x0F,
		AA:      flags&0x0400 != 0,
		TC:      flags&0x0200 != 0,
		RD:      flags&0x0100 != 0,
		RA:      flags&0x0080 != 0,
		RCode:   uint8(flags & 0x000F),
		QDCount: binary.BigEndian.Uint16(raw[4:6]),
		ANCount: binary.BigEndian.Uint16(raw[6:8]),
		NSCount: binary.BigEndian.Uint16(raw[8:10]),
		ARCount: binary.BigEndian.Uint16(raw[10:12]),
	}, nil
}

// EncodeHeader is the inverse of DecodeHeader. It is used only by tests —
// the proxy itself never reconstructs a header, it mutates the ID field of
// the raw bytes it already holds.
func EncodeHeader(h Header) []byte {
	out := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(out[0:2], h.ID)

	var flags uint16
	if h.QR {
		flags |= 0x8000
	}
	flags |= uint16(h.Opcode&0x0F) << 11
	if h.AA {
		flags |= 0x0400
	}
	if h.TC {
		flags |= 0x0200
	}
	if h.RD {
		flags |= 0x0100
	}
	if h.RA {
		flags |= 0x0080
	}
	flags |= uint16(h.RCode & 0x000F)

	binary.BigEndian.PutUint16(out[2:4], flags)
	binary.BigEndian.PutUint16(out[4:6], h.QDCount)
	binary.BigEndian.PutUint16(out[6:8], h.ANCount)
	binary.BigEndian.PutUint16(out[8:10], h.NSCount)
	binary.BigEndian.PutUint16(out[10:12], h.ARCount)

	return out
}

// ReadID reads the first two bytes of raw as a 16-bit network-byte-order
// value. raw must be at least 2 bytes long. It never allocates.
func ReadID(raw []byte) uint16 {
	return binary.BigEndian.Uint16(raw[0:2])
}

// WriteID overwrites the first two bytes of raw with id in network byte
// order. raw must be at least 2 bytes long. It never allocates.
func WriteID(raw []byte, id uint16) {
	binary.BigEndian.PutUint16(raw[0:2], id)
}
