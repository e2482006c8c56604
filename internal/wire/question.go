package wire

import "encoding/binary"

// Question is the decoded form of a single question-section entry.
type Question struct {
	Name   string
	QType  uint16
	QClass uint16
}

// DecodeQuestion decodes one Question starting at offset (normally
// HeaderSize, right after the fixed header) and returns it plus the offset
// of the first byte past it. Only the first question is read; the proxy
// never forwards or inspects multi-question messages differently, it just
// needs the name for logging and optional cache keying.
func DecodeQuestion(raw []byte, offset int) (Question, int, error) {
	name, offset, err := DecodeQName(raw, offset)
	if err != nil {
		return Question{}, 0, err
	}

	if offset+4 > len(raw) {
		return Question{}, 0, ErrShortPacket
	}

	q := Question{
		Name:   name,
		QType:  binary.BigEndian.Uint16(raw[offset : offset+2]),
		QClass: binary.BigEndian.Uint16(raw[offset+2 : offset+4]),
	}

	return q, offset + 4, nil
}
