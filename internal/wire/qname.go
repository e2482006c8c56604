package wire

import "strings"

// maxLabelLen is the largest length a single label may declare (RFC 1035
// §2.3.4). A length with either of the top two bits set is a compression
// pointer, which the question-section decoder does not support — see the
// "QNAME compression" open question in the design notes.
const maxLabelLen = 63

// DecodeQName reads a sequence of length-prefixed labels starting at offset
// in raw, terminated by a zero-length octet, and returns the dotted-form
// name plus the offset of the byte immediately following the terminator.
// Compression pointers are rejected as malformed; this decoder only ever
// sees client queries, which must not use them in the question section.
func DecodeQName(raw []byte, offset int) (string, int, error) {
	var labels []string

	for {
		if offset >= len(raw) {
			return "", 0, ErrMalformedLabel
		}

		length := int(raw[offset])
		offset++

		if length == 0 {
			break
		}

		if length&0xC0 != 0 {
			// Compression pointer — out of scope for the question section.
			return "", 0, ErrMalformedLabel
		}

		if length > maxLabelLen {
			return "", 0, ErrMalformedLabel
		}

		if offset+length > len(raw) {
			return "", 0, ErrMalformedLabel
		}

		labels = append(labels, string(raw[offset:offset+length]))
		offset += length
	}

	return strings.Join(labels, "."), offset, nil
}

// EncodeQName is the inverse of DecodeQName. It is used only by tests — the
// proxy never reconstructs a qname, it only reads one for logging/cache
// keying. name must be a sequence of non-empty labels, each at most 63
// octets, joined by '.', with no empty label (i.e. no "..").
func EncodeQName(name string) ([]byte, error) {
	if name == "" {
		return []byte{0}, nil
	}

	labels := strings.Split(name, ".")
	var out []byte

	for _, label := range labels {
		if len(label) == 0 || len(label) > maxLabelLen {
			return nil, ErrMalformedLabel
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}

	out = append(out, 0)
	return out, nil
}
