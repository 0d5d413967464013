package parse

import (
	"unicode/utf8"
)

// DecodeBytes converts a raw device chunk into text using an ordered
// attempt policy: pure ASCII passes through, valid UTF-8 decodes as
// is, and anything else falls back to a Latin-1 interpretation of the
// printable range. Undecodable control bytes are dropped, not
// substituted, so garbled input can never fabricate numeric data.
func DecodeBytes(data []byte) string {
	if isASCII(data) {
		return string(data)
	}
	if utf8.Valid(data) {
		return string(data)
	}
	return decodeLatin1(data)
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b > 0x7f {
			return false
		}
	}
	return true
}

// decodeLatin1 maps each byte to the corresponding rune, dropping
// C1 control bytes (0x80-0x9f) that carry no textual content.
func decodeLatin1(data []byte) string {
	out := make([]rune, 0, len(data))
	for _, b := range data {
		if b >= 0x80 && b <= 0x9f {
			continue
		}
		out = append(out, rune(b))
	}
	return string(out)
}
