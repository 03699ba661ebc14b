package classify

import (
	"bytes"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// DecodeMemo decodes the hex memo payload of a transaction.
// Trailing NUL bytes are trimmed; anything that is not valid UTF-8 yields no memo.
func DecodeMemo(data string) (string, bool) {
	data = strings.TrimPrefix(strings.TrimSpace(data), "0x")
	if data == "" {
		return "", false
	}

	b, err := hex.DecodeString(data)
	if err != nil {
		return "", false
	}

	b = bytes.TrimRight(b, "\x00")
	if len(b) == 0 || !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// decodeName decodes hex-encoded asset names, falling back to the raw value
func decodeName(v string) string {
	if s, ok := DecodeMemo(v); ok && isPrintable(s) {
		return s
	}
	return v
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == utf8.RuneError {
			return false
		}
	}
	return true
}
