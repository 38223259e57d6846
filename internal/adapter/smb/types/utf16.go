package types

import (
	"errors"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ErrOddUTF16 is returned for UTF-16 input with a dangling byte.
var ErrOddUTF16 = errors.New("odd-length UTF-16 data")

// EncodeUTF16LE encodes s without a terminator.
func EncodeUTF16LE(s string) []byte {
	out, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		// The encoder replaces invalid runes rather than failing.
		return nil
	}
	return out
}

// DecodeUTF16LE decodes b, dropping a trailing NUL if present.
func DecodeUTF16LE(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", ErrOddUTF16
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	for len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	return string(out), nil
}
