// Package utf7 implements the modified UTF-7 encoding of mailbox names
// defined in RFC 3501 section 5.1.3.
package utf7

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	min = 0x20 // Minimum self-representing UTF-7 value
	max = 0x7E // Maximum self-representing UTF-7 value

	repl = '\uFFFD' // Unicode replacement code point
)

var b64Encoding = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,").
	WithPadding(base64.NoPadding).
	Strict()

// ErrInvalidUTF7 means that a mailbox name is not valid modified UTF-7.
var ErrInvalidUTF7 = errors.New("utf7: invalid UTF-7")

// Decode decodes a modified UTF-7 mailbox name.
func Decode(src string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(src))

	ascii := true
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if ch < min || ch > max {
			return "", ErrInvalidUTF7
		}
		if ch != '&' {
			sb.WriteByte(ch)
			ascii = true
			continue
		}

		start := i + 1
		for i++; i < len(src) && src[i] != '-'; i++ {
			if src[i] < min || src[i] > max {
				return "", ErrInvalidUTF7
			}
		}
		switch {
		case i == len(src): // implicit shift
			return "", ErrInvalidUTF7
		case i == start: // "&-"
			sb.WriteByte('&')
			ascii = true
			continue
		case !ascii: // null shift
			return "", ErrInvalidUTF7
		}

		b := decodeBase64(src[start:i])
		if len(b) == 0 {
			return "", ErrInvalidUTF7
		}
		sb.Write(b)
		ascii = false
	}
	return sb.String(), nil
}

// decodeBase64 returns the UTF-8 form of a shifted segment, or nil if the
// segment is malformed.
func decodeBase64(s string) []byte {
	raw, err := b64Encoding.DecodeString(s)
	if err != nil || len(raw) == 0 || len(raw)%2 != 0 {
		return nil
	}

	var out []byte
	for i := 0; i < len(raw); i += 2 {
		r := rune(raw[i])<<8 | rune(raw[i+1])
		if utf16.IsSurrogate(r) {
			if i += 2; i == len(raw) {
				return nil
			}
			r2 := rune(raw[i])<<8 | rune(raw[i+1])
			if r = utf16.DecodeRune(r, r2); r == repl {
				return nil
			}
		} else if min <= r && r <= max {
			// ASCII must not be shifted
			return nil
		}
		out = utf8.AppendRune(out, r)
	}
	return out
}

// Encode encodes a mailbox name to modified UTF-7.
func Encode(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	for i := 0; i < len(s); {
		ch := s[i]
		if min <= ch && ch <= max {
			sb.WriteByte(ch)
			if ch == '&' {
				sb.WriteByte('-')
			}
			i++
			continue
		}

		start := i
		for i < len(s) && (s[i] < min || s[i] > max) {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
		}
		sb.WriteByte('&')
		sb.WriteString(encodeBase64(s[start:i]))
		sb.WriteByte('-')
	}
	return sb.String()
}

func encodeBase64(s string) string {
	u := make([]byte, 0, 2*len(s))
	for _, r := range s {
		if r1, r2 := utf16.EncodeRune(r); r1 != repl {
			u = append(u, byte(r1>>8), byte(r1), byte(r2>>8), byte(r2))
		} else {
			u = append(u, byte(r>>8), byte(r))
		}
	}
	return b64Encoding.EncodeToString(u)
}
