// Package imapwire implements the IMAP wire protocol.
//
// The IMAP wire protocol is defined in RFC 3501 section 4 and 9.
package imapwire

import (
	"fmt"
	"regexp"
	"strconv"
)

var literalSuffix = regexp.MustCompile(`\{([0-9]+)(\+?)\}\r?\n?$`)

// LiteralSize reports whether line ends with a literal marker ("{N}" or
// "{N+}", optionally followed by the line terminator) and returns N.
func LiteralSize(line string) (n int64, ok bool) {
	m := literalSuffix.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Error is a decoding error. Offset is the position in the input at which
// decoding failed.
type Error struct {
	Offset int
	Msg    string
}

func (err *Error) Error() string {
	return fmt.Sprintf("imapwire: %v (at offset %v)", err.Msg, err.Offset)
}
