package imapwire

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// A Decoder reads IMAP data from a complete response held in memory.
//
// A response is one protocol line plus any literals it carries, in wire form:
// a literal marker "{N}\r\n" is followed by exactly N raw bytes. Decoding
// methods return false when the expected token is missing. Expect* methods
// additionally record the first error, which is then sticky.
type Decoder struct {
	buf []byte
	pos int
	err error
}

// NewDecoder creates a decoder over b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Err returns the first error recorded by an Expect* method.
func (dec *Decoder) Err() error {
	return dec.err
}

// Pos returns the current offset in the input.
func (dec *Decoder) Pos() int {
	return dec.pos
}

// Rest returns the unread input.
func (dec *Decoder) Rest() string {
	return string(dec.buf[dec.pos:])
}

func (dec *Decoder) returnErr(msg string) bool {
	if dec.err == nil {
		dec.err = &Error{Offset: dec.pos, Msg: msg}
	}
	return false
}

func (dec *Decoder) peek() (byte, bool) {
	if dec.pos >= len(dec.buf) {
		return 0, false
	}
	return dec.buf[dec.pos], true
}

func (dec *Decoder) acceptByte(want byte) bool {
	if b, ok := dec.peek(); ok && b == want {
		dec.pos++
		return true
	}
	return false
}

// EOF reports whether the whole input has been consumed.
func (dec *Decoder) EOF() bool {
	return dec.pos >= len(dec.buf)
}

// Expect records an error if ok is false.
func (dec *Decoder) Expect(ok bool, name string) bool {
	if !ok {
		msg := fmt.Sprintf("expected %v", name)
		if b, ok := dec.peek(); ok {
			msg = fmt.Sprintf("%v, got '%v'", msg, string(b))
		} else {
			msg += ", got end of response"
		}
		return dec.returnErr(msg)
	}
	return true
}

func (dec *Decoder) SP() bool {
	return dec.acceptByte(' ')
}

func (dec *Decoder) ExpectSP() bool {
	return dec.Expect(dec.SP(), "SP")
}

// CRLF accepts "\r\n" or a bare "\n".
func (dec *Decoder) CRLF() bool {
	start := dec.pos
	dec.acceptByte('\r')
	if !dec.acceptByte('\n') {
		dec.pos = start
		return false
	}
	return true
}

func (dec *Decoder) ExpectCRLF() bool {
	return dec.Expect(dec.CRLF(), "CRLF")
}

// End accepts an optional line terminator followed by the end of input.
func (dec *Decoder) End() bool {
	dec.CRLF()
	return dec.EOF()
}

func (dec *Decoder) ExpectEnd() bool {
	return dec.Expect(dec.End(), "end of response")
}

func isAtomChar(b byte) bool {
	switch b {
	case '(', ')', '{', ' ', '%', '*', '"', '\\', ']':
		return false
	default:
		return !unicode.IsControl(rune(b))
	}
}

func (dec *Decoder) readWhile(valid func(byte) bool) string {
	start := dec.pos
	for dec.pos < len(dec.buf) && valid(dec.buf[dec.pos]) {
		dec.pos++
	}
	return string(dec.buf[start:dec.pos])
}

func (dec *Decoder) Atom(ptr *string) bool {
	s := dec.readWhile(isAtomChar)
	if s == "" {
		return false
	}
	*ptr = s
	return true
}

func (dec *Decoder) ExpectAtom(ptr *string) bool {
	return dec.Expect(dec.Atom(ptr), "atom")
}

// Func accepts the atom name, case-insensitively.
func (dec *Decoder) Func(ptr *string, name string) bool {
	start := dec.pos
	var s string
	if !dec.Atom(&s) || !strings.EqualFold(s, name) {
		dec.pos = start
		return false
	}
	if ptr != nil {
		*ptr = s
	}
	return true
}

func (dec *Decoder) Special(b byte) bool {
	return dec.acceptByte(b)
}

func (dec *Decoder) ExpectSpecial(b byte) bool {
	return dec.Expect(dec.Special(b), fmt.Sprintf("'%v'", string(b)))
}

// Text reads until the end of the line.
func (dec *Decoder) Text(ptr *string) bool {
	s := dec.readWhile(func(b byte) bool { return b != '\r' && b != '\n' })
	if s == "" {
		return false
	}
	*ptr = s
	return true
}

func (dec *Decoder) ExpectText(ptr *string) bool {
	return dec.Expect(dec.Text(ptr), "text")
}

// Skip advances to the next occurrence of untilCh, which is not consumed.
func (dec *Decoder) Skip(untilCh byte) {
	for dec.pos < len(dec.buf) && dec.buf[dec.pos] != untilCh {
		dec.pos++
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func (dec *Decoder) Number64() (v int64, ok bool) {
	start := dec.pos
	s := dec.readWhile(isDigit)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		dec.pos = start
		return 0, false
	}
	return v, true
}

func (dec *Decoder) ExpectNumber64() (v int64, ok bool) {
	v, ok = dec.Number64()
	dec.Expect(ok, "number64")
	return v, ok
}

func (dec *Decoder) Number() (v uint32, ok bool) {
	start := dec.pos
	s := dec.readWhile(isDigit)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		dec.pos = start
		return 0, false
	}
	return uint32(n), true
}

func (dec *Decoder) ExpectNumber() (v uint32, ok bool) {
	v, ok = dec.Number()
	dec.Expect(ok, "number")
	return v, ok
}

// NIL accepts the NIL atom, case-insensitively.
func (dec *Decoder) NIL() bool {
	start := dec.pos
	var s string
	if !dec.Atom(&s) || !strings.EqualFold(s, "NIL") {
		dec.pos = start
		return false
	}
	return true
}

func (dec *Decoder) ExpectNIL() bool {
	return dec.Expect(dec.NIL(), "NIL")
}

// Quoted reads a quoted string, resolving backslash escapes.
func (dec *Decoder) Quoted(ptr *string) bool {
	start := dec.pos
	if !dec.acceptByte('"') {
		return false
	}
	var sb strings.Builder
	for {
		b, ok := dec.peek()
		if !ok || b == '\r' || b == '\n' {
			dec.pos = start
			return false
		}
		dec.pos++
		if b == '"' {
			break
		}
		if b == '\\' {
			b, ok = dec.peek()
			if !ok {
				dec.pos = start
				return false
			}
			dec.pos++
		}
		sb.WriteByte(b)
	}
	*ptr = sb.String()
	return true
}

func (dec *Decoder) ExpectQuoted(ptr *string) bool {
	return dec.Expect(dec.Quoted(ptr), "quoted string")
}

// Literal reads "{N}" or "{N+}", the line terminator, then N raw bytes.
func (dec *Decoder) Literal(ptr *[]byte) bool {
	start := dec.pos
	if !dec.acceptByte('{') {
		return false
	}
	n, ok := dec.Number64()
	if !ok {
		dec.pos = start
		return false
	}
	dec.acceptByte('+')
	if !dec.acceptByte('}') || !dec.CRLF() {
		dec.pos = start
		return false
	}
	if int64(len(dec.buf)-dec.pos) < n {
		dec.pos = start
		return false
	}
	*ptr = dec.buf[dec.pos : dec.pos+int(n)]
	dec.pos += int(n)
	return true
}

func (dec *Decoder) ExpectLiteral(ptr *[]byte) bool {
	return dec.Expect(dec.Literal(ptr), "literal")
}

// String reads a quoted string or a literal.
func (dec *Decoder) String(ptr *string) bool {
	if dec.Quoted(ptr) {
		return true
	}
	var b []byte
	if dec.Literal(&b) {
		*ptr = string(b)
		return true
	}
	return false
}

func (dec *Decoder) ExpectString(ptr *string) bool {
	return dec.Expect(dec.String(ptr), "string")
}

// ExpectNString reads a string or NIL. NIL sets ptr to nil.
func (dec *Decoder) ExpectNString(ptr **string) bool {
	if dec.NIL() {
		*ptr = nil
		return true
	}
	var s string
	if !dec.ExpectString(&s) {
		return false
	}
	*ptr = &s
	return true
}

// ExpectNBytes reads a string or NIL like ExpectNString. A literal is
// returned as a slice of the input, without copying. NIL sets ptr to nil.
func (dec *Decoder) ExpectNBytes(ptr *[]byte) bool {
	if dec.NIL() {
		*ptr = nil
		return true
	}
	if dec.Literal(ptr) {
		return true
	}
	var s string
	if !dec.ExpectQuoted(&s) {
		return false
	}
	*ptr = []byte(s)
	return true
}

func isAStringChar(b byte) bool {
	return b == ']' || isAtomChar(b)
}

// AString reads an atom (where ']' is allowed), a quoted string or a
// literal.
func (dec *Decoder) AString(ptr *string) bool {
	if dec.String(ptr) {
		return true
	}
	s := dec.readWhile(isAStringChar)
	if s == "" {
		return false
	}
	*ptr = s
	return true
}

func (dec *Decoder) ExpectAString(ptr *string) bool {
	return dec.Expect(dec.AString(ptr), "astring")
}

// Flag reads a flag: an atom optionally prefixed with a backslash, or the
// "\*" wildcard.
func (dec *Decoder) Flag(ptr *string) bool {
	start := dec.pos
	prefix := ""
	if dec.acceptByte('\\') {
		prefix = "\\"
		if dec.acceptByte('*') {
			*ptr = "\\*"
			return true
		}
	}
	var atom string
	if !dec.Atom(&atom) {
		dec.pos = start
		return false
	}
	*ptr = prefix + atom
	return true
}

func (dec *Decoder) ExpectFlag(ptr *string) bool {
	return dec.Expect(dec.Flag(ptr), "flag")
}

// List reads a parenthesized list, calling f for each element. Elements are
// separated by a single space. isList is false if the input does not start
// with '('.
func (dec *Decoder) List(f func() error) (isList bool, err error) {
	if !dec.Special('(') {
		return false, nil
	}
	if dec.Special(')') {
		return true, nil
	}

	for {
		if err := f(); err != nil {
			return true, err
		}

		if dec.Special(')') {
			return true, nil
		} else if !dec.ExpectSP() {
			return true, dec.Err()
		}
	}
}

func (dec *Decoder) ExpectList(f func() error) error {
	isList, err := dec.List(f)
	if err != nil {
		return err
	} else if !dec.Expect(isList, "(") {
		return dec.Err()
	}
	return nil
}

// ExpectNList reads a list or NIL.
func (dec *Decoder) ExpectNList(f func() error) error {
	isList, err := dec.List(f)
	if err != nil {
		return err
	} else if !isList && !dec.ExpectNIL() {
		return dec.Err()
	}
	return nil
}

// ItemName reads a FETCH data item name such as UID, BODY[] or
// BODY[HEADER.FIELDS (DATE)]<0>, keeping the section and partial specifier.
func (dec *Decoder) ItemName(ptr *string) bool {
	start := dec.pos
	dec.readWhile(func(b byte) bool { return isAtomChar(b) && b != '[' })
	if dec.acceptByte('[') {
		dec.Skip(']')
		if !dec.acceptByte(']') {
			dec.pos = start
			return false
		}
		if dec.acceptByte('<') {
			dec.Skip('>')
			if !dec.acceptByte('>') {
				dec.pos = start
				return false
			}
		}
	}
	if dec.pos == start {
		return false
	}
	*ptr = string(dec.buf[start:dec.pos])
	return true
}

func (dec *Decoder) ExpectItemName(ptr *string) bool {
	return dec.Expect(dec.ItemName(ptr), "data item name")
}

// SkipValue skips one value of any kind: a string, a list (recursively), a
// flag, a number or an atom.
func (dec *Decoder) SkipValue() bool {
	var s string
	if dec.String(&s) {
		return true
	}
	isList, err := dec.List(func() error {
		if !dec.Expect(dec.SkipValue(), "value") {
			return dec.Err()
		}
		return nil
	})
	if isList {
		return err == nil
	}
	if b, ok := dec.peek(); ok && b == '\\' {
		return dec.Flag(&s)
	}
	return dec.ItemName(&s)
}
