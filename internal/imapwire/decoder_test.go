package imapwire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overmail/kamel"
)

func TestLiteralSize(t *testing.T) {
	tests := []struct {
		line string
		n    int64
		ok   bool
	}{
		{"* 1 FETCH (BODY[] {42}\r\n", 42, true},
		{"* 1 FETCH (BODY[] {42}", 42, true},
		{"* 1 FETCH (BODY[] {7+}\r\n", 7, true},
		{"* 1 FETCH (BODY[] {0}\n", 0, true},
		{"* OK {not a literal}\r\n", 0, false},
		{"* 1 EXISTS\r\n", 0, false},
		{"* OK {12} trailing\r\n", 0, false},
	}
	for _, tc := range tests {
		n, ok := LiteralSize(tc.line)
		if n != tc.n || ok != tc.ok {
			t.Errorf("LiteralSize(%q) = %v, %v; want %v, %v", tc.line, n, ok, tc.n, tc.ok)
		}
	}
}

func TestDecoderPrimitives(t *testing.T) {
	dec := NewDecoder([]byte(`42 NIL "a \"b\" \\c" {5}` + "\r\n" + `x) "y ATOM]` + "\r\n"))

	n, ok := dec.ExpectNumber()
	require.True(t, ok)
	assert.Equal(t, uint32(42), n)
	require.True(t, dec.ExpectSP())
	assert.True(t, dec.NIL())
	require.True(t, dec.ExpectSP())

	var s string
	require.True(t, dec.ExpectString(&s))
	assert.Equal(t, `a "b" \c`, s)
	require.True(t, dec.ExpectSP())

	var lit string
	require.True(t, dec.ExpectString(&lit))
	assert.Equal(t, "x) \"y", lit)
	require.True(t, dec.ExpectSP())

	var astr string
	require.True(t, dec.ExpectAString(&astr))
	assert.Equal(t, "ATOM]", astr)
	assert.True(t, dec.ExpectEnd())
	assert.NoError(t, dec.Err())
}

func TestDecoderExpectError(t *testing.T) {
	dec := NewDecoder([]byte("FETCH x"))
	var atom string
	require.True(t, dec.ExpectAtom(&atom))
	require.True(t, dec.ExpectSP())
	_, ok := dec.ExpectNumber()
	assert.False(t, ok)

	var werr *Error
	require.True(t, errors.As(dec.Err(), &werr))
	assert.Equal(t, 6, werr.Offset)
	assert.Contains(t, werr.Error(), "expected number, got 'x'")

	// errors are sticky
	dec.ExpectSP()
	assert.Equal(t, 6, dec.Err().(*Error).Offset)
}

func TestDecoderList(t *testing.T) {
	dec := NewDecoder([]byte(`(\Seen \Answered $Label1 \*) ()`))
	var flags []string
	err := dec.ExpectList(func() error {
		var f string
		if !dec.ExpectFlag(&f) {
			return dec.Err()
		}
		flags = append(flags, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"\\Seen", "\\Answered", "$Label1", "\\*"}, flags)

	require.True(t, dec.ExpectSP())
	calls := 0
	require.NoError(t, dec.ExpectList(func() error { calls++; return nil }))
	assert.Equal(t, 0, calls)

	nilList := NewDecoder([]byte("NIL"))
	require.NoError(t, nilList.ExpectNList(func() error { calls++; return nil }))
	assert.Equal(t, 0, calls)
}

func TestDecoderNString(t *testing.T) {
	dec := NewDecoder([]byte(`NIL "hi"`))
	var p *string
	require.True(t, dec.ExpectNString(&p))
	assert.Nil(t, p)
	require.True(t, dec.ExpectSP())
	require.True(t, dec.ExpectNString(&p))
	require.NotNil(t, p)
	assert.Equal(t, "hi", *p)
}

func TestDecoderNBytes(t *testing.T) {
	in := []byte("NIL \"hi\" {5}\r\nhello")
	dec := NewDecoder(in)
	var b []byte
	require.True(t, dec.ExpectNBytes(&b))
	assert.Nil(t, b)
	require.True(t, dec.ExpectSP())
	require.True(t, dec.ExpectNBytes(&b))
	assert.Equal(t, []byte("hi"), b)
	require.True(t, dec.ExpectSP())
	require.True(t, dec.ExpectNBytes(&b))
	assert.Equal(t, []byte("hello"), b)
	assert.True(t, dec.EOF())

	// the literal shares the input buffer
	in[len(in)-1] = '!'
	assert.Equal(t, []byte("hell!"), b)

	assert.False(t, NewDecoder([]byte("hi")).ExpectNBytes(&b))
}

func TestDecoderItemName(t *testing.T) {
	tests := []struct {
		in, want, rest string
	}{
		{"UID 1", "UID", " 1"},
		{"BODY[] {3}", "BODY[]", " {3}"},
		{"BODY[HEADER.FIELDS (DATE FROM)]<0> x", "BODY[HEADER.FIELDS (DATE FROM)]<0>", " x"},
		{"RFC822.SIZE 10", "RFC822.SIZE", " 10"},
	}
	for _, tc := range tests {
		dec := NewDecoder([]byte(tc.in))
		var name string
		if !dec.ExpectItemName(&name) {
			t.Errorf("ItemName(%q) failed: %v", tc.in, dec.Err())
			continue
		}
		assert.Equal(t, tc.want, name)
		assert.Equal(t, tc.rest, dec.Rest())
	}
}

func TestDecoderSkipValue(t *testing.T) {
	in := `(BODY ("TEXT" "PLAIN" ("CHARSET" "utf-8") NIL NIL "7BIT" 42 3)) {4}` + "\r\n" + `a(b) \Seen BODY[TEXT]<0> 17 END`
	dec := NewDecoder([]byte(in))
	for i := 0; i < 5; i++ {
		require.True(t, dec.SkipValue(), "value %v at %q", i, dec.Rest())
		require.True(t, dec.ExpectSP())
	}
	var atom string
	require.True(t, dec.ExpectAtom(&atom))
	assert.Equal(t, "END", atom)
}

func TestEncoder(t *testing.T) {
	cmd, err := NewEncoder("LOGIN").SP().Quoted(`al"ice`).SP().Quoted(`p\ss`).Command()
	require.NoError(t, err)
	assert.Equal(t, `LOGIN "al\"ice" "p\\ss"`, cmd)

	cmd, err = NewEncoder("SELECT").SP().Mailbox("Entwürfe").Command()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "Entw&APw-rfe"`, cmd)

	cmd, err = NewEncoder("SELECT").SP().Mailbox("inbox").Command()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "INBOX"`, cmd)

	cmd, err = NewEncoder("SEARCH").SP().Atom("ALL").Command()
	require.NoError(t, err)
	assert.Equal(t, "SEARCH ALL", cmd)

	items := []string{"FLAGS", "ENVELOPE", "UID"}
	enc := NewEncoder("FETCH").SP().SeqSet(kamel.SeqSetNum(3, 1, 2)).SP()
	enc.List(len(items), func(i int) { enc.Atom(items[i]) })
	cmd, err = enc.Command()
	require.NoError(t, err)
	assert.Equal(t, "FETCH 1:3 (FLAGS ENVELOPE UID)", cmd)

	_, err = NewEncoder("LOGIN").SP().Quoted("a\r\nb").Command()
	assert.Error(t, err)
}
