package imapwire

import (
	"fmt"
	"strings"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/internal/utf7"
)

// An Encoder builds the text of an IMAP command, without tag and line
// terminator.
//
// Most methods don't return an error, instead they defer error handling until
// Command is called. These methods return the Encoder so that calls can be
// chained.
type Encoder struct {
	sb  strings.Builder
	err error
}

// NewEncoder creates an encoder for a command with the given name.
func NewEncoder(name string) *Encoder {
	enc := &Encoder{}
	enc.sb.WriteString(name)
	return enc
}

func (enc *Encoder) setErr(err error) {
	if enc.err == nil {
		enc.err = err
	}
}

// Command returns the encoded command text.
func (enc *Encoder) Command() (string, error) {
	if enc.err != nil {
		return "", enc.err
	}
	return enc.sb.String(), nil
}

func (enc *Encoder) Atom(s string) *Encoder {
	for i := 0; i < len(s); i++ {
		if !isAtomChar(s[i]) && s[i] != '*' && s[i] != '%' && s[i] != ']' && s[i] != '\\' {
			enc.setErr(fmt.Errorf("imapwire: invalid atom %q", s))
			break
		}
	}
	enc.sb.WriteString(s)
	return enc
}

func (enc *Encoder) SP() *Encoder {
	enc.sb.WriteByte(' ')
	return enc
}

func (enc *Encoder) Special(ch byte) *Encoder {
	enc.sb.WriteByte(ch)
	return enc
}

// Quoted writes s as a quoted string. CR, LF and NUL cannot be quoted.
func (enc *Encoder) Quoted(s string) *Encoder {
	enc.sb.Grow(2 + len(s))
	enc.sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case 0, '\r', '\n':
			enc.setErr(fmt.Errorf("imapwire: cannot quote string containing CR, LF or NUL"))
			continue
		case '"', '\\':
			enc.sb.WriteByte('\\')
		}
		enc.sb.WriteByte(ch)
	}
	enc.sb.WriteByte('"')
	return enc
}

// Mailbox writes a mailbox name encoded in modified UTF-7. INBOX is always
// sent in upper case.
func (enc *Encoder) Mailbox(name string) *Encoder {
	if strings.EqualFold(name, kamel.Inbox) {
		return enc.Quoted(kamel.Inbox)
	}
	return enc.Quoted(utf7.Encode(name))
}

func (enc *Encoder) SeqSet(set kamel.SeqSet) *Encoder {
	if len(set) == 0 {
		enc.setErr(fmt.Errorf("imapwire: empty sequence set"))
	}
	enc.sb.WriteString(set.String())
	return enc
}

// List writes a parenthesized list of n elements, calling f to write each.
func (enc *Encoder) List(n int, f func(i int)) *Encoder {
	enc.sb.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			enc.SP()
		}
		f(i)
	}
	enc.sb.WriteByte(')')
	return enc
}
