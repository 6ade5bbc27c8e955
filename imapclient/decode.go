package imapclient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/internal/imapwire"
	"github.com/overmail/kamel/internal/metrics"
	"github.com/overmail/kamel/internal/utf7"
	"github.com/overmail/kamel/mimetext"
)

// untagged reads the head of an untagged response: "* <num> <kind>" or
// "* <kind>". The decoder is left after the kind.
func untagged(dec *imapwire.Decoder) (num uint32, kind string, ok bool) {
	if !dec.Special('*') || !dec.SP() {
		return 0, "", false
	}
	if n, isNum := dec.Number(); isNum {
		if !dec.SP() {
			return 0, "", false
		}
		num = n
	}
	if !dec.Atom(&kind) {
		return 0, "", false
	}
	return num, strings.ToUpper(kind), true
}

// responseKind returns the kind of an untagged response, e.g. "FETCH".
func responseKind(resp []byte) (num uint32, kind string) {
	num, kind, _ = untagged(imapwire.NewDecoder(resp))
	return num, kind
}

func newParseError(resp []byte, dec *imapwire.Decoder, field string, err error) *ParseError {
	metrics.ParseErrors.WithLabelValues(strings.SplitN(field, " ", 2)[0]).Inc()
	if err == nil {
		err = errors.New("malformed response")
	}
	return &ParseError{
		Response: string(resp),
		Offset:   dec.Pos(),
		Field:    field,
		Err:      err,
	}
}

func readFlagList(dec *imapwire.Decoder) (kamel.FlagSet, error) {
	flags := kamel.FlagSet{}
	err := dec.ExpectList(func() error {
		var flag string
		if !dec.ExpectFlag(&flag) {
			return dec.Err()
		}
		flags = flags.Add(kamel.ParseFlag(flag))
		return nil
	})
	return flags, err
}

// readList parses a LIST response.
func readList(resp []byte) (*kamel.FolderDescriptor, error) {
	dec := imapwire.NewDecoder(resp)
	if _, kind, ok := untagged(dec); !ok || kind != "LIST" {
		return nil, newParseError(resp, dec, "LIST", fmt.Errorf("not a LIST response"))
	}
	if !dec.ExpectSP() {
		return nil, newParseError(resp, dec, "LIST", dec.Err())
	}

	var attrs []kamel.MailboxAttr
	err := dec.ExpectList(func() error {
		var attr string
		if !dec.ExpectFlag(&attr) {
			return dec.Err()
		}
		attrs = append(attrs, kamel.MailboxAttr(attr))
		return nil
	})
	if err != nil {
		return nil, newParseError(resp, dec, "LIST attributes", err)
	}

	if !dec.ExpectSP() {
		return nil, newParseError(resp, dec, "LIST", dec.Err())
	}
	var delim string
	if !dec.NIL() && !dec.ExpectQuoted(&delim) {
		return nil, newParseError(resp, dec, "LIST delimiter", dec.Err())
	}

	var name string
	if !dec.ExpectSP() || !dec.ExpectAString(&name) || !dec.ExpectEnd() {
		return nil, newParseError(resp, dec, "LIST mailbox", dec.Err())
	}
	if decoded, err := utf7.Decode(name); err == nil {
		name = decoded
	}
	return kamel.NewFolderDescriptor(name, delim, attrs), nil
}

// readSearch parses a SEARCH response. Tokens that are not numbers are
// ignored.
func readSearch(resp []byte) ([]uint32, error) {
	dec := imapwire.NewDecoder(resp)
	if _, kind, ok := untagged(dec); !ok || kind != "SEARCH" {
		return nil, newParseError(resp, dec, "SEARCH", fmt.Errorf("not a SEARCH response"))
	}
	var rest string
	dec.Text(&rest)

	var ids []uint32
	for _, tok := range strings.Fields(rest) {
		n, err := strconv.ParseUint(tok, 10, 32)
		if err != nil || n == 0 {
			continue
		}
		ids = append(ids, uint32(n))
	}
	return ids, nil
}

// readFetch parses a FETCH response. With diagnostic set, a parse error
// carries the fields read before the failure.
func readFetch(resp []byte, diagnostic bool) (*Message, error) {
	dec := imapwire.NewDecoder(resp)
	seqNum, kind, ok := untagged(dec)
	if !ok || kind != "FETCH" || seqNum == 0 {
		return nil, newParseError(resp, dec, "FETCH", fmt.Errorf("not a FETCH response"))
	}
	msg := &Message{SeqNum: seqNum}

	fail := func(field string, err error) (*Message, error) {
		perr := newParseError(resp, dec, field, err)
		if diagnostic {
			perr.Partial = msg
		}
		return nil, perr
	}

	if !dec.ExpectSP() {
		return fail("FETCH", dec.Err())
	}
	err := dec.ExpectList(func() error {
		return readMsgAtt(dec, msg)
	})
	if err != nil {
		var fieldErr *fetchFieldError
		if errors.As(err, &fieldErr) {
			return fail(fieldErr.field, fieldErr.err)
		}
		return fail("FETCH", err)
	}
	if !dec.ExpectEnd() {
		return fail("FETCH", dec.Err())
	}
	return msg, nil
}

type fetchFieldError struct {
	field string
	err   error
}

func (err *fetchFieldError) Error() string {
	return fmt.Sprintf("in %v: %v", err.field, err.err)
}

func fieldErr(field string, err error) error {
	return &fetchFieldError{field: field, err: err}
}

func readMsgAtt(dec *imapwire.Decoder, msg *Message) error {
	var name string
	if !dec.ExpectItemName(&name) || !dec.ExpectSP() {
		return dec.Err()
	}
	name = strings.ToUpper(name)

	switch name {
	case "FLAGS":
		flags, err := readFlagList(dec)
		if err != nil {
			return fieldErr(name, err)
		}
		msg.Flags.Set(flags)
	case "UID":
		uid, ok := dec.ExpectNumber()
		if !ok {
			return fieldErr(name, dec.Err())
		}
		msg.UID.Set(uid)
	case "ENVELOPE":
		if err := readEnvelope(dec, msg); err != nil {
			return err
		}
	case "INTERNALDATE":
		var s string
		if !dec.ExpectQuoted(&s) {
			return fieldErr(name, dec.Err())
		}
		t, err := kamel.ParseDateTime(s)
		if err != nil {
			return fieldErr(name, err)
		}
		msg.InternalDate.Set(t)
	case "RFC822.SIZE":
		size, ok := dec.ExpectNumber64()
		if !ok {
			return fieldErr(name, dec.Err())
		}
		msg.Size.Set(size)
	case "BODY[]", "RFC822":
		var body []byte
		if !dec.ExpectNBytes(&body) {
			return fieldErr(name, dec.Err())
		}
		msg.Body.Set(body)
	default:
		if !dec.Expect(dec.SkipValue(), "value") {
			return fieldErr(name, dec.Err())
		}
	}
	return nil
}

// readEnvelope parses the ENVELOPE structure of RFC 3501 section 7.4.2:
// date, subject, from, sender, reply-to, to, cc, bcc, in-reply-to and
// message-id.
func readEnvelope(dec *imapwire.Decoder, msg *Message) error {
	if !dec.ExpectSpecial('(') {
		return fieldErr("ENVELOPE", dec.Err())
	}

	var date, subject *string
	if !dec.ExpectNString(&date) || !dec.ExpectSP() {
		return fieldErr("ENVELOPE date", dec.Err())
	}
	if date == nil || strings.TrimSpace(*date) == "" {
		msg.SentAt.Set(time.Time{})
	} else {
		t, err := kamel.ParseMessageDateTime(*date)
		if err != nil {
			return fieldErr("ENVELOPE date", err)
		}
		msg.SentAt.Set(t.UTC())
	}

	if !dec.ExpectNString(&subject) || !dec.ExpectSP() {
		return fieldErr("ENVELOPE subject", dec.Err())
	}
	if subject != nil {
		decoded := mimetext.DecodeHeader(*subject)
		subject = &decoded
	}
	msg.Subject.Set(subject)

	addrLists := []struct {
		name string
		out  *kamel.Cell[kamel.ParticipantSet]
	}{
		{"env-from", &msg.From},
		{"env-sender", &msg.Sender},
		{"env-reply-to", &msg.ReplyTo},
		{"env-to", &msg.To},
		{"env-cc", &msg.Cc},
		{"env-bcc", &msg.Bcc},
	}
	for _, addrList := range addrLists {
		l, err := readAddressList(dec)
		if err != nil {
			return fieldErr("ENVELOPE "+addrList.name, err)
		} else if !dec.ExpectSP() {
			return fieldErr("ENVELOPE "+addrList.name, dec.Err())
		}
		addrList.out.Set(l)
	}

	var inReplyTo, messageID *string
	if !dec.ExpectNString(&inReplyTo) || !dec.ExpectSP() {
		return fieldErr("ENVELOPE in-reply-to", dec.Err())
	}
	if inReplyTo != nil {
		v := trimAngle(*inReplyTo)
		inReplyTo = &v
	}
	msg.InReplyTo.Set(inReplyTo)

	if !dec.ExpectNString(&messageID) {
		return fieldErr("ENVELOPE message-id", dec.Err())
	}
	if messageID != nil {
		msg.MessageID.Set(trimAngle(*messageID))
	} else {
		msg.MessageID.Set("")
	}

	if !dec.ExpectSpecial(')') {
		return fieldErr("ENVELOPE", dec.Err())
	}
	return nil
}

func trimAngle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}

// readAddressList parses a list of addresses or NIL. NIL yields an empty,
// non-nil set. Group syntax markers are skipped.
func readAddressList(dec *imapwire.Decoder) (kamel.ParticipantSet, error) {
	set := kamel.ParticipantSet{}
	if dec.NIL() {
		return set, nil
	}
	if !dec.ExpectSpecial('(') {
		return nil, dec.Err()
	}
	for {
		if dec.Special(')') {
			return set, nil
		}
		dec.SP()
		p, ok, err := readAddress(dec)
		if err != nil {
			return nil, err
		}
		if ok {
			set = set.Add(p)
		}
	}
}

func readAddress(dec *imapwire.Decoder) (p kamel.Participant, ok bool, err error) {
	var name, obsRoute, mailbox, host *string
	valid := dec.ExpectSpecial('(') &&
		dec.ExpectNString(&name) && dec.ExpectSP() &&
		dec.ExpectNString(&obsRoute) && dec.ExpectSP() &&
		dec.ExpectNString(&mailbox) && dec.ExpectSP() &&
		dec.ExpectNString(&host) && dec.ExpectSpecial(')')
	if !valid {
		return p, false, fmt.Errorf("in address: %v", dec.Err())
	}
	if mailbox == nil || host == nil {
		// start or end of a group
		return p, false, nil
	}
	rawName := ""
	if name != nil {
		rawName = *name
	}
	return kamel.NewParticipant(*mailbox, *host, rawName), true, nil
}
