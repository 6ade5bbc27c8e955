package imapclient

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/k3a/html2text"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/internal/imapwire"
)

// ContentSinks receive the body of a message. Nil sinks are discarded.
type ContentSinks struct {
	// Raw receives the whole message as sent by the server.
	Raw io.Writer
	// Text and HTML receive the lines of text/plain and text/html parts.
	// Attachments are never written to them.
	Text io.Writer
	HTML io.Writer
	// Attachment is called for each attachment with its file name and its
	// transfer-decoded content. It requires Decode.
	Attachment func(name string, r io.Reader) error

	// Decode delivers the text parts transfer-decoded and converted to
	// UTF-8 instead of as raw lines.
	Decode bool
	// TextFromHTML writes a plain text rendering of the HTML part to Text
	// when the message has no text/plain part. It requires Decode.
	TextFromHTML bool
}

func (sinks *ContentSinks) writer(mediaType string) io.Writer {
	var w io.Writer
	switch mediaType {
	case "text/plain":
		w = sinks.Text
	case "text/html":
		w = sinks.HTML
	}
	return w
}

// Content fetches the body of msg with UID FETCH BODY[] and splits it into
// sinks.
func (f *Folder) Content(ctx context.Context, msg *Message, sinks *ContentSinks) error {
	if sinks == nil {
		sinks = &ContentSinks{}
	}
	uid, ok := msg.UID.Get()
	if !ok {
		return ErrUIDUnknown
	}

	s, err := f.selected(ctx)
	if err != nil {
		return err
	}
	body, err := s.fetchBody(ctx, uid)
	if err != nil {
		return err
	}

	if sinks.Decode {
		return decodeContent(body, sinks)
	}
	return walkContent(body, sinks)
}

func (s *Session) fetchBody(ctx context.Context, uid uint32) ([]byte, error) {
	cmd, err := imapwire.NewEncoder("UID FETCH").SP().SeqSet(kamel.SeqSetNum(uid)).SP().Atom("BODY[]").Command()
	if err != nil {
		return nil, err
	}
	ex, err := s.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var body []byte
	found := false
	for {
		resp, err := ex.NextResponse(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if _, kind := responseKind(resp); kind != "FETCH" {
			continue
		}
		msg, err := readFetch(resp, false)
		if err != nil {
			return nil, err
		}
		if b, ok := msg.Body.Get(); ok && !found {
			body, found = b, true
		}
	}
	if !found {
		return nil, ErrUIDUnknown
	}
	return body, nil
}

// contentWalker splits a message into its parts line by line, following
// nested multipart boundaries.
type contentWalker struct {
	sinks      *ContentSinks
	boundaries []string
	inHeader   bool
	header     bytes.Buffer
	current    io.Writer
}

func walkContent(body []byte, sinks *ContentSinks) error {
	w := &contentWalker{sinks: sinks, inHeader: true}
	for len(body) > 0 {
		n := bytes.IndexByte(body, '\n') + 1
		if n == 0 {
			n = len(body)
		}
		if err := w.line(body[:n]); err != nil {
			return err
		}
		body = body[n:]
	}
	return nil
}

func (w *contentWalker) line(line []byte) error {
	if w.sinks.Raw != nil {
		if _, err := w.sinks.Raw.Write(line); err != nil {
			return err
		}
	}

	trimmed := strings.TrimRight(string(line), "\r\n")
	if i, closing, ok := w.boundary(trimmed); ok {
		w.current = nil
		if closing {
			w.boundaries = w.boundaries[:i]
			w.inHeader = false
		} else {
			w.boundaries = w.boundaries[:i+1]
			w.inHeader = true
			w.header.Reset()
		}
		return nil
	}

	if w.inHeader {
		w.header.Write(line)
		if trimmed == "" {
			w.inHeader = false
			w.startPart()
		}
		return nil
	}

	if w.current != nil {
		_, err := w.current.Write(line)
		return err
	}
	return nil
}

// boundary checks whether line is a delimiter of one of the open multipart
// entities, innermost first.
func (w *contentWalker) boundary(line string) (index int, closing, ok bool) {
	if !strings.HasPrefix(line, "--") {
		return 0, false, false
	}
	line = strings.TrimRight(line, " \t")
	for i := len(w.boundaries) - 1; i >= 0; i-- {
		delim := "--" + w.boundaries[i]
		switch line {
		case delim:
			return i, false, true
		case delim + "--":
			return i, true, true
		}
	}
	return 0, false, false
}

func (w *contentWalker) startPart() {
	h, err := textproto.ReadHeader(bufio.NewReader(&w.header))
	w.header.Reset()
	if err != nil {
		return
	}
	hdr := message.Header{Header: h}
	mediaType, params, err := hdr.ContentType()
	if err != nil {
		if h.Has("Content-Type") {
			return
		}
		mediaType = "text/plain"
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		if b := params["boundary"]; b != "" {
			w.boundaries = append(w.boundaries, b)
		}
		return
	}
	if _, ok := attachmentName(hdr, mediaType); ok {
		return
	}
	w.current = w.sinks.writer(mediaType)
}

// attachmentName reports whether a part is an attachment, with the same rule
// as mail.Reader: parts not marked inline are attachments unless they are
// text without an attachment disposition.
func attachmentName(h message.Header, mediaType string) (string, bool) {
	disp, _, _ := h.ContentDisposition()
	if disp == "inline" || (disp != "attachment" && strings.HasPrefix(mediaType, "text/")) {
		return "", false
	}
	name, _ := (&mail.AttachmentHeader{Header: h}).Filename()
	return name, true
}

func decodeContent(body []byte, sinks *ContentSinks) error {
	if sinks.Raw != nil {
		if _, err := sinks.Raw.Write(body); err != nil {
			return err
		}
	}

	e, err := message.Read(bytes.NewReader(body))
	if err != nil && !message.IsUnknownCharset(err) {
		return err
	}

	var sawText bool
	var html bytes.Buffer
	err = e.Walk(func(path []int, part *message.Entity, err error) error {
		// parts in an unknown charset are delivered undecoded
		if err != nil && !message.IsUnknownCharset(err) {
			return err
		}
		mediaType, _, _ := part.Header.ContentType()
		if mediaType == "" {
			mediaType = "text/plain"
		}
		if strings.HasPrefix(mediaType, "multipart/") {
			return nil
		}
		if name, ok := attachmentName(part.Header, mediaType); ok {
			if sinks.Attachment == nil {
				return nil
			}
			return sinks.Attachment(name, part.Body)
		}
		if mediaType == "text/plain" {
			sawText = true
		}

		dst := sinks.writer(mediaType)
		if mediaType == "text/html" && sinks.TextFromHTML && sinks.Text != nil {
			if dst != nil {
				dst = io.MultiWriter(dst, &html)
			} else {
				dst = &html
			}
		}
		if dst == nil {
			return nil
		}
		_, err = io.Copy(dst, part.Body)
		return err
	})
	if err != nil {
		return err
	}

	if !sawText && html.Len() > 0 {
		_, err = io.WriteString(sinks.Text, html2text.HTML2Text(html.String()))
	}
	return err
}
