// Package mimetext decodes the MIME text encodings found in message headers
// and bodies.
//
// Encoded words are defined in RFC 2047, quoted-printable in RFC 2045
// section 6.7.
package mimetext

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/ianaindex"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: CharsetReader}

// CharsetReader returns a reader converting input from the named charset to
// UTF-8. The go-message charset table is consulted first, then the IANA
// registry.
func CharsetReader(name string, input io.Reader) (io.Reader, error) {
	r, err := charset.Reader(name, input)
	if err == nil {
		return r, nil
	}
	enc, ierr := ianaindex.IANA.Encoding(name)
	if ierr != nil || enc == nil {
		return nil, fmt.Errorf("mimetext: unhandled charset %q", name)
	}
	return enc.NewDecoder().Reader(input), nil
}

// DecodeHeader decodes every encoded word in s. Whitespace between two
// adjacent encoded words is dropped. Text without encoded words is returned
// unchanged, and so is a header that cannot be decoded.
func DecodeHeader(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}
	dec, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return dec
}

// DecodeQuotedPrintable decodes a quoted-printable body and converts it from
// the given charset to UTF-8. An empty charset means UTF-8.
func DecodeQuotedPrintable(b []byte, charsetName string) (string, error) {
	var r io.Reader = quotedprintable.NewReader(bytes.NewReader(b))
	r, err := convert(r, charsetName)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("mimetext: decoding quoted-printable: %w", err)
	}
	return string(out), nil
}

func convert(r io.Reader, charsetName string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charsetName)) {
	case "", "utf-8", "utf8", "us-ascii":
		return r, nil
	}
	return CharsetReader(charsetName, r)
}
