package imapclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/overmail/kamel/internal/imapwire"
)

// CapSet is a set of capabilities advertised by the server. Names are
// stored upper-cased.
type CapSet map[string]struct{}

// Has checks whether a capability is supported.
func (caps CapSet) Has(name string) bool {
	_, ok := caps[strings.ToUpper(name)]
	return ok
}

// Capability sends a CAPABILITY command. The result is remembered and
// returned by Caps.
func (s *Session) Capability(ctx context.Context) (CapSet, error) {
	resps, err := s.Run(ctx, "CAPABILITY")
	if err != nil {
		return nil, err
	}
	var caps CapSet
	for _, resp := range resps {
		dec := imapwire.NewDecoder(resp)
		if _, kind, ok := untagged(dec); !ok || kind != "CAPABILITY" {
			continue
		}
		if caps, err = readCapabilities(dec); err != nil {
			return nil, newParseError(resp, dec, "CAPABILITY", err)
		}
	}
	if caps == nil {
		return nil, fmt.Errorf("imapclient: no CAPABILITY response")
	}
	s.setCaps(caps)
	return caps, nil
}

// Caps returns the last known capabilities, as advertised in the greeting
// or returned by Capability. It returns nil if none are known.
func (s *Session) Caps() CapSet {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.caps
}

func (s *Session) setCaps(caps CapSet) {
	s.mutex.Lock()
	s.caps = caps
	s.mutex.Unlock()
}

func readCapabilities(dec *imapwire.Decoder) (CapSet, error) {
	caps := make(CapSet)
	for dec.SP() {
		var name string
		if !dec.ExpectAtom(&name) {
			return caps, fmt.Errorf("in capability-data: %v", dec.Err())
		}
		caps[strings.ToUpper(name)] = struct{}{}
	}
	return caps, nil
}

// capsFromText extracts a CAPABILITY response code, as found in a greeting
// such as "[CAPABILITY IMAP4rev1 IDLE] ready".
func capsFromText(text string) CapSet {
	text, ok := strings.CutPrefix(text, "[")
	if !ok {
		return nil
	}
	code, _, ok := strings.Cut(text, "]")
	if !ok {
		return nil
	}
	dec := imapwire.NewDecoder([]byte(code))
	var name string
	if !dec.Atom(&name) || !strings.EqualFold(name, "CAPABILITY") {
		return nil
	}
	caps, err := readCapabilities(dec)
	if err != nil {
		return nil
	}
	return caps
}
