package kamel

import (
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/overmail/kamel/mimetext"
)

// Participant is a sender or recipient of a message.
//
// Participants compare equal when both the address and the display name
// match.
type Participant struct {
	Address string
	Name    string
}

// NewParticipant builds a participant from the mailbox and host parts of an
// envelope address and its raw display name.
func NewParticipant(mailbox, host, rawName string) Participant {
	addr := mailbox
	if host != "" {
		addr = mailbox + "@" + host
	}
	return Participant{Address: addr, Name: DecodeDisplayName(rawName)}
}

// DecodeDisplayName cleans up a raw display name: the NIL marker and blank
// names become empty, surrounding double quotes are removed before MIME
// decoding and surrounding single quotes after.
func DecodeDisplayName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" || strings.EqualFold(name, "NIL") {
		return ""
	}
	name = trimPair(name, '"')
	name = mimetext.DecodeHeader(name)
	name = trimPair(strings.TrimSpace(name), '\'')
	return strings.TrimSpace(name)
}

func trimPair(s string, q byte) string {
	if len(s) >= 2 && s[0] == q && s[len(s)-1] == q {
		return s[1 : len(s)-1]
	}
	return s
}

func (p Participant) String() string {
	addr := mail.Address{Name: p.Name, Address: p.Address}
	return addr.String()
}

// ParticipantSet is an ordered set of participants. A known but empty set
// (for instance from a NIL address list) is a non-nil empty slice.
type ParticipantSet []Participant

// Add returns the set with p appended if it is not already present.
func (set ParticipantSet) Add(p Participant) ParticipantSet {
	if set.Contains(p) {
		return set
	}
	return append(set, p)
}

// Contains reports whether p is in the set.
func (set ParticipantSet) Contains(p Participant) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

// Addresses returns the bare addresses in set order.
func (set ParticipantSet) Addresses() []string {
	l := make([]string, len(set))
	for i, p := range set {
		l[i] = p.Address
	}
	return l
}

func (set ParticipantSet) String() string {
	l := make([]string, len(set))
	for i, p := range set {
		l[i] = p.String()
	}
	return strings.Join(l, ", ")
}
