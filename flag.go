package kamel

import (
	"strings"
)

// Flag is a message flag.
//
// A Flag is either one of the six system flags defined in RFC 3501 section
// 2.3.2 or an arbitrary keyword carried verbatim.
type Flag string

// System flags
const (
	FlagSeen     Flag = "\\Seen"
	FlagAnswered Flag = "\\Answered"
	FlagFlagged  Flag = "\\Flagged"
	FlagDeleted  Flag = "\\Deleted"
	FlagDraft    Flag = "\\Draft"
	FlagRecent   Flag = "\\Recent"
)

var systemFlags = []Flag{
	FlagSeen,
	FlagAnswered,
	FlagFlagged,
	FlagDeleted,
	FlagDraft,
	FlagRecent,
}

// ParseFlag returns the flag for a raw wire token. System flags are matched
// case-insensitively and returned in their canonical spelling; any other
// token is kept as is.
func ParseFlag(raw string) Flag {
	if strings.HasPrefix(raw, "\\") {
		for _, f := range systemFlags {
			if strings.EqualFold(raw, string(f)) {
				return f
			}
		}
	}
	return Flag(raw)
}

// IsSystem reports whether f is one of the system flags.
func (f Flag) IsSystem() bool {
	for _, sf := range systemFlags {
		if f == sf {
			return true
		}
	}
	return false
}

// FlagSet is an ordered set of flags without duplicates.
type FlagSet []Flag

// NewFlagSet parses raw flag tokens into a set, dropping duplicates.
func NewFlagSet(raw ...string) FlagSet {
	set := make(FlagSet, 0, len(raw))
	for _, s := range raw {
		set = set.Add(ParseFlag(s))
	}
	return set
}

// Add returns the set with f appended if it is not already present.
func (set FlagSet) Add(f Flag) FlagSet {
	if set.Has(f) {
		return set
	}
	return append(set, f)
}

// Has reports whether f is in the set.
func (set FlagSet) Has(f Flag) bool {
	for _, v := range set {
		if v == f {
			return true
		}
	}
	return false
}

// Strings returns the wire form of every flag in the set.
func (set FlagSet) Strings() []string {
	l := make([]string, len(set))
	for i, f := range set {
		l[i] = string(f)
	}
	return l
}
