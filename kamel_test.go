package kamel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/overmail/kamel"
)

func TestParseFlag(t *testing.T) {
	tests := []struct {
		raw    string
		flag   kamel.Flag
		system bool
	}{
		{"\\Seen", kamel.FlagSeen, true},
		{"\\SEEN", kamel.FlagSeen, true},
		{"\\answered", kamel.FlagAnswered, true},
		{"\\Flagged", kamel.FlagFlagged, true},
		{"\\Deleted", kamel.FlagDeleted, true},
		{"\\Draft", kamel.FlagDraft, true},
		{"\\Recent", kamel.FlagRecent, true},
		{"$Forwarded", kamel.Flag("$Forwarded"), false},
		{"\\Custom", kamel.Flag("\\Custom"), false},
		{"NonJunk", kamel.Flag("NonJunk"), false},
	}
	for _, tc := range tests {
		f := kamel.ParseFlag(tc.raw)
		if f != tc.flag {
			t.Errorf("ParseFlag(%q) = %q, want %q", tc.raw, f, tc.flag)
		}
		if f.IsSystem() != tc.system {
			t.Errorf("ParseFlag(%q).IsSystem() = %v, want %v", tc.raw, f.IsSystem(), tc.system)
		}
	}
}

func TestFlagSetRoundTrip(t *testing.T) {
	set := kamel.NewFlagSet("\\Seen", "\\flagged", "$Label1", "\\Seen", "\\Recent")
	assert.Equal(t, kamel.FlagSet{kamel.FlagSeen, kamel.FlagFlagged, "$Label1", kamel.FlagRecent}, set)
	assert.Equal(t, set, kamel.NewFlagSet(set.Strings()...))
	assert.True(t, set.Has(kamel.FlagFlagged))
	assert.False(t, set.Has(kamel.FlagDeleted))
}

func TestSpecialUseOf(t *testing.T) {
	tests := []struct {
		path  []string
		attrs []kamel.MailboxAttr
		want  kamel.SpecialUse
	}{
		{[]string{"INBOX"}, nil, kamel.SpecialUseInbox},
		{[]string{"inbox"}, []kamel.MailboxAttr{kamel.MailboxAttrHasNoChildren}, kamel.SpecialUseInbox},
		{[]string{"INBOX", "Sub"}, nil, kamel.SpecialUseNone},
		{[]string{"Papierkorb"}, []kamel.MailboxAttr{kamel.MailboxAttrTrash}, kamel.SpecialUseTrash},
		{[]string{"Spam"}, []kamel.MailboxAttr{kamel.MailboxAttrSpam}, kamel.SpecialUseJunk},
		{[]string{"Junk"}, []kamel.MailboxAttr{"\\junk"}, kamel.SpecialUseJunk},
		{[]string{"Sent"}, []kamel.MailboxAttr{kamel.MailboxAttrHasNoChildren, kamel.MailboxAttrSent}, kamel.SpecialUseSent},
		{[]string{"Drafts"}, []kamel.MailboxAttr{kamel.MailboxAttrDrafts}, kamel.SpecialUseDrafts},
		{[]string{"Archive"}, nil, kamel.SpecialUseNone},
	}
	for _, tc := range tests {
		if got := kamel.SpecialUseOf(tc.path, tc.attrs); got != tc.want {
			t.Errorf("SpecialUseOf(%v, %v) = %q, want %q", tc.path, tc.attrs, got, tc.want)
		}
	}
}

func TestFolderDescriptor(t *testing.T) {
	desc := kamel.NewFolderDescriptor("INBOX/Work/2024", "/", []kamel.MailboxAttr{kamel.MailboxAttrNoSelect})
	assert.Equal(t, []string{"INBOX", "Work", "2024"}, desc.Path)
	assert.Equal(t, "INBOX/Work/2024", desc.FullName())
	assert.Equal(t, "2024", desc.Name())
	assert.False(t, desc.Selectable())
	assert.Equal(t, kamel.SpecialUseNone, desc.SpecialUse)

	flat := kamel.NewFolderDescriptor("INBOX", "", nil)
	assert.Equal(t, []string{"INBOX"}, flat.Path)
	assert.Equal(t, kamel.SpecialUseInbox, flat.SpecialUse)
	assert.True(t, flat.Selectable())
}

func TestCell(t *testing.T) {
	var c kamel.Cell[string]
	v, ok := c.Get()
	assert.False(t, ok)
	assert.Equal(t, "", v)

	assert.True(t, c.Set("first"))
	assert.False(t, c.Set("second"))
	v, ok = c.Get()
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	var subject kamel.Cell[*string]
	subject.Merge(kamel.Known[*string](nil))
	s, ok := subject.Get()
	assert.True(t, ok)
	assert.Nil(t, s)

	var n kamel.Cell[uint32]
	n.Merge(kamel.Cell[uint32]{})
	assert.False(t, n.IsKnown())
}

func TestDecodeDisplayName(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"", ""},
		{"NIL", ""},
		{"   ", ""},
		{"Alice", "Alice"},
		{`"Alice Liddell"`, "Alice Liddell"},
		{"=?UTF-8?B?SsO8cmdlbg==?=", "Jürgen"},
		{"'Bob'", "Bob"},
		{"=?UTF-8?Q?'Bob_Smith'?=", "Bob Smith"},
	}
	for _, tc := range tests {
		if got := kamel.DecodeDisplayName(tc.raw); got != tc.want {
			t.Errorf("DecodeDisplayName(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParticipantSet(t *testing.T) {
	alice := kamel.NewParticipant("alice", "example.org", "Alice")
	assert.Equal(t, "alice@example.org", alice.Address)

	var set kamel.ParticipantSet
	set = set.Add(alice)
	set = set.Add(kamel.Participant{Address: "alice@example.org", Name: "Alice"})
	set = set.Add(kamel.Participant{Address: "alice@example.org", Name: "A."})
	assert.Len(t, set, 2)
	assert.True(t, set.Contains(alice))
	assert.Equal(t, []string{"alice@example.org", "alice@example.org"}, set.Addresses())
	assert.Equal(t, `"Alice" <alice@example.org>`, alice.String())
}

func TestSeqSet(t *testing.T) {
	tests := []struct {
		set  kamel.SeqSet
		want string
	}{
		{kamel.SeqSetRange(1, 0), "1:*"},
		{kamel.SeqSetRange(0, 0), "1:*"},
		{kamel.SeqSetRange(5, 5), "5"},
		{kamel.SeqSetRange(9, 3), "3:9"},
		{kamel.SeqSetNum(4, 1, 2, 3, 7, 9, 8, 12), "1:4,7:9,12"},
		{kamel.SeqSetNum(5, 5, 0), "5"},
		{kamel.SeqSet{{Start: 0, Stop: 0}}, "*"},
	}
	for _, tc := range tests {
		if got := tc.set.String(); got != tc.want {
			t.Errorf("%v.String() = %q, want %q", []kamel.SeqRange(tc.set), got, tc.want)
		}
	}

	set := kamel.SeqSetNum(1, 2, 3, 10)
	assert.True(t, set.Contains(2))
	assert.False(t, set.Contains(4))
	assert.False(t, set.Dynamic())
	assert.True(t, kamel.SeqSetRange(3, 0).Contains(1000))
	assert.True(t, kamel.SeqSetRange(3, 0).Dynamic())
}
