// Package kamel holds the protocol vocabulary shared by the kamel IMAP
// client: flags, mailbox attributes, folder descriptors, participants and
// the two-state cells used by lazily populated message records.
//
// IMAP4rev1 is defined in RFC 3501.
package kamel

import (
	"strings"
)

// MailboxAttr is a mailbox attribute as returned by LIST.
//
// Mailbox attributes are defined in RFC 3501 section 7.2.2 and RFC 6154.
type MailboxAttr string

const (
	// Base attributes
	MailboxAttrNoInferiors   MailboxAttr = "\\Noinferiors"
	MailboxAttrNoSelect      MailboxAttr = "\\Noselect"
	MailboxAttrMarked        MailboxAttr = "\\Marked"
	MailboxAttrUnmarked      MailboxAttr = "\\Unmarked"
	MailboxAttrHasChildren   MailboxAttr = "\\HasChildren"
	MailboxAttrHasNoChildren MailboxAttr = "\\HasNoChildren"

	// Role (aka. "special-use") attributes
	MailboxAttrAll     MailboxAttr = "\\All"
	MailboxAttrArchive MailboxAttr = "\\Archive"
	MailboxAttrDrafts  MailboxAttr = "\\Drafts"
	MailboxAttrFlagged MailboxAttr = "\\Flagged"
	MailboxAttrJunk    MailboxAttr = "\\Junk"
	MailboxAttrSent    MailboxAttr = "\\Sent"
	MailboxAttrTrash   MailboxAttr = "\\Trash"

	// Non-standard junk attribute used by some servers.
	MailboxAttrSpam MailboxAttr = "\\Spam"
)

// SpecialUse is the role a folder plays for the user. The zero value means
// the folder has no special role.
type SpecialUse string

const (
	SpecialUseNone   SpecialUse = ""
	SpecialUseInbox  SpecialUse = "INBOX"
	SpecialUseSent   SpecialUse = "SENT"
	SpecialUseJunk   SpecialUse = "JUNK"
	SpecialUseTrash  SpecialUse = "TRASH"
	SpecialUseDrafts SpecialUse = "DRAFTS"
)

// Inbox is the case-insensitive name of the primary mailbox.
const Inbox = "INBOX"

// SpecialUseOf derives the role of a folder from its path and attributes.
// Attributes win over the INBOX name match.
func SpecialUseOf(path []string, attrs []MailboxAttr) SpecialUse {
	for _, attr := range attrs {
		switch {
		case strings.EqualFold(string(attr), string(MailboxAttrTrash)):
			return SpecialUseTrash
		case strings.EqualFold(string(attr), string(MailboxAttrJunk)),
			strings.EqualFold(string(attr), string(MailboxAttrSpam)):
			return SpecialUseJunk
		case strings.EqualFold(string(attr), string(MailboxAttrSent)):
			return SpecialUseSent
		case strings.EqualFold(string(attr), string(MailboxAttrDrafts)):
			return SpecialUseDrafts
		}
	}
	if len(path) == 1 && strings.EqualFold(path[0], Inbox) {
		return SpecialUseInbox
	}
	return SpecialUseNone
}
