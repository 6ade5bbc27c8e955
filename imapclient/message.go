package imapclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/overmail/kamel"
)

// Message is a message record. Each field is a cell that stays unknown
// until the corresponding data item has been fetched; use Resolve to fetch
// what is missing.
type Message struct {
	// SeqNum is the message sequence number at the time of the fetch.
	SeqNum uint32

	UID   kamel.Cell[uint32]
	Flags kamel.Cell[kamel.FlagSet]

	// Envelope fields. A nil Subject or InReplyTo means the server sent
	// NIL. A NIL date is known as the zero time.
	Subject   kamel.Cell[*string]
	SentAt    kamel.Cell[time.Time]
	From      kamel.Cell[kamel.ParticipantSet]
	Sender    kamel.Cell[kamel.ParticipantSet]
	ReplyTo   kamel.Cell[kamel.ParticipantSet]
	To        kamel.Cell[kamel.ParticipantSet]
	Cc        kamel.Cell[kamel.ParticipantSet]
	Bcc       kamel.Cell[kamel.ParticipantSet]
	InReplyTo kamel.Cell[*string]
	MessageID kamel.Cell[string]

	InternalDate kamel.Cell[time.Time]
	Size         kamel.Cell[int64]
	// Body holds BODY[] when it was part of the fetch.
	Body kamel.Cell[[]byte]

	folder *Folder
}

// Folder returns the folder the message was fetched from.
func (msg *Message) Folder() *Folder {
	return msg.folder
}

// Merge fills the unknown fields of msg with the known fields of other.
func (msg *Message) Merge(other *Message) {
	msg.UID.Merge(other.UID)
	msg.Flags.Merge(other.Flags)
	msg.Subject.Merge(other.Subject)
	msg.SentAt.Merge(other.SentAt)
	msg.From.Merge(other.From)
	msg.Sender.Merge(other.Sender)
	msg.ReplyTo.Merge(other.ReplyTo)
	msg.To.Merge(other.To)
	msg.Cc.Merge(other.Cc)
	msg.Bcc.Merge(other.Bcc)
	msg.InReplyTo.Merge(other.InReplyTo)
	msg.MessageID.Merge(other.MessageID)
	msg.InternalDate.Merge(other.InternalDate)
	msg.Size.Merge(other.Size)
	msg.Body.Merge(other.Body)
	if msg.folder == nil {
		msg.folder = other.folder
	}
}

// envelopeKnown reports whether every envelope field is known.
func (msg *Message) envelopeKnown() bool {
	return msg.Subject.IsKnown() && msg.SentAt.IsKnown() &&
		msg.From.IsKnown() && msg.Sender.IsKnown() && msg.ReplyTo.IsKnown() &&
		msg.To.IsKnown() && msg.Cc.IsKnown() && msg.Bcc.IsKnown() &&
		msg.InReplyTo.IsKnown() && msg.MessageID.IsKnown()
}

// missing returns the fetch request items needed to complete msg.
func (msg *Message) missing() *FetchRequest {
	return &FetchRequest{
		Flags:    !msg.Flags.IsKnown(),
		Envelope: !msg.envelopeKnown(),
		UID:      !msg.UID.IsKnown(),
	}
}

// Resolve fetches the fields of msg that are still unknown.
func (msg *Message) Resolve(ctx context.Context) error {
	if msg.folder == nil {
		return fmt.Errorf("imapclient: message %v is not bound to a folder", msg.SeqNum)
	}
	return msg.folder.Resolve(ctx, msg)
}

// Content streams the body of the message into sinks.
func (msg *Message) Content(ctx context.Context, sinks *ContentSinks) error {
	if msg.folder == nil {
		return fmt.Errorf("imapclient: message %v is not bound to a folder", msg.SeqNum)
	}
	return msg.folder.Content(ctx, msg, sinks)
}

func (msg *Message) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%v", msg.SeqNum)
	if uid, ok := msg.UID.Get(); ok {
		fmt.Fprintf(&sb, " uid=%v", uid)
	}
	if t, ok := msg.SentAt.Get(); ok && !t.IsZero() {
		fmt.Fprintf(&sb, " date=%v", t.Format(time.RFC3339))
	}
	if from, ok := msg.From.Get(); ok && len(from) > 0 {
		fmt.Fprintf(&sb, " from=%q", from.String())
	}
	if subject, ok := msg.Subject.Get(); ok && subject != nil {
		fmt.Fprintf(&sb, " subject=%q", *subject)
	}
	if flags, ok := msg.Flags.Get(); ok {
		fmt.Fprintf(&sb, " flags=%v", flags.Strings())
	}
	return sb.String()
}
