package imapclient

import (
	"context"
	"errors"
	"io"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/internal/imapwire"
)

// FetchRequest selects the messages and data items of a FETCH.
//
// If none of the item fields are set, FLAGS, ENVELOPE and UID are fetched.
type FetchRequest struct {
	// Set selects the messages. A nil set means every message (1:*).
	Set kamel.SeqSet
	// ByUID interprets Set as UIDs and sends UID FETCH.
	ByUID bool

	Flags        bool
	Envelope     bool
	UID          bool
	InternalDate bool
	Size         bool

	// Diagnostic attaches the partially parsed record to each ParseError.
	Diagnostic bool
}

// FetchRange returns a request for the sequence range from:to. A zero to
// means the last message.
func FetchRange(from, to uint32) *FetchRequest {
	return &FetchRequest{Set: kamel.SeqSetRange(from, to)}
}

// FetchIDs returns a request for the given sequence numbers.
func FetchIDs(ids ...uint32) *FetchRequest {
	return &FetchRequest{Set: kamel.SeqSetNum(ids...)}
}

// FetchOne returns a request for a single sequence number.
func FetchOne(id uint32) *FetchRequest {
	return FetchIDs(id)
}

func (req *FetchRequest) items() []string {
	flags, envelope, uid := req.Flags, req.Envelope, req.UID
	if !flags && !envelope && !uid && !req.InternalDate && !req.Size {
		flags, envelope, uid = true, true, true
	}

	var items []string
	if flags {
		items = append(items, "FLAGS")
	}
	if envelope {
		items = append(items, "ENVELOPE")
	}
	if uid {
		items = append(items, "UID")
	}
	if req.InternalDate {
		items = append(items, "INTERNALDATE")
	}
	if req.Size {
		items = append(items, "RFC822.SIZE")
	}
	return items
}

func (req *FetchRequest) command() (string, error) {
	set := req.Set
	if set == nil {
		set = kamel.SeqSetRange(1, 0)
	}
	name := "FETCH"
	if req.ByUID {
		name = "UID FETCH"
	}
	items := req.items()
	enc := imapwire.NewEncoder(name).SP().SeqSet(set).SP()
	enc.List(len(items), func(i int) {
		enc.Atom(items[i])
	})
	return enc.Command()
}

// Fetch fetches the messages selected by req.
//
// Messages that cannot be parsed don't abort the fetch: the others are
// returned together with a *FetchError describing the failures.
func (f *Folder) Fetch(ctx context.Context, req *FetchRequest) ([]*Message, error) {
	if req == nil {
		req = &FetchRequest{}
	}

	s, err := f.selected(ctx)
	if err != nil {
		return nil, err
	}

	if req.Set == nil || req.Set.Dynamic() {
		ids, err := s.SearchAll(ctx)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
	}

	msgs, err := s.fetch(ctx, req)
	for _, msg := range msgs {
		msg.folder = f
	}
	return msgs, err
}

func (s *Session) fetch(ctx context.Context, req *FetchRequest) ([]*Message, error) {
	cmd, err := req.command()
	if err != nil {
		return nil, err
	}
	ex, err := s.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var (
		msgs     []*Message
		bySeq    = make(map[uint32]*Message)
		failures []*ParseError
	)
	for {
		resp, err := ex.NextResponse(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return msgs, err
		}
		if _, kind := responseKind(resp); kind != "FETCH" {
			continue
		}

		msg, err := readFetch(resp, req.Diagnostic)
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				s.logger.Warn("skipping unparseable message", "field", perr.Field, "error", perr.Err)
				failures = append(failures, perr)
				continue
			}
			return msgs, err
		}
		if prev, ok := bySeq[msg.SeqNum]; ok {
			prev.Merge(msg)
			continue
		}
		bySeq[msg.SeqNum] = msg
		msgs = append(msgs, msg)
	}

	if len(failures) > 0 {
		return msgs, &FetchError{Failures: failures}
	}
	return msgs, nil
}

// Resolve fetches the fields of msg that are still unknown. Fields that are
// already known are never overwritten. The message is addressed by UID when
// known, by sequence number otherwise.
func (f *Folder) Resolve(ctx context.Context, msg *Message) error {
	req := msg.missing()
	if !req.Flags && !req.Envelope && !req.UID {
		return nil
	}
	if uid, ok := msg.UID.Get(); ok {
		req.Set = kamel.SeqSetNum(uid)
		req.ByUID = true
	} else if msg.SeqNum != 0 {
		req.Set = kamel.SeqSetNum(msg.SeqNum)
	} else {
		return ErrUIDUnknown
	}

	s, err := f.selected(ctx)
	if err != nil {
		return err
	}
	fetched, err := s.fetch(ctx, req)
	if err != nil {
		return err
	}
	for _, other := range fetched {
		if req.ByUID {
			if uid, ok := other.UID.Get(); ok && uid != msg.UID.Value() {
				continue
			}
		} else if other.SeqNum != msg.SeqNum {
			continue
		}
		msg.Merge(other)
	}
	if msg.folder == nil {
		msg.folder = f
	}
	return nil
}
