package imapclient

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/internal/imapwire"
)

// SelectData is the mailbox state reported by SELECT.
type SelectData struct {
	Flags       kamel.FlagSet
	NumMessages uint32
	NumRecent   uint32
	UIDNext     uint32
	UIDValidity uint32
}

// Select sends a SELECT command.
func (s *Session) Select(ctx context.Context, mailbox string) (*SelectData, error) {
	cmd, err := imapwire.NewEncoder("SELECT").SP().Mailbox(mailbox).Command()
	if err != nil {
		return nil, err
	}
	resps, err := s.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	data := &SelectData{}
	for _, resp := range resps {
		readSelectData(resp, data)
	}
	return data, nil
}

func readSelectData(resp []byte, data *SelectData) {
	dec := imapwire.NewDecoder(resp)
	num, kind, ok := untagged(dec)
	if !ok {
		return
	}
	switch kind {
	case "EXISTS":
		data.NumMessages = num
	case "RECENT":
		data.NumRecent = num
	case "FLAGS":
		if dec.SP() {
			if flags, err := readFlagList(dec); err == nil {
				data.Flags = flags
			}
		}
	case "OK":
		var code string
		if !dec.SP() || !dec.Special('[') || !dec.Atom(&code) || !dec.SP() {
			return
		}
		n, ok := dec.Number()
		if !ok {
			return
		}
		switch strings.ToUpper(code) {
		case "UIDNEXT":
			data.UIDNext = n
		case "UIDVALIDITY":
			data.UIDValidity = n
		}
	}
}

// Folder is a handle on one mailbox. It owns a dedicated session, opened
// and SELECTed on first use and replaced if the connection fails.
type Folder struct {
	pool   *Pool
	desc   *kamel.FolderDescriptor
	logger *slog.Logger

	mutex   sync.Mutex
	session *Session
	data    *SelectData
}

func newFolder(p *Pool, desc *kamel.FolderDescriptor) *Folder {
	return &Folder{
		pool:   p,
		desc:   desc,
		logger: p.logger.With("mailbox", desc.FullName()),
	}
}

// Descriptor returns the folder descriptor.
func (f *Folder) Descriptor() *kamel.FolderDescriptor {
	return f.desc
}

// Name returns the full mailbox name.
func (f *Folder) Name() string {
	return f.desc.FullName()
}

// Open acquires the folder's session and selects the mailbox. Other methods
// call it as needed.
func (f *Folder) Open(ctx context.Context) error {
	_, err := f.selected(ctx)
	return err
}

// SelectData returns the mailbox state reported when the folder was last
// opened, or nil.
func (f *Folder) SelectData() *SelectData {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.data
}

func (f *Folder) selected(ctx context.Context) (*Session, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.session != nil {
		if !f.session.Broken() {
			return f.session, nil
		}
		f.logger.Info("folder session lost, reopening", "error", f.session.Err())
		f.pool.Release(f.session)
		f.session = nil
	}

	s, data, err := openFolderSession(ctx, f.pool, f.desc)
	if err != nil {
		return nil, err
	}
	f.session = s
	f.data = data
	return s, nil
}

// openFolderSession acquires a dedicated session and selects desc on it.
func openFolderSession(ctx context.Context, p *Pool, desc *kamel.FolderDescriptor) (*Session, *SelectData, error) {
	s, err := p.Acquire(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Select(ctx, desc.FullName())
	if err != nil {
		p.Release(s)
		return nil, nil, err
	}
	return s, data, nil
}

// Close releases the folder's session.
func (f *Folder) Close() error {
	f.mutex.Lock()
	s := f.session
	f.session = nil
	f.mutex.Unlock()

	if s == nil {
		return nil
	}
	return f.pool.Release(s)
}
