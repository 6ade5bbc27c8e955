package imapclient

import (
	"context"
	"io"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/internal/imapwire"
)

// List sends a LIST command with an empty reference and returns the
// mailboxes matching pattern. Responses that cannot be parsed are logged
// and skipped.
func (s *Session) List(ctx context.Context, pattern string) ([]*kamel.FolderDescriptor, error) {
	cmd, err := imapwire.NewEncoder("LIST").SP().Quoted("").SP().Quoted(pattern).Command()
	if err != nil {
		return nil, err
	}
	ex, err := s.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var l []*kamel.FolderDescriptor
	for {
		resp, err := ex.NextResponse(ctx)
		if err == io.EOF {
			return l, nil
		} else if err != nil {
			return l, err
		}
		if _, kind := responseKind(resp); kind != "LIST" {
			continue
		}
		desc, err := readList(resp)
		if err != nil {
			s.logger.Warn("skipping malformed LIST response", "error", err)
			continue
		}
		l = append(l, desc)
	}
}

// ListFolders returns the folders of the account. With onlyRoot, only
// top-level folders are listed.
func (p *Pool) ListFolders(ctx context.Context, onlyRoot bool) ([]*Folder, error) {
	s, err := p.Acquire(ctx, false)
	if err != nil {
		return nil, err
	}

	pattern := "*"
	if onlyRoot {
		pattern = "%"
	}
	descs, err := s.List(ctx, pattern)
	if err != nil {
		return nil, err
	}

	folders := make([]*Folder, len(descs))
	for i, desc := range descs {
		folders[i] = newFolder(p, desc)
	}
	return folders, nil
}
