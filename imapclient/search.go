package imapclient

import (
	"context"
	"io"
)

// SearchAll returns the sequence numbers of every message in the folder.
func (f *Folder) SearchAll(ctx context.Context) ([]uint32, error) {
	s, err := f.selected(ctx)
	if err != nil {
		return nil, err
	}
	return s.SearchAll(ctx)
}

// SearchAll sends SEARCH ALL on the selected mailbox.
func (s *Session) SearchAll(ctx context.Context) ([]uint32, error) {
	ex, err := s.Execute(ctx, "SEARCH ALL")
	if err != nil {
		return nil, err
	}
	ids := []uint32{}
	for {
		resp, err := ex.NextResponse(ctx)
		if err == io.EOF {
			return ids, nil
		} else if err != nil {
			return nil, err
		}
		if _, kind := responseKind(resp); kind != "SEARCH" {
			continue
		}
		l, err := readSearch(resp)
		if err != nil {
			return nil, err
		}
		ids = append(ids, l...)
	}
}
