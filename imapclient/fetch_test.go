package imapclient_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overmail/kamel"
	"github.com/overmail/kamel/imapclient"
	"github.com/overmail/kamel/internal/imaptest"
)

// mailbox is a scripted single-folder server.
type mailbox struct {
	mutex    sync.Mutex
	commands []string

	exists  int
	search  string
	fetch   []string
	bodies  map[string][]byte
}

func (mbox *mailbox) record(name, args string) {
	mbox.mutex.Lock()
	mbox.commands = append(mbox.commands, strings.TrimSpace(name+" "+args))
	mbox.mutex.Unlock()
}

func (mbox *mailbox) seen(name string) []string {
	mbox.mutex.Lock()
	defer mbox.mutex.Unlock()
	var l []string
	for _, cmd := range mbox.commands {
		if strings.HasPrefix(cmd, name+" ") || cmd == name {
			l = append(l, cmd)
		}
	}
	return l
}

func (mbox *mailbox) fetchLines() []string {
	mbox.mutex.Lock()
	defer mbox.mutex.Unlock()
	return mbox.fetch
}

func (mbox *mailbox) mux() imaptest.Mux {
	mux := baseMux()
	mux["SELECT"] = func(c *imaptest.Conn, tag, args string) error {
		mbox.record("SELECT", args)
		if args != `"INBOX"` && args != "INBOX" {
			return c.Writef("%s NO [NONEXISTENT] no such mailbox", tag)
		}
		c.Writef("* %d EXISTS", mbox.exists)
		c.Writef("* OK [UIDVALIDITY 1700000000] UIDs valid")
		c.Writef("* OK [UIDNEXT 43] Predicted next UID")
		return c.Writef("%s OK [READ-WRITE] SELECT completed", tag)
	}
	mux["SEARCH"] = func(c *imaptest.Conn, tag, args string) error {
		mbox.record("SEARCH", args)
		c.Writef("* SEARCH%s", mbox.search)
		return c.Writef("%s OK SEARCH completed", tag)
	}
	mux["FETCH"] = func(c *imaptest.Conn, tag, args string) error {
		mbox.record("FETCH", args)
		for _, line := range mbox.fetchLines() {
			if err := c.Writef("%s", line); err != nil {
				return err
			}
		}
		return c.Writef("%s OK FETCH completed", tag)
	}
	mux["UID FETCH"] = func(c *imaptest.Conn, tag, args string) error {
		mbox.record("UID FETCH", args)
		uid, items, _ := strings.Cut(args, " ")
		if items == "BODY[]" {
			if body, ok := mbox.bodies[uid]; ok {
				if err := c.WriteLiteral("* 1 FETCH (UID "+uid+" BODY[] ", body, ")"); err != nil {
					return err
				}
			}
		} else {
			for _, line := range mbox.fetchLines() {
				if err := c.Writef("%s", line); err != nil {
					return err
				}
			}
		}
		return c.Writef("%s OK UID FETCH completed", tag)
	}
	return mux
}

func newTestFolder(t *testing.T, mbox *mailbox) (*imapclient.Pool, *imapclient.Folder) {
	p, _ := newTestPool(t, mbox.mux(), 4)
	f := p.Folder(kamel.NewFolderDescriptor("INBOX", "/", nil))
	t.Cleanup(func() {
		f.Close()
	})
	return p, f
}

const scenarioFetch = `* 1 FETCH (FLAGS (\Seen \Flagged) UID 42 ENVELOPE ("Fri, 1 Jan 2021 10:00:00 +0100" "Hi" (("A" NIL "a" "b.com")) (("A" NIL "a" "b.com")) NIL (("B" NIL "c" "d.com")) NIL NIL NIL "<m1@b.com>"))`

func TestFolder_fetch(t *testing.T) {
	ctx := testContext(t)
	mbox := &mailbox{exists: 1, search: " 1", fetch: []string{scenarioFetch}}
	_, f := newTestFolder(t, mbox)

	msgs, err := f.Fetch(ctx, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msg := msgs[0]
	assert.Same(t, f, msg.Folder())
	assert.Equal(t, uint32(42), msg.UID.Value())
	assert.Equal(t, kamel.NewFlagSet(`\Seen`, `\Flagged`), msg.Flags.Value())
	assert.Equal(t, "Hi", *msg.Subject.Value())
	assert.Equal(t, kamel.ParticipantSet{{Address: "a@b.com", Name: "A"}}, msg.From.Value())
	assert.Equal(t, kamel.ParticipantSet{{Address: "c@d.com", Name: "B"}}, msg.To.Value())
	assert.True(t, msg.SentAt.Value().Equal(time.Date(2021, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, "m1@b.com", msg.MessageID.Value())

	assert.Equal(t, []string{`SELECT "INBOX"`}, mbox.seen("SELECT"))
	assert.Equal(t, []string{"SEARCH ALL"}, mbox.seen("SEARCH"))
	assert.Equal(t, []string{"FETCH 1:* (FLAGS ENVELOPE UID)"}, mbox.seen("FETCH"))

	data := f.SelectData()
	require.NotNil(t, data)
	assert.Equal(t, uint32(1), data.NumMessages)
	assert.Equal(t, uint32(43), data.UIDNext)
}

func TestFolder_fetchItems(t *testing.T) {
	ctx := testContext(t)
	mbox := &mailbox{exists: 3, search: " 1 2 3", fetch: []string{
		`* 2 FETCH (UID 8)`,
		`* 3 FETCH (UID 9)`,
	}}
	_, f := newTestFolder(t, mbox)

	req := imapclient.FetchRange(2, 3)
	req.UID = true
	msgs, err := f.Fetch(ctx, req)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].Flags.IsKnown())
	assert.False(t, msgs[0].Subject.IsKnown())

	// a static set needs no SEARCH
	assert.Empty(t, mbox.seen("SEARCH"))
	assert.Equal(t, []string{"FETCH 2:3 (UID)"}, mbox.seen("FETCH"))

	_, err = f.Fetch(ctx, imapclient.FetchIDs(3, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, "FETCH 1:3 (FLAGS ENVELOPE UID)", mbox.seen("FETCH")[1])
}

func TestFolder_fetchEmpty(t *testing.T) {
	ctx := testContext(t)
	mbox := &mailbox{exists: 0}
	_, f := newTestFolder(t, mbox)

	msgs, err := f.Fetch(ctx, imapclient.FetchRange(1, 0))
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, mbox.seen("FETCH"))

	ids, err := f.SearchAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestFolder_fetchPartialFailure(t *testing.T) {
	ctx := testContext(t)
	mbox := &mailbox{exists: 3, search: " 1 2 3", fetch: []string{
		`* 1 FETCH (UID 1 FLAGS ())`,
		`* 2 FETCH (UID 2 FLAGS (\Seen)`,
		`* 3 FETCH (UID 3 FLAGS (\Deleted))`,
	}}
	_, f := newTestFolder(t, mbox)

	req := &imapclient.FetchRequest{Flags: true, UID: true, Diagnostic: true}
	msgs, err := f.Fetch(ctx, req)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint32(1), msgs[0].UID.Value())
	assert.Equal(t, uint32(3), msgs[1].UID.Value())

	var fetchErr *imapclient.FetchError
	require.True(t, errors.As(err, &fetchErr), "Fetch() = %v", err)
	require.Len(t, fetchErr.Failures, 1)
	failure := fetchErr.Failures[0]
	assert.Contains(t, failure.Response, `* 2 FETCH`)
	require.NotNil(t, failure.Partial)
	assert.Equal(t, uint32(2), failure.Partial.UID.Value())

	var parseErr *imapclient.ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestFolder_selectFailure(t *testing.T) {
	ctx := testContext(t)
	mbox := &mailbox{}
	p, _ := newTestPool(t, mbox.mux(), 2)
	f := p.Folder(kamel.NewFolderDescriptor("Nope", "/", nil))

	_, err := f.SearchAll(ctx)
	var statusErr *imapclient.StatusError
	require.True(t, errors.As(err, &statusErr), "SearchAll() = %v", err)
	assert.Equal(t, imapclient.StatusNO, statusErr.Type)
	assert.Equal(t, 0, p.Size())
}

func TestFolder_dedicatedSession(t *testing.T) {
	ctx := testContext(t)
	mbox := &mailbox{exists: 1, search: " 1"}
	p, f := newTestFolder(t, mbox)

	require.NoError(t, f.Open(ctx))
	_, err := f.SearchAll(ctx)
	require.NoError(t, err)

	shared, err := p.Acquire(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Size())
	_, err = shared.Run(ctx, "NOOP")
	require.NoError(t, err)
	assert.Len(t, mbox.seen("SELECT"), 1)

	require.NoError(t, f.Close())
	assert.Equal(t, 1, p.Size())
}

func TestMessage_resolve(t *testing.T) {
	ctx := testContext(t)
	mbox := &mailbox{exists: 1, search: " 1", fetch: []string{`* 1 FETCH (UID 42)`}}
	_, f := newTestFolder(t, mbox)

	msgs, err := f.Fetch(ctx, &imapclient.FetchRequest{UID: true})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	msg := msgs[0]
	require.False(t, msg.Subject.IsKnown())

	mbox.mutex.Lock()
	mbox.fetch = []string{scenarioFetch}
	mbox.mutex.Unlock()

	require.NoError(t, msg.Resolve(ctx))
	assert.Equal(t, []string{"UID FETCH 42 (FLAGS ENVELOPE)"}, mbox.seen("UID FETCH"))
	assert.Equal(t, "Hi", *msg.Subject.Value())
	assert.True(t, msg.Flags.Value().Has(kamel.FlagSeen))
	assert.Equal(t, uint32(42), msg.UID.Value())

	// nothing left to resolve
	require.NoError(t, msg.Resolve(ctx))
	assert.Len(t, mbox.seen("UID FETCH"), 1)
}

func TestMessage_unbound(t *testing.T) {
	ctx := testContext(t)
	msg := &imapclient.Message{SeqNum: 1}
	assert.Error(t, msg.Resolve(ctx))
	assert.Error(t, msg.Content(ctx, nil))
}

const multipartBody = "From: a@b.com\r\n" +
	"Subject: Hi\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"preamble\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Caf=C3=A9 time\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Caf&eacute; time</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/octet-stream\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"AAECAw==\r\n" +
	"--outer--\r\n"

func TestMessage_content(t *testing.T) {
	ctx := testContext(t)
	mbox := &mailbox{
		exists: 1,
		search: " 1",
		fetch:  []string{`* 1 FETCH (UID 42)`},
		bodies: map[string][]byte{"42": []byte(multipartBody)},
	}
	_, f := newTestFolder(t, mbox)

	msgs, err := f.Fetch(ctx, &imapclient.FetchRequest{UID: true})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var raw, text, html bytes.Buffer
	err = msgs[0].Content(ctx, &imapclient.ContentSinks{Raw: &raw, Text: &text, HTML: &html})
	require.NoError(t, err)
	assert.Equal(t, multipartBody, raw.String())
	assert.Equal(t, "Caf=C3=A9 time\r\n", text.String())
	assert.Equal(t, "<p>Caf&eacute; time</p>\r\n", html.String())
	assert.Equal(t, []string{"UID FETCH 42 BODY[]"}, mbox.seen("UID FETCH"))

	text.Reset()
	err = msgs[0].Content(ctx, &imapclient.ContentSinks{Text: &text, Decode: true})
	require.NoError(t, err)
	assert.Equal(t, "Café time", text.String())

	noUID := &imapclient.Message{SeqNum: 1}
	assert.ErrorIs(t, f.Content(ctx, noUID, nil), imapclient.ErrUIDUnknown)
}
