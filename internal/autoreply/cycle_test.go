package autoreply

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/source"
	"github.com/nhle/mail-autoreply/tests/testutil"
)

type fakeGateway struct {
	unread  []string
	msgs    map[string]*source.Message
	listErr error
	getErr  map[string]error
	sendErr error
	readErr error

	listMax  int
	sent     []source.OutgoingReply
	markRead []string
	closed   bool
}

func (g *fakeGateway) ListUnread(_ context.Context, max int) ([]string, error) {
	g.listMax = max
	if g.listErr != nil {
		return nil, g.listErr
	}
	if len(g.unread) > max {
		return g.unread[:max], nil
	}
	return g.unread, nil
}

func (g *fakeGateway) Get(_ context.Context, id string) (*source.Message, error) {
	if err := g.getErr[id]; err != nil {
		return nil, err
	}
	m, ok := g.msgs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}

func (g *fakeGateway) Send(_ context.Context, r source.OutgoingReply) error {
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, r)
	return nil
}

func (g *fakeGateway) MarkRead(_ context.Context, id string) error {
	if g.readErr != nil {
		return g.readErr
	}
	g.markRead = append(g.markRead, id)
	return nil
}

func (g *fakeGateway) Close() error {
	g.closed = true
	return nil
}

func (g *fakeGateway) add(id, from, subject, body string) {
	if g.msgs == nil {
		g.msgs = map[string]*source.Message{}
	}
	g.unread = append(g.unread, id)
	g.msgs[id] = &source.Message{
		ID:       id,
		ThreadID: "thread-" + id,
		Headers: []source.Header{
			{Name: "From", Value: from},
			{Name: "Subject", Value: subject},
			{Name: "Message-ID", Value: "<" + id + "@example.com>"},
		},
		Payload: source.Part{
			MimeType: "text/plain",
			Data:     base64.URLEncoding.EncodeToString([]byte(body)),
		},
	}
}

type fakeNotifier struct {
	pushed []string
	err    error
}

func (n *fakeNotifier) Push(_ context.Context, text string) error {
	n.pushed = append(n.pushed, text)
	return n.err
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)

func newCycle(gw *fakeGateway) (*Cycle, *fakeNotifier) {
	n := &fakeNotifier{}
	return &Cycle{
		Opener: source.OpenerFunc(func(context.Context) (source.Gateway, error) {
			return gw, nil
		}),
		Summarizer: &fakeSummarizer{out: "summary"},
		Notifier:   n,
		Now:        func() time.Time { return fixedNow },
	}, n
}

func settings(filter bool) Settings {
	return Settings{
		MaxEmails:     10,
		Interval:      30 * time.Minute,
		FilterEnabled: filter,
		Template:      ReplyTemplate{Body: "Thanks"},
	}
}

func TestRunSkipsFilteredSender(t *testing.T) {
	gw := &fakeGateway{}
	gw.add("m1", "Sales <sales@noreply.example.com>", "Deal", "buy now")
	c, n := newCycle(gw)

	st, rep, err := c.Run(context.Background(), LoopState{Enabled: true, Replies: 3}, settings(true))
	be.Err(t, err, nil)

	be.Equal(t, gw.markRead, []string{"m1"})
	be.Equal(t, len(gw.sent), 0)
	be.Equal(t, len(n.pushed), 0)
	be.Equal(t, st.Replies, 3)
	be.Equal(t, len(st.Log), 1)
	be.Equal(t, st.Log[0].Status, StatusSkipped)
	be.Equal(t, rep.Skipped, 1)
	be.True(t, gw.closed)
}

func TestRunRepliesToSender(t *testing.T) {
	gw := &fakeGateway{}
	gw.add("m1", "Bob <bob@example.com>", "Question", "What is the price?")
	c, n := newCycle(gw)

	st, rep, err := c.Run(context.Background(), LoopState{Enabled: true}, settings(false))
	be.Err(t, err, nil)

	be.Equal(t, n.pushed, []string{"Received: Question\n\nsummary"})
	be.Equal(t, len(gw.sent), 1)
	be.Equal(t, gw.sent[0].To, "bob@example.com")
	be.Equal(t, gw.sent[0].ThreadID, "thread-m1")

	p := parseReply(t, gw.sent[0])
	subject, _ := p.header.Subject()
	be.Equal(t, subject, "Re: Question")
	be.Equal(t, strings.TrimSpace(p.body), "Thanks")

	be.Equal(t, st.Replies, 1)
	be.Equal(t, st.Log[0].Status, StatusReplied)
	be.Equal(t, st.Log[0].From, "Bob <bob@example.com>")
	be.Equal(t, st.Log[0].Clock(), "09:30:00")
	be.Equal(t, gw.markRead, []string{"m1"})
	be.Equal(t, rep.Replied, 1)
	be.True(t, st.NextRun.Equal(fixedNow.Add(30*time.Minute)))
}

func TestRunListingFailureLeavesStateUntouched(t *testing.T) {
	gw := &fakeGateway{listErr: errors.New("503 backend error")}
	c, _ := newCycle(gw)

	before := LoopState{
		Enabled: true,
		NextRun: fixedNow.Add(-time.Minute),
		Replies: 2,
		Log:     []LogEntry{{Status: StatusReplied}},
	}
	after, _, err := c.Run(context.Background(), before, settings(false))
	be.True(t, err != nil)
	be.Equal(t, after.Replies, before.Replies)
	be.Equal(t, after.Log, before.Log)
	be.True(t, after.NextRun.Equal(before.NextRun))
}

func TestRunCredentialErrorIsReturned(t *testing.T) {
	c := &Cycle{
		Opener: source.OpenerFunc(func(context.Context) (source.Gateway, error) {
			return nil, &source.CredentialError{Provider: source.ProviderGmail, Message: "token.json missing"}
		}),
	}
	st := LoopState{Enabled: true, Replies: 1}
	after, _, err := c.Run(context.Background(), st, settings(false))
	be.True(t, source.IsCredentialError(err))
	be.Equal(t, after.Replies, 1)
	be.True(t, after.NextRun.IsZero())
}

func TestRunNoUnreadMessages(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newCycle(gw)

	st, rep, err := c.Run(context.Background(), LoopState{Enabled: true}, settings(false))
	be.Err(t, err, nil)
	be.Equal(t, len(st.Log), 0)
	be.Equal(t, rep.Listed, 0)
	be.True(t, st.NextRun.Equal(fixedNow.Add(30*time.Minute)))
}

func TestRunPassesMaxEmails(t *testing.T) {
	gw := &fakeGateway{}
	c, _ := newCycle(gw)
	set := settings(false)
	set.MaxEmails = 3

	_, _, err := c.Run(context.Background(), LoopState{}, set)
	be.Err(t, err, nil)
	be.Equal(t, gw.listMax, 3)
}

func TestRunSendFailureStillMarksRead(t *testing.T) {
	gw := &fakeGateway{sendErr: errors.New("quota exceeded")}
	gw.add("m1", "bob@example.com", "Hi", "x")
	c, _ := newCycle(gw)

	st, rep, err := c.Run(context.Background(), LoopState{Enabled: true}, settings(false))
	be.Err(t, err, nil)
	be.Equal(t, st.Replies, 0)
	be.True(t, strings.HasPrefix(st.Log[0].Status, "Error: "))
	be.True(t, strings.Contains(st.Log[0].Status, "quota exceeded"))
	be.Equal(t, gw.markRead, []string{"m1"})
	be.Equal(t, rep.Failed, 1)
}

func TestRunInvalidReplyAddress(t *testing.T) {
	gw := &fakeGateway{}
	gw.add("m1", "Undisclosed recipients", "Hi", "x")
	c, _ := newCycle(gw)

	st, _, err := c.Run(context.Background(), LoopState{}, settings(false))
	be.Err(t, err, nil)
	be.Equal(t, len(gw.sent), 0)
	be.True(t, strings.HasPrefix(st.Log[0].Status, "Error: invalid reply address"))
	be.Equal(t, gw.markRead, []string{"m1"})
}

func TestRunInternationalReplyAddress(t *testing.T) {
	gw := &fakeGateway{}
	gw.add("m1", "山田 <taro@例え.jp>", "見積もり", "x")
	c, _ := newCycle(gw)

	st, _, err := c.Run(context.Background(), LoopState{}, settings(false))
	be.Err(t, err, nil)
	be.Equal(t, len(gw.sent), 1)
	be.Equal(t, gw.sent[0].To, "taro@例え.jp")
	be.Equal(t, st.Log[0].Status, StatusReplied)
}

func TestValidateAddress(t *testing.T) {
	be.Err(t, validateAddress("bob@example.com"), nil)
	be.Err(t, validateAddress("ユーザー@例え.jp"), nil)
	be.True(t, validateAddress("Undisclosed recipients") != nil)
	be.True(t, validateAddress("ユーザー@") != nil)
	be.True(t, validateAddress("@例え.jp") != nil)
}

func TestRunFetchFailureLeavesMessageUnread(t *testing.T) {
	gw := &fakeGateway{}
	gw.add("m1", "bob@example.com", "First", "x")
	gw.add("m2", "amy@example.com", "Second", "y")
	gw.getErr = map[string]error{"m1": errors.New("timeout")}
	c, _ := newCycle(gw)

	st, _, err := c.Run(context.Background(), LoopState{}, settings(false))
	be.Err(t, err, nil)
	be.Equal(t, gw.markRead, []string{"m2"})
	be.Equal(t, len(st.Log), 2)

	failed := st.Log[1]
	be.Equal(t, failed.Subject, DefaultSubject)
	be.Equal(t, failed.From, DefaultSender)
	be.Equal(t, failed.Status, "Error: timeout")
}

func TestRunNotifierFailureIsNonFatal(t *testing.T) {
	gw := &fakeGateway{}
	gw.add("m1", "bob@example.com", "Hi", "x")
	c, n := newCycle(gw)
	n.err = errors.New("401 Unauthorized")

	st, rep, err := c.Run(context.Background(), LoopState{}, settings(false))
	be.Err(t, err, nil)
	be.Equal(t, st.Log[0].Status, StatusReplied)
	be.Equal(t, len(rep.Notices), 1)
}

func TestRunMarkReadFailureKeepsStatus(t *testing.T) {
	gw := &fakeGateway{readErr: errors.New("label error")}
	gw.add("m1", "bob@example.com", "Hi", "x")
	c, _ := newCycle(gw)

	st, rep, err := c.Run(context.Background(), LoopState{}, settings(false))
	be.Err(t, err, nil)
	be.Equal(t, st.Log[0].Status, StatusReplied)
	be.Equal(t, st.Replies, 1)
	be.True(t, strings.Contains(rep.Notices[0], "label error"))
}

func TestRunLogOrdering(t *testing.T) {
	gw := &fakeGateway{}
	gw.add("m1", "a@example.com", "first", "x")
	gw.add("m2", "b@example.com", "second", "x")
	c, _ := newCycle(gw)

	prior := LoopState{Log: []LogEntry{{Subject: "older"}}}
	st, rep, err := c.Run(context.Background(), prior, settings(false))
	be.Err(t, err, nil)

	subjects := make([]string, len(st.Log))
	for i, e := range st.Log {
		subjects[i] = e.Subject
	}
	be.Equal(t, subjects, []string{"second", "first", "older"})
	be.Equal(t, rep.Entries[0].Subject, "first")
	// The caller's log is not modified.
	be.Equal(t, len(prior.Log), 1)
}

func TestRunDisabledLoopKeepsNextRunCleared(t *testing.T) {
	gw := &fakeGateway{}
	gw.add("m1", "a@example.com", "x", "x")
	c, _ := newCycle(gw)

	st, _, err := c.Run(context.Background(), LoopState{Enabled: false}, settings(false))
	be.Err(t, err, nil)
	be.True(t, st.NextRun.IsZero())
}

func TestRunAttachesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.pdf")
	be.Err(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600), nil)

	gw := &fakeGateway{}
	gw.add("m1", "bob@example.com", "Docs", "x")
	c, _ := newCycle(gw)
	set := settings(false)
	set.AttachmentPath = path

	_, _, err := c.Run(context.Background(), LoopState{}, set)
	be.Err(t, err, nil)
	p := parseReply(t, gw.sent[0])
	be.Equal(t, p.attachments["guide.pdf"], []byte("%PDF-1.4"))
}

func TestRunMissingAttachmentIsNotice(t *testing.T) {
	gw := &fakeGateway{}
	gw.add("m1", "bob@example.com", "Docs", "x")
	c, _ := newCycle(gw)
	set := settings(false)
	set.AttachmentPath = filepath.Join(t.TempDir(), "missing.pdf")

	st, rep, err := c.Run(context.Background(), LoopState{}, set)
	be.Err(t, err, nil)
	be.Equal(t, st.Log[0].Status, StatusReplied)
	be.True(t, strings.HasPrefix(rep.Notices[0], "attachment skipped"))
	be.Equal(t, len(parseReply(t, gw.sent[0]).attachments), 0)
}

func TestRunArchivesEntries(t *testing.T) {
	store := testutil.NewTestStore(t)
	gw := &fakeGateway{}
	gw.add("m1", "Sales <sales@noreply.example.com>", "Deal", "x")
	gw.add("m2", "bob@example.com", "Question", "x")
	c, _ := newCycle(gw)
	c.Recorder = store

	_, _, err := c.Run(context.Background(), LoopState{}, settings(true))
	be.Err(t, err, nil)

	counts, err := store.CountByKind(context.Background())
	be.Err(t, err, nil)
	be.Equal(t, counts[model.ActivitySkipped], 1)
	be.Equal(t, counts[model.ActivityReplied], 1)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := model.DefaultAppConfig()
	cfg.Loop.IntervalMinutes = 5
	cfg.Loop.SpamFilter = true
	cfg.Reply.AttachmentPath = "/tmp/a.pdf"

	s := SettingsFromConfig(cfg)
	be.Equal(t, s.Interval, 5*time.Minute)
	be.True(t, s.FilterEnabled)
	be.Equal(t, s.AttachmentPath, "")

	cfg.Reply.Attach = true
	be.Equal(t, SettingsFromConfig(cfg).AttachmentPath, "/tmp/a.pdf")
}
