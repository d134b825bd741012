package autoreply

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nhle/mail-autoreply/internal/logging"
	"github.com/nhle/mail-autoreply/internal/model"
	"github.com/nhle/mail-autoreply/internal/source"
)

// Header defaults for messages that lack them.
const (
	DefaultSubject = "No Subject"
	DefaultSender  = "Unknown"
)

// Notifier pushes a plain-text notification to a fixed recipient.
type Notifier interface {
	Push(ctx context.Context, text string) error
}

// Recorder archives handled messages.
type Recorder interface {
	RecordActivity(ctx context.Context, a model.Activity) error
}

// Settings are the operator settings a cycle runs with. They are read
// once when the cycle starts.
type Settings struct {
	MaxEmails     int
	Interval      time.Duration
	FilterEnabled bool
	Template      ReplyTemplate

	// AttachmentPath, when set, is read at cycle start and attached to
	// every reply under its base name.
	AttachmentPath string
}

// SettingsFromConfig derives cycle settings from the application config.
func SettingsFromConfig(cfg *model.AppConfig) Settings {
	s := Settings{
		MaxEmails:     cfg.Loop.MaxEmails,
		Interval:      time.Duration(cfg.Loop.IntervalMinutes) * time.Minute,
		FilterEnabled: cfg.Loop.SpamFilter,
		Template: ReplyTemplate{
			Subject: cfg.Reply.Subject,
			Body:    cfg.Reply.Body,
		},
	}
	if cfg.Reply.Attach {
		s.AttachmentPath = cfg.Reply.AttachmentPath
	}
	return s
}

// Report describes one completed cycle.
type Report struct {
	ID       string
	Started  time.Time
	Finished time.Time

	Listed  int
	Replied int
	Skipped int
	Failed  int

	// Entries are in handling order, oldest first.
	Entries []LogEntry

	// Notices are non-fatal problems worth showing the operator.
	Notices []string
}

// Cycle runs one poll of the mailbox. Summarizer, Notifier and Recorder
// are optional.
type Cycle struct {
	Opener     source.Opener
	Summarizer Summarizer
	Notifier   Notifier
	Recorder   Recorder
	Now        func() time.Time
}

func (c *Cycle) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run lists up to set.MaxEmails unread messages and handles each in order,
// returning the updated state. When the mailbox cannot be opened or listed
// it returns st unchanged together with the error; per-message failures
// are recorded in the log and never returned.
func (c *Cycle) Run(ctx context.Context, st LoopState, set Settings) (LoopState, Report, error) {
	rep := Report{ID: uuid.NewString(), Started: c.now()}
	fields := logrus.Fields{"cycle": rep.ID}

	gw, err := c.Opener.Open(ctx)
	if err != nil {
		logging.LogError("mailbox_open", err, fields)
		return st, rep, fmt.Errorf("opening mailbox: %w", err)
	}
	defer gw.Close()

	ids, err := gw.ListUnread(ctx, set.MaxEmails)
	if err != nil {
		logging.LogError("mailbox_list", err, fields)
		return st, rep, fmt.Errorf("listing unread messages: %w", err)
	}
	rep.Listed = len(ids)

	next := st.Clone()

	if len(ids) > 0 {
		tmpl := set.Template
		if set.AttachmentPath != "" {
			data, name, err := LoadAttachment(set.AttachmentPath)
			if err != nil {
				rep.Notices = append(rep.Notices, fmt.Sprintf("attachment skipped: %v", err))
				logging.LogWarning("attachment", err, fields)
			} else {
				tmpl.Attachment = data
				tmpl.AttachmentName = name
			}
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				rep.Notices = append(rep.Notices, "cycle interrupted; remaining messages left unread")
				break
			}
			entry := c.handle(ctx, gw, id, set.FilterEnabled, tmpl, &rep)
			if entry.Status == StatusReplied {
				next.Replies++
			}
			rep.Entries = append(rep.Entries, entry)
		}
		next.prepend(rep.Entries)
		c.archive(ctx, rep.Entries, &rep)
	}

	rep.Finished = c.now()
	if next.Enabled {
		next.NextRun = rep.Finished.Add(set.Interval)
	} else {
		next.NextRun = time.Time{}
	}

	logging.LogEvent("cycle_done", logrus.Fields{
		"cycle":   rep.ID,
		"listed":  rep.Listed,
		"replied": rep.Replied,
		"skipped": rep.Skipped,
		"failed":  rep.Failed,
	})
	return next, rep, nil
}

// handle disposes of one message and returns its log entry.
func (c *Cycle) handle(
	ctx context.Context,
	gw source.Gateway,
	id string,
	filter bool,
	tmpl ReplyTemplate,
	rep *Report,
) LogEntry {
	fields := logrus.Fields{"cycle": rep.ID, "message_id": id}
	entry := LogEntry{MessageID: id, From: DefaultSender, Subject: DefaultSubject}

	msg, err := gw.Get(ctx, id)
	if err != nil {
		// Never dispositioned, so it stays unread for the next cycle.
		logging.LogError("message_fetch", err, fields)
		entry.At = c.now()
		entry.Status = ErrorStatus(err.Error())
		rep.Failed++
		return entry
	}

	entry.ThreadID = msg.ThreadID
	if v, ok := msg.Header("Subject"); ok {
		entry.Subject = v
	}
	if v, ok := msg.Header("From"); ok {
		entry.From = v
	}
	replyTo, _ := msg.Header("Message-ID")
	fields["subject"] = entry.Subject

	if ShouldSkip(entry.From, filter) {
		entry.Status = StatusSkipped
		rep.Skipped++
		c.markRead(ctx, gw, id, fields, rep)
		entry.At = c.now()
		return entry
	}

	summary := Summarize(ctx, c.Summarizer, ExtractBody(msg.Payload))
	if summary.Status == SummaryFailed {
		logging.LogEvent("summary_failed", fields)
	}
	c.notify(ctx, fmt.Sprintf("Received: %s\n\n%s", entry.Subject, summary.Text), fields, rep)

	if err := c.reply(ctx, gw, msg, entry, replyTo, tmpl); err != nil {
		logging.LogError("reply_send", err, fields)
		entry.Status = ErrorStatus(err.Error())
		rep.Failed++
	} else {
		entry.Status = StatusReplied
		rep.Replied++
	}

	// Handled either way; a failed send is not retried.
	c.markRead(ctx, gw, id, fields, rep)
	entry.At = c.now()
	return entry
}

func (c *Cycle) reply(
	ctx context.Context,
	gw source.Gateway,
	msg *source.Message,
	entry LogEntry,
	replyTo string,
	tmpl ReplyTemplate,
) error {
	to := ReplyAddress(entry.From)
	if err := validateAddress(to); err != nil {
		return fmt.Errorf("invalid reply address %q: %w", to, err)
	}

	out, err := Compose(Original{
		From:      entry.From,
		Subject:   entry.Subject,
		ThreadID:  msg.ThreadID,
		MessageID: replyTo,
	}, tmpl)
	if err != nil {
		return err
	}
	return gw.Send(ctx, out)
}

func (c *Cycle) notify(ctx context.Context, text string, fields logrus.Fields, rep *Report) {
	if c.Notifier == nil {
		return
	}
	if err := c.Notifier.Push(ctx, text); err != nil {
		logging.LogWarning("notify", err, fields)
		rep.Notices = append(rep.Notices, fmt.Sprintf("notification failed: %v", err))
	}
}

func (c *Cycle) markRead(ctx context.Context, gw source.Gateway, id string, fields logrus.Fields, rep *Report) {
	if err := gw.MarkRead(ctx, id); err != nil {
		logging.LogError("mark_read", err, fields)
		rep.Notices = append(rep.Notices, fmt.Sprintf("could not mark %s read: %v", id, err))
	}
}

func (c *Cycle) archive(ctx context.Context, entries []LogEntry, rep *Report) {
	if c.Recorder == nil {
		return
	}
	for _, e := range entries {
		if err := c.Recorder.RecordActivity(ctx, e.Activity()); err != nil {
			logging.LogWarning("archive", err, logrus.Fields{"cycle": rep.ID, "message_id": e.MessageID})
			rep.Notices = append(rep.Notices, fmt.Sprintf("archive write failed: %v", err))
			return
		}
	}
}

// LoadAttachment reads the file at path and returns its contents and base
// name. An empty file is an error.
func LoadAttachment(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading attachment: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("attachment %s is empty", path)
	}
	return data, filepath.Base(path), nil
}

// validateAddress checks ASCII addresses with checkmail. Its pattern does not
// cover internationalized addresses, so those only need a local part and a
// domain around the @.
func validateAddress(addr string) error {
	if isASCII(addr) {
		return checkmail.ValidateFormat(addr)
	}
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 || strings.ContainsAny(addr, " <>") {
		return checkmail.ErrBadFormat
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
