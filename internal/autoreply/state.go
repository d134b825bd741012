package autoreply

import (
	"strings"
	"time"

	"github.com/nhle/mail-autoreply/internal/model"
)

// Log entry statuses. Failures use ErrorStatus.
const (
	StatusProcessed = "Processed"
	StatusSkipped   = "Skipped"
	StatusReplied   = "Replied"
	errorPrefix     = "Error: "
)

// ErrorStatus formats a failure status line.
func ErrorStatus(detail string) string {
	return errorPrefix + detail
}

// LogEntry records how one message was handled.
type LogEntry struct {
	At        time.Time
	MessageID string
	ThreadID  string
	From      string
	Subject   string
	Status    string
}

// Clock returns the entry time as HH:MM:SS.
func (e LogEntry) Clock() string {
	return e.At.Format("15:04:05")
}

// Kind classifies the entry for the archive.
func (e LogEntry) Kind() model.ActivityKind {
	switch {
	case e.Status == StatusSkipped:
		return model.ActivitySkipped
	case strings.HasPrefix(e.Status, errorPrefix):
		return model.ActivityError
	default:
		return model.ActivityReplied
	}
}

// Activity converts the entry to its archived form.
func (e LogEntry) Activity() model.Activity {
	return model.Activity{
		MessageID: e.MessageID,
		ThreadID:  e.ThreadID,
		Subject:   e.Subject,
		Sender:    e.From,
		Kind:      e.Kind(),
		Status:    e.Status,
		CreatedAt: e.At,
	}
}

// LoopState is the session state carried between cycles.
type LoopState struct {
	Enabled bool

	// Interval is the delay between the end of a cycle and the next one.
	Interval time.Duration

	// NextRun is zero while no cycle is scheduled.
	NextRun time.Time

	// Replies counts successful sends since the last reset.
	Replies int

	// Log holds entries newest first.
	Log []LogEntry
}

// Clone returns a copy that shares no log storage with s.
func (s LoopState) Clone() LoopState {
	out := s
	out.Log = append([]LogEntry(nil), s.Log...)
	return out
}

// Reset clears the reply counter and the log.
func (s LoopState) Reset() LoopState {
	s.Replies = 0
	s.Log = nil
	return s
}

// Disable turns the loop off and clears the schedule.
func (s LoopState) Disable() LoopState {
	s.Enabled = false
	s.NextRun = time.Time{}
	return s
}

// Due reports whether an enabled loop should run a cycle at now.
func (s LoopState) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	return s.NextRun.IsZero() || !now.Before(s.NextRun)
}

// prepend adds entries in handling order so the last one handled ends up
// first.
func (s *LoopState) prepend(entries []LogEntry) {
	if len(entries) == 0 {
		return
	}
	log := make([]LogEntry, 0, len(entries)+len(s.Log))
	for i := len(entries) - 1; i >= 0; i-- {
		log = append(log, entries[i])
	}
	s.Log = append(log, s.Log...)
}
