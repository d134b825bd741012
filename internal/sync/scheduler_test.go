package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/nhle/mail-autoreply/internal/autoreply"
	"github.com/nhle/mail-autoreply/internal/source"
)

type fakeRunner struct {
	mu      gosync.Mutex
	calls   int
	err     error
	started chan struct{}
	release chan struct{}
}

func (r *fakeRunner) Run(_ context.Context, st autoreply.LoopState, set autoreply.Settings) (autoreply.LoopState, autoreply.Report, error) {
	r.mu.Lock()
	r.calls++
	err := r.err
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	if err != nil {
		return st, autoreply.Report{}, err
	}

	entry := autoreply.LogEntry{At: time.Now(), Status: autoreply.StatusReplied}
	st.Log = append([]autoreply.LogEntry{entry}, st.Log...)
	st.Replies++
	if st.Enabled {
		st.NextRun = time.Now().Add(set.Interval)
	}
	return st, autoreply.Report{Replied: 1, Entries: []autoreply.LogEntry{entry}}, nil
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newScheduler(t *testing.T, r Runner) *Scheduler {
	t.Helper()
	s := New(r, autoreply.Settings{MaxEmails: 5, Interval: time.Hour})
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func waitResult(t *testing.T, s *Scheduler) CycleResultMsg {
	t.Helper()
	select {
	case msg := <-s.Results():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cycle result")
		return CycleResultMsg{}
	}
}

func TestEnableRunsImmediately(t *testing.T) {
	r := &fakeRunner{}
	s := newScheduler(t, r)

	s.SetEnabled(true)
	msg := waitResult(t, s)

	be.Err(t, msg.Err, nil)
	be.Equal(t, msg.State.Replies, 1)
	be.True(t, !msg.State.NextRun.IsZero())
	be.True(t, msg.State.NextRun.After(time.Now().Add(50*time.Minute)))
	be.Equal(t, s.Status().State, CycleIdle)
	be.Equal(t, r.Calls(), 1)
}

func TestDisableClearsNextRun(t *testing.T) {
	s := newScheduler(t, &fakeRunner{})

	s.SetEnabled(true)
	waitResult(t, s)
	be.True(t, !s.State().NextRun.IsZero())

	be.True(t, !s.Toggle())
	st := s.State()
	be.True(t, !st.Enabled)
	be.True(t, st.NextRun.IsZero())
	be.Equal(t, st.Replies, 1)
}

func TestRunNowWhileStopped(t *testing.T) {
	r := &fakeRunner{}
	s := newScheduler(t, r)

	be.True(t, s.RunNow())
	msg := waitResult(t, s)

	be.True(t, msg.Manual)
	be.Equal(t, msg.State.Replies, 1)
	be.True(t, msg.State.NextRun.IsZero())
	be.True(t, !msg.State.Enabled)
}

func TestRunNowDroppedWhileInFlight(t *testing.T) {
	r := &fakeRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := newScheduler(t, r)

	be.True(t, s.RunNow())
	<-r.started
	be.Equal(t, s.Status().State, CycleRunning)
	be.True(t, !s.RunNow())

	close(r.release)
	waitResult(t, s)

	select {
	case <-s.Results():
		t.Fatal("unexpected second cycle")
	case <-time.After(100 * time.Millisecond):
	}
	be.Equal(t, r.Calls(), 1)
}

func TestResetDuringCycleAppliesAfter(t *testing.T) {
	r := &fakeRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := newScheduler(t, r)

	be.True(t, s.RunNow())
	<-r.started
	s.Reset()
	close(r.release)

	msg := waitResult(t, s)
	be.Equal(t, msg.State.Replies, 0)
	be.Equal(t, len(msg.State.Log), 0)
}

func TestResetWhenIdle(t *testing.T) {
	s := newScheduler(t, &fakeRunner{})
	s.RunNow()
	waitResult(t, s)
	be.Equal(t, s.State().Replies, 1)

	s.Reset()
	be.Equal(t, s.State().Replies, 0)
	be.Equal(t, len(s.State().Log), 0)
}

func TestFailedCycleLeavesStateUntouched(t *testing.T) {
	r := &fakeRunner{}
	s := newScheduler(t, r)
	s.RunNow()
	waitResult(t, s)
	before := s.State()

	r.mu.Lock()
	r.err = &source.CredentialError{Provider: source.ProviderGmail, Message: "token.json missing"}
	r.mu.Unlock()

	s.RunNow()
	msg := waitResult(t, s)
	be.True(t, msg.CredentialError())
	be.Equal(t, msg.State.Replies, before.Replies)
	be.Equal(t, len(msg.State.Log), len(before.Log))

	status := s.Status()
	be.Equal(t, status.State, CycleError)
	be.True(t, errors.Is(status.Error, r.err))
}

func TestFailedCycleDelaysRetry(t *testing.T) {
	r := &fakeRunner{err: errors.New("503")}
	s := newScheduler(t, r)

	s.SetEnabled(true)
	waitResult(t, s)

	select {
	case <-s.Results():
		t.Fatal("retried immediately after failure")
	case <-time.After(100 * time.Millisecond):
	}
	be.Equal(t, r.Calls(), 1)
	be.True(t, s.State().NextRun.IsZero())
}

func TestUpdateSettings(t *testing.T) {
	s := New(&fakeRunner{}, autoreply.Settings{Interval: time.Minute})
	s.UpdateSettings(autoreply.Settings{Interval: 5 * time.Minute, MaxEmails: 3})
	be.Equal(t, s.Settings().MaxEmails, 3)
	be.Equal(t, s.State().Interval, 5*time.Minute)
}

func TestStartTwiceIsSafe(t *testing.T) {
	s := New(&fakeRunner{}, autoreply.Settings{Interval: time.Hour})
	be.True(t, s.Start() != nil)
	be.True(t, s.Start() != nil)
	s.Stop()
	s.Stop()
}
