package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mail-autoreply/internal/autoreply"
	"github.com/nhle/mail-autoreply/internal/source"
)

// CycleState describes what the scheduler is doing.
type CycleState int

const (
	CycleIdle CycleState = iota
	CycleRunning
	CycleError
)

func (s CycleState) String() string {
	switch s {
	case CycleRunning:
		return "running"
	case CycleError:
		return "error"
	default:
		return "idle"
	}
}

// Status is a snapshot of the scheduler.
type Status struct {
	State   CycleState
	Loop    autoreply.LoopState
	LastRun time.Time
	Error   error
}

// CycleResultMsg is a tea.Msg sent when a cycle completes.
type CycleResultMsg struct {
	State  autoreply.LoopState
	Report autoreply.Report
	Err    error

	// Manual is set for cycles started by RunNow.
	Manual bool
}

// CredentialError reports whether the cycle failed for lack of a usable
// mailbox credential.
func (m CycleResultMsg) CredentialError() bool {
	return source.IsCredentialError(m.Err)
}

// Runner executes one poll cycle.
type Runner interface {
	Run(ctx context.Context, st autoreply.LoopState, set autoreply.Settings) (autoreply.LoopState, autoreply.Report, error)
}

// cycleTimeout bounds a single cycle, including every message in it.
const cycleTimeout = 10 * time.Minute

// Scheduler owns the loop state and runs at most one cycle at a time,
// whenever the loop is enabled and the next run is due.
type Scheduler struct {
	runner   Runner
	settings autoreply.Settings
	state    autoreply.LoopState
	status   CycleState
	lastRun  time.Time
	lastErr  error

	// retryAt delays the next attempt after a failed cycle, which leaves
	// the loop state (and so NextRun) untouched.
	retryAt time.Time

	inFlight     bool
	pendingReset bool
	running      bool

	resultCh  chan CycleResultMsg
	triggerCh chan struct{}
	wakeCh    chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	now       func() time.Time
}

// New creates a stopped, disabled Scheduler.
func New(r Runner, settings autoreply.Settings) *Scheduler {
	return &Scheduler{
		runner:    r,
		settings:  settings,
		state:     autoreply.LoopState{Interval: settings.Interval},
		resultCh:  make(chan CycleResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
		wakeCh:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start launches the scheduling goroutine and returns a tea.Cmd that
// delivers the first CycleResultMsg.
func (s *Scheduler) Start() tea.Cmd {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return s.waitForResult()
	}
	s.running = true
	s.mu.Unlock()

	go s.loop()

	return s.waitForResult()
}

// Stop halts the scheduling goroutine. An in-flight cycle finishes first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
}

// SetEnabled turns the loop on or off. Turning it on with no next run
// scheduled runs a cycle right away; turning it off clears the schedule.
func (s *Scheduler) SetEnabled(on bool) {
	s.mu.Lock()
	if on {
		s.state.Enabled = true
	} else {
		s.state = s.state.Disable()
	}
	s.retryAt = time.Time{}
	s.mu.Unlock()

	s.wake()
}

// Toggle flips the enabled flag and returns the new value.
func (s *Scheduler) Toggle() bool {
	s.mu.Lock()
	on := !s.state.Enabled
	s.mu.Unlock()

	s.SetEnabled(on)
	return on
}

// RunNow requests an immediate cycle. It returns false, and does nothing,
// while a cycle is in flight.
func (s *Scheduler) RunNow() bool {
	s.mu.Lock()
	busy := s.inFlight
	s.mu.Unlock()
	if busy {
		return false
	}

	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
	return true
}

// Reset clears the reply counter and log. During a cycle the reset is
// applied when the cycle completes, so its entries are cleared too.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		s.pendingReset = true
		return
	}
	s.state = s.state.Reset()
}

// UpdateSettings replaces the settings used from the next cycle on.
func (s *Scheduler) UpdateSettings(set autoreply.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = set
	s.state.Interval = set.Interval
}

// Settings returns the settings the next cycle will use.
func (s *Scheduler) Settings() autoreply.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// State returns a copy of the loop state.
func (s *Scheduler) State() autoreply.LoopState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:   s.status,
		Loop:    s.state.Clone(),
		LastRun: s.lastRun,
		Error:   s.lastErr,
	}
}

// Results exposes cycle results to non-TUI consumers.
func (s *Scheduler) Results() <-chan CycleResultMsg {
	return s.resultCh
}

func (s *Scheduler) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if d, ok := s.untilDue(); ok {
			if d <= 0 {
				s.runCycle(false)
				continue
			}
			timer.Reset(d)
		} else {
			timer.Stop()
		}

		select {
		case <-s.stopCh:
			return
		case <-timer.C:
		case <-s.wakeCh:
		case <-s.triggerCh:
			s.runCycle(true)
		}
	}
}

// untilDue returns the time left before the next cycle, and false when
// nothing is scheduled.
func (s *Scheduler) untilDue() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Enabled {
		return 0, false
	}
	due := s.state.NextRun
	if s.retryAt.After(due) {
		due = s.retryAt
	}
	if due.IsZero() {
		return 0, true
	}
	return due.Sub(s.now()), true
}

func (s *Scheduler) runCycle(manual bool) {
	s.mu.Lock()
	s.inFlight = true
	s.status = CycleRunning
	st := s.state.Clone()
	set := s.settings
	s.mu.Unlock()

	// Triggers queued before the cycle started are folded into it.
	select {
	case <-s.triggerCh:
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	next, rep, err := s.runner.Run(ctx, st, set)
	cancel()

	s.mu.Lock()
	now := s.now()
	s.inFlight = false
	s.lastRun = now
	if err != nil {
		s.status = CycleError
		s.lastErr = err
		if s.state.Enabled {
			s.retryAt = now.Add(set.Interval)
		}
	} else {
		s.status = CycleIdle
		s.lastErr = nil
		s.retryAt = time.Time{}
		s.state.Replies = next.Replies
		s.state.Log = next.Log
		switch {
		case !s.state.Enabled:
			s.state.NextRun = time.Time{}
		case !next.NextRun.IsZero():
			s.state.NextRun = next.NextRun
		default:
			s.state.NextRun = now.Add(set.Interval)
		}
	}
	if s.pendingReset {
		s.state = s.state.Reset()
		s.pendingReset = false
	}
	msg := CycleResultMsg{
		State:  s.state.Clone(),
		Report: rep,
		Err:    err,
		Manual: manual,
	}
	s.mu.Unlock()

	s.sendResult(msg)
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// sendResult sends a CycleResultMsg on the result channel without blocking.
func (s *Scheduler) sendResult(msg CycleResultMsg) {
	select {
	case s.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the scheduler
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from
// the result channel.
func (s *Scheduler) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-s.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next cycle result.
// Call it after handling a CycleResultMsg to keep listening.
func (s *Scheduler) WaitForNextResult() tea.Cmd {
	return s.waitForResult()
}
