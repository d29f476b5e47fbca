// Package scheduler implements the lane scheduler: bounded named semaphores
// that enforce "at most one active executor per session lane" (plus a
// configurable per-session concurrency allowance, e.g. group chats) while
// giving every enqueued turn strict FIFO fairness within its lane.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/agent"
)

// Lane names a bounded concurrency group. Sessions declare a lane; by
// default there is one lane per kind of work (model turns, cron fibers,
// subagent spawns, delegations, browser control).
type Lane string

const (
	LaneMain     Lane = "main"
	LaneCron     Lane = "cron"
	LaneSubagent Lane = "subagent"
	LaneDelegate Lane = "delegate"
	LaneBrowser  Lane = "browser"
)

// LaneConfig maps a lane to its configured parallelism.
type LaneConfig map[Lane]int

// DefaultLanes returns the stock lane concurrency table: one global lane
// per agent-turn kind, with the browser lane intentionally serialized
// (spec: "one global lane for browser control").
func DefaultLanes() LaneConfig {
	return LaneConfig{
		LaneMain:     1,
		LaneCron:     4,
		LaneSubagent: 20,
		LaneDelegate: 10,
		LaneBrowser:  1,
	}
}

// QueueConfig bounds how many waiters may queue on a single lane before
// Schedule refuses new work outright (protects memory under a runaway
// producer; the spec does not mandate a cap but a real deployment needs one).
type QueueConfig struct {
	MaxQueueDepth int
}

// DefaultQueueConfig returns a generous but finite queue depth.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{MaxQueueDepth: 256}
}

// RunFunc executes one agent turn. Supplied by the caller so the scheduler
// stays agnostic of agent resolution.
type RunFunc func(ctx context.Context, req agent.RunRequest) (*agent.RunResult, error)

// Outcome is delivered on the channel returned by Schedule/ScheduleWithOpts.
type Outcome struct {
	Result *agent.RunResult
	Err    error
}

// ScheduleOpts customizes a single Schedule call.
type ScheduleOpts struct {
	// MaxConcurrent caps how many turns for the SAME session key may run
	// concurrently. Default 1 (strict serialization per session, per the
	// spec's lane invariant). Group chats set this higher so independent
	// senders in the same room aren't serialized behind one another.
	MaxConcurrent int
}

// tokenEstimateFunc returns (estimated prompt tokens, context window) for a
// session, used to throttle concurrency back to 1 as a session's usage
// nears its summarization trigger, so a summarizer run never races a
// concurrent turn against the same history.
type tokenEstimateFunc func(sessionKey string) (tokens, contextWindow int)

type laneSem struct {
	slots chan struct{}
}

type sessionGate struct {
	mu    sync.Mutex
	slots chan struct{}
	cap   int
}

// runHandle lets CancelSession/CancelOneSession identify and cancel a
// specific in-flight turn; id disambiguates handles since func values
// aren't comparable.
type runHandle struct {
	id     uint64
	cancel context.CancelFunc
}

// Scheduler dispatches agent turns onto bounded, fair lanes.
type Scheduler struct {
	run    RunFunc
	queue  QueueConfig
	lanes  map[Lane]*laneSem
	lanesMu sync.RWMutex

	sessionsMu sync.Mutex
	sessions   map[string]*sessionGate

	tokenEstimate tokenEstimateFunc

	activeMu  sync.Mutex
	active    map[string][]*runHandle // sessionKey -> in-flight runs, oldest first
	nextRunID uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewScheduler builds a scheduler with the given lane concurrency table,
// queue bound, and turn executor.
func NewScheduler(lanes LaneConfig, queue QueueConfig, run RunFunc) *Scheduler {
	s := &Scheduler{
		run:      run,
		queue:    queue,
		lanes:    make(map[Lane]*laneSem, len(lanes)),
		sessions: make(map[string]*sessionGate),
		active:   make(map[string][]*runHandle),
		stopCh:   make(chan struct{}),
	}
	for lane, n := range lanes {
		if n < 1 {
			n = 1
		}
		s.lanes[lane] = &laneSem{slots: make(chan struct{}, n)}
	}
	return s
}

// SetTokenEstimateFunc installs the adaptive-throttle token estimator.
func (s *Scheduler) SetTokenEstimateFunc(f func(sessionKey string) (int, int)) {
	s.tokenEstimate = f
}

// Stop releases scheduler-owned resources. Already-queued waiters still
// run to completion; Stop does not cancel in-flight turns.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) laneFor(lane Lane) *laneSem {
	s.lanesMu.RLock()
	ls, ok := s.lanes[lane]
	s.lanesMu.RUnlock()
	if ok {
		return ls
	}
	// Unrecognised lane names get a default concurrency-1 lane lazily,
	// rather than failing a caller that names an ad-hoc lane.
	s.lanesMu.Lock()
	defer s.lanesMu.Unlock()
	if ls, ok := s.lanes[lane]; ok {
		return ls
	}
	ls = &laneSem{slots: make(chan struct{}, 1)}
	s.lanes[lane] = ls
	return ls
}

func (s *Scheduler) gateFor(sessionKey string, maxConcurrent int) *sessionGate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	g, ok := s.sessions[sessionKey]
	if ok && g.cap == maxConcurrent {
		return g
	}
	g = &sessionGate{slots: make(chan struct{}, maxConcurrent), cap: maxConcurrent}
	s.sessions[sessionKey] = g
	return g
}

// Schedule enqueues a turn on lane with default per-session concurrency 1.
func (s *Scheduler) Schedule(ctx context.Context, lane Lane, req agent.RunRequest) <-chan Outcome {
	return s.ScheduleWithOpts(ctx, lane, req, ScheduleOpts{MaxConcurrent: 1})
}

// ScheduleWithOpts enqueues a turn on lane, FIFO among other waiters on the
// same lane, additionally gated by a per-session-key concurrency cap.
// Cancellation of ctx before a slot is acquired removes the waiter without
// granting it a slot (no wakeup of a cancelled waiter); once acquired, both
// the lane slot and the session slot are guaranteed to be released on every
// exit path (normal return, error, or cancellation) via defer.
func (s *Scheduler) ScheduleWithOpts(ctx context.Context, lane Lane, req agent.RunRequest, opts ScheduleOpts) <-chan Outcome {
	out := make(chan Outcome, 1)

	maxConcurrent := opts.MaxConcurrent
	if tf := s.tokenEstimate; tf != nil && req.SessionKey != "" {
		if tokens, window := tf(req.SessionKey); window > 0 && float64(tokens)/float64(window) >= 0.85 {
			maxConcurrent = 1 // throttle back to strict serialization near the summarization threshold
		}
	}

	ls := s.laneFor(lane)
	gate := s.gateFor(req.SessionKey, maxConcurrent)

	runCtx, cancel := context.WithCancel(ctx)
	var handle *runHandle
	if req.SessionKey != "" {
		handle = s.registerRun(req.SessionKey, cancel)
	}

	go func() {
		defer close(out)
		defer cancel()
		if handle != nil {
			defer s.deregisterRun(req.SessionKey, handle)
		}
		ctx := runCtx

		select {
		case ls.slots <- struct{}{}:
		case <-ctx.Done():
			out <- Outcome{Err: ctx.Err()}
			return
		case <-s.stopCh:
			out <- Outcome{Err: context.Canceled}
			return
		}
		defer func() { <-ls.slots }()

		select {
		case gate.slots <- struct{}{}:
		case <-ctx.Done():
			out <- Outcome{Err: ctx.Err()}
			return
		case <-s.stopCh:
			out <- Outcome{Err: context.Canceled}
			return
		}
		defer func() { <-gate.slots }()

		result, err := s.run(ctx, req)
		if err != nil {
			slog.Debug("scheduler: turn returned error", "lane", lane, "session", req.SessionKey, "error", err)
		}
		out <- Outcome{Result: result, Err: err}
	}()

	return out
}

func (s *Scheduler) registerRun(sessionKey string, cancel context.CancelFunc) *runHandle {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	s.nextRunID++
	h := &runHandle{id: s.nextRunID, cancel: cancel}
	s.active[sessionKey] = append(s.active[sessionKey], h)
	return h
}

func (s *Scheduler) deregisterRun(sessionKey string, h *runHandle) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	handles := s.active[sessionKey]
	for i, other := range handles {
		if other.id == h.id {
			handles = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(handles) == 0 {
		delete(s.active, sessionKey)
	} else {
		s.active[sessionKey] = handles
	}
}

// CancelOneSession cancels the oldest still-running turn for sessionKey
// (the "/stop" command: stop the run that's been going longest). Reports
// whether a run was found to cancel.
func (s *Scheduler) CancelOneSession(sessionKey string) bool {
	s.activeMu.Lock()
	handles := s.active[sessionKey]
	if len(handles) == 0 {
		s.activeMu.Unlock()
		return false
	}
	h := handles[0]
	s.activeMu.Unlock()
	h.cancel()
	return true
}

// CancelSession cancels every in-flight turn for sessionKey (the
// "/stopall" command). Reports whether any run was found to cancel.
func (s *Scheduler) CancelSession(sessionKey string) bool {
	s.activeMu.Lock()
	handles := make([]*runHandle, len(s.active[sessionKey]))
	copy(handles, s.active[sessionKey])
	s.activeMu.Unlock()
	if len(handles) == 0 {
		return false
	}
	for _, h := range handles {
		h.cancel()
	}
	return true
}

// LaneOccupancy reports the current holder count for a lane, for
// diagnostics/tests asserting the "never exceeds configured concurrency"
// invariant.
func (s *Scheduler) LaneOccupancy(lane Lane) int {
	ls := s.laneFor(lane)
	return len(ls.slots)
}
