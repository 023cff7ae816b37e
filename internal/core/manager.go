package core

// manager.go keeps the live import sessions of a server process. Sessions
// are process-local; a session idle for longer than the TTL is removed by a
// cron-scheduled sweep unless it is importing.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSessionIdleTTL applies when ManagerOptions.IdleTTL is zero.
const DefaultSessionIdleTTL = 2 * time.Hour

// ManagerOptions configures a SessionManager.
type ManagerOptions struct {
	Session       SessionOptions
	Import        ImportOptions
	IdleTTL       time.Duration
	SweepSchedule string // cron spec, e.g. "@every 10m"; empty disables sweeping
}

// SessionManager owns the live sessions and runs their imports with a
// context that outlives the request that started them.
type SessionManager struct {
	opts ManagerOptions

	baseCtx     context.Context
	stopImports context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*ImportSession

	cron *cron.Cron
}

// NewSessionManager creates an empty manager.
func NewSessionManager(opts ManagerOptions) *SessionManager {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultSessionIdleTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		opts:        opts,
		baseCtx:     ctx,
		stopImports: cancel,
		sessions:    make(map[string]*ImportSession),
	}
}

// Create starts a new session in the instructions stage.
func (m *SessionManager) Create() *ImportSession {
	s := NewSession("", m.opts.Session)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	slog.Info("import session created", "session_id", s.ID())
	return s
}

// Get returns the session with id or ErrSessionNotFound.
func (m *SessionManager) Get(id string) (*ImportSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartImport starts the commit loop of session id with the manager's
// import options.
func (m *SessionManager) StartImport(id string, creator PolicyCreator) (*ImportSession, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.StartImport(m.baseCtx, creator, m.opts.Import); err != nil {
		return nil, err
	}
	return s, nil
}

// Cancel cancels and removes session id. While importing, confirm is
// required; the call waits for in-flight creates and returns the final
// report. Otherwise the report is nil.
func (m *SessionManager) Cancel(ctx context.Context, id string, confirm bool) (*ImportReport, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	importing := s.Stage() == StageImporting
	if err := s.Cancel(confirm); err != nil {
		return nil, err
	}

	var report *ImportReport
	if importing {
		if err := s.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for cancelled import: %w", err)
		}
		r := Summarize(s)
		report = &r
	}

	m.remove(id)
	return report, nil
}

func (m *SessionManager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Sweep removes sessions idle since before now-IdleTTL. Importing sessions
// are kept. It returns the removed ids.
func (m *SessionManager) Sweep(now time.Time) []string {
	cutoff := now.Add(-m.opts.IdleTTL)

	m.mu.Lock()
	var expired []*ImportSession
	for id, s := range m.sessions {
		if s.Stage() == StageImporting || s.LastActivity().After(cutoff) {
			continue
		}
		expired = append(expired, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		_ = s.Cancel(false)
		ids = append(ids, s.ID())
	}
	if len(ids) > 0 {
		slog.Info("expired idle import sessions", "count", len(ids))
	}
	return ids
}

// Start schedules the idle-session sweep.
func (m *SessionManager) Start() error {
	if m.opts.SweepSchedule == "" {
		return nil
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(m.opts.SweepSchedule, func() { m.Sweep(time.Now()) }); err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", m.opts.SweepSchedule, err)
	}
	c.Start()
	m.cron = c

	slog.Info("session sweeper started", "schedule", m.opts.SweepSchedule, "idle_ttl", m.opts.IdleTTL)
	return nil
}

// Shutdown stops the sweeper, stops issuing new creates in every session
// and waits for running imports to finish and commit slots to drain.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	m.stopImports()

	m.mu.RLock()
	var running []*ImportSession
	for _, s := range m.sessions {
		if s.Stage() == StageImporting {
			running = append(running, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range running {
		if err := s.Wait(ctx); err != nil {
			return fmt.Errorf("wait for import %s: %w", s.ID(), err)
		}
	}

	if l := m.opts.Import.Limiter; l != nil {
		if err := l.WaitForDrain(ctx); err != nil {
			return fmt.Errorf("drain commit limiter: %w", err)
		}
	}
	return nil
}

// Limiter returns the shared commit limiter, or nil.
func (m *SessionManager) Limiter() *CommitLimiter {
	return m.opts.Import.Limiter
}
