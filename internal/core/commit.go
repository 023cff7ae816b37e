package core

// commit.go runs the importing stage: every valid record is handed to the
// PolicyCreator, one create call per row.
//
// With one worker, rows are committed strictly in file order. More workers
// commit concurrently; counters are updated under the session mutex and
// every outcome keeps its source row. A failed create is recorded and the
// loop moves on. Cancellation stops new creates; in-flight creates finish
// and nothing is rolled back.

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ImportOptions tunes the commit loop.
type ImportOptions struct {
	// Workers is the number of concurrent create calls (default 1).
	Workers int

	// Limiter, when set, bounds create calls across sessions.
	Limiter *CommitLimiter

	// CommitTimeout bounds each create call. Zero leaves it to the store.
	CommitTimeout time.Duration
}

// StartImport moves from review to importing and commits the valid rows in
// the background. Cancelling ctx stops new creates, as does Cancel(true).
// Invalid rows never block the import.
func (s *ImportSession) StartImport(ctx context.Context, creator PolicyCreator, opts ImportOptions) error {
	if creator == nil {
		return errors.New("start import: nil policy creator")
	}

	s.mu.Lock()
	if err := s.requireLocked("StartImport", StageReview); err != nil {
		s.mu.Unlock()
		return err
	}

	records := slices.Clone(s.candidates.Valid)
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelImport = cancel
	s.done = make(chan struct{})
	s.startedAt = time.Now()
	s.setStageLocked(StageImporting)
	s.mu.Unlock()

	s.log.Info("import started",
		"valid", len(records), "workers", max(opts.Workers, 1))
	s.notifyProgress()

	go s.runImport(loopCtx, cancel, creator, opts, records)
	return nil
}

// Import runs StartImport and waits for the loop to end.
func (s *ImportSession) Import(ctx context.Context, creator PolicyCreator, opts ImportOptions) error {
	if err := s.StartImport(ctx, creator, opts); err != nil {
		return err
	}
	<-s.Done()
	return nil
}

// Done is closed when the commit loop has ended. It is nil before
// StartImport.
func (s *ImportSession) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Wait blocks until the commit loop has ended or ctx is done.
func (s *ImportSession) Wait(ctx context.Context) error {
	s.mu.RLock()
	done, stage := s.done, s.stage
	s.mu.RUnlock()

	if done == nil {
		return &SessionStateError{Op: "Wait", Stage: stage}
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ImportSession) runImport(ctx context.Context, cancel context.CancelFunc, creator PolicyCreator, opts ImportOptions, records []CandidateRecord) {
	defer cancel()

	workers := max(opts.Workers, 1)
	workers = min(workers, len(records))

	jobs := make(chan CandidateRecord)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				s.commitOne(ctx, creator, opts, rec)
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- rec:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	s.finish(len(records)-dispatched, ctx.Err() != nil)
}

type commitOutcome int

const (
	outcomeCommitted commitOutcome = iota
	outcomeFailed
	outcomeSkipped
)

func (s *ImportSession) commitOne(ctx context.Context, creator PolicyCreator, opts ImportOptions, rec CandidateRecord) {
	if ctx.Err() != nil {
		s.record(rec, outcomeSkipped, "", nil)
		return
	}

	p, err := rec.Policy()
	if err != nil {
		s.record(rec, outcomeFailed, "", err)
		return
	}

	if opts.Limiter != nil {
		if err := opts.Limiter.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				s.record(rec, outcomeSkipped, "", nil)
				return
			}
			s.record(rec, outcomeFailed, "", err)
			return
		}
		defer opts.Limiter.Release()
	}

	// An issued create runs to completion even if the import is cancelled.
	callCtx := context.WithoutCancel(ctx)
	if opts.CommitTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, opts.CommitTimeout)
		defer cancel()
	}

	id, err := creator.CreatePolicy(callCtx, p)
	if err != nil {
		s.record(rec, outcomeFailed, "", err)
		return
	}
	s.record(rec, outcomeCommitted, id, nil)
}

func (s *ImportSession) record(rec CandidateRecord, outcome commitOutcome, id string, err error) {
	s.mu.Lock()
	total := len(s.candidates.Valid)

	switch outcome {
	case outcomeSkipped:
		s.notAttempted++
		s.mu.Unlock()
		return
	case outcomeCommitted:
		s.committed++
		s.created = append(s.created, CreatedPolicy{Row: rec.SourceRow, ID: id})
	case outcomeFailed:
		s.failedCommits++
		s.failures = append(s.failures, CommitFailure{
			Row:          rec.SourceRow,
			PolicyNumber: rec.Get(FieldPolicyNumber),
			Reason:       err.Error(),
			Code:         MapError(err).Code,
		})
	}
	s.processed++
	if total > 0 {
		s.progress = max(s.progress, s.processed*100/total)
	}
	s.updatedAt = time.Now()
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("policy not created", "error", &CommitError{Row: rec.SourceRow, Err: err})
	}
	s.notifyProgress()
}

func (s *ImportSession) finish(undispatched int, interrupted bool) {
	s.mu.Lock()
	s.notAttempted += undispatched
	if interrupted && s.notAttempted > 0 {
		s.cancelled = true
	}
	s.progress = 100
	s.finishedAt = time.Now()
	s.cancelImport = nil
	s.setStageLocked(StageComplete)
	done := s.done
	committed, failed, skipped, cancelled := s.committed, s.failedCommits, s.notAttempted, s.cancelled
	elapsed := s.finishedAt.Sub(s.startedAt)
	s.mu.Unlock()

	s.log.Info("import finished",
		"committed", committed, "failed", failed, "not_attempted", skipped,
		"cancelled", cancelled, "duration", elapsed)

	s.notifyProgress()
	s.closeListeners()
	close(done)
}

// CurrentProgress returns the session's progress.
func (s *ImportSession) CurrentProgress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressLocked()
}

func (s *ImportSession) progressLocked() Progress {
	return Progress{
		SessionID: s.id,
		Stage:     s.stage,
		Percent:   s.progress,
		Processed: s.processed,
		Total:     len(s.candidates.Valid),
		Committed: s.committed,
		Failed:    s.failedCommits,
		Cancelled: s.cancelled,
		Done:      s.stage == StageComplete,
		UpdatedAt: s.updatedAt,
	}
}

// Subscribe returns a channel of progress updates starting with the current
// state. The channel is closed when the import ends or the session closes.
// Slow readers miss intermediate updates, never the final one. Call the
// returned func to stop listening early.
func (s *ImportSession) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 16)

	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	p := s.CurrentProgress()
	p.Seq = s.seq
	ch <- p

	if p.Done || p.Stage == StageClosed {
		close(ch)
		return ch, func() {}
	}

	s.listeners = append(s.listeners, ch)
	unsubscribe := func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		for i, l := range s.listeners {
			if l == ch {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

// notifyProgress sends the current progress to all listeners.
func (s *ImportSession) notifyProgress() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	p := s.CurrentProgress()
	s.seq++
	p.Seq = s.seq
	for _, ch := range s.listeners {
		if p.Done {
			// Make room so the final update is never dropped.
			select {
			case <-ch:
			default:
			}
		}
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels.
func (s *ImportSession) closeListeners() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	for _, ch := range s.listeners {
		close(ch)
	}
	s.listeners = nil
}

func (s *ImportSession) resetListeners() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.seq = 0
}
