package core

// session.go implements the import workflow as an explicit state machine:
//
//	instructions → upload → mapping → review → importing → complete
//
// with two backward edges (mapping → upload, review → mapping). importing
// and complete have no backward edges; Restart starts over from complete.
// Every operation called in the wrong stage returns *SessionStateError and
// leaves the session unchanged.
//
// A session is owned by one interaction, but its state is guarded by a
// mutex so progress readers may observe it while the commit loop runs.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage is a step of the import workflow.
type Stage string

const (
	StageInstructions Stage = "instructions"
	StageUpload       Stage = "upload"
	StageMapping      Stage = "mapping"
	StageReview       Stage = "review"
	StageImporting    Stage = "importing"
	StageComplete     Stage = "complete"

	// StageClosed is entered after Cancel outside of importing. No operation
	// is allowed afterwards.
	StageClosed Stage = "closed"
)

// SessionOptions configures a new session.
type SessionOptions struct {
	// MaxRows is the recommended row limit. Larger files are accepted and
	// flagged with RowLimitExceeded.
	MaxRows int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ImportSession is the aggregate root of one bulk import. It is kept in
// memory only.
type ImportSession struct {
	id  string
	log *slog.Logger
	opt SessionOptions

	mu               sync.RWMutex
	stage            Stage
	fileName         string
	table            *RawTable
	suggested        ColumnMapping
	mapping          ColumnMapping
	candidates       Candidates
	lastErr          error
	rowLimitExceeded bool
	createdAt        time.Time
	updatedAt        time.Time

	// Commit phase, written by the commit loop under mu.
	progress      int
	processed     int
	committed     int
	failedCommits int
	failures      []CommitFailure
	created       []CreatedPolicy
	notAttempted  int
	cancelReq     bool
	cancelled     bool
	startedAt     time.Time
	finishedAt    time.Time
	cancelImport  context.CancelFunc
	done          chan struct{}

	listenerMu sync.Mutex
	listeners  []chan Progress
	seq        int64
}

// NewSession creates a session in the instructions stage. An empty id is
// replaced by a random UUID.
func NewSession(id string, opt SessionOptions) *ImportSession {
	if id == "" {
		id = uuid.NewString()
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	now := time.Now()
	return &ImportSession{
		id:        id,
		opt:       opt,
		log:       opt.Logger.With("session_id", id),
		stage:     StageInstructions,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session id.
func (s *ImportSession) ID() string {
	return s.id
}

// Stage returns the current stage.
func (s *ImportSession) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// LastActivity returns when the session was last changed.
func (s *ImportSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// requireLocked returns a SessionStateError unless the session is in one
// of the given stages. The caller holds mu.
func (s *ImportSession) requireLocked(op string, stages ...Stage) error {
	for _, st := range stages {
		if s.stage == st {
			return nil
		}
	}
	return &SessionStateError{Op: op, Stage: s.stage}
}

func (s *ImportSession) setStageLocked(to Stage) {
	s.log.Debug("stage transition", "from", s.stage, "to", to)
	s.stage = to
	s.updatedAt = time.Now()
}

// Continue moves from instructions to upload.
func (s *ImportSession) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("Continue", StageInstructions); err != nil {
		return err
	}
	s.setStageLocked(StageUpload)
	return nil
}

// Upload parses the file and moves to mapping with a suggested mapping.
// On a parse failure the session stays in upload and the error is kept as
// LastError.
func (s *ImportSession) Upload(fileName, mimeType string, data []byte) (*RawTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("Upload", StageUpload); err != nil {
		return nil, err
	}

	table, err := Parse(data, fileName, mimeType)
	if err != nil {
		s.lastErr = err
		s.updatedAt = time.Now()
		s.log.Info("upload rejected", "file", fileName, "error", err)
		return nil, err
	}

	s.fileName = fileName
	s.table = table
	s.suggested = SuggestMapping(table.Headers)
	s.mapping = s.suggested.Clone()
	s.lastErr = nil
	s.rowLimitExceeded = s.opt.MaxRows > 0 && table.RowCount() > s.opt.MaxRows
	if s.rowLimitExceeded {
		s.log.Warn("file exceeds recommended row limit",
			"file", fileName, "rows", table.RowCount(), "limit", s.opt.MaxRows)
	}

	s.log.Info("file parsed",
		"file", fileName, "format", table.Format,
		"columns", len(table.Headers), "rows", table.RowCount(),
		"mapped", s.suggested.MappedCount())

	s.setStageLocked(StageMapping)
	return table, nil
}

// LastError returns the most recent upload failure, or nil.
func (s *ImportSession) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// BackToUpload discards the parsed file and mapping.
func (s *ImportSession) BackToUpload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("BackToUpload", StageMapping); err != nil {
		return err
	}
	s.fileName = ""
	s.table = nil
	s.suggested = nil
	s.mapping = nil
	s.rowLimitExceeded = false
	s.setStageLocked(StageUpload)
	return nil
}

// ConfirmMapping replaces the mapping, validates every row and moves to
// review. A mapping that names headers missing from the file returns
// *MappingError and the session stays in mapping.
func (s *ImportSession) ConfirmMapping(m ColumnMapping) (Candidates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("ConfirmMapping", StageMapping); err != nil {
		return Candidates{}, err
	}
	if err := m.Validate(s.table.Headers); err != nil {
		return Candidates{}, err
	}

	s.mapping = m.Normalize()
	s.candidates = Partition(ApplyMapping(s.table, s.mapping))

	s.log.Info("mapping confirmed",
		"valid", len(s.candidates.Valid), "invalid", len(s.candidates.Invalid),
		"unmapped_required", len(s.mapping.UnmappedRequired()))

	s.setStageLocked(StageReview)
	return s.candidates, nil
}

// BackToMapping discards validation results and keeps the parsed file.
func (s *ImportSession) BackToMapping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLocked("BackToMapping", StageReview); err != nil {
		return err
	}
	s.candidates = Candidates{}
	s.setStageLocked(StageMapping)
	return nil
}

// Back takes the single backward edge available from the current stage.
func (s *ImportSession) Back() error {
	switch s.Stage() {
	case StageMapping:
		return s.BackToUpload()
	case StageReview:
		return s.BackToMapping()
	default:
		return &SessionStateError{Op: "Back", Stage: s.Stage()}
	}
}

// Restart returns a completed session to instructions with fresh state.
func (s *ImportSession) Restart() error {
	s.mu.Lock()
	if err := s.requireLocked("Restart", StageComplete); err != nil {
		s.mu.Unlock()
		return err
	}
	s.resetLocked()
	s.setStageLocked(StageInstructions)
	s.mu.Unlock()

	s.resetListeners()
	return nil
}

// Cancel abandons the session. While importing it requires confirm: new
// creates stop and committed policies are kept. The session completes with
// Cancelled set only if some rows were never attempted. In any other stage
// the session is closed.
func (s *ImportSession) Cancel(confirm bool) error {
	s.mu.Lock()

	switch s.stage {
	case StageImporting:
		if !confirm {
			s.mu.Unlock()
			return ErrImportInProgress
		}
		s.cancelReq = true
		cancel := s.cancelImport
		s.updatedAt = time.Now()
		s.mu.Unlock()

		s.log.Warn("import cancelled by operator")
		if cancel != nil {
			cancel()
		}
		return nil

	case StageClosed:
		s.mu.Unlock()
		return nil

	default:
		s.resetLocked()
		s.setStageLocked(StageClosed)
		s.mu.Unlock()

		s.closeListeners()
		return nil
	}
}

// resetLocked clears all file, mapping and commit state. The caller holds mu.
func (s *ImportSession) resetLocked() {
	s.fileName = ""
	s.table = nil
	s.suggested = nil
	s.mapping = nil
	s.candidates = Candidates{}
	s.lastErr = nil
	s.rowLimitExceeded = false
	s.progress = 0
	s.processed = 0
	s.committed = 0
	s.failedCommits = 0
	s.failures = nil
	s.created = nil
	s.notAttempted = 0
	s.cancelReq = false
	s.cancelled = false
	s.startedAt = time.Time{}
	s.finishedAt = time.Time{}
	s.cancelImport = nil
	s.done = nil
}

// Table returns the parsed file, or nil before upload.
func (s *ImportSession) Table() *RawTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Mapping returns a copy of the current mapping.
func (s *ImportSession) Mapping() ColumnMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mapping == nil {
		return nil
	}
	return s.mapping.Clone()
}

// SuggestedMapping returns a copy of the mapping proposed at upload.
func (s *ImportSession) SuggestedMapping() ColumnMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.suggested == nil {
		return nil
	}
	return s.suggested.Clone()
}

// Candidates returns the validation partition.
func (s *ImportSession) Candidates() Candidates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candidates
}

// SessionSnapshot is a read-only view of a session.
type SessionSnapshot struct {
	ID               string          `json:"id"`
	Stage            Stage           `json:"stage"`
	FileName         string          `json:"fileName,omitempty"`
	Headers          []string        `json:"headers,omitempty"`
	RowCount         int             `json:"rowCount"`
	RowLimitExceeded bool            `json:"rowLimitExceeded"`
	Mapping          ColumnMapping   `json:"mapping,omitempty"`
	UnmappedRequired []TargetField   `json:"unmappedRequired,omitempty"`
	ValidCount       int             `json:"validCount"`
	InvalidCount     int             `json:"invalidCount"`
	Progress         int             `json:"progress"`
	Processed        int             `json:"processed"`
	CommittedCount   int             `json:"committedCount"`
	FailedCount      int             `json:"failedCommitCount"`
	NotAttempted     int             `json:"notAttempted"`
	CancelRequested  bool            `json:"cancelRequested"`
	Cancelled        bool            `json:"cancelled"`
	CommitFailures   []CommitFailure `json:"-"`
	Created          []CreatedPolicy `json:"-"`
	Candidates       Candidates      `json:"-"`
	LastError        string          `json:"lastError,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	StartedAt        time.Time       `json:"startedAt,omitzero"`
	FinishedAt       time.Time       `json:"finishedAt,omitzero"`
}

// Snapshot returns a consistent copy of the session state.
func (s *ImportSession) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := SessionSnapshot{
		ID:               s.id,
		Stage:            s.stage,
		FileName:         s.fileName,
		RowLimitExceeded: s.rowLimitExceeded,
		ValidCount:       len(s.candidates.Valid),
		InvalidCount:     len(s.candidates.Invalid),
		Progress:         s.progress,
		Processed:        s.processed,
		CommittedCount:   s.committed,
		FailedCount:      s.failedCommits,
		NotAttempted:     s.notAttempted,
		CancelRequested:  s.cancelReq,
		Cancelled:        s.cancelled,
		CommitFailures:   append([]CommitFailure(nil), s.failures...),
		Created:          append([]CreatedPolicy(nil), s.created...),
		Candidates:       s.candidates,
		CreatedAt:        s.createdAt,
		UpdatedAt:        s.updatedAt,
		StartedAt:        s.startedAt,
		FinishedAt:       s.finishedAt,
	}
	if s.table != nil {
		snap.Headers = s.table.Headers
		snap.RowCount = s.table.RowCount()
	}
	if s.mapping != nil {
		snap.Mapping = s.mapping.Clone()
		snap.UnmappedRequired = s.mapping.UnmappedRequired()
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}
