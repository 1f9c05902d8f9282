package classify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/graph"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
)

// MoveThreshold is the confidence a verdict must exceed before its message
// is moved.
const MoveThreshold = 0.5

// MessageMover relocates a message into another folder.
type MessageMover interface {
	MoveMessage(ctx context.Context, accessToken, messageID, destinationID string) (graph.Message, error)
}

// RecordAppender stores audit records.
type RecordAppender interface {
	AppendRecord(ctx context.Context, r Record) error
}

// Engine applies classification outcomes to the mailbox.
type Engine struct {
	mover   MessageMover
	records RecordAppender
	now     func() time.Time
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides time.Now for record timestamps.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEngineMetrics sets the metrics recorder.
func WithEngineMetrics(m *instrumentation.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithAuditLogger enables audit entries for every move attempt.
func WithAuditLogger(a *instrumentation.AuditLogger) EngineOption {
	return func(e *Engine) { e.audit = a }
}

// NewEngine creates an Engine.
func NewEngine(mover MessageMover, records RecordAppender, opts ...EngineOption) *Engine {
	e := &Engine{
		mover:   mover,
		records: records,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute moves every outcome that has a target folder and a confidence above
// MoveThreshold and records each successful move. Failed moves are logged
// and skipped. With dryRun the outcomes are returned untouched.
func (e *Engine) Execute(ctx context.Context, session credential.Session, outcomes []Outcome, dryRun bool) []Outcome {
	if dryRun {
		return outcomes
	}

	for i := range outcomes {
		out := &outcomes[i]
		if out.SuggestedFolder == "" || out.Confidence <= MoveThreshold {
			continue
		}

		ev := instrumentation.MoveEvent{
			UserID:    session.UserID,
			MessageID: out.MessageID,
			Subject:   out.Subject,
			From:      out.fromAddress,
			Rule:      out.RuleApplied,
			FolderID:  out.SuggestedFolder,
			Folder:    out.SuggestedFolderName,
		}

		if _, err := e.mover.MoveMessage(ctx, session.AccessToken, out.MessageID, out.SuggestedFolder); err != nil {
			e.logger.ErrorContext(ctx, "failed to move message",
				logging.MessageID(out.MessageID),
				logging.Folder(out.SuggestedFolderName),
				logging.Err(err))
			e.metrics.RecordMessageMove(ctx, instrumentation.StatusError)
			ev.Error = err.Error()
			e.audit.LogMove(ev)
			continue
		}

		out.Moved = true
		e.metrics.RecordMessageMove(ctx, instrumentation.StatusSuccess)
		ev.Success = true
		e.audit.LogMove(ev)

		if err := e.records.AppendRecord(ctx, e.record(session, *out)); err != nil {
			e.logger.ErrorContext(ctx, "failed to record classification",
				logging.MessageID(out.MessageID),
				logging.Err(err))
		}
	}
	return outcomes
}

func (e *Engine) record(session credential.Session, out Outcome) Record {
	return Record{
		ID:               uuid.NewString(),
		UserID:           session.UserID,
		MessageID:        out.MessageID,
		Subject:          out.Subject,
		FromAddress:      out.fromAddress,
		FromName:         out.fromName,
		OriginalFolder:   OriginalFolder,
		TargetFolder:     out.SuggestedFolder,
		TargetFolderName: out.SuggestedFolderName,
		RuleName:         out.RuleApplied,
		Confidence:       out.Confidence,
		ClassifiedAt:     e.now().UTC(),
	}
}
