package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
	"github.com/teemow/inboxsorter/internal/rules"
)

const (
	// DefaultHistoryLimit is the number of records returned when no limit is given.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps the history page size.
	MaxHistoryLimit = 100

	// MaxStatsGroups caps the number of groups per statistics dimension.
	MaxStatsGroups = 100

	// MsgNoActiveRules is returned when a run finds nothing to classify against.
	MsgNoActiveRules = "No active classification rules found"
)

// Run modes for metrics.
const (
	ModeAnalyze = "analyze"
	ModeDryRun  = "dry_run"
	ModeExecute = "execute"
)

// Grouping selects the column statistics are grouped by.
type Grouping string

const (
	GroupByRule   Grouping = "rule_name"
	GroupByFolder Grouping = "target_folder_name"
)

// RecordStore persists and queries audit records.
type RecordStore interface {
	RecordAppender
	ListRecords(ctx context.Context, userID string, limit int) ([]Record, error)
	CountRecords(ctx context.Context, userID string) (int, error)
	GroupRecords(ctx context.Context, userID string, by Grouping, limit int) ([]Count, error)
}

// RuleSource returns the rules a run classifies against.
type RuleSource interface {
	Active(ctx context.Context, userID string, ids []string) ([]rules.Rule, error)
}

// Service is the classification entry point used by the API and the tools.
type Service struct {
	rules        RuleSource
	orchestrator *Orchestrator
	engine       *Engine
	records      RecordStore
	logger       *slog.Logger
	metrics      *instrumentation.Metrics
}

// NewService creates a Service.
func NewService(rs RuleSource, orchestrator *Orchestrator, engine *Engine, records RecordStore, logger *slog.Logger, metrics *instrumentation.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rules:        rs,
		orchestrator: orchestrator,
		engine:       engine,
		records:      records,
		logger:       logger,
		metrics:      metrics,
	}
}

// Analyze classifies the requested messages without touching the mailbox.
func (s *Service) Analyze(ctx context.Context, session credential.Session, req Request) ([]Outcome, error) {
	outcomes, err := s.analyze(ctx, session, req)
	s.metrics.RecordClassificationRun(ctx, ModeAnalyze, runStatus(err))
	return outcomes, err
}

func (s *Service) analyze(ctx context.Context, session credential.Session, req Request) ([]Outcome, error) {
	active, err := s.rules.Active(ctx, session.UserID, req.RuleIDs)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	if len(active) == 0 {
		return nil, apperr.InvalidRequest(MsgNoActiveRules)
	}

	logger := logging.WithOperation(s.logger, ModeAnalyze)
	logger.InfoContext(ctx, "classifying messages",
		slog.Int("messages", len(req.MessageIDs)),
		slog.Int("rules", len(active)),
		logging.UserHash(session.Email))

	return s.orchestrator.ClassifyMany(ctx, req.MessageIDs, active, session), nil
}

// Execute classifies the requested messages and moves the confident matches
// unless req.DryRun is set.
func (s *Service) Execute(ctx context.Context, session credential.Session, req Request) ([]Outcome, error) {
	mode := ModeExecute
	if req.DryRun {
		mode = ModeDryRun
	}

	outcomes, err := s.analyze(ctx, session, req)
	if err != nil {
		s.metrics.RecordClassificationRun(ctx, mode, runStatus(err))
		return nil, err
	}

	outcomes = s.engine.Execute(ctx, session, outcomes, req.DryRun)
	s.metrics.RecordClassificationRun(ctx, mode, instrumentation.StatusSuccess)
	return outcomes, nil
}

// History returns the user's most recent records, newest first. A limit
// outside 1..MaxHistoryLimit is replaced by the default or clamped.
func (s *Service) History(ctx context.Context, session credential.Session, limit int) ([]Record, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	records, err := s.records.ListRecords(ctx, session.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Stats summarizes the user's records by rule and by target folder.
func (s *Service) Stats(ctx context.Context, session credential.Session) (Stats, error) {
	total, err := s.records.CountRecords(ctx, session.UserID)
	if err != nil {
		return Stats{}, fmt.Errorf("counting records: %w", err)
	}

	byRule, err := s.records.GroupRecords(ctx, session.UserID, GroupByRule, MaxStatsGroups)
	if err != nil {
		return Stats{}, fmt.Errorf("grouping records by rule: %w", err)
	}
	byFolder, err := s.records.GroupRecords(ctx, session.UserID, GroupByFolder, MaxStatsGroups)
	if err != nil {
		return Stats{}, fmt.Errorf("grouping records by folder: %w", err)
	}

	stats := Stats{
		TotalClassified: total,
		ByRule:          make([]RuleCount, 0, len(byRule)),
		ByFolder:        make([]FolderCount, 0, len(byFolder)),
	}
	for _, c := range byRule {
		stats.ByRule = append(stats.ByRule, RuleCount{Rule: c.Name, Count: c.Count})
	}
	for _, c := range byFolder {
		stats.ByFolder = append(stats.ByFolder, FolderCount{Folder: c.Name, Count: c.Count})
	}
	return stats, nil
}

// SortCounts orders groups by count descending, then by name.
func SortCounts(counts []Count) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Name < counts[j].Name
	})
}

// Field returns the value r is grouped by.
func (g Grouping) Field(r Record) string {
	if g == GroupByFolder {
		return r.TargetFolderName
	}
	return r.RuleName
}

func runStatus(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}
