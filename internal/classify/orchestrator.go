package classify

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/graph"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
	"github.com/teemow/inboxsorter/internal/oracle"
	"github.com/teemow/inboxsorter/internal/rules"
)

const (
	// BatchSize is the number of messages classified concurrently.
	BatchSize = 5

	// BatchPause is the wait between two batches.
	BatchPause = 2 * time.Second
)

// MessageFetcher loads a message with its body and sender.
type MessageFetcher interface {
	GetMessage(ctx context.Context, accessToken, messageID string) (graph.Message, error)
}

// Classifier produces a verdict for one message.
type Classifier interface {
	Classify(ctx context.Context, body, subject string, active []rules.Rule) oracle.Verdict
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Orchestrator classifies messages in sequential batches.
type Orchestrator struct {
	fetcher    MessageFetcher
	classifier Classifier
	sleep      Sleeper
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSleeper replaces the pause between batches.
func WithSleeper(s Sleeper) OrchestratorOption {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOrchestratorMetrics sets the metrics recorder.
func WithOrchestratorMetrics(m *instrumentation.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(fetcher MessageFetcher, classifier Classifier, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		fetcher:    fetcher,
		classifier: classifier,
		sleep:      sleepContext,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ClassifyMany classifies ids in batches of BatchSize and returns one Outcome
// per message in input order. Messages that cannot be fetched are dropped.
// When ctx is cancelled the outcomes of the finished batches are returned.
func (o *Orchestrator) ClassifyMany(ctx context.Context, ids []string, active []rules.Rule, session credential.Session) []Outcome {
	outcomes := make([]Outcome, 0, len(ids))

	for start := 0; start < len(ids); start += BatchSize {
		if ctx.Err() != nil {
			o.logger.WarnContext(ctx, "classification cancelled",
				slog.Int("classified", len(outcomes)),
				slog.Int("remaining", len(ids)-start))
			break
		}

		end := min(start+BatchSize, len(ids))
		outcomes = append(outcomes, o.batch(ctx, ids[start:end], start/BatchSize, active, session)...)

		if end < len(ids) {
			if err := o.sleep(ctx, BatchPause); err != nil {
				break
			}
		}
	}
	return outcomes
}

func (o *Orchestrator) batch(ctx context.Context, ids []string, index int, active []rules.Rule, session credential.Session) []Outcome {
	ctx, span := instrumentation.StartSpan(ctx, "classify.batch",
		attribute.Int(instrumentation.SpanAttrBatch, index),
		attribute.Int("classify.batch_size", len(ids)))
	defer span.End()

	results := make([]*Outcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(BatchSize)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = o.classifyOne(gctx, id, active, session)
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make([]Outcome, 0, len(ids))
	for _, r := range results {
		if r != nil {
			outcomes = append(outcomes, *r)
		}
	}
	return outcomes
}

func (o *Orchestrator) classifyOne(ctx context.Context, id string, active []rules.Rule, session credential.Session) *Outcome {
	msg, err := o.fetcher.GetMessage(ctx, session.AccessToken, id)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to fetch message", logging.MessageID(id), logging.Err(err))
		o.metrics.RecordClassificationOutcome(ctx, instrumentation.OutcomeDropped, "")
		return nil
	}

	verdict := o.classifier.Classify(ctx, PlainText(msg.BodyContent()), msg.Subject, active)
	sender := msg.Sender()

	rule, ok := rules.Resolve(verdict.RuleName, active)
	if !ok {
		out := unresolved(id, msg.Subject)
		out.fromAddress, out.fromName = sender.Address, sender.Name
		o.metrics.RecordClassificationOutcome(ctx, instrumentation.OutcomeUnresolved, "")
		return &out
	}

	o.metrics.RecordClassificationOutcome(ctx, instrumentation.OutcomeResolved, rule.Name)
	return &Outcome{
		MessageID:           id,
		Subject:             msg.Subject,
		SuggestedFolder:     rule.TargetFolderID,
		SuggestedFolderName: rule.TargetFolderName,
		RuleApplied:         rule.Name,
		Confidence:          verdict.Confidence,
		fromAddress:         sender.Address,
		fromName:            sender.Name,
	}
}
