package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/logging"
	"github.com/teemow/inboxsorter/internal/rules"
)

// ReasonNotConfigured is the reason used when no model is configured.
const ReasonNotConfigured = "not configured"

// Completer runs one chat completion and returns the raw assistant text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// Adapter turns a message and the active rules into a Verdict.
type Adapter struct {
	completer Completer
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
}

// NewAdapter creates an Adapter. A nil completer makes every classification
// return a degraded "not configured" verdict.
func NewAdapter(completer Completer, logger *slog.Logger, metrics *instrumentation.Metrics) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{completer: completer, logger: logger, metrics: metrics}
}

// Configured reports whether a model is available.
func (a *Adapter) Configured() bool {
	return a.completer != nil
}

// Classify asks the model which of the active rules applies. It never fails:
// transport errors and unparseable output become degraded verdicts.
func (a *Adapter) Classify(ctx context.Context, body, subject string, active []rules.Rule) Verdict {
	if a.completer == nil {
		a.metrics.RecordOracleClassification(ctx, instrumentation.OracleResultNotConfigured, 0)
		return NoMatch(ReasonNotConfigured)
	}

	ctx, span := instrumentation.StartOracleSpan(ctx, a.completer.Model())
	defer span.End()

	start := time.Now()
	text, err := a.completer.Complete(ctx, systemPrompt(active), userPrompt(subject, body, active))
	elapsed := time.Since(start)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		a.metrics.RecordOracleClassification(ctx, instrumentation.OracleResultDegraded, elapsed)
		a.logger.WarnContext(ctx, "classification call failed", logging.Err(err))
		return NoMatch(err.Error())
	}

	v := Parse(text)
	switch {
	case v.Degraded:
		a.metrics.RecordOracleClassification(ctx, instrumentation.OracleResultDegraded, elapsed)
		a.logger.WarnContext(ctx, "unparseable classification", slog.String("response", logging.Truncate(text, 200)))
	case v.Matched():
		a.metrics.RecordOracleClassification(ctx, instrumentation.OracleResultMatched, elapsed)
	default:
		a.metrics.RecordOracleClassification(ctx, instrumentation.OracleResultNone, elapsed)
	}
	a.logger.DebugContext(ctx, "classified message",
		logging.Rule(v.RuleName),
		slog.Float64("confidence", v.Confidence))

	return v
}
