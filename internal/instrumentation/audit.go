package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxsorter/internal/config"
)

// ToolInvocation captures information about an MCP tool call for audit logging.
//
// # Privacy Considerations
//
// UserEmail contains PII. Use UserDomain for general logs and only emit the
// full address when the audit logger is configured with IncludePII.
type ToolInvocation struct {
	Tool      string
	UserEmail string

	// Operation is the classification operation behind the tool
	// (analyze, execute, history, stats, rules).
	Operation string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithUser sets the user identity information.
func (ti *ToolInvocation) WithUser(email string) *ToolInvocation {
	ti.UserEmail = email
	return ti
}

// WithOperation sets the classification operation.
func (ti *ToolInvocation) WithOperation(operation string) *ToolInvocation {
	ti.Operation = operation
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// UserDomain returns the domain portion of the user's email.
func (ti *ToolInvocation) UserDomain() string {
	return mailDomain(ti.UserEmail)
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

func (ti *ToolInvocation) attrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if includePII {
		attrs = append(attrs, slog.String("user", ti.UserEmail))
	} else {
		attrs = append(attrs, slog.String("user_domain", ti.UserDomain()))
	}
	if ti.Operation != "" {
		attrs = append(attrs, slog.String("operation", ti.Operation))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if includePII && ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// MoveEvent describes a message relocated by the classification engine.
type MoveEvent struct {
	UserID    string
	MessageID string
	Subject   string
	From      string
	Rule      string
	FolderID  string
	Folder    string
	Success   bool
	Error     string
}

func (ev MoveEvent) attrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("message_id", ev.MessageID),
		slog.String("rule", ev.Rule),
		slog.String("folder", ev.Folder),
		slog.String("folder_id", ev.FolderID),
		slog.Bool("success", ev.Success),
	}
	if includePII {
		attrs = append(attrs,
			slog.String("user_id", ev.UserID),
			slog.String("from", ev.From),
			slog.String("subject", ev.Subject),
		)
	} else {
		attrs = append(attrs, slog.String("from_domain", mailDomain(ev.From)))
	}
	if ev.Error != "" {
		attrs = append(attrs, slog.String("error", ev.Error))
	}
	return attrs
}

// AuditLogger provides structured audit logging for tool invocations and
// mailbox mutations.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, cfg config.AuditConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With("component", "audit"),
		includePII: cfg.IncludePII,
		enabled:    cfg.Enabled,
	}
}

// LogToolInvocation logs a completed tool invocation. A nil receiver is a no-op.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled || ti == nil {
		return
	}

	args := toArgs(ti.attrs(al.includePII))
	if ti.Success {
		al.logger.Info("tool_executed", args...)
	} else {
		al.logger.Warn("tool_failed", args...)
	}
}

// LogMove logs a message move attempt. A nil receiver is a no-op.
func (al *AuditLogger) LogMove(ev MoveEvent) {
	if al == nil || !al.enabled {
		return
	}

	args := toArgs(ev.attrs(al.includePII))
	if ev.Success {
		al.logger.Info("message_moved", args...)
	} else {
		al.logger.Warn("message_move_failed", args...)
	}
}

func toArgs(attrs []slog.Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}
