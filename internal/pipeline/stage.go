package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ippeo/consultd/internal/domain"
)

// runStage times fn, records a stage log entry and the stage metric, and
// returns fn's result. A failure to write the log entry is logged only.
func runStage[T any](ctx context.Context, p *Pipeline, id uuid.UUID, name string, input any, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := fn(ctx)
	elapsed := time.Since(start)

	entry := domain.StageLog{
		ConsultationID: id,
		Agent:          name,
		Input:          input,
		DurationMS:     elapsed.Milliseconds(),
		Status:         domain.StageSuccess,
	}
	if err != nil {
		entry.Status = domain.StageFailed
		entry.ErrorMessage = err.Error()
	} else {
		entry.Output = out
	}
	p.metrics.stageDuration.WithLabelValues(name, entry.Status).Observe(elapsed.Seconds())
	p.logStage(ctx, entry)

	if err != nil {
		p.logger.Error("stage failed", "consultation_id", id, "stage", name, "duration_ms", entry.DurationMS, "error", err)
	} else {
		p.logger.Info("stage completed", "consultation_id", id, "stage", name, "duration_ms", entry.DurationMS)
	}
	return out, err
}

func (p *Pipeline) logStage(ctx context.Context, entry domain.StageLog) {
	if err := p.store.LogStage(ctx, entry); err != nil {
		p.logger.Warn("stage log write failed", "consultation_id", entry.ConsultationID, "stage", entry.Agent, "error", err)
	}
}

// NonCritical is a best-effort side effect. Its error is logged and never
// returned to the caller.
type NonCritical struct {
	Name string
	Run  func(ctx context.Context) error
}

// Do runs the task and reports whether it succeeded.
func (t NonCritical) Do(ctx context.Context, logger *slog.Logger, attrs ...any) bool {
	if err := t.Run(ctx); err != nil {
		logger.Warn("non-critical task failed", append([]any{"task", t.Name, "error", err}, attrs...)...)
		return false
	}
	return true
}
