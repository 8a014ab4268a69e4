package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ippeo/consultd/internal/domain"
	"github.com/ippeo/consultd/internal/hermes"
	"github.com/ippeo/consultd/internal/report"
	"github.com/ippeo/consultd/internal/store"
)

// Regenerate rewrites one existing report with an admin direction. Retrieval
// is redone with the stored keywords plus the direction's words. On failure
// the consultation is marked failed and the report rejected. A successful
// regeneration restarts the public link's lifetime.
func (p *Pipeline) Regenerate(ctx context.Context, reportID uuid.UUID, direction string) error {
	rep, err := p.store.GetReport(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	if err := p.regenerate(ctx, rep, direction); err != nil {
		msg := "regeneration failed: " + err.Error()
		p.fail(ctx, rep.ConsultationID, msg)
		if merr := p.store.MarkReportRejected(ctx, rep.ID, msg); merr != nil {
			p.logger.Error("failed to mark report rejected", "report_id", rep.ID, "error", merr)
		}
		p.metrics.runs.WithLabelValues("regenerate_failed").Inc()
		return err
	}
	p.metrics.runs.WithLabelValues("regenerated").Inc()
	return nil
}

func (p *Pipeline) regenerate(ctx context.Context, rep *domain.Report, direction string) error {
	c, err := p.store.GetConsultation(ctx, rep.ConsultationID)
	if err != nil {
		return fmt.Errorf("load consultation: %w", err)
	}
	if !c.Classification.Reportable() {
		return fmt.Errorf("consultation %s has no usable classification", c.ID)
	}

	p.logger.Info("regenerating report", "consultation_id", c.ID, "report_id", rep.ID, "report_type", rep.Type)
	if err := p.store.UpdateStatus(ctx, c.ID, domain.StatusReportGenerating, ""); err != nil {
		return fmt.Errorf("set report generating: %w", err)
	}

	var keywords []string
	if c.Intent != nil {
		keywords = c.Intent.Keywords
	}
	keywords = MergeKeywords(keywords, direction)
	candidates := p.retrieve(ctx, c.ID, keywords, c.Classification)

	docs, err := p.loadPrerequisites(ctx, c.ID, rep.Type)
	if err != nil {
		return err
	}
	in, ok := p.writeInput(c, candidates, direction, docs, rep.Type)
	if !ok {
		return fmt.Errorf("%w for %s", report.ErrMissingPrerequisite, rep.Type)
	}

	saved, _, err := p.produce(ctx, c, rep.Type, in, candidates)
	if err != nil {
		return err
	}
	if _, err := p.store.RefreshReportLink(ctx, saved.ID); err != nil {
		return fmt.Errorf("refresh report link: %w", err)
	}

	if err := p.store.UpdateStatus(ctx, c.ID, domain.StatusReportReady, ""); err != nil {
		return fmt.Errorf("set report ready: %w", err)
	}
	p.publish(ctx, hermes.SubjectReportReady, map[string]any{
		"consultation_id": c.ID.String(),
		"reports":         map[string]string{string(rep.Type): saved.ID.String()},
		"regenerated":     true,
	})
	return nil
}

// loadPrerequisites reads the stored reports that t depends on.
func (p *Pipeline) loadPrerequisites(ctx context.Context, consultationID uuid.UUID, t domain.ReportType) (map[domain.ReportType]report.Document, error) {
	tpl, ok := report.Lookup(t)
	if !ok {
		return nil, fmt.Errorf("%w: %q", report.ErrUnknownReportType, t)
	}

	docs := make(map[domain.ReportType]report.Document, len(tpl.Requires))
	for _, dep := range tpl.Requires {
		stored, err := p.store.GetReportByType(ctx, consultationID, dep)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", dep, err)
		}
		depTpl, _ := report.Lookup(dep)
		doc := depTpl.New()
		if err := json.Unmarshal(stored.Data, doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", dep, err)
		}
		docs[dep] = doc
	}
	return docs, nil
}

// MergeKeywords returns keywords followed by the whitespace-separated words
// of direction, without duplicates and in first-seen order.
func MergeKeywords(keywords []string, direction string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
	}
	for _, k := range keywords {
		add(k)
	}
	for _, k := range strings.Fields(direction) {
		add(k)
	}
	return out
}
