package workers

import (
	"context"
	"testing"
	"time"

	"github.com/openprep/openprep/internal/logger"
	"github.com/openprep/openprep/internal/models"
	"github.com/openprep/openprep/internal/services"
)

type countingReports struct {
	calls  []string
	limits []int
}

func (r *countingReports) History(context.Context, string, int) ([]models.InterviewSummary, error) {
	return nil, nil
}

func (r *countingReports) Stats(context.Context, string) (*models.InterviewStats, error) {
	return &models.InterviewStats{}, nil
}

func (r *countingReports) Report(_ context.Context, ownerID string, limit int) (*services.Report, error) {
	r.calls = append(r.calls, ownerID)
	r.limits = append(r.limits, limit)
	return &services.Report{}, nil
}

func TestHandleWarmsOwnerReport(t *testing.T) {
	reports := &countingReports{}
	p := &ReportWorkerPool{Reports: reports, Logger: logger.Discard()}

	err := p.Handle(context.Background(), map[string]any{
		"type":       "interview_completed",
		"owner_id":   "user-1",
		"session_id": "s1",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(reports.calls) != 1 || reports.calls[0] != "user-1" || reports.limits[0] != services.MaxHistoryLimit {
		t.Fatalf("unexpected report calls %v %v", reports.calls, reports.limits)
	}
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	reports := &countingReports{}
	p := &ReportWorkerPool{Reports: reports, Logger: logger.Discard()}

	_ = p.Handle(context.Background(), map[string]any{"type": "something_else", "owner_id": "user-1"})
	_ = p.Handle(context.Background(), map[string]any{"type": "interview_completed"})
	if len(reports.calls) != 0 {
		t.Fatalf("expected no report calls, got %v", reports.calls)
	}
}

func TestStartRequiresDependencies(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := (&ReportWorkerPool{}).Start(ctx); err == nil {
		t.Fatalf("expected missing dependency error")
	}
}
