package liveness

import (
	"context"
	"errors"

	"github.com/example/liveness-server/internal/repository"
)

// ErrAuditLogDisabled is returned by audit queries when no recorder is wired.
var ErrAuditLogDisabled = errors.New("liveness audit log is not configured")

// MetricsSummary represents aggregated liveness insights.
type MetricsSummary struct {
	TotalResults  int64   `json:"total_results"`
	RealFace      int64   `json:"real_face"`
	SpoofFace     int64   `json:"spoof_face"`
	VerifyMatches int64   `json:"verify_matches"`
	EvidenceSaved int64   `json:"evidence_saved"`
	RealFaceRate  float64 `json:"real_face_rate"`
}

// GetMetricsSummary aggregates decisions from the audit log.
func (o *Orchestrator) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if o.recorder == nil {
		return nil, ErrAuditLogDisabled
	}
	aggregation, err := o.recorder.AggregateDecisions(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalResults:  aggregation.TotalCount,
		RealFace:      aggregation.RealFaceCount,
		SpoofFace:     aggregation.SpoofFaceCount,
		VerifyMatches: aggregation.VerifyMatchCount,
		EvidenceSaved: aggregation.EvidenceSavedCount,
	}
	if aggregation.TotalCount > 0 {
		summary.RealFaceRate = float64(aggregation.RealFaceCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}

// History returns the audit log entries of a session, newest first.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]*repository.LivenessLog, error) {
	if o.recorder == nil {
		return nil, ErrAuditLogDisabled
	}
	return o.recorder.FindBySessionID(ctx, sessionID)
}
