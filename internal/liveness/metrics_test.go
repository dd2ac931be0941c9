package liveness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/liveness-server/internal/config"
	"github.com/example/liveness-server/internal/repository"
)

func TestGetMetricsSummaryComputesRate(t *testing.T) {
	recorder := &stubRecorder{agg: &repository.DecisionAggregation{
		TotalCount:         4,
		RealFaceCount:      3,
		SpoofFaceCount:     1,
		VerifyMatchCount:   2,
		EvidenceSavedCount: 4,
	}}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), &stubFace{}, &stubLinks{}, Dependencies{Recorder: recorder})

	summary, err := o.GetMetricsSummary(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.TotalResults)
	assert.Equal(t, int64(2), summary.VerifyMatches)
	assert.InDelta(t, 0.75, summary.RealFaceRate, 1e-9)
}

func TestGetMetricsSummaryEmpty(t *testing.T) {
	o := newTestOrchestrator(testConfig(config.ModeLiveness), &stubFace{}, &stubLinks{}, Dependencies{Recorder: &stubRecorder{}})

	summary, err := o.GetMetricsSummary(context.Background())

	require.NoError(t, err)
	assert.Zero(t, summary.RealFaceRate)
}

func TestAuditQueriesWithoutRecorder(t *testing.T) {
	o := newTestOrchestrator(testConfig(config.ModeLiveness), &stubFace{}, &stubLinks{}, Dependencies{})

	_, err := o.GetMetricsSummary(context.Background())
	assert.ErrorIs(t, err, ErrAuditLogDisabled)

	_, err = o.History(context.Background(), "sess-1")
	assert.ErrorIs(t, err, ErrAuditLogDisabled)
}

func TestHistoryFiltersBySession(t *testing.T) {
	recorder := &stubRecorder{logs: []*repository.LivenessLog{
		{SessionID: "sess-1", LivenessDecision: "realface"},
		{SessionID: "sess-2", LivenessDecision: "spoofface"},
	}}
	o := newTestOrchestrator(testConfig(config.ModeLiveness), &stubFace{}, &stubLinks{}, Dependencies{Recorder: recorder})

	logs, err := o.History(context.Background(), "sess-2")

	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "spoofface", logs[0].LivenessDecision)
}
