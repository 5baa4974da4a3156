package aggregate

import (
	"context"
	"log"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"example.com/coachcontext/internal/domain"
)

func TestAggregateRecordsDurationAndOutcome(t *testing.T) {
	stub := newStubSources()
	stub.errs[domain.SourceCatalog] = context.DeadlineExceeded
	agg := New(domain.AllSourcesFrom(stub), WithPolicy(PolicyPartial), WithLogger(log.New(testWriter{t}, "", 0)))

	metric := &dto.Metric{}
	require.NoError(t, aggregationDuration.Write(metric))
	samplesBefore := metric.GetHistogram().GetSampleCount()
	partialBefore := testutil.ToFloat64(aggregationsCounter.WithLabelValues("partial"))

	_, err := agg.Aggregate(context.Background(), "u1")
	require.NoError(t, err)

	metric = &dto.Metric{}
	require.NoError(t, aggregationDuration.Write(metric))
	require.Equal(t, samplesBefore+1, metric.GetHistogram().GetSampleCount())
	require.InDelta(t, partialBefore+1, testutil.ToFloat64(aggregationsCounter.WithLabelValues("partial")), 0.0001)
}

func TestOutcomeLabel(t *testing.T) {
	require.Equal(t, "failed", outcomeLabel(nil, context.Canceled))
	require.Equal(t, "partial", outcomeLabel(&domain.Snapshot{Missing: []domain.Source{domain.SourceCatalog}}, nil))
	require.Equal(t, "complete", outcomeLabel(&domain.Snapshot{}, nil))
}
