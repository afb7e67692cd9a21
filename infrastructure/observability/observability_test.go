package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"commodities/application/ports"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchMetrics_RecordRebuild(t *testing.T) {
	fake := &fakeCloudWatch{}
	m := NewCloudWatchMetrics("Commodities", fake, zap.NewNop())

	m.RecordRebuild(context.Background(), ports.RebuildStats{RunID: "r1", Facts: 10, ParseFailures: 2, Duration: 1500 * time.Millisecond})

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "Commodities", *fake.inputs[0].Namespace)
	byName := map[string]float64{}
	for _, d := range fake.inputs[0].MetricData {
		byName[*d.MetricName] = *d.Value
	}
	assert.Equal(t, 1500.0, byName["RebuildDuration"])
	assert.Equal(t, 10.0, byName["FactsRanked"])
	assert.Equal(t, 2.0, byName["AmountParseFailures"])
}

func TestCloudWatchMetrics_ErrorsAreSwallowed(t *testing.T) {
	fake := &fakeCloudWatch{err: errors.New("throttled")}
	m := NewCloudWatchMetrics("Commodities", fake, zap.NewNop())
	assert.NotPanics(t, func() {
		m.RecordRebuild(context.Background(), ports.RebuildStats{})
	})

	disabled := NewCloudWatchMetrics("Commodities", nil, zap.NewNop())
	assert.NotPanics(t, func() {
		disabled.RecordRebuild(context.Background(), ports.RebuildStats{})
	})
}

func TestCollector(t *testing.T) {
	c := NewCollector("commodities")

	c.Increment("query_count", "RankedFactsQuery")
	c.Increment("query_count", "RankedFactsQuery")
	c.StartTimer("query_duration", "RankedFactsQuery").Stop()
	c.ObserveHTTP("GET", "/api/v1/production", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Queries.WithLabelValues("query_count", "RankedFactsQuery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/v1/production", "200")))

	MultiRunMetrics{c, c}.RecordRebuild(context.Background(), ports.RebuildStats{Entries: 42})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Rebuilds))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.IndexEntries))
}
