package observability

import (
	"context"
	"time"

	"commodities/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// CloudWatchAPI is the subset of the CloudWatch client used here
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes rebuild statistics as CloudWatch metrics
type CloudWatchMetrics struct {
	namespace string
	client    CloudWatchAPI
	logger    *zap.Logger
}

// NewCloudWatchMetrics creates a new metrics publisher. A nil client
// disables publishing.
func NewCloudWatchMetrics(namespace string, client CloudWatchAPI, logger *zap.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
	}
}

// RecordRebuild implements ports.RunMetrics. Failures are logged, never returned.
func (m *CloudWatchMetrics) RecordRebuild(ctx context.Context, stats ports.RebuildStats) {
	if m.client == nil {
		return
	}

	now := aws.Time(time.Now())
	dims := []types.Dimension{{Name: aws.String("Pipeline"), Value: aws.String("rebuild")}}
	count := func(name string, v int) types.MetricDatum {
		return types.MetricDatum{
			MetricName: aws.String(name),
			Dimensions: dims,
			Value:      aws.Float64(float64(v)),
			Unit:       types.StandardUnitCount,
			Timestamp:  now,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String("RebuildDuration"),
				Dimensions: dims,
				Value:      aws.Float64(float64(stats.Duration.Milliseconds())),
				Unit:       types.StandardUnitMilliseconds,
				Timestamp:  now,
			},
			count("FactsRanked", stats.Facts),
			count("RankingGroups", stats.Groups),
			count("AmountParseFailures", stats.ParseFailures),
			count("GroupsMissingWorldTotal", stats.MissingWorldTotal),
			count("BalanceSummaries", stats.Balances),
			count("IndexEntries", stats.Entries),
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("Failed to send rebuild metrics",
			zap.String("runID", stats.RunID),
			zap.Error(err),
		)
	}
}
