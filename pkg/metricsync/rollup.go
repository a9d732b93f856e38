package metricsync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jay-chalkstep/cadaince-sub001/internal/database/models"
)

// RollupResult is the outcome of recomputing one rollup metric.
type RollupResult struct {
	MetricID    uuid.UUID `json:"metric_id"`
	Aggregation string    `json:"aggregation"`
	Value       float64   `json:"value"`
	Previous    *float64  `json:"previous,omitempty"`
	Changed     bool      `json:"changed"`
	ChildCount  int       `json:"child_count"`
}

// RecomputeRollup aggregates the latest values of a rollup metric's children
// and appends the aggregate to the parent's untagged series when it differs
// from the parent's current value. Children without any recorded value are
// skipped rather than treated as zero.
func (p *Processor) RecomputeRollup(ctx context.Context, metric *models.Metric) (*RollupResult, error) {
	if !metric.IsRollup {
		return nil, fmt.Errorf("metric %s is not a rollup", metric.ID)
	}

	children, err := p.store.ListChildMetrics(ctx, metric.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of rollup %s: %w", metric.ID, err)
	}

	var childValues []float64
	for _, child := range children {
		latest, err := p.store.LatestValueAnyWindow(ctx, child.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read latest value of child %s: %w", child.ID, err)
		}
		if latest == nil {
			continue
		}
		childValues = append(childValues, latest.Value)
	}

	aggregation := metric.EffectiveAggregation()
	result := &RollupResult{
		MetricID:    metric.ID,
		Aggregation: aggregation,
		ChildCount:  len(childValues),
	}
	if len(childValues) == 0 {
		return result, nil
	}

	value, err := aggregate(aggregation, childValues)
	if err != nil {
		return nil, err
	}
	result.Value = value

	current, err := p.store.LatestValue(ctx, metric.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read current rollup value: %w", err)
	}
	if current != nil {
		result.Previous = &current.Value
		if current.Value == value {
			return result, nil
		}
	}

	if err := p.recordValue(ctx, metric, value, nil, models.ValueSourceRollup); err != nil {
		return nil, err
	}
	result.Changed = true
	return result, nil
}

// RecomputeRollupByID loads a rollup metric and recomputes it.
func (p *Processor) RecomputeRollupByID(ctx context.Context, id uuid.UUID) (*RollupResult, error) {
	metric, err := p.store.GetMetric(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.RecomputeRollup(ctx, metric)
}

// RecomputeAllRollups recomputes every active rollup metric. Failures are
// isolated per metric; the returned error is nil unless the rollup collection
// itself cannot be read.
func (p *Processor) RecomputeAllRollups(ctx context.Context) ([]*RollupResult, error) {
	metrics, err := p.store.ListRollupMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollup metrics: %w", err)
	}

	var results []*RollupResult
	for _, metric := range metrics {
		result, err := p.RecomputeRollup(ctx, metric)
		if err != nil {
			p.logger.WithFields(map[string]interface{}{
				"metric_id": metric.ID.String(),
				"error":     err.Error(),
			}).Warn("Rollup recompute failed")
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// ConvertToRollup marks a metric as a rollup with the given aggregation
// (default sum) and recomputes it immediately.
func (p *Processor) ConvertToRollup(ctx context.Context, id uuid.UUID, aggregation string) (*RollupResult, error) {
	if aggregation == "" {
		aggregation = models.AggregationSum
	}
	switch aggregation {
	case models.AggregationSum, models.AggregationAvg, models.AggregationCount,
		models.AggregationMin, models.AggregationMax:
	default:
		return nil, fmt.Errorf("unknown aggregation_type %q", aggregation)
	}

	if err := p.store.MarkMetricRollup(ctx, id, aggregation); err != nil {
		return nil, err
	}
	return p.RecomputeRollupByID(ctx, id)
}

func aggregate(aggregation string, values []float64) (float64, error) {
	switch aggregation {
	case models.AggregationSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case models.AggregationAvg:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case models.AggregationCount:
		return float64(len(values)), nil
	case models.AggregationMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case models.AggregationMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	default:
		return 0, fmt.Errorf("unknown aggregation_type %q", aggregation)
	}
}
