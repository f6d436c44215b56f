package session

import "context"

// MetricsSummary represents aggregated inspection insights.
type MetricsSummary struct {
	TotalScans        int64   `json:"total_scans"`
	ConfirmedScans    int64   `json:"confirmed_scans"`
	ConfirmRate       float64 `json:"confirm_rate"`
	AverageConfidence float64 `json:"average_confidence"`
}

// MetricsSummary aggregates scan metrics from the session log.
func (m *Manager) MetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := m.sink.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalScans:        aggregation.TotalCount,
		ConfirmedScans:    aggregation.ConfirmedCount,
		AverageConfidence: aggregation.AverageConfidence,
	}

	if aggregation.TotalCount > 0 {
		summary.ConfirmRate = float64(aggregation.ConfirmedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
