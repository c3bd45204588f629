package usecase

import (
	"context"
)

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalAttempts    int64   `json:"total_attempts"`
	VerifiedAttempts int64   `json:"verified_attempts"`
	SuccessRate      float64 `json:"success_rate"`
	AverageScore     float64 `json:"average_score"`
}

// GetMetricsSummary aggregates statistics from the recorded attempt history.
func (uc *VerificationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	if uc.repo == nil {
		return nil, ErrHistoryDisabled
	}

	agg, err := uc.repo.AggregateAttempts(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalAttempts:    agg.TotalCount,
		VerifiedAttempts: agg.VerifiedCount,
		AverageScore:     agg.AverageScore,
	}
	if agg.TotalCount > 0 {
		summary.SuccessRate = float64(agg.VerifiedCount) / float64(agg.TotalCount)
	}
	return summary, nil
}
