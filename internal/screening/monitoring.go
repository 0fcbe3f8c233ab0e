package screening

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banking/grant-risk-service/internal/domain"
)

// Placeholder quality gauges until labelled outcomes are fed back
const (
	precisionSample = 0.85
	featurePSI      = 0.02
	predictionDrift = 0.01
)

// MonitoringStatus summarizes pipeline freshness and today's alert volume
func (e *Engine) MonitoringStatus(ctx context.Context) (*domain.MonitoringStatus, error) {
	now := e.now()

	status := &domain.MonitoringStatus{
		PrecisionSample: precisionSample,
		ModelVersion:    e.cfg.Screening.ModelVersion,
		DriftMetrics: domain.DriftMetrics{
			FeaturePSI:      featurePSI,
			PredictionDrift: predictionDrift,
		},
	}
	if status.ModelVersion == "" {
		status.ModelVersion = "v1.0"
	}

	last, err := e.store.LastIngestion(ctx)
	switch {
	case err == nil:
		status.IngestionLagSec = secondsSince(now, last.Timestamp)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("last ingestion: %w", err)
	}

	latest, err := e.store.LatestFeatures(ctx)
	switch {
	case err == nil:
		status.FeatureFreshnessSec = secondsSince(now, latest.ComputedAt)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("latest features: %w", err)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	status.AlertVolumeToday, err = e.store.CountAlertsSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}

	return status, nil
}

func secondsSince(now, then time.Time) int64 {
	if then.IsZero() || then.After(now) {
		return 0
	}
	return int64(now.Sub(then).Seconds())
}
