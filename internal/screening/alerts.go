package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
	"github.com/banking/grant-risk-service/internal/pkg/telemetry"
)

const defaultTimelineLimit = 20

// alertInputs is everything an alert can be assembled from. Any part may be
// absent.
type alertInputs struct {
	score    *domain.Score
	features *domain.FeatureSet
	rules    *domain.RuleEvaluation
	recent   []domain.Transaction
}

// GetAlert returns the stored alert of a subject, materializing and storing
// it on first read. Materialization needs a score or a feature vector.
func (e *Engine) GetAlert(ctx context.Context, grantID string) (*domain.Alert, error) {
	grantID, err := requireGrantID(grantID)
	if err != nil {
		return nil, err
	}

	stored, err := e.store.GetAlert(ctx, grantID)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load alert: %w", err)
	}

	ctx, span := telemetry.StartSpan(ctx, "risk.materialize_alert", telemetry.GrantID(grantID))
	defer span.End()
	start := time.Now()

	in, err := e.loadAlertInputs(ctx, grantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if in.score == nil && in.features == nil {
		return nil, fmt.Errorf("no alert, features or score for %q: %w", grantID, domain.ErrNotFound)
	}

	alert := e.assembleAlert(grantID, in)
	alert.Justification = e.justify(ctx, alert)
	alert.Timestamp = e.now()

	log := e.log.WithContext(ctx)
	if err := e.store.SaveAlert(ctx, alert); err != nil {
		log.Warn("failed to persist materialized alert", logger.ErrorField(err))
	}
	e.publish(ctx, &domain.AlertEvent{
		EventID:   uuid.NewString(),
		EventType: domain.AlertEventMaterialized,
		GrantID:   grantID,
		RiskScore: alert.RiskScore,
		RiskTier:  alert.RiskTier,
		Timestamp: alert.Timestamp,
	})

	e.observe("alert", start)
	e.metrics.IncrementAlertMaterialized()
	log.AlertMaterialized(grantID, string(alert.RiskTier), len(alert.Timeline))

	return alert, nil
}

// loadAlertInputs reads the alert inputs concurrently. Absent records are
// left nil; any other storage failure aborts the read.
func (e *Engine) loadAlertInputs(ctx context.Context, grantID string) (*alertInputs, error) {
	in := &alertInputs{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s, err := e.store.GetScore(gctx, grantID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load score: %w", err)
		}
		in.score = s
		return nil
	})
	g.Go(func() error {
		fs, err := e.store.GetFeatures(gctx, grantID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load features: %w", err)
		}
		in.features = fs
		return nil
	})
	g.Go(func() error {
		re, err := e.store.GetRuleEvaluation(gctx, grantID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load rule evaluation: %w", err)
		}
		in.rules = re
		return nil
	})
	g.Go(func() error {
		txs, err := e.store.RecentTransactions(gctx, grantID, e.timelineLimit())
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		in.recent = txs
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

func (e *Engine) assembleAlert(grantID string, in *alertInputs) *domain.Alert {
	alert := &domain.Alert{
		GrantID:  grantID,
		RiskTier: domain.RiskTierUnknown,
		RuleHits: []domain.RuleID{},
		Timeline: make([]domain.TimelineEvent, 0, len(in.recent)),
	}

	if in.score != nil {
		alert.RiskScore = in.score.RiskScore
		alert.RiskTier = in.score.RiskTier
		alert.TopDrivers = in.score.TopDrivers
	}

	// the score's snapshot wins over a later standalone evaluation
	switch {
	case in.score != nil && in.score.RuleHits != nil:
		alert.RuleHits = append(alert.RuleHits, in.score.RuleHits.TriggeredRules...)
	case in.rules != nil:
		alert.RuleHits = append(alert.RuleHits, in.rules.TriggeredRules...)
	}

	if in.features != nil {
		f := in.features.Features
		alert.ComputedFeatures = &f
	}

	limit := e.timelineLimit()
	for i, tx := range in.recent {
		if i == limit {
			break
		}
		alert.Timeline = append(alert.Timeline, domain.TimelineEvent{
			Date:   tx.Timestamp,
			Event:  tx.Direction,
			Amount: float64(tx.Amount),
		})
	}

	return alert
}

// justify asks the generator for an analyst-facing explanation, falling back
// to the fixed justification on any failure or an empty summary
func (e *Engine) justify(ctx context.Context, alert *domain.Alert) domain.Justification {
	var j domain.Justification
	err := e.generator.GenerateStructured(ctx, justificationPrompt(alert), &j)
	if err == nil && strings.TrimSpace(j.Summary) != "" {
		return j
	}
	if err == nil {
		err = errors.New("empty summary")
	}

	e.metrics.IncrementFallback("justification")
	e.log.WithContext(ctx).GeneratorFallback("justification", err)
	return domain.FallbackJustification()
}

func justificationPrompt(alert *domain.Alert) string {
	features, _ := json.Marshal(alert.ComputedFeatures)
	rules := make([]string, 0, len(alert.RuleHits))
	for _, id := range alert.RuleHits {
		rules = append(rules, fmt.Sprintf("%s (%s)", id, RuleDescription(id)))
	}

	return "You are an AML analyst assistant. Given these features and rule hits, produce a short JSON justification " +
		"for an alert with keys: summary (string), recommended_action (string), severity_explanation (string).\n\n" +
		"features: " + string(features) + "\n" +
		"rule_hits: [" + strings.Join(rules, ", ") + "]\n" +
		fmt.Sprintf("risk_score: %.4f (%s)\n\n", alert.RiskScore, alert.RiskTier) +
		"Return only JSON."
}

// RecentAlerts lists stored alerts, newest first. limit <= 0 uses the default
// and larger values are capped.
func (e *Engine) RecentAlerts(ctx context.Context, limit int) ([]*domain.Alert, error) {
	alerts, err := e.store.ListAlerts(ctx, e.listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func (e *Engine) listLimit(limit int) int {
	def, ceiling := e.cfg.Alerts.DefaultListLimit, e.cfg.Alerts.MaxListLimit
	if ceiling <= 0 {
		ceiling = 200
	}
	if def <= 0 {
		def = 50
	}
	switch {
	case limit <= 0:
		return def
	case limit > ceiling:
		return ceiling
	default:
		return limit
	}
}

func (e *Engine) timelineLimit() int {
	if e.cfg.Alerts.TimelineLimit > 0 {
		return e.cfg.Alerts.TimelineLimit
	}
	return defaultTimelineLimit
}

// Triage records an analyst decision for a subject. The decision is stored
// independently of the alert and replaces any earlier one.
func (e *Engine) Triage(ctx context.Context, grantID string, req domain.TriageRequest, analystID string) (*domain.TriageDecision, error) {
	grantID, err := requireGrantID(grantID)
	if err != nil {
		return nil, err
	}
	disposition := domain.Disposition(strings.TrimSpace(string(req.Disposition)))
	if disposition == "" {
		return nil, fmt.Errorf("%w: disposition is required", domain.ErrInvalidInput)
	}

	ctx, span := telemetry.StartSpan(ctx, "risk.triage", telemetry.GrantID(grantID))
	defer span.End()

	decision := &domain.TriageDecision{
		ID:           uuid.NewString(),
		GrantID:      grantID,
		Disposition:  disposition,
		AnalystNotes: req.AnalystNotes,
		AnalystID:    analystID,
		Timestamp:    e.now(),
	}

	if err := e.store.SaveTriage(ctx, decision); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("save triage: %w", err)
	}

	e.publish(ctx, &domain.AlertEvent{
		EventID:     uuid.NewString(),
		EventType:   domain.AlertEventTriaged,
		GrantID:     grantID,
		Disposition: disposition,
		Timestamp:   decision.Timestamp,
	})

	e.metrics.IncrementTriage(string(disposition))
	e.log.WithContext(ctx).TriageRecorded(grantID, string(disposition), analystID)

	return decision, nil
}

func (e *Engine) publish(ctx context.Context, evt *domain.AlertEvent) {
	if err := e.publisher.PublishAlertEvent(ctx, evt); err != nil {
		e.log.WithContext(ctx).Warn("failed to publish alert event",
			logger.StringField("event_type", string(evt.EventType)),
			logger.ErrorField(err),
		)
	}
}
