package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banking/grant-risk-service/internal/config"
	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/metrics"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
	"github.com/banking/grant-risk-service/internal/pkg/telemetry"
	"github.com/banking/grant-risk-service/internal/store"
	"github.com/banking/grant-risk-service/internal/textgen"
)

// AlertPublisher announces alert lifecycle events to downstream consumers
type AlertPublisher interface {
	PublishAlertEvent(ctx context.Context, evt *domain.AlertEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishAlertEvent(context.Context, *domain.AlertEvent) error { return nil }

// EngineConfig carries the config sections the engine reads
type EngineConfig struct {
	Features  config.FeaturesConfig
	Alerts    config.AlertsConfig
	Screening config.ScreeningConfig
}

// Engine runs the risk pipeline for one subject at a time: features, rules,
// score and alert. Each stage reads its inputs from the store and upserts its
// own output; stages are never chained implicitly.
type Engine struct {
	store      store.Store
	generator  textgen.Generator
	publisher  AlertPublisher
	calculator *RiskCalculator
	scorer     *Scorer
	resolver   *EntityResolver

	cfg     EngineConfig
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

// NewEngine creates a new risk engine. A nil publisher discards events and a
// nil metrics records nothing.
func NewEngine(
	st store.Store,
	generator textgen.Generator,
	publisher AlertPublisher,
	m *metrics.Metrics,
	cfg EngineConfig,
	log *logger.Logger,
) *Engine {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if generator == nil {
		generator = textgen.Disabled{}
	}
	log = log.Named("risk_engine")

	calculator := NewRiskCalculator()
	return &Engine{
		store:      st,
		generator:  generator,
		publisher:  publisher,
		calculator: calculator,
		scorer:     NewScorer(calculator, generator, m, log),
		resolver:   NewEntityResolver(st, generator, cfg.Screening.ParallelResolutions, m, log),
		cfg:        cfg,
		metrics:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ComputeFeatures extracts and persists the feature vector of a subject from
// every transaction currently stored for it. A nil request uses the configured
// defaults.
func (e *Engine) ComputeFeatures(ctx context.Context, grantID string, params *domain.FeatureRequest) (*domain.FeatureSet, error) {
	grantID, err := requireGrantID(grantID)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "risk.compute_features", telemetry.GrantID(grantID))
	defer span.End()
	start := time.Now()

	txs, err := e.store.ListTransactions(ctx, grantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	fs := &domain.FeatureSet{
		GrantID:    grantID,
		ComputedAt: e.now(),
		Features:   ExtractFeatures(txs),
		Meta:       e.featureParams(params),
	}

	if err := e.store.SaveFeatures(ctx, fs); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("save features: %w", err)
	}

	elapsed := e.observe("features", start)
	e.metrics.IncrementFeaturesComputed()
	e.log.WithContext(ctx).FeaturesComputed(grantID, len(txs), elapsed.Milliseconds())

	return fs, nil
}

func (e *Engine) featureParams(params *domain.FeatureRequest) domain.FeatureParams {
	out := domain.FeatureParams{
		ThetaMicro: e.cfg.Features.ThetaMicro,
		Windows:    append([]int(nil), e.cfg.Features.Windows...),
	}
	if params == nil {
		return out
	}
	if params.ThetaMicro != nil {
		out.ThetaMicro = *params.ThetaMicro
	}
	if params.Windows != nil {
		out.Windows = append(make([]int, 0, len(params.Windows)), params.Windows...)
	}
	return out
}

// GetFeatures returns the stored feature vector of a subject
func (e *Engine) GetFeatures(ctx context.Context, grantID string) (*domain.FeatureSet, error) {
	grantID, err := requireGrantID(grantID)
	if err != nil {
		return nil, err
	}
	return e.store.GetFeatures(ctx, grantID)
}

// ApplyRules evaluates the threshold rules against the stored feature vector
// and persists the outcome
func (e *Engine) ApplyRules(ctx context.Context, grantID string) (*domain.RuleEvaluation, error) {
	grantID, err := requireGrantID(grantID)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "risk.apply_rules", telemetry.GrantID(grantID))
	defer span.End()
	start := time.Now()

	fs, err := e.requireFeatures(ctx, grantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	eval := EvaluateRules(fs.Features)
	eval.GrantID = grantID

	if err := e.store.SaveRuleEvaluation(ctx, &eval); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("save rule evaluation: %w", err)
	}

	e.observe("rules", start)
	triggered := make([]string, len(eval.TriggeredRules))
	for i, id := range eval.TriggeredRules {
		triggered[i] = string(id)
		e.metrics.IncrementRuleHit(string(id))
	}
	e.log.WithContext(ctx).RulesEvaluated(grantID, triggered)

	return &eval, nil
}

// Score computes and persists the risk score of a subject from its stored
// feature vector. The latest rule evaluation, if any, is attached as a
// snapshot.
func (e *Engine) Score(ctx context.Context, grantID string) (*domain.Score, error) {
	grantID, err := requireGrantID(grantID)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "risk.score", telemetry.GrantID(grantID))
	defer span.End()
	start := time.Now()

	fs, err := e.requireFeatures(ctx, grantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	rules, err := e.store.GetRuleEvaluation(ctx, grantID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.log.WithContext(ctx).Warn("rule evaluation unavailable for score", logger.ErrorField(err))
		}
		rules = nil
	}

	score := e.scorer.Score(ctx, grantID, fs.Features, rules)
	score.ScoredAt = e.now()

	if err := e.store.SaveScore(ctx, score); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("save score: %w", err)
	}

	e.observe("score", start)
	span.SetAttributes(telemetry.RiskTier(string(score.RiskTier)))
	e.metrics.IncrementScore(string(score.RiskTier))
	e.log.WithContext(ctx).ScoreComputed(grantID, score.RiskScore, string(score.RiskTier))

	return score, nil
}

// ResolveEntities maps each party id to its canonical id, preserving order
func (e *Engine) ResolveEntities(ctx context.Context, partyIDs []string) ([]domain.EntityMapping, error) {
	for i, id := range partyIDs {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: party_ids[%d] is empty", domain.ErrInvalidInput, i)
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "risk.resolve_entities")
	defer span.End()
	start := time.Now()

	mappings := e.resolver.ResolveBatch(ctx, partyIDs)
	e.observe("resolve", start)
	return mappings, nil
}

func (e *Engine) requireFeatures(ctx context.Context, grantID string) (*domain.FeatureSet, error) {
	fs, err := e.store.GetFeatures(ctx, grantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("no features for %q, compute features first: %w", grantID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}
	return fs, nil
}

// observe records a stage duration and warns when it exceeds the budget
func (e *Engine) observe(stage string, start time.Time) time.Duration {
	elapsed := time.Since(start)
	e.metrics.ObserveStage(stage, elapsed)

	budget := e.cfg.Screening.MaxStageLatency
	if budget > 0 && elapsed > budget {
		e.log.LatencyWarning(stage, elapsed.Milliseconds(), budget.Milliseconds())
	}
	return elapsed
}

// Ping checks the storage backend
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func requireGrantID(grantID string) (string, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return "", fmt.Errorf("%w: grant_id is required", domain.ErrInvalidInput)
	}
	return grantID, nil
}
