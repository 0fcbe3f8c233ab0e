// Package metrics holds the Prometheus instruments of the risk pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the risk pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	StageLatency       *prometheus.HistogramVec
	FeaturesComputed   prometheus.Counter
	RulesTriggered     *prometheus.CounterVec
	ScoresByTier       *prometheus.CounterVec
	AlertsMaterialized prometheus.Counter
	GeneratorFallbacks *prometheus.CounterVec
	EntityLookups      *prometheus.CounterVec
	RecordsIngested    *prometheus.CounterVec
	TriageDecisions    *prometheus.CounterVec
}

// New creates the pipeline metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grant_risk_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"stage"}), // stage: "features", "rules", "score", "alert", "resolve"

		FeaturesComputed: f.NewCounter(prometheus.CounterOpts{
			Name: "grant_risk_features_computed_total",
			Help: "Total feature vectors computed",
		}),

		RulesTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grant_risk_rules_triggered_total",
			Help: "Total rule hits by rule id",
		}, []string{"rule"}),

		ScoresByTier: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grant_risk_scores_total",
			Help: "Total scores computed by risk tier",
		}, []string{"tier"}),

		AlertsMaterialized: f.NewCounter(prometheus.CounterOpts{
			Name: "grant_risk_alerts_materialized_total",
			Help: "Total alerts assembled on first read",
		}),

		GeneratorFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grant_risk_textgen_fallbacks_total",
			Help: "Deterministic fallbacks taken after text generation failed",
		}, []string{"purpose"}),

		EntityLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grant_risk_entity_lookups_total",
			Help: "Entity resolutions by outcome",
		}, []string{"outcome"}), // outcome: "cached", "generated", "fallback"

		RecordsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grant_risk_records_ingested_total",
			Help: "Records ingested by collection",
		}, []string{"collection"}),

		TriageDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grant_risk_triage_decisions_total",
			Help: "Analyst triage decisions by disposition",
		}, []string{"disposition"}),
	}
}

// ObserveStage records the duration of a pipeline stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// IncrementFeaturesComputed counts a feature computation
func (m *Metrics) IncrementFeaturesComputed() {
	if m != nil {
		m.FeaturesComputed.Inc()
	}
}

// IncrementRuleHit counts a fired rule
func (m *Metrics) IncrementRuleHit(rule string) {
	if m != nil {
		m.RulesTriggered.WithLabelValues(rule).Inc()
	}
}

// IncrementScore counts a score by tier
func (m *Metrics) IncrementScore(tier string) {
	if m != nil {
		m.ScoresByTier.WithLabelValues(tier).Inc()
	}
}

// IncrementAlertMaterialized counts an alert assembled on first read
func (m *Metrics) IncrementAlertMaterialized() {
	if m != nil {
		m.AlertsMaterialized.Inc()
	}
}

// IncrementFallback counts a text generation fallback
func (m *Metrics) IncrementFallback(purpose string) {
	if m != nil {
		m.GeneratorFallbacks.WithLabelValues(purpose).Inc()
	}
}

// IncrementEntityLookup counts an entity resolution
func (m *Metrics) IncrementEntityLookup(outcome string) {
	if m != nil {
		m.EntityLookups.WithLabelValues(outcome).Inc()
	}
}

// AddRecordsIngested counts ingested records
func (m *Metrics) AddRecordsIngested(collection string, n int) {
	if m != nil {
		m.RecordsIngested.WithLabelValues(collection).Add(float64(n))
	}
}

// IncrementTriage counts a triage decision
func (m *Metrics) IncrementTriage(disposition string) {
	if m != nil {
		m.TriageDecisions.WithLabelValues(disposition).Inc()
	}
}
