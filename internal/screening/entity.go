package screening

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/metrics"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
	"github.com/banking/grant-risk-service/internal/textgen"
)

const defaultParallelResolutions = 4

// MappingStore persists entity mappings by party id
type MappingStore interface {
	GetEntityMapping(ctx context.Context, partyID string) (*domain.EntityMapping, error)
	SaveEntityMapping(ctx context.Context, m *domain.EntityMapping) error
}

// EntityResolver maps raw party identifiers to canonical ones. A stored
// mapping is authoritative; the generator is consulted only on a miss.
type EntityResolver struct {
	store     MappingStore
	generator textgen.Generator
	parallel  int
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewEntityResolver creates a resolver running at most parallel lookups at
// once in batch mode
func NewEntityResolver(st MappingStore, generator textgen.Generator, parallel int, m *metrics.Metrics, log *logger.Logger) *EntityResolver {
	if parallel <= 0 {
		parallel = defaultParallelResolutions
	}
	return &EntityResolver{
		store:     st,
		generator: generator,
		parallel:  parallel,
		metrics:   m,
		log:       log.Named("entity_resolver"),
	}
}

// Resolve returns the mapping for one party id. A stored mapping without a
// canonical id counts as a miss. Only a failed cache lookup is returned as an
// error; generator failures fall back to the identity mapping and a failed
// save is logged.
func (r *EntityResolver) Resolve(ctx context.Context, partyID string) (domain.EntityMapping, error) {
	cached, err := r.store.GetEntityMapping(ctx, partyID)
	if err == nil && strings.TrimSpace(cached.CanonicalID) != "" {
		r.metrics.IncrementEntityLookup("cached")
		r.log.EntityResolved(partyID, cached.CanonicalID, cached.Confidence, true)
		return *cached, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.IdentityMapping(partyID), fmt.Errorf("lookup entity %q: %w", partyID, err)
	}

	mapping, genErr := r.suggest(ctx, partyID)
	if genErr != nil {
		r.metrics.IncrementEntityLookup("fallback")
		r.log.GeneratorFallback("entity_resolution", genErr)
	} else {
		r.metrics.IncrementEntityLookup("generated")
	}

	if err := r.store.SaveEntityMapping(ctx, &mapping); err != nil {
		r.log.Warn("failed to persist entity mapping",
			logger.StringField("party_id", partyID),
			logger.ErrorField(err),
		)
	}

	r.log.EntityResolved(partyID, mapping.CanonicalID, mapping.Confidence, false)
	return mapping, nil
}

// ResolveBatch resolves each id independently and returns one mapping per
// input, in input order. A storage failure on one id yields the identity
// mapping for that id only.
func (r *EntityResolver) ResolveBatch(ctx context.Context, partyIDs []string) []domain.EntityMapping {
	out := make([]domain.EntityMapping, len(partyIDs))

	var g errgroup.Group
	g.SetLimit(r.parallel)
	for i, id := range partyIDs {
		i, id := i, id
		g.Go(func() error {
			mapping, err := r.Resolve(ctx, id)
			if err != nil {
				r.log.Warn("entity resolution failed, using identity mapping",
					logger.StringField("party_id", id),
					logger.ErrorField(err),
				)
			}
			out[i] = mapping
			return nil
		})
	}
	_ = g.Wait()

	return out
}

type canonicalAnswer struct {
	CanonicalID any `json:"canonical_id"`
	Confidence  any `json:"confidence"`
}

// suggest asks the generator for a canonical id. Absent or malformed fields
// take the identity defaults.
func (r *EntityResolver) suggest(ctx context.Context, partyID string) (domain.EntityMapping, error) {
	mapping := domain.IdentityMapping(partyID)

	var answer canonicalAnswer
	if err := r.generator.GenerateStructured(ctx, entityPrompt(partyID), &answer); err != nil {
		return mapping, err
	}

	if id, ok := answer.CanonicalID.(string); ok && strings.TrimSpace(id) != "" {
		mapping.CanonicalID = strings.TrimSpace(id)
	}
	if c, ok := parseConfidence(answer.Confidence); ok {
		mapping.Confidence = clamp01(c)
	}
	return mapping, nil
}

func parseConfidence(v any) (float64, bool) {
	var c float64
	switch t := v.(type) {
	case float64:
		c = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		c = parsed
	default:
		return 0, false
	}
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, false
	}
	return c, true
}

func entityPrompt(partyID string) string {
	return "You are a data normalization assistant. Given the party identifier below, suggest a canonical ID " +
		"and a confidence between 0.0 and 1.0. Return only JSON: {\"canonical_id\": ..., \"confidence\": ...}\n\n" +
		"party_id: " + partyID
}
