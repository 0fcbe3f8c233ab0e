package screening

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/banking/grant-risk-service/internal/config"
	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
	"github.com/banking/grant-risk-service/internal/store"
	"github.com/banking/grant-risk-service/internal/textgen"
)

// fakeGenerator answers prompts from a table keyed by prompt prefix and
// counts invocations
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	respond func(prompt string) (string, error)
}

func failingGenerator() *fakeGenerator {
	return &fakeGenerator{respond: func(string) (string, error) {
		return "", textgen.ErrUnavailable
	}}
}

func answering(answer string) *fakeGenerator {
	return &fakeGenerator{respond: func(string) (string, error) { return answer, nil }}
}

func (g *fakeGenerator) GenerateStructured(_ context.Context, prompt string, out any) error {
	g.mu.Lock()
	g.calls++
	g.prompts = append(g.prompts, prompt)
	respond := g.respond
	g.mu.Unlock()

	answer, err := respond(prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(answer), out); err != nil {
		return textgen.ErrMalformed
	}
	return nil
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// CallsContaining counts prompts mentioning s
func (g *fakeGenerator) CallsContaining(s string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.prompts {
		if strings.Contains(p, s) {
			n++
		}
	}
	return n
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AlertEvent
	err    error
}

func (p *recordingPublisher) PublishAlertEvent(_ context.Context, evt *domain.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *evt)
	return p.err
}

func (p *recordingPublisher) Events() []domain.AlertEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.AlertEvent(nil), p.events...)
}

// faultyStore fails selected writes and lookups
type faultyStore struct {
	*store.Memory
	failSaveAlert    bool
	failSaveFeatures bool
	failEntityFor    string
}

func (s *faultyStore) SaveAlert(ctx context.Context, a *domain.Alert) error {
	if s.failSaveAlert {
		return domain.ErrStorage
	}
	return s.Memory.SaveAlert(ctx, a)
}

func (s *faultyStore) SaveFeatures(ctx context.Context, fs *domain.FeatureSet) error {
	if s.failSaveFeatures {
		return domain.ErrStorage
	}
	return s.Memory.SaveFeatures(ctx, fs)
}

func (s *faultyStore) GetEntityMapping(ctx context.Context, partyID string) (*domain.EntityMapping, error) {
	if partyID == s.failEntityFor {
		return nil, domain.ErrStorage
	}
	return s.Memory.GetEntityMapping(ctx, partyID)
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testEngineConfig() EngineConfig {
	return EngineConfig{
		Features:  config.FeaturesConfig{ThetaMicro: 0.005, Windows: []int{7, 30, 90}},
		Alerts:    config.AlertsConfig{TimelineLimit: 20, DefaultListLimit: 50, MaxListLimit: 200},
		Screening: config.ScreeningConfig{ParallelResolutions: 4, ModelVersion: "v1.0"},
	}
}

func newTestEngine(st store.Store, gen textgen.Generator, pub AlertPublisher) *Engine {
	e := NewEngine(st, gen, pub, nil, testEngineConfig(), logger.NewNop())
	e.now = func() time.Time { return testNow }
	return e
}
