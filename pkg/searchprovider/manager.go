package searchprovider

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Manager composes providers with ordered fallback (§6 "Search manager
// composes providers with ordered fallback; first non-empty result
// wins; logs failures"). Each provider is shielded by its own circuit
// breaker, grounded on jordigilh-kubernaut's gobreaker.Settings usage
// (test/integration/notification/suite_test.go): consecutive-failure
// trip, timed half-open recovery.
type Manager struct {
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	log       *slog.Logger
}

// NewManager builds a manager trying providers in the given priority
// order (already sorted by config priority by the caller).
func NewManager(providers []Provider) *Manager {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		name := p.Name()
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("search provider circuit breaker state change",
					"provider", name, "from", from, "to", to)
			},
		})
	}
	return &Manager{providers: providers, breakers: breakers, log: slog.With("component", "searchprovider.manager")}
}

// Search tries each provider in priority order; the first call to
// return a non-empty, non-error result set wins. A provider whose
// breaker is open is skipped without counting as an additional
// failure.
func (m *Manager) Search(query string, maxResults int) ([]Result, string, error) {
	var lastErr error
	for _, p := range m.providers {
		breaker := m.breakers[p.Name()]
		res, err := breaker.Execute(func() (any, error) {
			return p.Search(query, maxResults)
		})
		if err != nil {
			m.log.Warn("search provider failed, trying next", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		results, _ := res.([]Result)
		if len(results) == 0 {
			m.log.Warn("search provider returned no results, trying next", "provider", p.Name())
			continue
		}
		return results, p.Name(), nil
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", nil
}
