// Package providers implements the search-provider fan-out: a fixed set of
// heterogeneous search backends queried in parallel, each isolated from the
// others' failures.
package providers

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/researchflow/researchflow/internal/cache"
	"github.com/researchflow/researchflow/types"
)

// Provider is one search backend. Implementations must not panic and must
// respect ctx cancellation; FanOut treats a returned error as "this
// provider produced zero results this round," never as a fatal failure.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]types.Source, error)
}

const providerTimeout = 30 * time.Second

// FanOutCallback is invoked exactly once per configured provider, after
// that provider's call resolves (success or failure).
type FanOutCallback func(provider string, count, completed, total int)

// FanOut queries every provider in providers concurrently and returns a map
// keyed by every provider's Name(), even ones that errored or returned
// nothing — the map's key set always equals the configured provider set.
func FanOut(ctx context.Context, providerList []Provider, query string, maxPerProvider int, onDone FanOutCallback, logger *zap.Logger) map[string][]types.Source {
	results := make(map[string][]types.Source, len(providerList))
	for _, p := range providerList {
		results[p.Name()] = nil
	}

	if len(providerList) == 0 {
		logger.Warn("fan-out invoked with zero configured providers")
		return results
	}

	var mu sync.Mutex
	completed := 0
	total := len(providerList)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providerList {
		p := p
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, providerTimeout)
			defer cancel()

			sources, err := p.Search(callCtx, query, maxPerProvider)
			if err != nil {
				logger.Warn("provider search failed, isolating failure",
					zap.String("provider", p.Name()), zap.Error(err))
				sources = nil
			}
			if len(sources) == 0 {
				logger.Info("provider returned zero results", zap.String("provider", p.Name()))
			}

			mu.Lock()
			results[p.Name()] = sources
			completed++
			n := completed
			mu.Unlock()

			if onDone != nil {
				onDone(p.Name(), len(sources), n, total)
			}
			return nil // provider errors never cancel sibling providers
		})
	}
	_ = g.Wait()

	return results
}

// newCircuitBreaker builds a per-provider breaker: after 3 consecutive
// failures it opens for 30s, so a provider that is down for a run stops
// being hammered at full cost while still being retried periodically.
func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// newLimiter returns a per-provider outbound rate limiter: at most 5
// requests/second with a burst of 5, keeping each provider's call volume
// provider-local regardless of how many query variants the retrieval
// stage issues concurrently.
func newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(5), 5)
}

// cachedSearch wraps a raw search function with the content-addressed
// provider cache: a hit returns cached sources without making the call.
func cachedSearch(ctx context.Context, c *cache.Manager, provider, query string, maxResults int, ttl time.Duration, call func(context.Context) ([]types.Source, error)) ([]types.Source, error) {
	if c != nil {
		key := cache.Key("rc", provider, query, map[string]any{"max": maxResults})
		var cached []types.Source
		if c.GetJSON(ctx, key, &cached) {
			return cached, nil
		}
		sources, err := call(ctx)
		if err != nil {
			return nil, err
		}
		c.SetJSON(ctx, key, sources, ttl)
		return sources, nil
	}
	return call(ctx)
}
