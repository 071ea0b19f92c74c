package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// CircuitBreaker wraps a Fetcher with one breaker per script host, so a dead
// host fails fast instead of stalling every module that lives on it.
type CircuitBreaker struct {
	fetcher   Fetcher
	threshold int64
	breakers  map[string]*circuit.Breaker
	mu        sync.RWMutex
}

// NewCircuitBreaker trips a host's breaker after threshold consecutive failures.
func NewCircuitBreaker(f Fetcher, threshold int64) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreaker{
		fetcher:   f,
		threshold: threshold,
		breakers:  make(map[string]*circuit.Breaker),
	}
}

func (cb *CircuitBreaker) breaker(host string) *circuit.Breaker {
	cb.mu.RLock()
	b, ok := cb.breakers[host]
	cb.mu.RUnlock()
	if ok {
		return b
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if b, ok := cb.breakers[host]; ok {
		return b
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 10 * time.Second
	expBackoff.MaxInterval = 2 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(cb.threshold),
	})
	cb.breakers[host] = b
	return b
}

// Fetch runs the wrapped fetch through the host's breaker. Not-found answers
// are passed through without counting as a host failure.
func (cb *CircuitBreaker) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	host := hostOf(rawURL)
	b := cb.breaker(host)

	if !b.Ready() {
		return nil, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var payload []byte
	var notFound error
	err := b.Call(func() error {
		var fetchErr error
		payload, fetchErr = cb.fetcher.Fetch(ctx, rawURL)
		if errors.Is(fetchErr, ErrNotFound) {
			notFound = fetchErr
			return nil
		}
		return fetchErr
	}, 0)
	if notFound != nil {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Tripped reports whether the breaker for rawURL's host is open.
func (cb *CircuitBreaker) Tripped(rawURL string) bool {
	return cb.breaker(hostOf(rawURL)).Tripped()
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}
