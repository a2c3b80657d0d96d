package limiter

import (
	"sync"

	"github.com/Laisky/zap"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/monitor"
)

// BreakerSet holds one circuit breaker per logical endpoint. State is
// process-local: a replica that cannot reach the platform should stop
// hammering it regardless of what its peers see.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewBreakerSet() *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*gobreaker.CircuitBreaker[any])}
}

func (s *BreakerSet) breaker(endpoint string) *gobreaker.CircuitBreaker[any] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[endpoint]; ok {
		return cb
	}
	threshold := uint32(config.BreakerFailureThreshold)
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1.0
			}
			monitor.BreakerState.WithLabelValues(name).Set(open)
			logger.Logger.Info("circuit breaker state change",
				zap.String("endpoint", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	s.breakers[endpoint] = cb
	return cb
}

// Execute runs fn through the endpoint's breaker.
func (s *BreakerSet) Execute(endpoint string, fn func() (any, error)) (any, error) {
	return s.breaker(endpoint).Execute(fn)
}

// IsOpen reports whether err came from an open or throttled breaker.
func IsOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

// State returns the breaker state string for an endpoint, for diagnostics.
func (s *BreakerSet) State(endpoint string) string {
	return s.breaker(endpoint).State().String()
}
