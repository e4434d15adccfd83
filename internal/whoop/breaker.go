package whoop

import (
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sakif/healthos/internal/metrics"
)

// errServerStatus marks a 5xx response so the breaker counts it as a
// failure. The response itself is still returned to the caller.
var errServerStatus = errors.New("whoop: server error status")

const breakerName = "whoop-api"

// newBreaker trips after 5 consecutive transport errors or 5xx responses
// and stays open for a minute. 4xx, 401 and 429 count as successes.
//
// WHAT COUNTS AS A FAILURE?
// The breaker answers one question: "is WHOOP reachable and healthy?"
//
//	transport error (DNS, reset, timeout)  → failure
//	5xx                                    → failure
//	401 Unauthorized                       → success (our token, not their server)
//	429 Too Many Requests                  → success (Call sleeps Retry-After)
//	other 4xx                              → success (the request was wrong)
//
// A 5xx still reaches the caller as a normal response; errServerStatus only
// tells gobreaker to count it. Once open, requests fail fast with
// gobreaker.ErrOpenState until Timeout passes, then a single probe request
// (MaxRequests: 1) decides whether to close again.
func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker[*response] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
