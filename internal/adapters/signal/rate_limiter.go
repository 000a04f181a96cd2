package signal

import (
	"golang.org/x/time/rate"
)

// newLimiter returns a per-connection token bucket. A non-positive rate
// disables limiting.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
