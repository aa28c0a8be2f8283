package resilience

import "time"

// Config bounds retries per call and trips a breaker per operation name.
// RetryMaxAttempts counts the first try, so 2 means one retry.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// RateLimitPerSecond caps calls per operation; zero disables limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

const maxGatewayAttempts = 2

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    maxGatewayAttempts,
		RetryInitialBackoff: 250 * time.Millisecond,
		RetryMaxBackoff:     time.Second,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// normalize replaces unset or out-of-range fields with defaults. Retries are
// clamped to maxGatewayAttempts whatever the caller asked for.
func (c Config) normalize() Config {
	def := DefaultConfig()

	c.RetryMaxAttempts = min(positiveOr(c.RetryMaxAttempts, def.RetryMaxAttempts), maxGatewayAttempts)
	c.RetryInitialBackoff = positiveOr(c.RetryInitialBackoff, def.RetryInitialBackoff)
	c.RetryMaxBackoff = max(positiveOr(c.RetryMaxBackoff, def.RetryMaxBackoff), c.RetryInitialBackoff)
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}

	c.BreakerMinRequests = positiveOr(c.BreakerMinRequests, def.BreakerMinRequests)
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	c.BreakerOpenTimeout = positiveOr(c.BreakerOpenTimeout, def.BreakerOpenTimeout)
	c.BreakerHalfOpenMaxCalls = positiveOr(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)

	c.RateLimitPerSecond = max(c.RateLimitPerSecond, 0)
	if c.RateLimitPerSecond > 0 {
		c.RateLimitBurst = max(c.RateLimitBurst, 1)
	}
	return c
}

type number interface {
	~int | ~int64 | ~uint32 | ~float64
}

func positiveOr[T number](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}
