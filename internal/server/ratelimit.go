package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds how often and how much a single client may upload.
// Zero values disable the corresponding check.
type RateLimitConfig struct {
	RequestsPerMinute int
	MaxDataPerDay     int64
}

// RateLimiter tracks per-client request rates and daily upload volume. Scan
// requests are expensive (multiple OCR passes per image), so even modest
// per-minute limits protect the backend.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	clients map[string]*clientUsage
}

type clientUsage struct {
	minuteStart    time.Time
	requestsMinute int
	dayStart       time.Time
	dataToday      int64
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, clients: make(map[string]*clientUsage)}
}

// Allow records a request of dataSize bytes for the client and returns a
// LimitError if a limit would be exceeded. Rejected requests do not count
// toward usage.
func (rl *RateLimiter) Allow(clientID string, dataSize int64) *LimitError {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	usage, ok := rl.clients[clientID]
	if !ok {
		usage = &clientUsage{minuteStart: now, dayStart: now}
		rl.clients[clientID] = usage
	}

	if now.Sub(usage.minuteStart) >= time.Minute {
		usage.minuteStart = now
		usage.requestsMinute = 0
	}
	if now.Sub(usage.dayStart) >= 24*time.Hour {
		usage.dayStart = now
		usage.dataToday = 0
	}

	if rl.cfg.RequestsPerMinute > 0 && usage.requestsMinute >= rl.cfg.RequestsPerMinute {
		return &LimitError{
			Type:       "requests_per_minute",
			RetryAfter: time.Minute - now.Sub(usage.minuteStart),
		}
	}
	if rl.cfg.MaxDataPerDay > 0 && usage.dataToday+dataSize > rl.cfg.MaxDataPerDay {
		return &LimitError{
			Type:       "data_per_day",
			RetryAfter: 24*time.Hour - now.Sub(usage.dayStart),
		}
	}

	usage.requestsMinute++
	usage.dataToday += dataSize
	return nil
}

// LimitError reports which limit fired and when to retry.
type LimitError struct {
	Type       string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s), retry after %v", e.Type, e.RetryAfter.Round(time.Second))
}
