package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"tunehub/internal/metrics"
)

const (
	adapterFailureThreshold = 3
	adapterBlockBase        = 2 * time.Minute
	adapterBlockMax         = 15 * time.Minute
)

type adapterHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// healthTracker is a per-adapter circuit breaker. After adapterFailureThreshold
// consecutive failures the adapter is skipped for an exponentially growing window.
type healthTracker struct {
	mu    sync.Mutex
	state map[string]*adapterHealth
}

func newHealthTracker() *healthTracker {
	return &healthTracker{state: make(map[string]*adapterHealth)}
}

func (h *healthTracker) isBlocked(adapterName string, now time.Time) (bool, time.Time, string) {
	name := strings.ToLower(strings.TrimSpace(adapterName))
	if h == nil || name == "" {
		return false, time.Time{}, ""
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.state[name]
	if state == nil {
		return false, time.Time{}, ""
	}
	if state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (h *healthTracker) record(adapterName string, err error, latency time.Duration, now time.Time) {
	name := strings.ToLower(strings.TrimSpace(adapterName))
	if h == nil || name == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.state[name]
	if state == nil {
		state = &adapterHealth{}
		h.state[name] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.AdapterRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.AdapterRequestsTotal.WithLabelValues(name, "ok").Inc()
		metrics.AdapterAvailable.WithLabelValues(name).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.AdapterRequestsTotal.WithLabelValues(name, status).Inc()

	if state.consecutiveFailures >= adapterFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.consecutiveFailures))
		metrics.AdapterAvailable.WithLabelValues(name).Set(0)
	}
}

// snapshot copies the state of one adapter; ok is false when nothing was recorded yet.
func (h *healthTracker) snapshot(adapterName string) (adapterHealth, bool) {
	name := strings.ToLower(strings.TrimSpace(adapterName))
	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.state[name]
	if state == nil {
		return adapterHealth{}, false
	}
	return *state, true
}

// exponentialBlockDuration is base × 2^(failures - threshold), capped at adapterBlockMax.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - adapterFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := adapterBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > adapterBlockMax {
			return adapterBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}
