// Package ratelimit gates outbound remote API calls with a per-client
// decaying window: a fixed attempt budget that resets once the decay
// interval has elapsed since the window started.
package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is one client's window: how many attempts may be recorded before
// denial, and how long a window lasts.
type Config struct {
	MaxAttempts  int
	DecaySeconds int
}

// Error is returned when a caller proceeds despite a denied window. It
// carries enough structure for the caller to schedule its own retry.
type Error struct {
	Client      string
	AvailableIn int
}

func (e *Error) Error() string {
	return fmt.Sprintf("Rate limit exceeded for client '%s'. Available in %d seconds.", e.Client, e.AvailableIn)
}

// StatusCode maps the error to a transport code for callers that need one.
func (e *Error) StatusCode() int {
	return http.StatusTooManyRequests
}

type window struct {
	attempts int
	started  time.Time
}

// Limiter tracks one window per client. Windows are created lazily on first
// check and reset atomically under the limiter's lock, so two concurrent
// callers can never both believe they reset the same window. Checks never
// block.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	config  func(client string) Config
	log     *logrus.Entry
	now     func() time.Time
}

// New builds a limiter; config resolves a client name to its window budget.
func New(logger *logrus.Logger, config func(client string) Config) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		config:  config,
		log:     logger.WithField("component", "rate_limiter"),
		now:     time.Now,
	}
}

// AllowRequest reports whether a new remote call may be issued for the
// client within the current window.
func (l *Limiter) AllowRequest(client string) bool {
	cfg := l.config(client)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.currentWindow(client, cfg)
	return w.attempts < cfg.MaxAttempts
}

// IncrementAttempts records n attempts against the client's current window,
// starting a new window if the previous one has elapsed.
func (l *Limiter) IncrementAttempts(client string, n int) {
	cfg := l.config(client)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.currentWindow(client, cfg)
	w.attempts += n
}

// Check is the call-boundary guard: it returns an *Error when the client's
// window is exhausted, otherwise records one attempt and admits the call.
func (l *Limiter) Check(client string) error {
	cfg := l.config(client)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.currentWindow(client, cfg)
	if w.attempts >= cfg.MaxAttempts {
		availableIn := l.availableInLocked(w, cfg)
		denialsTotal.WithLabelValues(client).Inc()
		l.log.WithFields(logrus.Fields{
			"client":       client,
			"attempts":     w.attempts,
			"max_attempts": cfg.MaxAttempts,
			"available_in": availableIn,
		}).Warn("Rate limit exceeded")
		return &Error{Client: client, AvailableIn: availableIn}
	}
	w.attempts++
	return nil
}

// AvailableIn returns the whole seconds until the client's window resets;
// zero when the client may call now.
func (l *Limiter) AvailableIn(client string) int {
	cfg := l.config(client)

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.currentWindow(client, cfg)
	if w.attempts < cfg.MaxAttempts {
		return 0
	}
	return l.availableInLocked(w, cfg)
}

// Attempts returns the count recorded in the client's current window.
func (l *Limiter) Attempts(client string) int {
	cfg := l.config(client)

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.currentWindow(client, cfg).attempts
}

// Clear resets the client's window immediately. Administrative tooling and
// tests only; normal request flow never clears.
func (l *Limiter) Clear(client string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, client)
	l.log.WithField("client", client).Info("Rate limit cleared")
}

// currentWindow returns the client's live window, creating it lazily and
// resetting it if the decay interval has elapsed. Callers must hold l.mu.
func (l *Limiter) currentWindow(client string, cfg Config) *window {
	w, ok := l.windows[client]
	if !ok {
		w = &window{started: l.now()}
		l.windows[client] = w
		return w
	}
	if l.now().Sub(w.started) >= time.Duration(cfg.DecaySeconds)*time.Second {
		w.attempts = 0
		w.started = l.now()
	}
	return w
}

func (l *Limiter) availableInLocked(w *window, cfg Config) int {
	remaining := time.Duration(cfg.DecaySeconds)*time.Second - l.now().Sub(w.started)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}
