package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"uetools/internal/domain"
)

// Default guard settings.
const (
	defaultPerMinute   = 30
	defaultMaxFailures = 3
	defaultOpenTimeout = 60 * time.Second
)

// ErrRateLimited is returned when a notification is dropped by the limiter.
var ErrRateLimited = errors.New("notification rate limit exceeded")

// GuardConfig configures rate limiting and circuit breaking for a remote
// notifier.
type GuardConfig struct {
	PerMinute   int
	MaxFailures uint32
	Timeout     time.Duration
}

// Guarded wraps a remote notifier with a rate limiter and a circuit breaker.
// Notifications over the limit and those sent while the circuit is open are
// dropped with an error instead of reaching the service.
type Guarded struct {
	inner   domain.Notifier
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewGuarded wraps inner. Zero config values use the defaults.
func NewGuarded(inner domain.Notifier, cfg GuardConfig, logger *slog.Logger) *Guarded {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = defaultPerMinute
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notify:" + inner.Name(),
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Guarded{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perMinute)/60.0, perMinute),
		breaker: cb,
		logger:  logger,
	}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) Notify(ctx context.Context, n domain.Notification) error {
	if !g.limiter.Allow() {
		g.logger.Debug("notification dropped by rate limit", "notifier", g.inner.Name(), "title", n.Title)
		return fmt.Errorf("%s: %w", g.inner.Name(), ErrRateLimited)
	}
	_, err := g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, g.inner.Notify(ctx, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("notifier %q circuit open: %w", g.inner.Name(), err)
	}
	return err
}

// State returns the breaker state for diagnostics.
func (g *Guarded) State() gobreaker.State { return g.breaker.State() }

var _ domain.Notifier = (*Guarded)(nil)
