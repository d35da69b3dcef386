package notify

import (
	"context"
	"errors"
	"fmt"

	"uetools/internal/domain"
)

// Fanout sends every notification to all of its notifiers.
type Fanout struct {
	notifiers []domain.Notifier
}

// NewFanout returns a Fanout over the non-nil notifiers.
func NewFanout(notifiers ...domain.Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

func (f *Fanout) Name() string { return "fanout" }

// Len reports how many notifiers are attached.
func (f *Fanout) Len() int { return len(f.notifiers) }

// Notify delivers to every notifier and joins their errors.
func (f *Fanout) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, target := range f.notifiers {
		if err := target.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var _ domain.Notifier = (*Fanout)(nil)
