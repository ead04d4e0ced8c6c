// Package notify fans device status changes out to live subscribers.
package notify

import (
	"context"

	"device-hub-server/internal/domain"
)

// Notifier receives device status events. Implementations must not block the
// caller for long and must not fail the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, event *domain.StatusEvent)
}

type nop struct{}

func (nop) Notify(context.Context, *domain.StatusEvent) {}

// Nop discards every event.
func Nop() Notifier {
	return nop{}
}

type multi []Notifier

func (m multi) Notify(ctx context.Context, event *domain.StatusEvent) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}

// Multi delivers each event to every non-nil notifier in order.
func Multi(notifiers ...Notifier) Notifier {
	var m multi
	for _, n := range notifiers {
		if n != nil {
			m = append(m, n)
		}
	}
	if len(m) == 0 {
		return Nop()
	}
	return m
}

// Func adapts a plain function to a Notifier.
type Func func(ctx context.Context, event *domain.StatusEvent)

func (f Func) Notify(ctx context.Context, event *domain.StatusEvent) {
	f(ctx, event)
}
