package notifier

import (
	"context"
	"errors"
	"fmt"

	"ForecastMailer/internal/model"
)

// Notifier delivers a finished digest over one channel.
type Notifier interface {
	Name() string
	Deliver(ctx context.Context, d *model.Digest) error
}

// DeliveryObserver is told the result of every channel delivery.
type DeliveryObserver interface {
	Delivery(channel string, err error)
}

// Multi delivers to every notifier in order. A failing channel does not stop the rest.
type Multi struct {
	notifiers []Notifier
	observer  DeliveryObserver
}

func NewMulti(observer DeliveryObserver, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, observer: observer}
}

func (m *Multi) Name() string { return "multi" }

// Len returns the number of configured channels.
func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Deliver(ctx context.Context, d *model.Digest) error {
	if len(m.notifiers) == 0 {
		return errors.New("no delivery channel configured")
	}
	var errs []error
	for _, n := range m.notifiers {
		err := n.Deliver(ctx, d)
		if m.observer != nil {
			m.observer.Delivery(n.Name(), err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
