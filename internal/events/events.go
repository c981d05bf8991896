package events

import (
	"context"
	"errors"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

// Publisher delivers deposit events after the ledger change has committed.
type Publisher interface {
	Publish(ctx context.Context, ev models.DepositEvent) error
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev models.DepositEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, models.DepositEvent) error { return nil }
