package events

import (
	"context"
	"errors"

	"github.com/ukydev/drivebidrent/internal/models"
)

// Publisher delivers an auction event to one transport.
type Publisher interface {
	Publish(ctx context.Context, event models.AuctionEvent) error
}

// Fanout publishes every event to all of its transports, even when some fail.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event models.AuctionEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
