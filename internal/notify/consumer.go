package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/corvales/nftmarketd/internal/domain"
)

// EventSource is the bus capability the consumer reads from.
type EventSource interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Consumer turns market events into operator notifications. It
// subscribes to the listing and sale channels and formats a short
// human-readable message for each event that arrives.
type Consumer struct {
	bus      EventSource
	notifier *Notifier
	logger   *slog.Logger
}

// NewConsumer creates a Consumer reading from bus and delivering
// through notifier.
func NewConsumer(bus EventSource, notifier *Notifier, logger *slog.Logger) *Consumer {
	return &Consumer{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_consumer")),
	}
}

// Run subscribes to the market channels and blocks until the context is
// cancelled. Delivery failures are logged, never fatal.
func (c *Consumer) Run(ctx context.Context) error {
	listed, err := c.bus.Subscribe(ctx, domain.ChannelListed)
	if err != nil {
		return err
	}
	bought, err := c.bus.Subscribe(ctx, domain.ChannelBought)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-listed:
			if !ok {
				return nil
			}
			c.handle(ctx, data)
		case data, ok := <-bought:
			if !ok {
				return nil
			}
			c.handle(ctx, data)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, data []byte) {
	var evt domain.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		c.logger.WarnContext(ctx, "undecodable event",
			slog.String("error", err.Error()),
		)
		return
	}

	switch evt.Type {
	case domain.EventTypeListed:
		var p domain.ListedEvent
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return
		}
		_ = c.notifier.Notify(ctx, "listed",
			"New listing",
			formatListed(p),
		)
	case domain.EventTypeBought:
		var p domain.BoughtEvent
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return
		}
		_ = c.notifier.Notify(ctx, "bought",
			"Item sold",
			formatBought(p),
		)
	}
}
