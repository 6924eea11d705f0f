// Package events publishes pickup lifecycle changes to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
)

type PickupEvent struct {
	PickupID    uuid.UUID        `json:"pickup_id"`
	UserID      uuid.UUID        `json:"user_id"`
	CollectorID *uuid.UUID       `json:"collector_id,omitempty"`
	Action      lifecycle.Action `json:"action"`
	Status      lifecycle.Status `json:"status"`
	Credits     int64            `json:"credits,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// RoutingKey is "pickup.<status>".
func (e PickupEvent) RoutingKey() string {
	return "pickup." + string(e.Status)
}

type Publisher interface {
	Publish(ctx context.Context, event PickupEvent) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, PickupEvent) error { return nil }
func (Noop) Close() error                               { return nil }
