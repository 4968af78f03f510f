// Package notify carries domain events from request handlers to connected
// admin clients. Handlers only produce event payloads; delivery is the hub's
// concern and happens after the originating transaction has committed.
package notify

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront-go/storefront/internal/domain/order"
)

// Event is one outbound domain notification.
type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// EventOrderCreated is broadcast after a new order commits.
const EventOrderCreated = "order.created"

// OrderCreatedPayload is the wire payload for EventOrderCreated.
type OrderCreatedPayload struct {
	OrderID  string          `json:"order_id"`
	UserID   string          `json:"user_id"`
	Total    decimal.Decimal `json:"total"`
	QtyItems int             `json:"qty_items"`
}

// OrderCreated builds the order.created event for the given order.
func OrderCreated(o *order.Order) Event {
	return Event{
		Type: EventOrderCreated,
		At:   time.Now().UTC(),
		Payload: OrderCreatedPayload{
			OrderID:  o.ID,
			UserID:   o.UserID,
			Total:    o.Total.Round(2),
			QtyItems: o.QtyItems(),
		},
	}
}

// Publisher delivers events to interested parties. Delivery is best-effort;
// a failed or absent subscriber never fails the originating request.
type Publisher interface {
	Publish(e Event)
}
