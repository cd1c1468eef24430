// Package events defines order lifecycle events and the machinery that
// propagates them: a durable outbox, a broker relay, and best-effort live
// push. Order persistence is the durability boundary; everything here is
// decoupled from the originating mutation and eventually consistent.
package events

import (
	"encoding/json"
	"time"

	"printhub/internal/order/models"
)

// Kind classifies a lifecycle event so durable consumers can subscribe
// selectively.
type Kind string

const (
	// KindCreated is emitted once per order, at admission.
	KindCreated Kind = "created"
	// KindStatus is emitted for every accepted status change, including
	// cancellation.
	KindStatus Kind = "status"
)

// LifecycleEvent records one accepted order mutation. Sequence is the order's
// version counter, so it increases by exactly one per mutation and consumers
// can restore causal order regardless of delivery order.
type LifecycleEvent struct {
	OrderID     string        `json:"orderId"`
	Sequence    int64         `json:"sequence"`
	Kind        Kind          `json:"kind"`
	OldStatus   models.Status `json:"oldStatus,omitempty"`
	NewStatus   models.Status `json:"newStatus,omitempty"`
	ShopID      string        `json:"shopId"`
	RequesterID string        `json:"requesterId"`
	TotalCost   float64       `json:"totalCost,omitempty"`
	OccurredAt  time.Time     `json:"occurredAt"`
}

// Created builds the admission event for a freshly persisted order.
func Created(order *models.Order) LifecycleEvent {
	return LifecycleEvent{
		OrderID:     order.ID,
		Sequence:    order.Version,
		Kind:        KindCreated,
		NewStatus:   order.Status,
		ShopID:      order.ShopID,
		RequesterID: order.RequesterID,
		TotalCost:   order.TotalCost,
		OccurredAt:  order.CreatedAt,
	}
}

// StatusChanged builds the event for an applied transition.
func StatusChanged(order *models.Order, oldStatus models.Status) LifecycleEvent {
	return LifecycleEvent{
		OrderID:     order.ID,
		Sequence:    order.Version,
		Kind:        KindStatus,
		OldStatus:   oldStatus,
		NewStatus:   order.Status,
		ShopID:      order.ShopID,
		RequesterID: order.RequesterID,
		OccurredAt:  order.UpdatedAt,
	}
}

// Encode renders the wire payload.
func (e LifecycleEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire payload.
func Decode(data []byte) (LifecycleEvent, error) {
	var e LifecycleEvent
	err := json.Unmarshal(data, &e)
	return e, err
}
