// Package statemachine validates and applies order lifecycle transitions.
// It is pure: it never persists or emits, so the coordinator stays in charge
// of durability and event propagation.
package statemachine

import (
	"errors"
	"fmt"
	"time"

	"printhub/internal/authz"
	"printhub/internal/order/models"
	"printhub/internal/platform/middleware"
	dErrors "printhub/pkg/domain-errors"
	"printhub/pkg/platform/sentinel"
)

// Apply validates the requested transition against the lifecycle adjacency
// and the actor's capabilities, returning an updated copy of the order. The
// input order is not mutated.
//
// Error classes, in check order:
//   - terminal origin: CodeConflict wrapping sentinel.ErrInvalidState, so
//     callers can refine it via errors.Is
//   - unknown or unreachable target: CodeConflict
//   - actor not allowed: CodeForbidden
func Apply(order *models.Order, requested models.Status, actor middleware.Actor) (*models.Order, error) {
	if !requested.Valid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown status %q", requested))
	}

	if order.Status.IsTerminal() {
		return nil, dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict,
			fmt.Sprintf("order is already %s", order.Status))
	}

	if !order.Status.CanTransitionTo(requested) {
		return nil, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, requested))
	}

	action := authz.ActionAdvanceOrder
	if requested == models.StatusCancelled {
		action = authz.ActionCancelOrder
	}
	res := authz.Resource{RequesterID: order.RequesterID, ShopID: order.ShopID}
	if !authz.Can(actor, action, res) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor may not perform this transition")
	}

	updated := *order
	updated.Status = requested
	updated.Version = order.Version + 1
	updated.UpdatedAt = time.Now().UTC()
	return &updated, nil
}

// IsTerminalStateError reports whether err was caused by a transition
// requested on an order already in a terminal state. It refines the generic
// invalid-transition conflict.
func IsTerminalStateError(err error) bool {
	return errors.Is(err, sentinel.ErrInvalidState)
}
