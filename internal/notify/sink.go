// Package notify abstracts the live-push transport. Delivery is best-effort:
// a push to a room nobody listens to simply disappears, and a failed push
// never propagates back into the mutation that triggered it.
package notify

import "context"

// Sink delivers an encoded event to a live subscriber room. Two room kinds
// exist: one per requester and one per shop.
type Sink interface {
	NotifyUser(ctx context.Context, userID string, payload []byte) error
	NotifyShop(ctx context.Context, shopID string, payload []byte) error
}

// Noop is the sink used when no push transport is configured.
type Noop struct{}

func (Noop) NotifyUser(context.Context, string, []byte) error { return nil }
func (Noop) NotifyShop(context.Context, string, []byte) error { return nil }
