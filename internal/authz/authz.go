// Package authz is the single capability check consulted by the state
// machine, the coordinator, and the handlers. Role branching lives here and
// nowhere else.
package authz

import (
	"printhub/internal/platform/middleware"
)

// Action names a capability on an order or shop.
type Action string

const (
	ActionAdvanceOrder Action = "order.advance" // pending→accepted→printing→completed
	ActionCancelOrder  Action = "order.cancel"
	ActionViewOrder    Action = "order.view"
	ActionManageShop   Action = "shop.manage" // capacity and status reconfiguration
)

// Resource carries the ownership facts a decision needs.
type Resource struct {
	RequesterID string
	ShopID      string
}

// Can decides whether the actor may perform action on the resource.
// Administrators may do everything; shop owners act on their own shop's
// resources; requesters act on their own orders.
func Can(actor middleware.Actor, action Action, res Resource) bool {
	if actor.Role == middleware.RoleAdmin {
		return true
	}

	ownsShop := actor.Role == middleware.RoleShopOwner && actor.ShopID != "" && actor.ShopID == res.ShopID
	ownsOrder := actor.Role == middleware.RoleRequester && actor.UserID != "" && actor.UserID == res.RequesterID

	switch action {
	case ActionAdvanceOrder:
		return ownsShop
	case ActionCancelOrder:
		return ownsShop || ownsOrder
	case ActionViewOrder:
		return ownsShop || ownsOrder
	case ActionManageShop:
		return ownsShop
	default:
		return false
	}
}
