package auth

import (
	"context"
	"errors"
	"fmt"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleStallOwner Role = "stall_owner"
	RoleSystem     Role = "system"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleStaff, RoleAdmin, RoleStallOwner:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrUnauthorized, s)
}

type Capability string

const (
	CapViewAnyOrder   Capability = "orders.view_any"
	CapCancelAnyOrder Capability = "orders.cancel_any"
	CapAdvanceOrder   Capability = "orders.advance"
	CapEditCatalog    Capability = "catalog.edit"
	CapAdjustStock    Capability = "catalog.adjust_stock"
	CapManageSlots    Capability = "slots.manage"
	CapManageStalls   Capability = "stalls.manage"
	CapReconcile      Capability = "crm.reconcile"
	CapDelegate       Capability = "auth.delegate"
)

var capabilities = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapViewAnyOrder: true, CapCancelAnyOrder: true, CapAdvanceOrder: true,
		CapEditCatalog: true, CapAdjustStock: true, CapManageSlots: true,
		CapManageStalls: true, CapReconcile: true, CapDelegate: true,
	},
	RoleStaff: {
		CapViewAnyOrder: true, CapCancelAnyOrder: true, CapAdvanceOrder: true,
	},
	RoleSystem: {
		CapViewAnyOrder: true, CapCancelAnyOrder: true,
	},
	RoleStallOwner: {},
	RoleCustomer:   {},
}

func Can(r Role, c Capability) bool { return capabilities[r][c] }

// Principal is who a request acts as. When Actor is set the request runs
// under a delegated identity: the principal fields describe the subject and
// Actor is the admin who issued the delegation.
type Principal struct {
	UserID  string     `json:"user_id"`
	Role    Role       `json:"role"`
	StallID string     `json:"stall_id,omitempty"`
	Actor   *Principal `json:"actor,omitempty"`
}

// System is the identity used for gateway callbacks and timeouts.
func System() Principal { return Principal{UserID: "system", Role: RoleSystem} }

func (p Principal) Require(c Capability) error {
	if !Can(p.Role, c) {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, p.Role, c)
	}
	return nil
}

// OwnsStall is true for the stall's owner and for anyone allowed to manage every stall.
func (p Principal) OwnsStall(stallID string) bool {
	if Can(p.Role, CapManageStalls) {
		return true
	}
	return p.Role == RoleStallOwner && p.StallID != "" && p.StallID == stallID
}

// ActorID is the user who is actually behind the request.
func (p Principal) ActorID() string {
	if p.Actor != nil {
		return p.Actor.UserID
	}
	return p.UserID
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
