// ABOUTME: Authenticated identity carried through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating identity via context

package auth

import (
	"context"

	"github.com/OSama2626/chequegate/internal/store"
)

// Identity holds the resolved identity extracted from a verified token.
// The core trusts it and does no further credential verification.
type Identity struct {
	UserID string // internal user ID ("sub" claim)
	Role   string // "agent", "beneficiary", "admin"
	BankID string // empty when the role carries no bank affiliation
}

// IsAgent returns true if the identity belongs to a bank agent.
func (id *Identity) IsAgent() bool {
	return id.Role == store.RoleAgent
}

// IsBeneficiary returns true if the identity belongs to a beneficiary.
func (id *Identity) IsBeneficiary() bool {
	return id.Role == store.RoleBeneficiary
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}
