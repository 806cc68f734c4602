package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/skillrating/types"
)

// Admin returns the admin account.
func (e *Engine) Admin() common.Address {
	return e.admin
}

// IsAdmin reports whether account is the admin.
func (e *Engine) IsAdmin(account common.Address) bool {
	return account == e.admin
}

func (e *Engine) requireAdmin(caller common.Address) error {
	if !e.IsAdmin(caller) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// grantToRatee gives the ratee, and only the ratee, the right to decrypt the
// handles of their own aggregate.
func (e *Engine) grantToRatee(ctx context.Context, ratee common.Address, handles ...types.Handle) error {
	for _, h := range handles {
		if err := e.capability.Allow(ctx, e.contextID, h, ratee); err != nil {
			return capabilityError("allow "+h.String(), err)
		}
	}
	return nil
}
