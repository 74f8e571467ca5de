// README: Chat gate: who may use an order's thread, derived from the order alone.
package chat

import (
	"fmt"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

// Permit allows the order's customer or assigned driver while the order is live.
func Permit(o *domain.Order, userID types.ID) error {
	if o.DriverID == nil {
		return fmt.Errorf("order %s has no driver yet: %w", o.ID, domain.ErrNotAuthorized)
	}
	if domain.IsTerminal(o.Status) {
		return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, domain.ErrNotAuthorized)
	}
	if userID != o.CustomerID && !o.IsDriver(userID) {
		return fmt.Errorf("%s is not a participant of order %s: %w", userID, o.ID, domain.ErrNotAuthorized)
	}
	return nil
}
