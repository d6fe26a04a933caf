package core

import (
	"context"

	"ordercore/pkg/domain"
)

// Notifier is informed of fraud-claim creation and order-status changes.
// Calls are fire-and-forget: the core never waits on or retries delivery.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, order domain.Order)
	FraudClaimCreated(ctx context.Context, claim domain.FraudClaim)
}

// NoopNotifier discards all notifications.
type NoopNotifier struct{}

func (NoopNotifier) OrderStatusChanged(context.Context, domain.Order)    {}
func (NoopNotifier) FraudClaimCreated(context.Context, domain.FraudClaim) {}

// AddressCheck is the address-verification collaborator's verdict.
type AddressCheck struct {
	Valid       bool
	Coordinates *domain.Coordinates
}

// AddressVerifier validates a postal address and resolves coordinates. Used
// only to populate Location coordinates at creation time.
type AddressVerifier interface {
	Verify(ctx context.Context, address string) (AddressCheck, error)
}
