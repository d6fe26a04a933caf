package core

import (
	"context"
	"fmt"
	"time"

	"ordercore/pkg/domain"
)

// DefaultCompleteAfter is how long an order may sit in picked_up before the
// periodic scan marks it delivered.
const DefaultCompleteAfter = 30 * time.Minute

// StatusUpdate carries the optional driver details attached when an order
// advances to picked_up.
type StatusUpdate struct {
	Status        domain.OrderStatus
	DriverName    *string
	DriverCompany *string
}

// UpdateStatus advances an order along the lifecycle. Transitions only move
// forward and one step at a time; setting the current status again is a
// no-op returning the unchanged order. Pickup and delivery timestamps are
// set exactly once and never overwritten.
func (f *Facade) UpdateStatus(ctx context.Context, orderID string, update StatusUpdate) (domain.Order, error) {
	next := update.Status
	if next.Rank() < 0 {
		return domain.Order{}, domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", next)}
	}

	var changed bool
	order, err := f.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		if next == o.Status {
			return nil
		}
		if next.Rank() < o.Status.Rank() {
			return domain.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move %s back to %s", o.Status, next)}
		}
		if o.Status == domain.StatusPending && next == domain.StatusDelivered {
			return domain.ValidationError{Field: "status", Reason: "pending orders must be picked up before delivery"}
		}
		changed = true
		o.Status = next
		now := f.now()
		switch next {
		case domain.StatusPickedUp:
			if o.PickedUpAt == nil {
				o.PickedUpAt = &now
			}
			if update.DriverName != nil {
				o.DriverName = update.DriverName
			}
			if update.DriverCompany != nil {
				o.DriverCompany = update.DriverCompany
			}
		case domain.StatusDelivered:
			if o.DeliveredAt == nil {
				o.DeliveredAt = &now
			}
			if o.DeliveryConfirmation == nil {
				manual := domain.ConfirmationManual
				o.DeliveryConfirmation = &manual
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if changed {
		f.notifyStatusChange(ctx, order)
	}
	return order, nil
}

// Transfer moves an order to a different location, rewriting the embedded
// location snapshot and recording provenance. Usage moves with the order:
// one unit off the previous location, one onto the new. The ledger writes
// are best effort; a failed adjustment is logged and the transfer stands.
func (f *Facade) Transfer(ctx context.Context, orderID, newLocationID, reason string) (domain.Order, error) {
	if newLocationID == "" {
		return domain.Order{}, domain.ValidationError{Field: "location_id", Reason: "must not be empty"}
	}
	dest, err := f.GetLocation(ctx, newLocationID)
	if err != nil {
		return domain.Order{}, err
	}

	var previousLocationID string
	order, err := f.UpdateOrder(ctx, orderID, func(o *domain.Order) error {
		if o.Location.LocationID == newLocationID {
			return domain.ValidationError{Field: "location_id", Reason: "order is already at this location"}
		}
		previousLocationID = o.Location.LocationID
		name := dest.Name
		o.Location = domain.OrderLocation{
			LocationID:         dest.ID,
			LocationName:       &name,
			BusinessID:         dest.BusinessID,
			VerificationStatus: dest.Verification.Status,
			Coordinates:        dest.Coordinates,
			Transfer: &domain.TransferRecord{
				PreviousLocationID: previousLocationID,
				TransferredAt:      f.now(),
				Reason:             reason,
			},
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if err := f.AdjustUsage(ctx, previousLocationID, -1); err != nil {
		f.logger.Warn("usage decrement failed after transfer",
			"order_id", orderID, "location_id", previousLocationID, "error", err)
	}
	if err := f.AdjustUsage(ctx, newLocationID, 1); err != nil {
		f.logger.Warn("usage increment failed after transfer",
			"order_id", orderID, "location_id", newLocationID, "error", err)
	}
	return order, nil
}

// AutoCompleteOverdueOrders scans every order and marks those sitting in
// picked_up strictly longer than completeAfter as delivered with an
// auto-timeout confirmation. Returns how many orders it completed. A zero
// completeAfter uses the default threshold.
func (f *Facade) AutoCompleteOverdueOrders(ctx context.Context, completeAfter time.Duration) (int, error) {
	if completeAfter <= 0 {
		completeAfter = DefaultCompleteAfter
	}
	started := time.Now()
	orders, err := f.ListOrders(ctx, "")
	if err != nil {
		return 0, err
	}
	now := f.now()
	completed := 0
	for _, order := range orders {
		if order.Status != domain.StatusPickedUp || order.PickedUpAt == nil {
			continue
		}
		if now.Sub(*order.PickedUpAt) <= completeAfter {
			continue
		}
		updated, err := f.UpdateOrder(ctx, order.ID, func(o *domain.Order) error {
			if o.Status != domain.StatusPickedUp {
				return nil
			}
			o.Status = domain.StatusDelivered
			if o.DeliveredAt == nil {
				o.DeliveredAt = &now
			}
			auto := domain.ConfirmationAutoTimeout
			o.DeliveryConfirmation = &auto
			return nil
		})
		if err != nil {
			f.logger.Warn("auto-complete failed for order",
				"order_id", order.ID, "error", err)
			continue
		}
		completed++
		f.notifyStatusChange(ctx, updated)
		f.logger.Info("order auto-completed after pickup timeout",
			"order_id", order.ID, "picked_up_at", order.PickedUpAt)
	}
	f.metrics.observeScan(time.Since(started), completed)
	return completed, nil
}
