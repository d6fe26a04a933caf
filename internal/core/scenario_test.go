package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ordercore/pkg/domain"
)

// Full pickup-to-timeout walk through the public surface.
func TestOrderScenarioEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := Initialize(ctx, Options{Durable: newFakeDurable()})
	clock := setClock(f, time.Date(2025, 6, 10, 18, 30, 0, 0, time.UTC))

	created, err := f.CreateOrder(ctx, domain.Order{
		OrderNumber:  "ORD-1",
		CustomerName: "Robin",
		Status:       domain.StatusPending,
		Location: domain.OrderLocation{
			LocationID:         "A",
			BusinessID:         "BUS-1",
			VerificationStatus: domain.VerificationVerified,
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())
	require.Equal(t, domain.StatusPending, created.Status)

	picked, err := f.UpdateStatus(ctx, created.ID, StatusUpdate{Status: domain.StatusPickedUp})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPickedUp, picked.Status)
	require.NotNil(t, picked.PickedUpAt)

	clock.Advance(31 * time.Minute)
	completed, err := f.AutoCompleteOverdueOrders(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, completed)

	final, err := f.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDelivered, final.Status)
	require.NotNil(t, final.DeliveryConfirmation)
	require.Equal(t, domain.ConfirmationAutoTimeout, *final.DeliveryConfirmation)
}

func TestGetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := Initialize(ctx, Options{Durable: newFakeDurable()})
	created, err := f.CreateOrder(ctx, testOrder())
	require.NoError(t, err)

	first, err := f.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	second, err := f.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
