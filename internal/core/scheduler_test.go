package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ordercore/pkg/domain"
)

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	ctx := context.Background()
	f := Initialize(ctx, Options{})
	clock := setClock(f, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))

	order := mustCreateOrder(t, f, "loc-1", "biz-1")
	_, err := f.UpdateStatus(ctx, order.ID, StatusUpdate{Status: domain.StatusPickedUp})
	require.NoError(t, err)
	clock.Advance(31 * time.Minute)

	s := f.StartScheduler(ctx, time.Hour, 0)
	defer s.Stop()

	require.Eventually(t, func() bool {
		got, err := f.GetOrder(ctx, order.ID)
		return err == nil && got.Status == domain.StatusDelivered
	}, 2*time.Second, 10*time.Millisecond, "first scan should run without waiting for the interval")

	s.Stop()
	s.Stop() // idempotent
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := Initialize(ctx, Options{})
	s := f.StartScheduler(ctx, time.Millisecond, 0)
	cancel()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit after context cancellation")
	}
}

func TestSchedulerTicksRepeatedly(t *testing.T) {
	ctx := context.Background()
	f := Initialize(ctx, Options{})
	clock := setClock(f, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))

	s := f.StartScheduler(ctx, 20*time.Millisecond, 0)
	defer s.Stop()

	// An order that becomes overdue only after the first scan has run must
	// still be picked up by a later tick.
	order := mustCreateOrder(t, f, "loc-1", "biz-1")
	_, err := f.UpdateStatus(ctx, order.ID, StatusUpdate{Status: domain.StatusPickedUp})
	require.NoError(t, err)
	clock.Advance(31 * time.Minute)

	require.Eventually(t, func() bool {
		got, err := f.GetOrder(ctx, order.ID)
		return err == nil && got.Status == domain.StatusDelivered
	}, 2*time.Second, 10*time.Millisecond)
}
