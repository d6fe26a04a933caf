package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ordercore/pkg/domain"
)

func TestAdjustUsageHasNoFloor(t *testing.T) {
	ctx := context.Background()
	f := Initialize(ctx, Options{})
	loc := mustCreateLocation(t, f, "biz-1", 0)

	require.NoError(t, f.AdjustUsage(ctx, loc.ID, -3))
	got, err := f.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	require.Equal(t, -3, got.Billing.MonthlyUsage)

	require.NoError(t, f.AdjustUsage(ctx, loc.ID, 5))
	got, err = f.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Billing.MonthlyUsage)
}

func TestAdjustUsageZeroDeltaIsNoop(t *testing.T) {
	ctx := context.Background()
	f := Initialize(ctx, Options{})
	require.NoError(t, f.AdjustUsage(ctx, "absent", 0))
}

func TestAdjustUsageUnknownLocation(t *testing.T) {
	ctx := context.Background()
	f := Initialize(ctx, Options{})
	err := f.AdjustUsage(ctx, "absent", 1)
	require.True(t, domain.IsNotFound(err))
}

func TestReportUsageAggregatesPerBusiness(t *testing.T) {
	ctx := context.Background()
	f := Initialize(ctx, Options{})
	a := mustCreateLocation(t, f, "biz-1", 7)
	b := mustCreateLocation(t, f, "biz-1", 3)
	mustCreateLocation(t, f, "biz-2", 99)
	_, err := f.DeactivateLocation(ctx, b.ID)
	require.NoError(t, err)

	report, err := f.ReportUsage(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, "biz-1", report.BusinessID)
	require.Equal(t, 10, report.Total)
	require.Len(t, report.Locations, 2)
	require.Equal(t, a.ID, report.Locations[0].LocationID)
	require.True(t, report.Locations[0].IsActive)
	require.False(t, report.Locations[1].IsActive)
}

func TestReportUsageRequiresBusiness(t *testing.T) {
	_, err := Initialize(context.Background(), Options{}).ReportUsage(context.Background(), "")
	require.True(t, domain.IsValidation(err))
}
