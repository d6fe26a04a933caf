package core

import (
	"context"

	"ordercore/pkg/domain"
)

// AdjustUsage adds delta to a location's monthly usage counter. The counter
// is a net attribution figure and is deliberately not clamped at zero: a
// decrement racing a reset may legitimately drive it negative, and clamping
// would silently lose billable units on the next increment.
func (f *Facade) AdjustUsage(ctx context.Context, locationID string, delta int) error {
	if delta == 0 {
		return nil
	}
	_, err := f.UpdateLocation(ctx, locationID, func(loc *domain.Location) error {
		loc.Billing.MonthlyUsage += delta
		return nil
	})
	return err
}

// LocationUsage is one row of a usage report.
type LocationUsage struct {
	LocationID   string `json:"location_id"`
	Name         string `json:"name"`
	MonthlyUsage int    `json:"monthly_usage"`
	IsActive     bool   `json:"is_active"`
}

// UsageReport summarizes order attribution for one business.
type UsageReport struct {
	BusinessID string          `json:"business_id"`
	Total      int             `json:"total"`
	Locations  []LocationUsage `json:"locations"`
}

// ReportUsage aggregates the usage counters of every location owned by a
// business, in the backend's scan order.
func (f *Facade) ReportUsage(ctx context.Context, businessID string) (UsageReport, error) {
	if businessID == "" {
		return UsageReport{}, domain.ValidationError{Field: "business_id", Reason: "must not be empty"}
	}
	locations, err := f.ListLocations(ctx, businessID)
	if err != nil {
		return UsageReport{}, err
	}
	report := UsageReport{BusinessID: businessID, Locations: make([]LocationUsage, 0, len(locations))}
	for _, loc := range locations {
		report.Total += loc.Billing.MonthlyUsage
		report.Locations = append(report.Locations, LocationUsage{
			LocationID:   loc.ID,
			Name:         loc.Name,
			MonthlyUsage: loc.Billing.MonthlyUsage,
			IsActive:     loc.Billing.IsActive,
		})
	}
	return report, nil
}
