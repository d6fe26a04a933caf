package domain_test

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"ordercore/pkg/domain"
)

func TestEncodeDocumentNormalizesTimestamps(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	picked := created.Add(12 * time.Minute)
	order := domain.Order{
		Base:        domain.Base{ID: "ord-1", CreatedAt: created, UpdatedAt: created},
		OrderNumber: "ORD-1",
		Status:      domain.StatusPickedUp,
		PickedUpAt:  &picked,
		Location: domain.OrderLocation{
			LocationID:         "loc-1",
			BusinessID:         "biz-1",
			VerificationStatus: domain.VerificationVerified,
		},
	}
	doc, err := domain.EncodeDocument(order)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := doc["created_at"]; got != "2025-03-14T09:26:53.589Z" {
		t.Fatalf("unexpected created_at %v", got)
	}
	if got := doc["picked_up_at"]; got != "2025-03-14T09:38:53.589Z" {
		t.Fatalf("unexpected picked_up_at %v", got)
	}
	if _, ok := doc["delivered_at"]; ok {
		t.Fatalf("unset optional timestamp should be absent")
	}
}

func TestEncodeDocumentLeavesFreeTextAlone(t *testing.T) {
	// Date-shaped strings outside timestamp fields must not be rewritten.
	order := domain.Order{
		Base:         domain.Base{ID: "ord-1"},
		OrderNumber:  "2025-01-01T00:00:00+02:00",
		CustomerName: "Dana",
		Contents:     "deliver after 2025-01-01T00:00:00+02:00 please",
		Status:       domain.StatusPending,
		Location: domain.OrderLocation{
			LocationID: "loc-1",
			BusinessID: "biz-1",
		},
	}
	doc, err := domain.EncodeDocument(order)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := doc["order_number"]; got != "2025-01-01T00:00:00+02:00" {
		t.Fatalf("order_number rewritten to %v", got)
	}
	if got := doc["contents"]; got != order.Contents {
		t.Fatalf("contents rewritten to %v", got)
	}
	var back domain.Order
	if err := domain.DecodeDocument(doc, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.OrderNumber != order.OrderNumber || back.Contents != order.Contents {
		t.Fatalf("free text mutated in round trip: %+v", back)
	}
}

func TestEncodeDocumentStripsNilLeavesKeepsEmptyCollections(t *testing.T) {
	claim := domain.FraudClaim{
		Base:        domain.Base{ID: "fc-1"},
		BusinessID:  "biz-1",
		ClaimNumber: "FC-20250314-ABCD",
		Status:      "open",
		Evidence:    domain.ClaimEvidence{PhotoKeys: []string{}},
	}
	doc, err := domain.EncodeDocument(claim)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	evidence, ok := doc["evidence"].(map[string]any)
	if !ok {
		t.Fatalf("evidence missing: %v", doc)
	}
	if _, ok := evidence["qr_scan_proof"]; ok {
		t.Fatalf("nil leaf should be stripped")
	}
	keys, ok := evidence["photo_keys"].([]any)
	if !ok || len(keys) != 0 {
		t.Fatalf("empty collection should survive encoding, got %v", evidence["photo_keys"])
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	activated := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	loc := domain.Location{
		Base:       domain.Base{ID: "loc-1", CreatedAt: activated, UpdatedAt: activated},
		BusinessID: "biz-1",
		Name:       "Downtown",
		Address:    "1 Main St",
		Verification: domain.LocationVerification{
			Status: domain.VerificationVerified,
			Method: "postcard",
		},
		QRCodeIDs: []string{"qr-1"},
		Billing:   domain.LocationBilling{IsActive: true, ActivatedAt: &activated, MonthlyUsage: 5},
		Settings:  domain.LocationSettings{IsActive: true, Timezone: "America/Chicago"},
	}
	doc, err := domain.EncodeDocument(loc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var back domain.Location
	if err := domain.DecodeDocument(doc, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(loc, back) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", loc, back)
	}
}

func TestCloneDocumentIsIndependent(t *testing.T) {
	doc := domain.Document{
		"id":       "ord-1",
		"location": map[string]any{"business_id": "biz-1"},
	}
	cloned := domain.CloneDocument(doc)
	cloned["location"].(map[string]any)["business_id"] = "biz-2"
	if doc["location"].(map[string]any)["business_id"] != "biz-1" {
		t.Fatalf("clone mutated original")
	}
}

func TestMatchesFilter(t *testing.T) {
	orderDoc := domain.Document{
		"id":       "ord-1",
		"location": map[string]any{"business_id": "biz-1"},
	}
	locationDoc := domain.Document{
		"id":          "loc-1",
		"type":        "location",
		"business_id": "biz-1",
	}
	cases := []struct {
		name   string
		table  domain.Table
		doc    domain.Document
		filter domain.ScanFilter
		want   bool
	}{
		{"order business match", domain.TableOrders, orderDoc, domain.ScanFilter{BusinessID: "biz-1"}, true},
		{"order business mismatch", domain.TableOrders, orderDoc, domain.ScanFilter{BusinessID: "biz-2"}, false},
		{"entity type match", domain.TableEntities, locationDoc, domain.ScanFilter{Type: domain.EntityLocation}, true},
		{"entity type mismatch", domain.TableEntities, locationDoc, domain.ScanFilter{Type: domain.EntityUser}, false},
		{"zero filter matches", domain.TableEntities, locationDoc, domain.ScanFilter{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.MatchesFilter(tc.table, tc.doc, tc.filter); got != tc.want {
				t.Fatalf("MatchesFilter = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStatusRankOrdering(t *testing.T) {
	if !(domain.StatusPending.Rank() < domain.StatusPickedUp.Rank() &&
		domain.StatusPickedUp.Rank() < domain.StatusDelivered.Rank()) {
		t.Fatalf("status ranks out of order")
	}
	if domain.OrderStatus("bogus").Rank() != -1 {
		t.Fatalf("unknown status should rank below valid ones")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	nf := domain.ErrNotFound{Entity: domain.EntityOrder, ID: "ord-1"}
	if !domain.IsNotFound(nf) {
		t.Fatalf("IsNotFound should match ErrNotFound")
	}
	if !strings.Contains(nf.Error(), "ord-1") {
		t.Fatalf("message should carry the id: %s", nf.Error())
	}
	ae := domain.AdapterError{Op: "put_item", Err: domain.ErrNotFound{ID: "x"}}
	if !domain.IsAdapterError(ae) {
		t.Fatalf("IsAdapterError should match AdapterError")
	}
	if domain.IsAdapterError(nf) {
		t.Fatalf("plain not-found must not look like an adapter failure")
	}
	ve := domain.ValidationError{Field: "status", Reason: "backward transition"}
	if !domain.IsValidation(ve) {
		t.Fatalf("IsValidation should match ValidationError")
	}
}
