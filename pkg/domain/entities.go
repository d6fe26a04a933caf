// Package domain defines the persistent entities, the document wire
// representation, and the error taxonomy shared by the ordercore storage
// backends and the persistence facade.
package domain

import "time"

// EntityType identifies the type of record stored by the persistence layer.
type EntityType string

// Supported entity type identifiers. Non-order entities share one physical
// table and carry the type as a discriminator field; orders use a dedicated
// table keyed solely by id.
const (
	// EntityOrder identifies a customer order record.
	EntityOrder EntityType = "order"
	// EntityLocation identifies a billable business site record.
	EntityLocation EntityType = "location"
	// EntityMenuItem identifies a menu item record.
	EntityMenuItem EntityType = "menu_item"
	// EntityUser identifies a user record.
	EntityUser EntityType = "user"
	// EntityFraudClaim identifies a fraud claim record.
	EntityFraudClaim EntityType = "fraud_claim"
)

// Table names a logical storage table.
type Table string

// Logical tables multiplexed by every backend.
const (
	// TableOrders holds order records, keyed by id.
	TableOrders Table = "orders"
	// TableEntities holds all non-order records, keyed by id with a type discriminator.
	TableEntities Table = "entities"
)

// TableFor returns the logical table an entity type is stored in.
func TableFor(t EntityType) Table {
	if t == EntityOrder {
		return TableOrders
	}
	return TableEntities
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

// Order lifecycle states. Transitions only advance forward:
// pending -> picked_up -> delivered.
const (
	StatusPending   OrderStatus = "pending"
	StatusPickedUp  OrderStatus = "picked_up"
	StatusDelivered OrderStatus = "delivered"
)

// Rank orders statuses along the lifecycle; unknown statuses rank below all
// valid ones.
func (s OrderStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusPickedUp:
		return 1
	case StatusDelivered:
		return 2
	default:
		return -1
	}
}

// DeliveryConfirmation records how an order's delivery was confirmed.
type DeliveryConfirmation string

// Delivery confirmation methods.
const (
	// ConfirmationManual marks an explicit confirmation by a caller.
	ConfirmationManual DeliveryConfirmation = "manual"
	// ConfirmationAutoTimeout marks completion inferred from the pickup
	// timestamp exceeding the completion threshold.
	ConfirmationAutoTimeout DeliveryConfirmation = "auto_timeout"
)

// VerificationStatus enumerates location/QR verification states.
type VerificationStatus string

// Verification states shared by locations and order location snapshots.
const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Base contains the common identity and timestamp fields of all records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordBase exposes the embedded Base for generic persistence helpers.
func (b *Base) RecordBase() *Base { return b }

// Record is satisfied by every entity through its embedded Base.
type Record interface {
	RecordBase() *Base
}

// Coordinates is a GPS point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TransferRecord captures the provenance of an order moved between locations.
type TransferRecord struct {
	PreviousLocationID string    `json:"previous_location_id"`
	TransferredAt      time.Time `json:"transferred_at"`
	Reason             string    `json:"reason,omitempty"`
}

// OrderLocation is the location snapshot embedded in an order. BusinessID is
// the billing owner and is immutable except through an explicit transfer.
type OrderLocation struct {
	LocationID         string             `json:"location_id"`
	LocationName       *string            `json:"location_name,omitempty"`
	BusinessID         string             `json:"business_id"`
	QRCodeID           *string            `json:"qr_code_id,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Coordinates        *Coordinates       `json:"coordinates,omitempty"`
	IPAddress          *string            `json:"ip_address,omitempty"`
	DeviceFingerprint  *string            `json:"device_fingerprint,omitempty"`
	Transfer           *TransferRecord    `json:"transfer,omitempty"`
}

// Order represents a single customer order moving through pickup/delivery.
type Order struct {
	Base
	OrderNumber          string                `json:"order_number"`
	CustomerName         string                `json:"customer_name"`
	CustomerEmail        string                `json:"customer_email,omitempty"`
	Contents             string                `json:"contents,omitempty"`
	Status               OrderStatus           `json:"status"`
	PickedUpAt           *time.Time            `json:"picked_up_at,omitempty"`
	DeliveredAt          *time.Time            `json:"delivered_at,omitempty"`
	DriverName           *string               `json:"driver_name,omitempty"`
	DriverCompany        *string               `json:"driver_company,omitempty"`
	DeliveryConfirmation *DeliveryConfirmation `json:"delivery_confirmation,omitempty"`
	Location             OrderLocation         `json:"location"`
}

// ContactInfo holds business contact details for a location.
type ContactInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LocationVerification tracks the verification workflow of a location.
type LocationVerification struct {
	Status      VerificationStatus `json:"status"`
	Method      string             `json:"method,omitempty"`
	RequestedAt *time.Time         `json:"requested_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// LocationBilling carries activation state and the monthly usage counter.
// MonthlyUsage tracks the net count of orders currently attributed to the
// location; it is adjusted on order creation and transfer and carries no
// floor.
type LocationBilling struct {
	IsActive      bool       `json:"is_active"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	MonthlyUsage  int        `json:"monthly_usage"`
}

// LocationSettings holds operational configuration for a location.
type LocationSettings struct {
	IsActive        bool   `json:"is_active"`
	Timezone        string `json:"timezone,omitempty"`
	OperatingHours  string `json:"operating_hours,omitempty"`
	MaxOrdersPerDay int    `json:"max_orders_per_day,omitempty"`
}

// Location represents a billable physical/business site. Deletion is soft:
// the documented removal path marks Settings.IsActive false.
type Location struct {
	Base
	BusinessID   string               `json:"business_id"`
	Name         string               `json:"name"`
	Address      string               `json:"address"`
	Coordinates  *Coordinates         `json:"coordinates,omitempty"`
	Contact      ContactInfo          `json:"contact"`
	Verification LocationVerification `json:"verification"`
	QRCodeIDs    []string             `json:"qr_code_ids"`
	Billing      LocationBilling      `json:"billing"`
	Settings     LocationSettings     `json:"settings"`
}

// MenuItem represents a sellable item scoped to a business.
type MenuItem struct {
	Base
	BusinessID  string `json:"business_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int    `json:"price_cents"`
	Category    string `json:"category,omitempty"`
	Available   bool   `json:"available"`
}

// User represents an account scoped to a business.
type User struct {
	Base
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role,omitempty"`
}

// ClaimEvidence holds the supporting material attached to a fraud claim.
// PhotoKeys reference blobs in the evidence store.
type ClaimEvidence struct {
	QRScanProof *string      `json:"qr_scan_proof,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	PhotoKeys   []string     `json:"photo_keys"`
}

// FraudClaim represents a customer fraud report scoped to a business. The
// claim number is generated at creation and human-readable.
type FraudClaim struct {
	Base
	BusinessID  string        `json:"business_id"`
	ClaimNumber string        `json:"claim_number"`
	OrderID     string        `json:"order_id,omitempty"`
	Description string        `json:"description,omitempty"`
	Status      string        `json:"status"`
	Evidence    ClaimEvidence `json:"evidence"`
}
