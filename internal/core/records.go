package core

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"ordercore/internal/blob"
	"ordercore/pkg/domain"
)

// stampNew assigns identity and creation timestamps to a record about to be
// persisted for the first time.
func (f *Facade) stampNew(rec domain.Record) {
	base := rec.RecordBase()
	if base.ID == "" {
		base.ID = f.newID()
	}
	now := f.now()
	base.CreatedAt = now
	base.UpdatedAt = now
}

// encodeRecord serializes an entity, attaching the type discriminator for
// records multiplexed into the shared entities table.
func encodeRecord(typ domain.EntityType, v any) (domain.Document, error) {
	doc, err := domain.EncodeDocument(v)
	if err != nil {
		return nil, err
	}
	if typ != domain.EntityOrder {
		doc[domain.FieldType] = string(typ)
	}
	return doc, nil
}

// getTypedDoc reads a record and rejects type mismatches in the shared
// entities table, so a menu item id can never be read back as a user.
func (f *Facade) getTypedDoc(ctx context.Context, typ domain.EntityType, id string) (domain.Document, error) {
	doc, err := f.getDoc(ctx, domain.TableFor(typ), id)
	if err != nil {
		return nil, err
	}
	if typ != domain.EntityOrder {
		if got, _ := doc[domain.FieldType].(string); got != string(typ) {
			return nil, domain.ErrNotFound{Entity: typ, ID: id}
		}
	}
	return doc, nil
}

func getEntity[T any](f *Facade, ctx context.Context, typ domain.EntityType, id string) (T, error) {
	var out T
	if id == "" {
		return out, domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	doc, err := f.getTypedDoc(ctx, typ, id)
	f.metrics.observeOp(string(typ), "get", string(f.mode), err)
	if err != nil {
		return out, err
	}
	if err := domain.DecodeDocument(doc, &out); err != nil {
		return out, err
	}
	return out, nil
}

func listEntities[T any](f *Facade, ctx context.Context, typ domain.EntityType, businessID string) ([]T, error) {
	filter := domain.ScanFilter{BusinessID: businessID}
	if typ != domain.EntityOrder {
		filter.Type = typ
	}
	docs, err := f.scanDocs(ctx, domain.TableFor(typ), filter)
	f.metrics.observeOp(string(typ), "list", string(f.mode), err)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var rec T
		if err := domain.DecodeDocument(doc, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// updateEntity applies a typed mutator to the stored record and writes the
// result back through the active backend. Identity and creation time survive
// any mutation; UpdatedAt is always refreshed.
func updateEntity[T any](f *Facade, ctx context.Context, typ domain.EntityType, id string, mutate func(*T) error) (T, error) {
	var zero T
	if id == "" {
		return zero, domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	doc, err := f.getTypedDoc(ctx, typ, id)
	if err != nil {
		f.metrics.observeOp(string(typ), "update", string(f.mode), err)
		return zero, err
	}
	var rec T
	if err := domain.DecodeDocument(doc, &rec); err != nil {
		return zero, err
	}
	base := any(&rec).(domain.Record).RecordBase()
	createdAt := base.CreatedAt
	if mutate != nil {
		if err := mutate(&rec); err != nil {
			return zero, err
		}
	}
	base.ID = id
	base.CreatedAt = createdAt
	base.UpdatedAt = f.now()
	delta, err := encodeRecord(typ, &rec)
	if err != nil {
		return zero, err
	}
	table := domain.TableFor(typ)
	merged := delta
	if clearsFields(doc, delta) {
		// A mutator nulled an optional field, so its key is absent from the
		// re-encoded record. A merge would resurrect the old value; replace
		// the whole document instead.
		err = f.putDoc(ctx, table, delta)
	} else {
		merged, err = f.updateDoc(ctx, table, id, delta)
	}
	f.metrics.observeOp(string(typ), "update", string(f.mode), err)
	if err != nil {
		return zero, err
	}
	var out T
	if err := domain.DecodeDocument(merged, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// clearsFields reports whether the stored document carries a top-level key
// the re-encoded record no longer has.
func clearsFields(stored, delta domain.Document) bool {
	for k := range stored {
		if k == domain.FieldID {
			continue
		}
		if _, ok := delta[k]; !ok {
			return true
		}
	}
	return false
}

func (f *Facade) createRecord(ctx context.Context, typ domain.EntityType, rec domain.Record) error {
	f.stampNew(rec)
	doc, err := encodeRecord(typ, rec)
	if err != nil {
		return err
	}
	err = f.putDoc(ctx, domain.TableFor(typ), doc)
	f.metrics.observeOp(string(typ), "create", string(f.mode), err)
	return err
}

func (f *Facade) deleteRecord(ctx context.Context, typ domain.EntityType, id string) error {
	if id == "" {
		return domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if _, err := f.getTypedDoc(ctx, typ, id); err != nil {
		f.metrics.observeOp(string(typ), "delete", string(f.mode), err)
		return err
	}
	err := f.deleteDoc(ctx, domain.TableFor(typ), id)
	f.metrics.observeOp(string(typ), "delete", string(f.mode), err)
	return err
}

// --- orders ---

// CreateOrder persists a new order in pending state and attributes one unit
// of usage to its location. Orders are append-only; there is no delete path.
func (f *Facade) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.OrderNumber == "" {
		return domain.Order{}, domain.ValidationError{Field: "order_number", Reason: "must not be empty"}
	}
	if order.CustomerName == "" {
		return domain.Order{}, domain.ValidationError{Field: "customer_name", Reason: "must not be empty"}
	}
	if order.Location.LocationID == "" {
		return domain.Order{}, domain.ValidationError{Field: "location.location_id", Reason: "must not be empty"}
	}
	if order.Location.BusinessID == "" {
		return domain.Order{}, domain.ValidationError{Field: "location.business_id", Reason: "must not be empty"}
	}
	if order.Status == "" {
		order.Status = domain.StatusPending
	}
	if order.Status.Rank() < 0 {
		return domain.Order{}, domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", order.Status)}
	}
	if order.Location.VerificationStatus == "" {
		order.Location.VerificationStatus = domain.VerificationPending
	}
	if err := f.createRecord(ctx, domain.EntityOrder, &order); err != nil {
		return domain.Order{}, err
	}
	if err := f.AdjustUsage(ctx, order.Location.LocationID, 1); err != nil {
		f.logger.Warn("usage increment failed after order creation",
			"order_id", order.ID, "location_id", order.Location.LocationID, "error", err)
	}
	return order, nil
}

// GetOrder returns the order or ErrNotFound.
func (f *Facade) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return getEntity[domain.Order](f, ctx, domain.EntityOrder, id)
}

// ListOrders returns orders, optionally restricted to one business, in the
// backend's scan order.
func (f *Facade) ListOrders(ctx context.Context, businessID string) ([]domain.Order, error) {
	return listEntities[domain.Order](f, ctx, domain.EntityOrder, businessID)
}

// UpdateOrder applies a mutator to the stored order. Status, timestamps, and
// location transfers have dedicated operations with stricter rules; this is
// the general path for contents, customer, and driver fields.
func (f *Facade) UpdateOrder(ctx context.Context, id string, mutate func(*domain.Order) error) (domain.Order, error) {
	return updateEntity[domain.Order](f, ctx, domain.EntityOrder, id, mutate)
}

// --- locations ---

// CreateLocation persists a new location. When an address verifier is
// configured the address must pass it, and resolved coordinates are stored.
func (f *Facade) CreateLocation(ctx context.Context, loc domain.Location) (domain.Location, error) {
	if loc.BusinessID == "" {
		return domain.Location{}, domain.ValidationError{Field: "business_id", Reason: "must not be empty"}
	}
	if loc.Name == "" {
		return domain.Location{}, domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if f.verifier != nil && loc.Address != "" {
		check, err := f.verifier.Verify(ctx, loc.Address)
		if err != nil {
			return domain.Location{}, fmt.Errorf("verify address: %w", err)
		}
		if !check.Valid {
			return domain.Location{}, domain.ValidationError{Field: "address", Reason: "failed verification"}
		}
		if loc.Coordinates == nil {
			loc.Coordinates = check.Coordinates
		}
	}
	if loc.Verification.Status == "" {
		loc.Verification.Status = domain.VerificationPending
	}
	if loc.QRCodeIDs == nil {
		loc.QRCodeIDs = []string{}
	}
	now := f.now()
	loc.Settings.IsActive = true
	loc.Billing.IsActive = true
	loc.Billing.ActivatedAt = &now
	if err := f.createRecord(ctx, domain.EntityLocation, &loc); err != nil {
		return domain.Location{}, err
	}
	return loc, nil
}

// GetLocation returns the location or ErrNotFound.
func (f *Facade) GetLocation(ctx context.Context, id string) (domain.Location, error) {
	return getEntity[domain.Location](f, ctx, domain.EntityLocation, id)
}

// ListLocations returns locations, optionally restricted to one business.
func (f *Facade) ListLocations(ctx context.Context, businessID string) ([]domain.Location, error) {
	return listEntities[domain.Location](f, ctx, domain.EntityLocation, businessID)
}

// UpdateLocation applies a mutator to the stored location.
func (f *Facade) UpdateLocation(ctx context.Context, id string, mutate func(*domain.Location) error) (domain.Location, error) {
	return updateEntity[domain.Location](f, ctx, domain.EntityLocation, id, mutate)
}

// DeactivateLocation is the removal path for locations: the record survives
// for billing history with activity flags cleared.
func (f *Facade) DeactivateLocation(ctx context.Context, id string) (domain.Location, error) {
	return f.UpdateLocation(ctx, id, func(loc *domain.Location) error {
		now := f.now()
		loc.Settings.IsActive = false
		loc.Billing.IsActive = false
		loc.Billing.DeactivatedAt = &now
		return nil
	})
}

// --- menu items ---

// CreateMenuItem persists a new menu item.
func (f *Facade) CreateMenuItem(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	if item.BusinessID == "" {
		return domain.MenuItem{}, domain.ValidationError{Field: "business_id", Reason: "must not be empty"}
	}
	if item.Name == "" {
		return domain.MenuItem{}, domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if item.PriceCents < 0 {
		return domain.MenuItem{}, domain.ValidationError{Field: "price_cents", Reason: "must not be negative"}
	}
	if err := f.createRecord(ctx, domain.EntityMenuItem, &item); err != nil {
		return domain.MenuItem{}, err
	}
	return item, nil
}

// GetMenuItem returns the menu item or ErrNotFound.
func (f *Facade) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	return getEntity[domain.MenuItem](f, ctx, domain.EntityMenuItem, id)
}

// ListMenuItems returns menu items, optionally restricted to one business.
func (f *Facade) ListMenuItems(ctx context.Context, businessID string) ([]domain.MenuItem, error) {
	return listEntities[domain.MenuItem](f, ctx, domain.EntityMenuItem, businessID)
}

// UpdateMenuItem applies a mutator to the stored menu item.
func (f *Facade) UpdateMenuItem(ctx context.Context, id string, mutate func(*domain.MenuItem) error) (domain.MenuItem, error) {
	return updateEntity[domain.MenuItem](f, ctx, domain.EntityMenuItem, id, mutate)
}

// DeleteMenuItem removes the menu item.
func (f *Facade) DeleteMenuItem(ctx context.Context, id string) error {
	return f.deleteRecord(ctx, domain.EntityMenuItem, id)
}

// --- users ---

// CreateUser persists a new user.
func (f *Facade) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.BusinessID == "" {
		return domain.User{}, domain.ValidationError{Field: "business_id", Reason: "must not be empty"}
	}
	if user.Email == "" {
		return domain.User{}, domain.ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if err := f.createRecord(ctx, domain.EntityUser, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetUser returns the user or ErrNotFound.
func (f *Facade) GetUser(ctx context.Context, id string) (domain.User, error) {
	return getEntity[domain.User](f, ctx, domain.EntityUser, id)
}

// ListUsers returns users, optionally restricted to one business.
func (f *Facade) ListUsers(ctx context.Context, businessID string) ([]domain.User, error) {
	return listEntities[domain.User](f, ctx, domain.EntityUser, businessID)
}

// UpdateUser applies a mutator to the stored user.
func (f *Facade) UpdateUser(ctx context.Context, id string, mutate func(*domain.User) error) (domain.User, error) {
	return updateEntity[domain.User](f, ctx, domain.EntityUser, id, mutate)
}

// DeleteUser removes the user.
func (f *Facade) DeleteUser(ctx context.Context, id string) error {
	return f.deleteRecord(ctx, domain.EntityUser, id)
}

// --- fraud claims ---

// CreateFraudClaim persists a new claim with a generated human-readable claim
// number and notifies the collaborator without waiting on it.
func (f *Facade) CreateFraudClaim(ctx context.Context, claim domain.FraudClaim) (domain.FraudClaim, error) {
	if claim.BusinessID == "" {
		return domain.FraudClaim{}, domain.ValidationError{Field: "business_id", Reason: "must not be empty"}
	}
	if claim.Status == "" {
		claim.Status = "open"
	}
	if claim.Evidence.PhotoKeys == nil {
		claim.Evidence.PhotoKeys = []string{}
	}
	if claim.ClaimNumber == "" {
		claim.ClaimNumber = f.claimNumber()
	}
	if err := f.createRecord(ctx, domain.EntityFraudClaim, &claim); err != nil {
		return domain.FraudClaim{}, err
	}
	f.notifyClaimCreated(ctx, claim)
	return claim, nil
}

// claimNumber builds a FC-YYYYMMDD-XXXXXXXX reference from the current date
// and a fresh id suffix.
func (f *Facade) claimNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(f.newID(), "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("FC-%s-%s", f.now().Format("20060102"), suffix)
}

// GetFraudClaim returns the claim or ErrNotFound.
func (f *Facade) GetFraudClaim(ctx context.Context, id string) (domain.FraudClaim, error) {
	return getEntity[domain.FraudClaim](f, ctx, domain.EntityFraudClaim, id)
}

// ListFraudClaims returns claims, optionally restricted to one business.
func (f *Facade) ListFraudClaims(ctx context.Context, businessID string) ([]domain.FraudClaim, error) {
	return listEntities[domain.FraudClaim](f, ctx, domain.EntityFraudClaim, businessID)
}

// UpdateFraudClaim applies a mutator to the stored claim.
func (f *Facade) UpdateFraudClaim(ctx context.Context, id string, mutate func(*domain.FraudClaim) error) (domain.FraudClaim, error) {
	return updateEntity[domain.FraudClaim](f, ctx, domain.EntityFraudClaim, id, mutate)
}

// DeleteFraudClaim removes the claim record. Stored evidence blobs are kept;
// photo keys embed the claim id so they remain attributable.
func (f *Facade) DeleteFraudClaim(ctx context.Context, id string) error {
	return f.deleteRecord(ctx, domain.EntityFraudClaim, id)
}

// AttachEvidencePhoto streams a photo into the evidence store and records its
// key on the claim. Returns the stored blob key.
func (f *Facade) AttachEvidencePhoto(ctx context.Context, claimID, filename string, r io.Reader, contentType string) (string, error) {
	if f.evidence == nil {
		return "", fmt.Errorf("no evidence store configured")
	}
	if filename == "" {
		return "", domain.ValidationError{Field: "filename", Reason: "must not be empty"}
	}
	if _, err := f.GetFraudClaim(ctx, claimID); err != nil {
		return "", err
	}
	key := path.Join("claims", claimID, fmt.Sprintf("%d-%s", f.now().UnixMilli(), path.Base(filename)))
	if _, err := f.evidence.Put(ctx, key, r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"claim_id": claimID},
	}); err != nil {
		return "", fmt.Errorf("store evidence photo: %w", err)
	}
	if _, err := f.UpdateFraudClaim(ctx, claimID, func(c *domain.FraudClaim) error {
		c.Evidence.PhotoKeys = append(c.Evidence.PhotoKeys, key)
		return nil
	}); err != nil {
		return "", err
	}
	return key, nil
}

// EvidencePhotoURL produces a time-limited download URL for a stored photo
// when the evidence driver supports signing.
func (f *Facade) EvidencePhotoURL(ctx context.Context, key string) (string, error) {
	if f.evidence == nil {
		return "", fmt.Errorf("no evidence store configured")
	}
	return f.evidence.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET"})
}
