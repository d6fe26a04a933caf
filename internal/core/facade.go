// Package core implements the persistence facade, the order lifecycle
// manager, and the location usage ledger. The facade is the single entry
// point for every entity operation; it decides once per process which backend
// is active and routes every call through it with automatic per-call fallback.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ordercore/internal/blob"
	"ordercore/pkg/domain"
)

// BackendMode identifies which backend serves requests for the remainder of
// the process lifetime.
type BackendMode string

const (
	// ModeDurable routes operations through the durable backend adapter,
	// mirroring every success into the fallback store.
	ModeDurable BackendMode = "durable"
	// ModeFallback serves everything from the in-process fallback store.
	ModeFallback BackendMode = "fallback"
)

// DurableStore is the contract a durable backend adapter must satisfy: the
// four storage primitives plus the bounded initialization probe.
type DurableStore interface {
	domain.DocumentStore
	Probe(ctx context.Context) error
}

// Options configures facade initialization. The zero value yields a
// fallback-only facade backed by a fresh in-memory store.
type Options struct {
	// Durable is the constructed durable backend adapter; nil selects the
	// fallback store permanently.
	Durable DurableStore
	// Fallback overrides the in-memory fallback store, e.g. with the
	// sqlite-snapshotting wrapper.
	Fallback domain.DocumentStore
	// DisableDurable skips the durable backend regardless of Durable.
	DisableDurable bool
	// ForceFallback pins the facade to the fallback store (test/dev flag).
	ForceFallback bool

	Logger   *slog.Logger
	Notifier Notifier
	Verifier AddressVerifier
	Metrics  *Metrics
	// Evidence stores fraud-claim photo attachments.
	Evidence blob.Store
}

// Facade exposes the stable CRUD surface for every entity type, agnostic to
// which backend is actually serving requests.
type Facade struct {
	mode     BackendMode
	durable  DurableStore
	fallback domain.DocumentStore
	logger   *slog.Logger
	notifier Notifier
	verifier AddressVerifier
	metrics  *Metrics
	evidence blob.Store
	nowFn    func() time.Time
	newID    func() string
}

// Initialize resolves the backend mode exactly once and returns the facade.
// A failed probe is logged and permanently downgrades the process to the
// fallback store; it is never retried later. Per-call failures after
// initialization do not change the mode.
func Initialize(ctx context.Context, opts Options) *Facade {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = newMemoryFallback()
	}

	f := &Facade{
		mode:     ModeFallback,
		durable:  opts.Durable,
		fallback: fallback,
		logger:   logger,
		notifier: notifier,
		verifier: opts.Verifier,
		metrics:  opts.Metrics,
		evidence: opts.Evidence,
		nowFn:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:    uuid.NewString,
	}

	switch {
	case opts.DisableDurable:
		logger.Info("durable backend disabled by configuration, using fallback store")
	case opts.ForceFallback:
		logger.Info("fallback store forced by configuration")
	case opts.Durable == nil:
		logger.Info("no durable backend configured, using fallback store")
	default:
		if err := opts.Durable.Probe(ctx); err != nil {
			logger.Warn("durable backend probe failed, permanently downgrading to fallback store",
				slog.String("error", err.Error()))
		} else {
			f.mode = ModeDurable
			logger.Info("durable backend active")
		}
	}
	return f
}

// Mode reports the backend selected during initialization.
func (f *Facade) Mode() BackendMode { return f.mode }

func (f *Facade) now() time.Time { return f.nowFn() }

// perCallFallback logs and counts an individual durable-backend failure that
// is about to be serviced from the fallback store. The mode flag is not
// touched.
func (f *Facade) perCallFallback(op string, err error) {
	f.logger.Warn("durable backend call failed, serving from fallback store",
		slog.String("op", op),
		slog.String("error", err.Error()))
	f.metrics.observeFallbackCall()
}

// putDoc writes a document through the active backend. A durable success is
// mirrored into the fallback store after the durable write completes.
func (f *Facade) putDoc(ctx context.Context, table domain.Table, doc domain.Document) error {
	if f.mode == ModeDurable {
		err := f.durable.PutItem(ctx, table, doc)
		switch {
		case err == nil:
			return f.fallback.PutItem(ctx, table, doc)
		case domain.IsAdapterError(err):
			f.perCallFallback("put_item", err)
		default:
			return err
		}
	}
	return f.fallback.PutItem(ctx, table, doc)
}

// getDoc reads a document from the active backend, refreshing the fallback
// copy on a durable success.
func (f *Facade) getDoc(ctx context.Context, table domain.Table, id string) (domain.Document, error) {
	if f.mode == ModeDurable {
		doc, err := f.durable.GetItem(ctx, table, id)
		switch {
		case err == nil:
			if mirrorErr := f.fallback.PutItem(ctx, table, doc); mirrorErr != nil {
				return nil, mirrorErr
			}
			return doc, nil
		case domain.IsAdapterError(err):
			f.perCallFallback("get_item", err)
		default:
			return nil, err
		}
	}
	return f.fallback.GetItem(ctx, table, id)
}

// scanDocs lists documents from the active backend, refreshing fallback
// copies on a durable success.
func (f *Facade) scanDocs(ctx context.Context, table domain.Table, filter domain.ScanFilter) ([]domain.Document, error) {
	if f.mode == ModeDurable {
		docs, err := f.durable.ScanItems(ctx, table, filter)
		switch {
		case err == nil:
			for _, doc := range docs {
				if mirrorErr := f.fallback.PutItem(ctx, table, doc); mirrorErr != nil {
					return nil, mirrorErr
				}
			}
			return docs, nil
		case domain.IsAdapterError(err):
			f.perCallFallback("scan", err)
		default:
			return nil, err
		}
	}
	return f.fallback.ScanItems(ctx, table, filter)
}

// updateDoc merges a delta through the active backend, mirroring the merged
// record into the fallback store on a durable success.
func (f *Facade) updateDoc(ctx context.Context, table domain.Table, id string, delta domain.Document) (domain.Document, error) {
	if f.mode == ModeDurable {
		merged, err := f.durable.UpdateItem(ctx, table, id, delta)
		switch {
		case err == nil:
			if mirrorErr := f.fallback.PutItem(ctx, table, merged); mirrorErr != nil {
				return nil, mirrorErr
			}
			return merged, nil
		case domain.IsAdapterError(err):
			f.perCallFallback("update_item", err)
		default:
			return nil, err
		}
	}
	return f.fallback.UpdateItem(ctx, table, id, delta)
}

// deleteDoc removes a record from the active backend and from the fallback
// mirror.
func (f *Facade) deleteDoc(ctx context.Context, table domain.Table, id string) error {
	if f.mode == ModeDurable {
		err := f.durable.DeleteItem(ctx, table, id)
		switch {
		case err == nil:
			if mirrorErr := f.fallback.DeleteItem(ctx, table, id); mirrorErr != nil && !domain.IsNotFound(mirrorErr) {
				return mirrorErr
			}
			return nil
		case domain.IsAdapterError(err):
			f.perCallFallback("delete_item", err)
		default:
			return err
		}
	}
	return f.fallback.DeleteItem(ctx, table, id)
}

// notifyStatusChange fans out an order status change without waiting on the
// collaborator.
func (f *Facade) notifyStatusChange(ctx context.Context, order domain.Order) {
	go f.notifier.OrderStatusChanged(context.WithoutCancel(ctx), order)
}

func (f *Facade) notifyClaimCreated(ctx context.Context, claim domain.FraudClaim) {
	go f.notifier.FraudClaimCreated(context.WithoutCancel(ctx), claim)
}
