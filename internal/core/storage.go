package core

import (
	"context"
	"fmt"
	"os"

	"ordercore/internal/infra/persistence/dynamo"
	"ordercore/internal/infra/persistence/memory"
	"ordercore/internal/infra/persistence/postgres"
	"ordercore/internal/infra/persistence/sqlite"
	"ordercore/pkg/domain"
)

// DurableDriver identifies a durable backend adapter implementation.
type DurableDriver string

// FallbackDriver identifies a fallback store implementation.
type FallbackDriver string

const (
	// DurableDynamo is the DynamoDB table-store adapter (default).
	DurableDynamo DurableDriver = "dynamo"
	// DurablePostgres is the PostgreSQL JSONB record-store adapter.
	DurablePostgres DurableDriver = "postgres"
	// DurableNone disables the durable backend entirely.
	DurableNone DurableDriver = "none"

	// FallbackMemory keeps fallback state in process memory only (default).
	FallbackMemory FallbackDriver = "memory"
	// FallbackSQLite snapshots fallback state to an embedded sqlite file.
	FallbackSQLite FallbackDriver = "sqlite"
)

func newMemoryFallback() domain.DocumentStore { return memory.NewStore() }

// OpenDurableStore constructs the durable backend adapter named by driver.
// Construction errors here are reported, not fatal: callers pass a nil store
// to Initialize and the facade runs on the fallback store.
//
//	ORDERCORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	(DynamoDB variables documented in the dynamo package)
func OpenDurableStore(ctx context.Context, driver DurableDriver) (DurableStore, error) {
	switch driver {
	case DurableDynamo, "":
		store, err := dynamo.OpenFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DurablePostgres:
		dsn := os.Getenv("ORDERCORE_POSTGRES_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("ORDERCORE_POSTGRES_DSN required for postgres driver")
		}
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DurableNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown durable driver %q", driver)
	}
}

// OpenFallbackStore constructs the fallback store named by driver. Unlike the
// durable side, a fallback construction failure is fatal: the facade cannot
// run without one.
//
//	ORDERCORE_SQLITE_PATH: path to sqlite file when driver=sqlite
func OpenFallbackStore(driver FallbackDriver) (domain.DocumentStore, error) {
	switch driver {
	case FallbackMemory, "":
		return memory.NewStore(), nil
	case FallbackSQLite:
		store, err := sqlite.NewStore(os.Getenv("ORDERCORE_SQLITE_PATH"))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown fallback driver %q", driver)
	}
}
