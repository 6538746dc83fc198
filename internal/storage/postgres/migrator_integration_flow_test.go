package postgres

import (
	"context"
	"errors"
	"testing"
	"time"
)

func requireSchemaVersion(t *testing.T, store *Store, wantVersion int64, wantCount int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	if version != wantVersion || count != wantCount {
		t.Fatalf("expected version=%d count=%d, got version=%d count=%d", wantVersion, wantCount, version, count)
	}
}

func TestMigrator_PostgresStepByStep(t *testing.T) {
	store := connectTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	requireSchemaVersion(t, store, 0, 0)

	if err := store.MigrateUp(ctx, 2); err != nil {
		t.Fatalf("migrate up 2: %v", err)
	}
	requireSchemaVersion(t, store, 2, 2)

	// Без колонки terminal_id outbox ещё в старой схеме.
	var hasTerminal bool
	if err := store.DB().QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'outbox_messages' AND column_name = 'terminal_id'
		)
	`).Scan(&hasTerminal); err != nil {
		t.Fatalf("inspect outbox columns: %v", err)
	}
	if hasTerminal {
		t.Fatal("terminal_id must appear only with version 3")
	}

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up rest: %v", err)
	}
	requireSchemaVersion(t, store, 3, 3)

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("repeated ensure schema: %v", err)
	}
	requireSchemaVersion(t, store, 3, 3)

	if err := store.MigrateDown(ctx, 0); err != nil {
		t.Fatalf("migrate down default: %v", err)
	}
	requireSchemaVersion(t, store, 2, 2)

	if err := store.MigrateDown(ctx, 5); err != nil {
		t.Fatalf("migrate down past zero: %v", err)
	}
	requireSchemaVersion(t, store, 0, 0)

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down on empty schema: %v", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("restore schema: %v", err)
	}
}

func TestMigrator_NilStore(t *testing.T) {
	var store *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := store.MigrateUp(ctx, 0); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("MigrateUp: expected errStoreNotInitialized, got %v", err)
	}
	if err := store.MigrateDown(ctx, 1); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("MigrateDown: expected errStoreNotInitialized, got %v", err)
	}
	if _, _, err := store.MigrationStatus(ctx); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("MigrationStatus: expected errStoreNotInitialized, got %v", err)
	}
	if _, err := store.ListMigrations(ctx); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("ListMigrations: expected errStoreNotInitialized, got %v", err)
	}
}

func TestMigrator_ListMigrations(t *testing.T) {
	store := migratedTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := store.ListMigrations(ctx)
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(infos))
	}
	for _, info := range infos {
		if !info.Applied {
			t.Fatalf("expected migration %d_%s applied", info.Version, info.Name)
		}
	}
}
