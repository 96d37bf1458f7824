//go:build integration

package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orderdesk/api/internal/database"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/metrics"
	"github.com/orderdesk/api/internal/service"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestIntegrationLifecycle runs intake, edits, finalize and archive deletion
// against a real PostgreSQL database.
func TestIntegrationLifecycle(t *testing.T) {
	ctx := context.Background()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// A second run must be a no-op.
	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	reg := metrics.NewRegistry()
	staging := service.NewStagingService(pool,
		func(db database.DBTX) service.StagingStore { return database.New(db) },
		logger.Nop(), reg)
	archive := service.NewArchiveService(pool,
		func(db database.DBTX) service.ArchiveStore { return database.New(db) },
		logger.Nop(), reg)

	// --- 1. Intake with a blank row in the middle ---
	created, err := staging.AddRows(ctx, []service.RawRow{
		{Date: "15/10/2026", User: "alice", Phone: "1", Title: "a", Link: "l", PageName: "p", UsdPrice: "100", Qty: "2", Deposit: "50"},
		{Date: "15/10/2026"},
		{Date: "15/10/2026", User: "bob", Phone: "2", Title: "b", Link: "l", PageName: "p", UsdPrice: "7.5", Qty: "1", Deposit: "0"},
		{Date: "15/10/2026", User: "carol", Phone: "3", Title: "c", Link: "l", PageName: "p", UsdPrice: "0", Qty: "3", Deposit: "0"},
	})
	if err != nil {
		t.Fatalf("add rows: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created: got %d, want 3", len(created))
	}
	if got := created[0].CustomerPrice.StringFixed(3); got != "161.780" {
		t.Fatalf("customerPrice: got %s, want 161.780", got)
	}

	// --- 2. Concurrent edits on one row serialise; the row stays consistent ---
	var wg sync.WaitGroup
	for i := int32(1); i <= 8; i++ {
		wg.Add(1)
		go func(qty int32) {
			defer wg.Done()
			if _, err := staging.UpdateRow(ctx, created[0].ID, service.RowPatch{Qty: &qty}); err != nil {
				t.Errorf("update qty %d: %v", qty, err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := staging.ListRows(ctx)
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	for _, r := range rows {
		fresh := r.Repriced()
		if !fresh.CustomerPrice.Equal(r.CustomerPrice) || !fresh.Remaining.Equal(r.Remaining) || !fresh.Profit.Equal(r.Profit) {
			t.Fatalf("row %d stored amounts disagree with recomputation", r.ID)
		}
	}

	// --- 3. Missing row ---
	qty := int32(1)
	if _, err := staging.UpdateRow(ctx, 999999, service.RowPatch{Qty: &qty}); !errors.Is(err, service.ErrRowNotFound) {
		t.Fatalf("update missing row: expected ErrRowNotFound, got %v", err)
	}

	// --- 4. Finalize ---
	batch, err := archive.Finalize(ctx, service.FinalizeRequest{OrderCode: "ORD-1", Rows: rows})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if left, _ := staging.ListRows(ctx); len(left) != 0 {
		t.Fatalf("staging after finalize: got %d rows, want 0", len(left))
	}

	batches, err := archive.ListBatches(ctx)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 || batches[0].ID != batch.ID || len(batches[0].Orders) != 3 {
		t.Fatalf("batches: got %+v", batches)
	}
	var wantQty int64
	for _, r := range rows {
		wantQty += int64(r.Qty)
	}
	if batches[0].Totals.Quantity != wantQty {
		t.Fatalf("totalQty: got %d, want %d", batches[0].Totals.Quantity, wantQty)
	}
	if got := batches[0].Totals.Profit.StringFixed(3); got != "27.499" {
		t.Fatalf("totalProfit: got %s, want 27.499", got)
	}

	// --- 5. Deleting the batch leaves new staging alone ---
	if _, err := staging.AddRows(ctx, []service.RawRow{
		{User: "dave", Phone: "4", Title: "d", Link: "l", PageName: "p", UsdPrice: "1", Qty: "1", Deposit: "0"},
	}); err != nil {
		t.Fatalf("stage after finalize: %v", err)
	}
	if err := archive.DeleteBatch(ctx, batch.ID); err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	if left, _ := staging.ListRows(ctx); len(left) != 1 {
		t.Fatalf("staging after batch delete: got %d rows, want 1", len(left))
	}
	if err := archive.DeleteBatch(ctx, batch.ID); !errors.Is(err, service.ErrBatchNotFound) {
		t.Fatalf("second delete: expected ErrBatchNotFound, got %v", err)
	}
}

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("orderdesk_test"),
		tcpostgres.WithUsername("orderdesk"),
		tcpostgres.WithPassword("orderdesk"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return connStr, cleanup
}
