package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/orderdesk/api/internal/database"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/metrics"
	"github.com/orderdesk/api/internal/pricing"
	"github.com/shopspring/decimal"
)

// ArchiveBatch is one finalized group of orders.
type ArchiveBatch struct {
	ID        int64
	OrderCode string
	CreatedAt time.Time
	Totals    pricing.Totals
	Orders    []OrderRow
}

// FinalizeRequest is the input to Finalize. Totals, when set, are the
// client's own sums; they are checked but never stored.
type FinalizeRequest struct {
	OrderCode string
	Rows      []OrderRow
	Totals    *pricing.Totals
}

// ArchiveStore defines the DB methods needed for archive batches.
// Satisfied by *database.Queries (and its WithTx variant).
type ArchiveStore interface {
	CreateArchiveBatch(ctx context.Context, arg database.CreateArchiveBatchParams) (database.Archive, error)
	ListArchiveBatches(ctx context.Context) ([]database.Archive, error)
	GetArchiveBatch(ctx context.Context, batchID int64) (database.Archive, error)
	DeleteArchiveBatch(ctx context.Context, batchID int64) (int64, error)
	DeleteAllOrdersTemp(ctx context.Context) (int64, error)
}

// NewArchiveStore creates an ArchiveStore from a DBTX (pool or tx).
type NewArchiveStore func(db database.DBTX) ArchiveStore

// ArchiveService finalizes staged orders into batches and manages the
// resulting archive.
type ArchiveService struct {
	pool     Pool
	newStore NewArchiveStore
	log      *logger.Logger
	metrics  *metrics.Registry
	now      func() time.Time
}

// NewArchiveService creates a new ArchiveService.
func NewArchiveService(pool Pool, newStore NewArchiveStore, log *logger.Logger, reg *metrics.Registry) *ArchiveService {
	return &ArchiveService{pool: pool, newStore: newStore, log: log, metrics: reg, now: time.Now}
}

// Finalize reprices the submitted rows, stores them as a new batch with
// server-computed totals and empties staging, all in one transaction.
func (s *ArchiveService) Finalize(ctx context.Context, req FinalizeRequest) (ArchiveBatch, error) {
	started := time.Now()

	code := strings.TrimSpace(req.OrderCode)
	if code == "" {
		s.metrics.ObserveFinalize(metrics.ResultRejected, started)
		return ArchiveBatch{}, ErrOrderCodeRequired
	}
	if len(req.Rows) == 0 {
		s.metrics.ObserveFinalize(metrics.ResultRejected, started)
		return ArchiveBatch{}, ErrNoOrders
	}

	rows := make([]OrderRow, len(req.Rows))
	quotes := make([]pricing.Quote, len(req.Rows))
	for i, r := range req.Rows {
		rows[i] = r.Repriced()
		quotes[i] = pricing.Price(rows[i].Input())
	}
	totals := pricing.Sum(quotes)
	if !totals.InRange() {
		s.metrics.ObserveFinalize(metrics.ResultRejected, started)
		return ArchiveBatch{}, fmt.Errorf("batch totals: %w", pricing.ErrAmountOutOfRange)
	}

	if req.Totals != nil && !req.Totals.Equal(totals) {
		s.log.WarnFields(ctx, "client totals disagree with server totals", map[string]any{
			"order_code":    code,
			"client_usd":    req.Totals.USD.StringFixed(pricing.Places),
			"server_usd":    totals.USD.StringFixed(pricing.Places),
			"client_qty":    req.Totals.Quantity,
			"server_qty":    totals.Quantity,
			"client_profit": req.Totals.Profit.StringFixed(pricing.Places),
			"server_profit": totals.Profit.StringFixed(pricing.Places),
		})
	}

	snapshot, err := encodeSnapshot(rows)
	if err != nil {
		s.metrics.ObserveFinalize(metrics.ResultFailed, started)
		return ArchiveBatch{}, fmt.Errorf("encode snapshot: %w", err)
	}

	rec, cleared, err := s.finalizeTx(ctx, database.CreateArchiveBatchParams{
		OrderCode:   code,
		CreatedAt:   s.now().UTC(),
		TotalUsd:    decimalToNumeric(totals.USD),
		TotalQty:    totals.Quantity,
		TotalProfit: decimalToNumeric(totals.Profit),
		Orders:      snapshot,
	})
	if err != nil {
		s.metrics.ObserveFinalize(metrics.ResultFailed, started)
		s.log.Error(ctx, "finalize failed", err)
		return ArchiveBatch{}, fmt.Errorf("%w: %w", ErrTransaction, err)
	}

	s.metrics.ObserveFinalize(metrics.ResultOK, started)
	s.log.InfoFields(ctx, "orders finalized", map[string]any{
		"batch_id":   rec.BatchID,
		"order_code": code,
		"orders":     len(rows),
		"cleared":    cleared,
	})

	return ArchiveBatch{
		ID:        rec.BatchID,
		OrderCode: rec.OrderCode,
		CreatedAt: rec.CreatedAt,
		Totals:    totals,
		Orders:    rows,
	}, nil
}

func (s *ArchiveService) finalizeTx(ctx context.Context, arg database.CreateArchiveBatchParams) (database.Archive, int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Archive{}, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	rec, err := store.CreateArchiveBatch(ctx, arg)
	if err != nil {
		return database.Archive{}, 0, fmt.Errorf("insert batch: %w", err)
	}

	cleared, err := store.DeleteAllOrdersTemp(ctx)
	if err != nil {
		return database.Archive{}, 0, fmt.Errorf("clear staging: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Archive{}, 0, fmt.Errorf("commit tx: %w", err)
	}
	return rec, cleared, nil
}

// ListBatches returns every batch newest first, snapshots included.
func (s *ArchiveService) ListBatches(ctx context.Context) ([]ArchiveBatch, error) {
	recs, err := s.newStore(s.pool).ListArchiveBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	batches := make([]ArchiveBatch, len(recs))
	for i, rec := range recs {
		b, err := batchFromRecord(rec)
		if err != nil {
			return nil, err
		}
		batches[i] = b
	}
	return batches, nil
}

// GetBatch returns one batch by id.
func (s *ArchiveService) GetBatch(ctx context.Context, id int64) (ArchiveBatch, error) {
	rec, err := s.newStore(s.pool).GetArchiveBatch(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ArchiveBatch{}, ErrBatchNotFound
		}
		return ArchiveBatch{}, fmt.Errorf("get batch: %w", err)
	}
	return batchFromRecord(rec)
}

// DeleteBatch removes a batch and its snapshots. Staging is not touched.
func (s *ArchiveService) DeleteBatch(ctx context.Context, id int64) error {
	n, err := s.newStore(s.pool).DeleteArchiveBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if n == 0 {
		return ErrBatchNotFound
	}
	s.metrics.BatchesDeleted.Inc()
	s.log.InfoFields(ctx, "batch deleted", map[string]any{"batch_id": id})
	return nil
}

func batchFromRecord(rec database.Archive) (ArchiveBatch, error) {
	orders, err := decodeSnapshot(rec.Orders)
	if err != nil {
		return ArchiveBatch{}, fmt.Errorf("decode batch %d: %w", rec.BatchID, err)
	}
	return ArchiveBatch{
		ID:        rec.BatchID,
		OrderCode: rec.OrderCode,
		CreatedAt: rec.CreatedAt,
		Totals: pricing.Totals{
			USD:      numericToDecimal(rec.TotalUsd),
			Quantity: rec.TotalQty,
			Profit:   numericToDecimal(rec.TotalProfit),
		},
		Orders: orders,
	}, nil
}

// snapshotRow is the JSONB shape of an archived order.
type snapshotRow struct {
	ID            int64       `json:"id"`
	Date          string      `json:"date"`
	User          string      `json:"user"`
	Phone         string      `json:"phone"`
	Title         string      `json:"title"`
	Link          string      `json:"link"`
	PageName      string      `json:"pageName"`
	UsdPrice      json.Number `json:"usdPrice"`
	Qty           int32       `json:"qty"`
	CustomerPrice json.Number `json:"customerPrice"`
	Deposit       json.Number `json:"deposit"`
	Remaining     json.Number `json:"remaining"`
	Profit        json.Number `json:"profit"`
	CreatedAt     *time.Time  `json:"createdAt,omitempty"`
}

func encodeSnapshot(rows []OrderRow) ([]byte, error) {
	out := make([]snapshotRow, len(rows))
	for i, r := range rows {
		out[i] = snapshotRow{
			ID:            r.ID,
			Date:          r.Date,
			User:          r.User,
			Phone:         r.Phone,
			Title:         r.Title,
			Link:          r.Link,
			PageName:      r.PageName,
			UsdPrice:      fixed(r.UsdPrice),
			Qty:           r.Qty,
			CustomerPrice: fixed(r.CustomerPrice),
			Deposit:       fixed(r.Deposit),
			Remaining:     fixed(r.Remaining),
			Profit:        fixed(r.Profit),
		}
		if !r.CreatedAt.IsZero() {
			t := r.CreatedAt
			out[i].CreatedAt = &t
		}
	}
	return json.Marshal(out)
}

func decodeSnapshot(data []byte) ([]OrderRow, error) {
	var in []snapshotRow
	if len(data) > 0 {
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, err
		}
	}
	rows := make([]OrderRow, len(in))
	for i, s := range in {
		rows[i] = OrderRow{
			ID:            s.ID,
			Date:          s.Date,
			User:          s.User,
			Phone:         s.Phone,
			Title:         s.Title,
			Link:          s.Link,
			PageName:      s.PageName,
			UsdPrice:      unfixed(s.UsdPrice),
			Qty:           s.Qty,
			CustomerPrice: unfixed(s.CustomerPrice),
			Deposit:       unfixed(s.Deposit),
			Remaining:     unfixed(s.Remaining),
			Profit:        unfixed(s.Profit),
		}
		if s.CreatedAt != nil {
			rows[i].CreatedAt = *s.CreatedAt
		}
	}
	return rows, nil
}

func fixed(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(pricing.Places))
}

func unfixed(n json.Number) decimal.Decimal {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
