package service

import (
	"context"
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

// DateLayout is the display format of OrderRow.Date.
const DateLayout = "02/01/2006"

// OrderRow is a staged order with its derived amounts.
type OrderRow struct {
	ID       int64
	Date     string
	User     string
	Phone    string
	Title    string
	Link     string
	PageName string

	UsdPrice      decimal.Decimal
	Qty           int32
	CustomerPrice decimal.Decimal
	Deposit       decimal.Decimal
	Remaining     decimal.Decimal
	Profit        decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Input returns the pricing inputs of the row.
func (r OrderRow) Input() pricing.Input {
	return pricing.Input{UnitPrice: r.UsdPrice, Quantity: r.Qty, Deposit: r.Deposit}
}

// Repriced returns a copy of r with normalized inputs and freshly computed
// derived amounts.
func (r OrderRow) Repriced() OrderRow {
	q := pricing.Price(r.Input())
	r.UsdPrice = q.UnitPrice
	r.Qty = q.Quantity
	r.Deposit = q.Deposit
	r.CustomerPrice = q.CustomerPrice
	r.Remaining = q.Remaining
	r.Profit = q.Profit
	return r
}

// RawRow is one row as submitted from the intake form. Numeric fields are
// kept as text and normalized with pricing.ParseAmount / ParseQuantity.
type RawRow struct {
	Date     string
	User     string
	Phone    string
	Title    string
	Link     string
	PageName string
	UsdPrice string
	Qty      string
	Deposit  string
}

// IsBlank reports whether every user-entered field is empty. The date is
// pre-filled by the form and does not count.
func (r RawRow) IsBlank() bool {
	for _, v := range []string{r.User, r.Phone, r.Title, r.Link, r.PageName, r.UsdPrice, r.Qty, r.Deposit} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// RowPatch is a partial update. Nil fields are left unchanged.
type RowPatch struct {
	Date     *string
	User     *string
	Phone    *string
	Title    *string
	Link     *string
	PageName *string
	UsdPrice *decimal.Decimal
	Qty      *int32
	Deposit  *decimal.Decimal
}

func (p RowPatch) apply(r OrderRow) OrderRow {
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.User != nil {
		r.User = *p.User
	}
	if p.Phone != nil {
		r.Phone = *p.Phone
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Link != nil {
		r.Link = *p.Link
	}
	if p.PageName != nil {
		r.PageName = *p.PageName
	}
	if p.UsdPrice != nil {
		r.UsdPrice = *p.UsdPrice
	}
	if p.Qty != nil {
		r.Qty = *p.Qty
	}
	if p.Deposit != nil {
		r.Deposit = *p.Deposit
	}
	return r
}

// StagingStore defines the DB methods needed for staged orders.
// Satisfied by *database.Queries (and its WithTx variant).
type StagingStore interface {
	CreateOrderTemp(ctx context.Context, arg database.CreateOrderTempParams) (database.OrdersTemp, error)
	ListOrdersTemp(ctx context.Context) ([]database.OrdersTemp, error)
	GetOrderTempForUpdate(ctx context.Context, id int64) (database.OrdersTemp, error)
	UpdateOrderTemp(ctx context.Context, arg database.UpdateOrderTempParams) (database.OrdersTemp, error)
	DeleteOrderTemp(ctx context.Context, id int64) (int64, error)
	DeleteAllOrdersTemp(ctx context.Context) (int64, error)
}

// NewStagingStore creates a StagingStore from a DBTX (pool or tx).
type NewStagingStore func(db database.DBTX) StagingStore

// StagingService owns the orders_temp lifecycle: intake, edits and deletes.
type StagingService struct {
	pool     Pool
	newStore NewStagingStore
	log      *logger.Logger
	metrics  *metrics.Registry
	now      func() time.Time
}

// NewStagingService creates a new StagingService.
func NewStagingService(pool Pool, newStore NewStagingStore, log *logger.Logger, reg *metrics.Registry) *StagingService {
	return &StagingService{pool: pool, newStore: newStore, log: log, metrics: reg, now: time.Now}
}

// AddRows prices and inserts the submitted rows in order within one
// transaction. Blank rows are skipped; if nothing is left ErrNoOrders is
// returned and nothing is written.
func (s *StagingService) AddRows(ctx context.Context, raw []RawRow) ([]OrderRow, error) {
	rows := make([]OrderRow, 0, len(raw))
	for _, r := range raw {
		if r.IsBlank() {
			continue
		}
		rows = append(rows, s.fromRaw(r))
	}
	skipped := len(raw) - len(rows)
	if skipped > 0 {
		s.metrics.RowsSkipped.Add(float64(skipped))
	}
	if len(rows) == 0 {
		return nil, ErrNoOrders
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	created := make([]OrderRow, 0, len(rows))
	for i, r := range rows {
		rec, err := store.CreateOrderTemp(ctx, createParams(r))
		if err != nil {
			return nil, fmt.Errorf("insert row %d: %w", i, err)
		}
		created = append(created, fromRecord(rec))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.metrics.RowsStaged.Add(float64(len(created)))
	s.log.InfoFields(ctx, "orders staged", map[string]any{"count": len(created), "skipped": skipped})
	return created, nil
}

func (s *StagingService) fromRaw(r RawRow) OrderRow {
	date := strings.TrimSpace(r.Date)
	if date == "" {
		date = s.now().Format(DateLayout)
	}
	row := OrderRow{
		Date:     date,
		User:     strings.TrimSpace(r.User),
		Phone:    strings.TrimSpace(r.Phone),
		Title:    strings.TrimSpace(r.Title),
		Link:     strings.TrimSpace(r.Link),
		PageName: strings.TrimSpace(r.PageName),
		UsdPrice: pricing.ParseAmount(r.UsdPrice),
		Qty:      pricing.ParseQuantity(r.Qty),
		Deposit:  pricing.ParseAmount(r.Deposit),
	}
	return row.Repriced()
}

// ListRows returns every staged row in ascending id order.
func (s *StagingService) ListRows(ctx context.Context) ([]OrderRow, error) {
	recs, err := s.newStore(s.pool).ListOrdersTemp(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	rows := make([]OrderRow, len(recs))
	for i, rec := range recs {
		rows[i] = fromRecord(rec)
	}
	return rows, nil
}

// UpdateRow merges patch into the row under a row lock, recomputes the
// derived amounts and persists the result.
func (s *StagingService) UpdateRow(ctx context.Context, id int64, patch RowPatch) (OrderRow, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return OrderRow{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	rec, err := store.GetOrderTempForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OrderRow{}, ErrRowNotFound
		}
		return OrderRow{}, fmt.Errorf("lock order: %w", err)
	}

	row := patch.apply(fromRecord(rec)).Repriced()

	updated, err := store.UpdateOrderTemp(ctx, updateParams(row))
	if err != nil {
		return OrderRow{}, fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return OrderRow{}, fmt.Errorf("commit tx: %w", err)
	}

	s.metrics.RowsUpdated.Inc()
	return fromRecord(updated), nil
}

// DeleteRow removes one staged row.
func (s *StagingService) DeleteRow(ctx context.Context, id int64) error {
	n, err := s.newStore(s.pool).DeleteOrderTemp(ctx, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n == 0 {
		return ErrRowNotFound
	}
	s.metrics.RowsDeleted.Inc()
	return nil
}

// ClearAll removes every staged row and returns how many were deleted.
func (s *StagingService) ClearAll(ctx context.Context) (int64, error) {
	n, err := s.newStore(s.pool).DeleteAllOrdersTemp(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear orders: %w", err)
	}
	s.metrics.RowsDeleted.Add(float64(n))
	s.log.InfoFields(ctx, "staging cleared", map[string]any{"deleted": n})
	return n, nil
}

func fromRecord(rec database.OrdersTemp) OrderRow {
	return OrderRow{
		ID:            rec.ID,
		Date:          rec.Date,
		User:          rec.UserName,
		Phone:         rec.Phone,
		Title:         rec.Title,
		Link:          rec.Link,
		PageName:      rec.PageName,
		UsdPrice:      numericToDecimal(rec.UsdPrice),
		Qty:           rec.Qty,
		CustomerPrice: numericToDecimal(rec.CustomerPrice),
		Deposit:       numericToDecimal(rec.Deposit),
		Remaining:     numericToDecimal(rec.Remaining),
		Profit:        numericToDecimal(rec.Profit),
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func createParams(r OrderRow) database.CreateOrderTempParams {
	return database.CreateOrderTempParams{
		Date:          r.Date,
		UserName:      r.User,
		Phone:         r.Phone,
		Title:         r.Title,
		Link:          r.Link,
		PageName:      r.PageName,
		UsdPrice:      decimalToNumeric(r.UsdPrice),
		Qty:           r.Qty,
		CustomerPrice: decimalToNumeric(r.CustomerPrice),
		Deposit:       decimalToNumeric(r.Deposit),
		Remaining:     decimalToNumeric(r.Remaining),
		Profit:        decimalToNumeric(r.Profit),
	}
}

func updateParams(r OrderRow) database.UpdateOrderTempParams {
	c := createParams(r)
	return database.UpdateOrderTempParams{
		ID:            r.ID,
		Date:          c.Date,
		UserName:      c.UserName,
		Phone:         c.Phone,
		Title:         c.Title,
		Link:          c.Link,
		PageName:      c.PageName,
		UsdPrice:      c.UsdPrice,
		Qty:           c.Qty,
		CustomerPrice: c.CustomerPrice,
		Deposit:       c.Deposit,
		Remaining:     c.Remaining,
		Profit:        c.Profit,
	}
}
