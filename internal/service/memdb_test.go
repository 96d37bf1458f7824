package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/orderdesk/api/internal/database"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/metrics"
	"github.com/shopspring/decimal"
)

// memState is the committed content of the fake database.
type memState struct {
	nextOrderID int64
	orders      []database.OrdersTemp
	nextBatchID int64
	batches     []database.Archive
}

func (s memState) clone() memState {
	c := s
	c.orders = append([]database.OrdersTemp(nil), s.orders...)
	c.batches = append([]database.Archive(nil), s.batches...)
	return c
}

type fault struct {
	call int // 1-based; 0 fails every call
	err  error
}

// memDB is an in-memory stand-in for *pgxpool.Pool. Transactions work on a
// private copy of the state that replaces the committed state on Commit.
type memDB struct {
	mu        sync.Mutex
	state     memState
	now       time.Time
	faults    map[string]fault
	calls     map[string]int
	begins    int
	commits   int
	rollbacks int
	beginErr  error
	commitErr error
}

func newMemDB() *memDB {
	return &memDB{
		now:    time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
		faults: make(map[string]fault),
		calls:  make(map[string]int),
	}
}

func (m *memDB) failOn(method string, call int, err error) {
	m.faults[method] = fault{call: call, err: err}
}

func (m *memDB) check(method string) error {
	m.calls[method]++
	f, ok := m.faults[method]
	if !ok {
		return nil
	}
	if f.call == 0 || f.call == m.calls[method] {
		return f.err
	}
	return nil
}

func (m *memDB) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memDB) Begin(ctx context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begins++
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &memTx{db: m, state: m.state.clone()}, nil
}

func (m *memDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *memDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *memDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("not implemented")
}

// memTx implements pgx.Tx with only the methods we need.
type memTx struct {
	db    *memDB
	state memState
	done  bool
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }

func (t *memTx) Commit(ctx context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if t.db.commitErr != nil {
		t.db.rollbacks++
		return t.db.commitErr
	}
	t.db.state = t.state
	t.db.commits++
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.rollbacks++
	return nil
}

func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *memTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *memTx) Conn() *pgx.Conn { panic("not implemented") }

// memStore serves both StagingStore and ArchiveStore over either the
// committed state or a transaction's copy.
type memStore struct {
	db    *memDB
	state *memState
}

func memStoreFor(db database.DBTX) *memStore {
	switch v := db.(type) {
	case *memTx:
		return &memStore{db: v.db, state: &v.state}
	case *memDB:
		return &memStore{db: v, state: &v.state}
	}
	panic("unexpected DBTX")
}

func (s *memStore) CreateOrderTemp(ctx context.Context, arg database.CreateOrderTempParams) (database.OrdersTemp, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("CreateOrderTemp"); err != nil {
		return database.OrdersTemp{}, err
	}
	s.state.nextOrderID++
	rec := database.OrdersTemp{
		ID:            s.state.nextOrderID,
		Date:          arg.Date,
		UserName:      arg.UserName,
		Phone:         arg.Phone,
		Title:         arg.Title,
		Link:          arg.Link,
		PageName:      arg.PageName,
		UsdPrice:      arg.UsdPrice,
		Qty:           arg.Qty,
		CustomerPrice: arg.CustomerPrice,
		Deposit:       arg.Deposit,
		Remaining:     arg.Remaining,
		Profit:        arg.Profit,
		CreatedAt:     s.db.now,
		UpdatedAt:     s.db.now,
	}
	s.state.orders = append(s.state.orders, rec)
	return rec, nil
}

func (s *memStore) ListOrdersTemp(ctx context.Context) ([]database.OrdersTemp, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("ListOrdersTemp"); err != nil {
		return nil, err
	}
	return append([]database.OrdersTemp{}, s.state.orders...), nil
}

func (s *memStore) GetOrderTempForUpdate(ctx context.Context, id int64) (database.OrdersTemp, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("GetOrderTempForUpdate"); err != nil {
		return database.OrdersTemp{}, err
	}
	for _, rec := range s.state.orders {
		if rec.ID == id {
			return rec, nil
		}
	}
	return database.OrdersTemp{}, pgx.ErrNoRows
}

func (s *memStore) UpdateOrderTemp(ctx context.Context, arg database.UpdateOrderTempParams) (database.OrdersTemp, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("UpdateOrderTemp"); err != nil {
		return database.OrdersTemp{}, err
	}
	for i, rec := range s.state.orders {
		if rec.ID != arg.ID {
			continue
		}
		rec.Date = arg.Date
		rec.UserName = arg.UserName
		rec.Phone = arg.Phone
		rec.Title = arg.Title
		rec.Link = arg.Link
		rec.PageName = arg.PageName
		rec.UsdPrice = arg.UsdPrice
		rec.Qty = arg.Qty
		rec.CustomerPrice = arg.CustomerPrice
		rec.Deposit = arg.Deposit
		rec.Remaining = arg.Remaining
		rec.Profit = arg.Profit
		rec.UpdatedAt = s.db.now.Add(time.Minute)
		s.state.orders[i] = rec
		return rec, nil
	}
	return database.OrdersTemp{}, pgx.ErrNoRows
}

func (s *memStore) DeleteOrderTemp(ctx context.Context, id int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("DeleteOrderTemp"); err != nil {
		return 0, err
	}
	for i, rec := range s.state.orders {
		if rec.ID == id {
			s.state.orders = append(s.state.orders[:i:i], s.state.orders[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *memStore) DeleteAllOrdersTemp(ctx context.Context) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("DeleteAllOrdersTemp"); err != nil {
		return 0, err
	}
	n := int64(len(s.state.orders))
	s.state.orders = nil
	return n, nil
}

func (s *memStore) CreateArchiveBatch(ctx context.Context, arg database.CreateArchiveBatchParams) (database.Archive, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("CreateArchiveBatch"); err != nil {
		return database.Archive{}, err
	}
	s.state.nextBatchID++
	rec := database.Archive{
		BatchID:     s.state.nextBatchID,
		OrderCode:   arg.OrderCode,
		CreatedAt:   arg.CreatedAt,
		TotalUsd:    arg.TotalUsd,
		TotalQty:    arg.TotalQty,
		TotalProfit: arg.TotalProfit,
		Orders:      arg.Orders,
	}
	s.state.batches = append(s.state.batches, rec)
	return rec, nil
}

func (s *memStore) ListArchiveBatches(ctx context.Context) ([]database.Archive, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("ListArchiveBatches"); err != nil {
		return nil, err
	}
	out := make([]database.Archive, 0, len(s.state.batches))
	for i := len(s.state.batches) - 1; i >= 0; i-- {
		out = append(out, s.state.batches[i])
	}
	return out, nil
}

func (s *memStore) GetArchiveBatch(ctx context.Context, batchID int64) (database.Archive, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("GetArchiveBatch"); err != nil {
		return database.Archive{}, err
	}
	for _, rec := range s.state.batches {
		if rec.BatchID == batchID {
			return rec, nil
		}
	}
	return database.Archive{}, pgx.ErrNoRows
}

func (s *memStore) DeleteArchiveBatch(ctx context.Context, batchID int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check("DeleteArchiveBatch"); err != nil {
		return 0, err
	}
	for i, rec := range s.state.batches {
		if rec.BatchID == batchID {
			s.state.batches = append(s.state.batches[:i:i], s.state.batches[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// --- test fixtures ---

type fixture struct {
	db      *memDB
	staging *StagingService
	archive *ArchiveService
	metrics *metrics.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, logger.Nop())
}

func newFixtureWithLogger(t *testing.T, log *logger.Logger) *fixture {
	t.Helper()
	db := newMemDB()
	reg := metrics.NewRegistry()

	staging := NewStagingService(db, func(x database.DBTX) StagingStore { return memStoreFor(x) }, log, reg)
	staging.now = func() time.Time { return db.now }

	archive := NewArchiveService(db, func(x database.DBTX) ArchiveStore { return memStoreFor(x) }, log, reg)
	archive.now = func() time.Time { return db.now }

	return &fixture{db: db, staging: staging, archive: archive, metrics: reg}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rawRow(user, price, qty, deposit string) RawRow {
	return RawRow{
		Date:     "15/10/2026",
		User:     user,
		Phone:    "0812",
		Title:    "Sneakers",
		Link:     "https://shop.example/item",
		PageName: "Main page",
		UsdPrice: price,
		Qty:      qty,
		Deposit:  deposit,
	}
}
