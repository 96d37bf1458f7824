package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/orderdesk/api/internal/database"
	"github.com/orderdesk/api/internal/pricing"
	"github.com/shopspring/decimal"
)

// Errors shared by the staging and archive services.
var (
	ErrRowNotFound       = errors.New("order not found")
	ErrBatchNotFound     = errors.New("batch not found")
	ErrOrderCodeRequired = errors.New("order code is required")
	ErrNoOrders          = errors.New("at least one order is required")
	ErrTransaction       = errors.New("transaction failed")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is what the services need from *pgxpool.Pool: transactions for
// multi-statement work and plain queries for reads.
type Pool interface {
	TxBeginner
	database.DBTX
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(pricing.Places))
	return n
}
