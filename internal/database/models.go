package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Archive struct {
	BatchID     int64          `json:"batch_id"`
	OrderCode   string         `json:"order_code"`
	CreatedAt   time.Time      `json:"created_at"`
	TotalUsd    pgtype.Numeric `json:"total_usd"`
	TotalQty    int64          `json:"total_qty"`
	TotalProfit pgtype.Numeric `json:"total_profit"`
	Orders      []byte         `json:"orders"`
}

type OrdersTemp struct {
	ID            int64          `json:"id"`
	Date          string         `json:"date"`
	UserName      string         `json:"user_name"`
	Phone         string         `json:"phone"`
	Title         string         `json:"title"`
	Link          string         `json:"link"`
	PageName      string         `json:"page_name"`
	UsdPrice      pgtype.Numeric `json:"usd_price"`
	Qty           int32          `json:"qty"`
	CustomerPrice pgtype.Numeric `json:"customer_price"`
	Deposit       pgtype.Numeric `json:"deposit"`
	Remaining     pgtype.Numeric `json:"remaining"`
	Profit        pgtype.Numeric `json:"profit"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
