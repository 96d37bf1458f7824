package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderTempColumns = `id, date, user_name, phone, title, link, page_name, usd_price, qty, customer_price, deposit, remaining, profit, created_at, updated_at`

func scanOrderTemp(row interface{ Scan(dest ...any) error }, i *OrdersTemp) error {
	return row.Scan(
		&i.ID,
		&i.Date,
		&i.UserName,
		&i.Phone,
		&i.Title,
		&i.Link,
		&i.PageName,
		&i.UsdPrice,
		&i.Qty,
		&i.CustomerPrice,
		&i.Deposit,
		&i.Remaining,
		&i.Profit,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
}

const createOrderTemp = `-- name: CreateOrderTemp :one
INSERT INTO orders_temp (
    date, user_name, phone, title, link, page_name,
    usd_price, qty, customer_price, deposit, remaining, profit
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + orderTempColumns

type CreateOrderTempParams struct {
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
}

func (q *Queries) CreateOrderTemp(ctx context.Context, arg CreateOrderTempParams) (OrdersTemp, error) {
	row := q.db.QueryRow(ctx, createOrderTemp,
		arg.Date,
		arg.UserName,
		arg.Phone,
		arg.Title,
		arg.Link,
		arg.PageName,
		arg.UsdPrice,
		arg.Qty,
		arg.CustomerPrice,
		arg.Deposit,
		arg.Remaining,
		arg.Profit,
	)
	var i OrdersTemp
	err := scanOrderTemp(row, &i)
	return i, err
}

const listOrdersTemp = `-- name: ListOrdersTemp :many
SELECT ` + orderTempColumns + `
FROM orders_temp
ORDER BY id ASC`

func (q *Queries) ListOrdersTemp(ctx context.Context) ([]OrdersTemp, error) {
	rows, err := q.db.Query(ctx, listOrdersTemp)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrdersTemp{}
	for rows.Next() {
		var i OrdersTemp
		if err := scanOrderTemp(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getOrderTempForUpdate = `-- name: GetOrderTempForUpdate :one
SELECT ` + orderTempColumns + `
FROM orders_temp
WHERE id = $1
FOR UPDATE`

func (q *Queries) GetOrderTempForUpdate(ctx context.Context, id int64) (OrdersTemp, error) {
	row := q.db.QueryRow(ctx, getOrderTempForUpdate, id)
	var i OrdersTemp
	err := scanOrderTemp(row, &i)
	return i, err
}

const updateOrderTemp = `-- name: UpdateOrderTemp :one
UPDATE orders_temp SET
    date = $2,
    user_name = $3,
    phone = $4,
    title = $5,
    link = $6,
    page_name = $7,
    usd_price = $8,
    qty = $9,
    customer_price = $10,
    deposit = $11,
    remaining = $12,
    profit = $13,
    updated_at = now()
WHERE id = $1
RETURNING ` + orderTempColumns

type UpdateOrderTempParams struct {
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
}

func (q *Queries) UpdateOrderTemp(ctx context.Context, arg UpdateOrderTempParams) (OrdersTemp, error) {
	row := q.db.QueryRow(ctx, updateOrderTemp,
		arg.ID,
		arg.Date,
		arg.UserName,
		arg.Phone,
		arg.Title,
		arg.Link,
		arg.PageName,
		arg.UsdPrice,
		arg.Qty,
		arg.CustomerPrice,
		arg.Deposit,
		arg.Remaining,
		arg.Profit,
	)
	var i OrdersTemp
	err := scanOrderTemp(row, &i)
	return i, err
}

const deleteOrderTemp = `-- name: DeleteOrderTemp :execrows
DELETE FROM orders_temp WHERE id = $1`

func (q *Queries) DeleteOrderTemp(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.Exec(ctx, deleteOrderTemp, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteAllOrdersTemp = `-- name: DeleteAllOrdersTemp :execrows
DELETE FROM orders_temp`

func (q *Queries) DeleteAllOrdersTemp(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, deleteAllOrdersTemp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
