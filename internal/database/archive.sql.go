package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const archiveColumns = `batch_id, order_code, created_at, total_usd, total_qty, total_profit, orders`

func scanArchive(row interface{ Scan(dest ...any) error }, i *Archive) error {
	return row.Scan(
		&i.BatchID,
		&i.OrderCode,
		&i.CreatedAt,
		&i.TotalUsd,
		&i.TotalQty,
		&i.TotalProfit,
		&i.Orders,
	)
}

const createArchiveBatch = `-- name: CreateArchiveBatch :one
INSERT INTO archive (order_code, created_at, total_usd, total_qty, total_profit, orders)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + archiveColumns

type CreateArchiveBatchParams struct {
	OrderCode   string         `json:"order_code"`
	CreatedAt   time.Time      `json:"created_at"`
	TotalUsd    pgtype.Numeric `json:"total_usd"`
	TotalQty    int64          `json:"total_qty"`
	TotalProfit pgtype.Numeric `json:"total_profit"`
	Orders      []byte         `json:"orders"`
}

func (q *Queries) CreateArchiveBatch(ctx context.Context, arg CreateArchiveBatchParams) (Archive, error) {
	row := q.db.QueryRow(ctx, createArchiveBatch,
		arg.OrderCode,
		arg.CreatedAt,
		arg.TotalUsd,
		arg.TotalQty,
		arg.TotalProfit,
		arg.Orders,
	)
	var i Archive
	err := scanArchive(row, &i)
	return i, err
}

const listArchiveBatches = `-- name: ListArchiveBatches :many
SELECT ` + archiveColumns + `
FROM archive
ORDER BY batch_id DESC`

func (q *Queries) ListArchiveBatches(ctx context.Context) ([]Archive, error) {
	rows, err := q.db.Query(ctx, listArchiveBatches)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Archive{}
	for rows.Next() {
		var i Archive
		if err := scanArchive(rows, &i); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getArchiveBatch = `-- name: GetArchiveBatch :one
SELECT ` + archiveColumns + `
FROM archive
WHERE batch_id = $1`

func (q *Queries) GetArchiveBatch(ctx context.Context, batchID int64) (Archive, error) {
	row := q.db.QueryRow(ctx, getArchiveBatch, batchID)
	var i Archive
	err := scanArchive(row, &i)
	return i, err
}

const deleteArchiveBatch = `-- name: DeleteArchiveBatch :execrows
DELETE FROM archive WHERE batch_id = $1`

func (q *Queries) DeleteArchiveBatch(ctx context.Context, batchID int64) (int64, error) {
	result, err := q.db.Exec(ctx, deleteArchiveBatch, batchID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
