package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"moldline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const orderColumns = `id,product,order_date,COALESCE(due_date,'') AS due_date,COALESCE(features_json,'') AS features_json,stage,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                 domain.Order
		orderDate, dueStr string
	)
	if err := row.Scan(&o.ID, &o.Product, &orderDate, &dueStr, &o.FeaturesJSON, &o.Stage, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return o, err
	}
	d, err := time.Parse(domain.DateLayout, orderDate)
	if err != nil {
		return o, fmt.Errorf("order %s: order_date: %w", o.ID, err)
	}
	o.OrderDate = d
	if dueStr != "" {
		due, err := time.Parse(domain.DateLayout, dueStr)
		if err != nil {
			return o, fmt.Errorf("order %s: due_date: %w", o.ID, err)
		}
		o.DueDate = &due
	}
	return o, nil
}

func queryOrders(ctx context.Context, q querier, query string, args ...any) ([]domain.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ListBacklog returns orders not yet assigned to a production stage, in
// insertion order.
func (r Repo) ListBacklog(ctx context.Context) ([]domain.Order, error) {
	return queryOrders(ctx, r.DB, `SELECT `+orderColumns+` FROM orders WHERE stage='' ORDER BY created_at, id`)
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return getOrder(ctx, r.DB, id)
}

func (r Repo) GetOrderTx(ctx context.Context, tx *sql.Tx, id string) (domain.Order, error) {
	return getOrder(ctx, tx, id)
}

func getOrder(ctx context.Context, q querier, id string) (domain.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

// UpsertOrderTx inserts an order or refreshes its product, dates and
// features. The stage is left alone on update.
func (r Repo) UpsertOrderTx(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	var due any
	if o.DueDate != nil {
		due = o.DueDate.Format(domain.DateLayout)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO orders(id,product,order_date,due_date,features_json,stage,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET product=excluded.product, order_date=excluded.order_date, due_date=excluded.due_date, features_json=excluded.features_json, updated_at=excluded.updated_at`,
		o.ID, o.Product, o.OrderDate.Format(domain.DateLayout), due, nullable(o.FeaturesJSON), o.Stage, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) UpdateOrderStageTx(ctx context.Context, tx *sql.Tx, id, stage, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET stage=?, updated_at=? WHERE id=?`, stage, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func whereClause(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}
