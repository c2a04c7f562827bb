package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"moldline/internal/domain"
)

// ListActiveMolds returns active molds ordered by ID with their product
// lists in declared order.
func (r Repo) ListActiveMolds(ctx context.Context) ([]domain.Mold, error) {
	return r.listMolds(ctx, true)
}

// ListMolds returns every mold, active or not.
func (r Repo) ListMolds(ctx context.Context) ([]domain.Mold, error) {
	return r.listMolds(ctx, false)
}

func (r Repo) listMolds(ctx context.Context, activeOnly bool) ([]domain.Mold, error) {
	query := `SELECT m.id,m.name,m.multiplier,m.active,COALESCE(p.product,'') FROM molds m LEFT JOIN mold_products p ON p.mold_id=m.id`
	if activeOnly {
		query += ` WHERE m.active=1`
	}
	query += ` ORDER BY m.id, p.position`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mold
	for rows.Next() {
		var (
			m       domain.Mold
			active  int
			product string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Multiplier, &active, &product); err != nil {
			return nil, err
		}
		m.Active = active == 1
		if n := len(res); n > 0 && res[n-1].ID == m.ID {
			if product != "" {
				res[n-1].Products = append(res[n-1].Products, product)
			}
			continue
		}
		m.Products = []string{}
		if product != "" {
			m.Products = append(m.Products, product)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// UpsertMoldTx replaces a mold and its product list.
func (r Repo) UpsertMoldTx(ctx context.Context, tx *sql.Tx, m domain.Mold) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO molds(id,name,multiplier,active) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, multiplier=excluded.multiplier, active=excluded.active`,
		m.ID, m.Name, m.Multiplier, boolInt(m.Active)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mold_products WHERE mold_id=?`, m.ID); err != nil {
		return err
	}
	for i, p := range m.Products {
		if _, err := tx.ExecContext(ctx, `INSERT INTO mold_products(mold_id,position,product) VALUES (?,?,?)`, m.ID, i, p); err != nil {
			return err
		}
	}
	return nil
}

// ListActiveWorkers returns active workers of a department (case-insensitive),
// or of every department when department is empty.
func (r Repo) ListActiveWorkers(ctx context.Context, department string) ([]domain.Worker, error) {
	query := `SELECT id,name,department,rate,hours_per_day,active FROM workers WHERE active=1`
	var args []any
	if department != "" {
		query += ` AND lower(department)=lower(?)`
		args = append(args, department)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Worker
	for rows.Next() {
		var (
			w           domain.Worker
			rate, hours string
			active      int
		)
		err := rows.Scan(&w.ID, &w.Name, &w.Department, &rate, &hours, &active)
		if err != nil {
			return nil, err
		}
		if w.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("worker %s: rate: %w", w.ID, err)
		}
		if w.HoursPerDay, err = decimal.NewFromString(hours); err != nil {
			return nil, fmt.Errorf("worker %s: hours_per_day: %w", w.ID, err)
		}
		w.Active = active == 1
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) UpsertWorkerTx(ctx context.Context, tx *sql.Tx, w domain.Worker) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workers(id,name,department,rate,hours_per_day,active) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, department=excluded.department, rate=excluded.rate, hours_per_day=excluded.hours_per_day, active=excluded.active`,
		w.ID, w.Name, w.Department, w.Rate.String(), w.HoursPerDay.String(), boolInt(w.Active))
	return err
}
