package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"moldline/internal/domain"
)

// ClearScheduleTx removes the allocations of scope whose orders are still in
// the backlog. Allocations of orders that already moved on are kept.
func (r Repo) ClearScheduleTx(ctx context.Context, tx *sql.Tx, scope string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM schedule_allocations WHERE scope=? AND order_id IN (SELECT id FROM orders WHERE stage='')`, scope)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) InsertAllocationTx(ctx context.Context, tx *sql.Tx, a domain.Allocation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO schedule_allocations(order_id,scope,mold_id,mold_name,work_day,product,heavy_fill,lop_adjust,lop_length,priority,run_id) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.OrderID, a.Scope, a.MoldID, a.MoldName, a.WorkDay.Format(domain.DateLayout), a.Product,
		boolInt(a.HeavyFill), boolInt(a.LOPAdjust), nullable(a.LOPLength), a.Priority, a.RunID)
	return err
}

// ListAllocations returns the persisted schedule of scope, optionally bounded
// by inclusive from/to dates (YYYY-MM-DD). An empty scope lists every scope.
func (r Repo) ListAllocations(ctx context.Context, scope, from, to string) ([]domain.Allocation, error) {
	return listAllocations(ctx, r.DB, scope, from, to)
}

// ListAllocationsTx is ListAllocations inside tx.
func (r Repo) ListAllocationsTx(ctx context.Context, tx *sql.Tx, scope, from, to string) ([]domain.Allocation, error) {
	return listAllocations(ctx, tx, scope, from, to)
}

func listAllocations(ctx context.Context, q querier, scope, from, to string) ([]domain.Allocation, error) {
	var clauses []string
	var args []any
	if scope != "" {
		clauses = append(clauses, "scope=?")
		args = append(args, scope)
	}
	if from != "" {
		clauses = append(clauses, "work_day>=?")
		args = append(args, from)
	}
	if to != "" {
		clauses = append(clauses, "work_day<=?")
		args = append(args, to)
	}
	query := `SELECT order_id,scope,mold_id,mold_name,work_day,product,heavy_fill,lop_adjust,COALESCE(lop_length,''),priority,run_id FROM schedule_allocations ` +
		whereClause(clauses) + ` ORDER BY work_day, rowid`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Allocation
	for rows.Next() {
		var (
			a                    domain.Allocation
			day                  string
			heavyFill, lopAdjust int
		)
		if err := rows.Scan(&a.OrderID, &a.Scope, &a.MoldID, &a.MoldName, &day, &a.Product, &heavyFill, &lopAdjust, &a.LOPLength, &a.Priority, &a.RunID); err != nil {
			return nil, err
		}
		wd, err := time.Parse(domain.DateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("allocation %s: work_day: %w", a.OrderID, err)
		}
		a.WorkDay = wd
		a.HeavyFill = heavyFill == 1
		a.LOPAdjust = lopAdjust == 1
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) InsertRunTx(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO schedule_runs(id,scope,start_date,days,capacity_hint,daily_capacity,actor_id,report_json,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Scope, run.StartDate, run.Days, nullableIntPtr(run.CapacityHint), run.DailyCapacity, run.ActorID, string(report), run.CreatedAt)
	return err
}

// ListRuns returns the most recent runs of scope, newest first.
func (r Repo) ListRuns(ctx context.Context, scope string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,scope,start_date,days,capacity_hint,daily_capacity,actor_id,report_json,created_at FROM schedule_runs WHERE scope=? ORDER BY created_at DESC, rowid DESC LIMIT ?`, scope, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Run
	for rows.Next() {
		var (
			run    domain.Run
			hint   sql.NullInt64
			report string
		)
		if err := rows.Scan(&run.ID, &run.Scope, &run.StartDate, &run.Days, &hint, &run.DailyCapacity, &run.ActorID, &report, &run.CreatedAt); err != nil {
			return nil, err
		}
		if hint.Valid {
			h := int(hint.Int64)
			run.CapacityHint = &h
		}
		if err := json.Unmarshal([]byte(report), &run.Report); err != nil {
			return nil, fmt.Errorf("run %s: report: %w", run.ID, err)
		}
		res = append(res, run)
	}
	return res, rows.Err()
}
