package repo

import (
	"context"
	"database/sql"
	"fmt"

	"moldline/internal/domain"
)

const eventColumns = `id,ts,type,COALESCE(scope,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Scope, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventsFrom returns events newest first. A positive cursor only
// returns events older than it.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, scope, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		clauses []string
		args    []any
	)
	if scope != "" {
		clauses = append(clauses, "scope=?")
		args = append(args, scope)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT %s FROM events %s ORDER BY id DESC LIMIT ?`, eventColumns, whereClause(clauses))
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEventID returns the most recent event ID, or 0 for an empty log.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
