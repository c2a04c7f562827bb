package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended to the log.
const (
	ScheduleGenerated  = "schedule.generated"
	OrderStageAdvanced = "order.stage.advanced"
	CatalogImported    = "catalog.imported"
)

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Append records an event inside tx so it commits or rolls back with the
// change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, scope, entityKind, entityID, actorID string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,scope,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, nullable(scope), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
