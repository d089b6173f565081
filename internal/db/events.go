package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/plantops/equipment-health/internal/model"
)

const appendEventAttempts = 5

// AppendEvent - 이벤트 로그에 append (entity_id별 sequence 부여)
//
// 같은 엔티티에 동시 append가 겹치면 PK 충돌이 나므로 몇 차례 재시도
// event_id 중복은 이미 기록된 이벤트이므로 성공으로 간주
func (db *Postgres) AppendEvent(ctx context.Context, ev *model.Event) error {
	query := `
		INSERT INTO lifecycle_events (entity_id, sequence, event_id, event_type, entity_kind, asset_id, data, occurred_at)
		SELECT $1, COALESCE(MAX(sequence), 0) + 1, $2, $3, $4, $5, $6, $7
		FROM lifecycle_events WHERE entity_id = $1
		RETURNING sequence
	`

	var lastErr error
	for attempt := 0; attempt < appendEventAttempts; attempt++ {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		var seq int64
		err = db.Pool.QueryRow(ctx, query,
			ev.EntityID, ev.ID, ev.Type, ev.EntityKind, ev.AssetID, data, ev.OccurredAt,
		).Scan(&seq)
		if err == nil {
			ev.Sequence = seq
			return nil
		}

		lastErr = translateErr(err)
		if !errors.Is(lastErr, ErrDuplicate) {
			return lastErr
		}
		if existing, ok := db.eventSequence(ctx, ev.ID); ok {
			ev.Sequence = existing
			return nil
		}
	}
	return fmt.Errorf("failed to append event after %d attempts: %w", appendEventAttempts, lastErr)
}

func (db *Postgres) eventSequence(ctx context.Context, eventID string) (int64, bool) {
	var seq int64
	err := db.Pool.QueryRow(ctx, `SELECT sequence FROM lifecycle_events WHERE event_id = $1`, eventID).Scan(&seq)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// ListEvents - 엔티티별 이벤트 이력 (sequence 오름차순)
func (db *Postgres) ListEvents(ctx context.Context, entityID string) ([]model.Event, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT sequence, data FROM lifecycle_events
		WHERE entity_id = $1
		ORDER BY sequence`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.Event{}
	for rows.Next() {
		var seq int64
		var data []byte
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, err
		}
		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		ev.Sequence = seq
		list = append(list, ev)
	}
	return list, rows.Err()
}
