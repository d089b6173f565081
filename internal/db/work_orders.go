package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plantops/equipment-health/internal/model"
)

// InsertWorkOrder - 작업지시 저장
// alert_id가 이미 다른 작업지시에 연결되어 있으면 ErrDuplicate
func (db *Postgres) InsertWorkOrder(ctx context.Context, w *model.WorkOrder) error {
	w.Version = 1
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal work order: %w", err)
	}

	var alertID *string
	if w.AlertID != "" {
		alertID = &w.AlertID
	}

	query := `
		INSERT INTO work_orders (id, asset_id, alert_id, status, assignee, version, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $7)
	`
	_, err = db.Pool.Exec(ctx, query, w.ID, w.AssetID, alertID, w.Status, w.Assignee, data, w.CreatedAt)
	return translateErr(err)
}

// GetWorkOrder - 작업지시 단건 조회
func (db *Postgres) GetWorkOrder(ctx context.Context, id string) (*model.WorkOrder, error) {
	var data []byte
	err := db.Pool.QueryRow(ctx, `SELECT data FROM work_orders WHERE id = $1`, id).Scan(&data)
	if err != nil {
		return nil, translateErr(err)
	}
	return decodeWorkOrder(data)
}

// ListWorkOrders - 작업지시 목록 (최신순)
func (db *Postgres) ListWorkOrders(ctx context.Context, f model.WorkOrderFilter) ([]*model.WorkOrder, error) {
	query := `
		SELECT data FROM work_orders
		WHERE ($1 = '' OR asset_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR assignee = $3)
		ORDER BY created_at DESC`

	rows, err := db.Pool.Query(ctx, query, f.AssetID, string(f.Status), f.Assignee)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*model.WorkOrder{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		w, err := decodeWorkOrder(data)
		if err != nil {
			return nil, err
		}
		if f.Match(w) {
			list = append(list, w)
		}
	}
	return list, rows.Err()
}

// UpdateWorkOrder - w.Version 기준 optimistic update
func (db *Postgres) UpdateWorkOrder(ctx context.Context, w *model.WorkOrder) error {
	expected := w.Version
	w.Version = expected + 1
	data, err := json.Marshal(w)
	if err != nil {
		w.Version = expected
		return fmt.Errorf("failed to marshal work order: %w", err)
	}

	query := `
		UPDATE work_orders
		SET status = $3, assignee = $4, data = $5, version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $2
	`
	tag, err := db.Pool.Exec(ctx, query, w.ID, expected, w.Status, w.Assignee, data, w.UpdatedAt)
	if err != nil {
		w.Version = expected
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		w.Version = expected
		return db.resolveVersionMiss(ctx, "work_orders", w.ID)
	}
	return nil
}

// DeleteWorkOrder - 전환 보상(rollback) 전용 삭제
func (db *Postgres) DeleteWorkOrder(ctx context.Context, id string, version int64) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM work_orders WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return db.resolveVersionMiss(ctx, "work_orders", id)
	}
	return nil
}

func decodeWorkOrder(data []byte) (*model.WorkOrder, error) {
	var w model.WorkOrder
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work order: %w", err)
	}
	return &w, nil
}
