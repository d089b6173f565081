package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plantops/equipment-health/internal/model"
)

// InsertAlert - Alert 저장
// 같은 asset+signal+detection_type의 열린 Alert가 이미 있으면 ErrDuplicate (alerts_open_dedup_idx)
func (db *Postgres) InsertAlert(ctx context.Context, a *model.Alert) error {
	a.Version = 1
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	query := `
		INSERT INTO alerts (id, asset_id, signal, detection_type, severity, status, version, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8, $8)
	`
	_, err = db.Pool.Exec(ctx, query,
		a.ID,
		a.AssetID,
		a.Signal,
		a.DetectionType,
		a.Severity,
		a.Status,
		data,
		a.CreatedAt,
	)
	return translateErr(err)
}

// GetAlert - Alert 단건 조회
func (db *Postgres) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	var data []byte
	err := db.Pool.QueryRow(ctx, `SELECT data FROM alerts WHERE id = $1`, id).Scan(&data)
	if err != nil {
		return nil, translateErr(err)
	}
	return decodeAlert(data)
}

// FindOpenAlert - dedup 대상 열린 Alert 조회 (없으면 ErrNotFound)
func (db *Postgres) FindOpenAlert(ctx context.Context, assetID, signal string, detectionType model.DetectionType) (*model.Alert, error) {
	query := `
		SELECT data FROM alerts
		WHERE asset_id = $1 AND signal = $2 AND detection_type = $3
		  AND status NOT IN ('closed', 'converted')
		ORDER BY created_at
		LIMIT 1`

	var data []byte
	err := db.Pool.QueryRow(ctx, query, assetID, signal, string(detectionType)).Scan(&data)
	if err != nil {
		return nil, translateErr(err)
	}
	return decodeAlert(data)
}

// ListAlerts - Alert 목록 (최신순)
func (db *Postgres) ListAlerts(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error) {
	query := `
		SELECT data FROM alerts
		WHERE ($1 = '' OR asset_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR severity = $3)
		ORDER BY created_at DESC`

	rows, err := db.Pool.Query(ctx, query, f.AssetID, string(f.Status), string(f.Severity))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*model.Alert{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		a, err := decodeAlert(data)
		if err != nil {
			return nil, err
		}
		if f.Match(a) {
			list = append(list, a)
		}
	}
	return list, rows.Err()
}

// UpdateAlert - a.Version 기준 optimistic update, 성공 시 a.Version 증가
func (db *Postgres) UpdateAlert(ctx context.Context, a *model.Alert) error {
	expected := a.Version
	a.Version = expected + 1
	data, err := json.Marshal(a)
	if err != nil {
		a.Version = expected
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	query := `
		UPDATE alerts
		SET severity = $3, status = $4, data = $5, version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $2
	`
	tag, err := db.Pool.Exec(ctx, query, a.ID, expected, a.Severity, a.Status, data, a.UpdatedAt)
	if err != nil {
		a.Version = expected
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		a.Version = expected
		return db.resolveVersionMiss(ctx, "alerts", a.ID)
	}
	return nil
}

func decodeAlert(data []byte) (*model.Alert, error) {
	var a model.Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
	}
	return &a, nil
}
