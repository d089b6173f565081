package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plantops/equipment-health/internal/model"
)

// InsertAsset - 설비 등록 (version 1로 시작)
func (db *Postgres) InsertAsset(ctx context.Context, a *model.Asset) error {
	a.Version = 1
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal asset: %w", err)
	}

	query := `
		INSERT INTO assets (id, plant, criticality, health_status, active, version, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $7)
	`
	_, err = db.Pool.Exec(ctx, query,
		a.ID,
		a.Location.Plant,
		a.Criticality,
		a.HealthStatus,
		a.Active,
		data,
		a.CreatedAt,
	)
	return translateErr(err)
}

// GetAsset - 설비 단건 조회
func (db *Postgres) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var data []byte
	err := db.Pool.QueryRow(ctx, `SELECT data FROM assets WHERE id = $1`, id).Scan(&data)
	if err != nil {
		return nil, translateErr(err)
	}
	return decodeAsset(data)
}

// ListAssets - 설비 목록 (plant, criticality, health_status, active는 SQL에서 필터)
func (db *Postgres) ListAssets(ctx context.Context, f model.AssetFilter) ([]*model.Asset, error) {
	query := `
		SELECT data FROM assets
		WHERE ($1 = '' OR plant = $1)
		  AND ($2 = '' OR criticality = $2)
		  AND ($3 = '' OR health_status = $3)
		  AND (NOT $4 OR active = TRUE)
		ORDER BY id`

	rows, err := db.Pool.Query(ctx, query, f.Plant, string(f.Criticality), string(f.HealthStatus), f.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*model.Asset{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		a, err := decodeAsset(data)
		if err != nil {
			return nil, err
		}
		if f.Match(a) {
			list = append(list, a)
		}
	}
	return list, rows.Err()
}

// UpdateAsset - a.Version을 기대 버전으로 사용하는 optimistic update
// 성공 시 a.Version이 새 버전으로 갱신됨
func (db *Postgres) UpdateAsset(ctx context.Context, a *model.Asset) error {
	expected := a.Version
	a.Version = expected + 1
	data, err := json.Marshal(a)
	if err != nil {
		a.Version = expected
		return fmt.Errorf("failed to marshal asset: %w", err)
	}

	query := `
		UPDATE assets
		SET plant = $3, criticality = $4, health_status = $5, active = $6,
			data = $7, version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $2
	`
	tag, err := db.Pool.Exec(ctx, query,
		a.ID, expected,
		a.Location.Plant,
		a.Criticality,
		a.HealthStatus,
		a.Active,
		data,
		a.UpdatedAt,
	)
	if err != nil {
		a.Version = expected
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		a.Version = expected
		return db.resolveVersionMiss(ctx, "assets", a.ID)
	}
	return nil
}

func decodeAsset(data []byte) (*model.Asset, error) {
	var a model.Asset
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal asset: %w", err)
	}
	return &a, nil
}
