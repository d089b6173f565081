package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plantops/equipment-health/internal/model"
)

// InsertPart - 부품 등록
func (db *Postgres) InsertPart(ctx context.Context, p *model.SparePart) error {
	p.Version = 1
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal spare part: %w", err)
	}

	query := `
		INSERT INTO spare_parts (id, part_number, quantity_on_hand, quantity_reserved, version, data, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
	`
	_, err = db.Pool.Exec(ctx, query, p.ID, p.PartNumber, p.QuantityOnHand, p.QuantityReserved, data, p.UpdatedAt)
	return translateErr(err)
}

// GetPart - 부품 단건 조회
func (db *Postgres) GetPart(ctx context.Context, id string) (*model.SparePart, error) {
	var data []byte
	err := db.Pool.QueryRow(ctx, `SELECT data FROM spare_parts WHERE id = $1`, id).Scan(&data)
	if err != nil {
		return nil, translateErr(err)
	}
	return decodePart(data)
}

// ListParts - 부품 목록
func (db *Postgres) ListParts(ctx context.Context) ([]*model.SparePart, error) {
	rows, err := db.Pool.Query(ctx, `SELECT data FROM spare_parts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*model.SparePart{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		p, err := decodePart(data)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// UpdatePart - p.Version 기준 optimistic update
// spare_parts_reservation_chk 제약이 재고 불변식을 DB 레벨에서도 보장
func (db *Postgres) UpdatePart(ctx context.Context, p *model.SparePart) error {
	expected := p.Version
	p.Version = expected + 1
	data, err := json.Marshal(p)
	if err != nil {
		p.Version = expected
		return fmt.Errorf("failed to marshal spare part: %w", err)
	}

	query := `
		UPDATE spare_parts
		SET quantity_on_hand = $3, quantity_reserved = $4, data = $5, version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $2
	`
	tag, err := db.Pool.Exec(ctx, query, p.ID, expected, p.QuantityOnHand, p.QuantityReserved, data, p.UpdatedAt)
	if err != nil {
		p.Version = expected
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		p.Version = expected
		return db.resolveVersionMiss(ctx, "spare_parts", p.ID)
	}
	return nil
}

func decodePart(data []byte) (*model.SparePart, error) {
	var p model.SparePart
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spare part: %w", err)
	}
	return &p, nil
}
