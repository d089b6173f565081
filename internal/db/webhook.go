package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plantops/equipment-health/internal/model"
)

// EnsureWebhookSchema - webhook_configs 테이블 생성 (없으면)
func (p *Postgres) EnsureWebhookSchema(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS webhook_configs (
			id          SERIAL       PRIMARY KEY,
			url         TEXT         NOT NULL DEFAULT '',
			method      TEXT         NOT NULL DEFAULT 'POST',
			headers     JSONB        NOT NULL DEFAULT '[]',
			body        TEXT         NOT NULL DEFAULT '',
			event_types JSONB        NOT NULL DEFAULT '[]',
			updated_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create webhook_configs table: %w", err)
	}
	return nil
}

// GetWebhookConfigs - 웹훅 설정 전체 목록 조회 (최신순)
func (p *Postgres) GetWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, url, method, headers, body, event_types, updated_at
		FROM webhook_configs
		ORDER BY updated_at DESC;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook configs: %w", err)
	}
	defer rows.Close()

	configs := []model.WebhookConfig{}
	for rows.Next() {
		var cfg model.WebhookConfig
		var headersJSON, typesJSON []byte
		if err := rows.Scan(&cfg.ID, &cfg.URL, &cfg.Method, &headersJSON, &cfg.Body, &typesJSON, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook config: %w", err)
		}
		if err := decodeWebhookJSON(&cfg, headersJSON, typesJSON); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// GetWebhookConfigByID - ID로 단건 조회
func (p *Postgres) GetWebhookConfigByID(ctx context.Context, id int) (*model.WebhookConfig, error) {
	row := p.Pool.QueryRow(ctx, `
		SELECT id, url, method, headers, body, event_types, updated_at
		FROM webhook_configs
		WHERE id = $1;
	`, id)

	var cfg model.WebhookConfig
	var headersJSON, typesJSON []byte
	if err := row.Scan(&cfg.ID, &cfg.URL, &cfg.Method, &headersJSON, &cfg.Body, &typesJSON, &cfg.UpdatedAt); err != nil {
		return nil, translateErr(err)
	}
	if err := decodeWebhookJSON(&cfg, headersJSON, typesJSON); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CreateWebhookConfig - 신규 웹훅 설정 저장
func (p *Postgres) CreateWebhookConfig(ctx context.Context, cfg model.WebhookConfig) (int, error) {
	headersJSON, typesJSON, err := encodeWebhookJSON(cfg)
	if err != nil {
		return 0, err
	}

	var id int
	err = p.Pool.QueryRow(ctx, `
		INSERT INTO webhook_configs (url, method, headers, body, event_types, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id;
	`, cfg.URL, cfg.Method, headersJSON, cfg.Body, typesJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert webhook config: %w", err)
	}
	return id, nil
}

// UpdateWebhookConfig - ID로 웹훅 설정 수정
func (p *Postgres) UpdateWebhookConfig(ctx context.Context, id int, cfg model.WebhookConfig) error {
	headersJSON, typesJSON, err := encodeWebhookJSON(cfg)
	if err != nil {
		return err
	}

	tag, err := p.Pool.Exec(ctx, `
		UPDATE webhook_configs
		SET url = $1, method = $2, headers = $3, body = $4, event_types = $5, updated_at = NOW()
		WHERE id = $6;
	`, cfg.URL, cfg.Method, headersJSON, cfg.Body, typesJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update webhook config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWebhookConfig - ID로 웹훅 설정 삭제
func (p *Postgres) DeleteWebhookConfig(ctx context.Context, id int) error {
	tag, err := p.Pool.Exec(ctx, `DELETE FROM webhook_configs WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeWebhookJSON(cfg model.WebhookConfig) ([]byte, []byte, error) {
	headers := cfg.Headers
	if headers == nil {
		headers = []model.WebhookHeader{}
	}
	types := cfg.EventTypes
	if types == nil {
		types = []model.EventType{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal headers: %w", err)
	}
	typesJSON, err := json.Marshal(types)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal event types: %w", err)
	}
	return headersJSON, typesJSON, nil
}

func decodeWebhookJSON(cfg *model.WebhookConfig, headersJSON, typesJSON []byte) error {
	if err := json.Unmarshal(headersJSON, &cfg.Headers); err != nil {
		return fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	if err := json.Unmarshal(typesJSON, &cfg.EventTypes); err != nil {
		return fmt.Errorf("failed to unmarshal event types: %w", err)
	}
	return nil
}
