package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/plantops/equipment-health/internal/model"
	tmpl "github.com/plantops/equipment-health/internal/template"
	"go.uber.org/zap"
)

// webhookConfigReader - DB 인터페이스 (delivery 전용)
type webhookConfigReader interface {
	GetWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error)
}

// WebhookDeliveryService - 사용자 설정 Webhook으로 라이프사이클 이벤트 전송 (이벤트 버스 구독자)
type WebhookDeliveryService struct {
	configDB   webhookConfigReader
	assets     assetReader
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookDeliveryService 생성자
func NewWebhookDeliveryService(configDB webhookConfigReader, assets assetReader, logger *zap.Logger) *WebhookDeliveryService {
	return &WebhookDeliveryService{
		configDB: configDB,
		assets:   assets,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Deliver - 이벤트 타입을 구독하는 config마다 body를 렌더링해 전송
//
// 하나라도 실패하면 에러 반환 (버스가 재시도, 수신측은 {{event.id}}로 중복 제거)
func (s *WebhookDeliveryService) Deliver(ctx context.Context, ev model.Event) error {
	configs, err := s.configDB.GetWebhookConfigs(ctx)
	if err != nil {
		return fmt.Errorf("load webhook configs: %w", err)
	}
	if len(configs) == 0 {
		return nil
	}

	eventData := tmpl.EventDataFromModel(ev)
	var assetData *tmpl.AssetData
	if ev.AssetID != "" {
		asset, err := s.assets.GetAsset(ctx, ev.AssetID)
		if err != nil {
			s.logger.Warn("failed to load asset for webhook body", zap.String("asset_id", ev.AssetID), zap.Error(err))
		} else {
			d := tmpl.AssetDataFromModel(asset)
			assetData = &d
		}
	}

	var errs []error
	for _, cfg := range configs {
		if cfg.URL == "" || !cfg.Accepts(ev.Type) {
			continue
		}

		rendered := tmpl.RenderBody(cfg.Body, &eventData, assetData)
		if err := s.sendHTTP(ctx, cfg, rendered); err != nil {
			s.logger.Warn("webhook delivery failed",
				zap.Int("config_id", cfg.ID),
				zap.String("url", cfg.URL),
				zap.String("event_id", ev.ID),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("webhook delivered",
			zap.Int("config_id", cfg.ID),
			zap.String("event_type", string(ev.Type)))
	}
	return errors.Join(errs...)
}

// sendHTTP - 단일 webhook config로 HTTP 요청 전송
func (s *WebhookDeliveryService) sendHTTP(ctx context.Context, cfg model.WebhookConfig, body string) error {
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bytes.NewBufferString(body))
	if err != nil {
		return err
	}

	// Content-Type 기본값 설정 (없으면 application/json)
	hasContentType := false
	for _, h := range cfg.Headers {
		if h.Key != "" {
			req.Header.Set(h.Key, h.Value)
		}
		if http.CanonicalHeaderKey(h.Key) == "Content-Type" {
			hasContentType = true
		}
	}
	if !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", cfg.URL, resp.StatusCode)
	}
	return nil
}
