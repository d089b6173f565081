package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/plantops/equipment-health/internal/db"
	"github.com/plantops/equipment-health/internal/model"
)

// webhookRepo - DB 인터페이스
type webhookRepo interface {
	GetWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error)
	GetWebhookConfigByID(ctx context.Context, id int) (*model.WebhookConfig, error)
	CreateWebhookConfig(ctx context.Context, cfg model.WebhookConfig) (int, error)
	UpdateWebhookConfig(ctx context.Context, id int, cfg model.WebhookConfig) error
	DeleteWebhookConfig(ctx context.Context, id int) error
}

// WebhookService - 라이프사이클 이벤트 구독 설정
type WebhookService struct {
	db webhookRepo
}

func NewWebhookService(db webhookRepo) *WebhookService {
	return &WebhookService{db: db}
}

func (s *WebhookService) ListWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error) {
	return s.db.GetWebhookConfigs(ctx)
}

func (s *WebhookService) GetWebhookConfig(ctx context.Context, id int) (*model.WebhookConfig, error) {
	cfg, err := s.db.GetWebhookConfigByID(ctx, id)
	if err != nil {
		return nil, webhookErr(id, err)
	}
	return cfg, nil
}

func (s *WebhookService) CreateWebhookConfig(ctx context.Context, req model.WebhookConfigRequest) (int, error) {
	cfg, err := webhookConfigFromRequest(req)
	if err != nil {
		return 0, err
	}
	return s.db.CreateWebhookConfig(ctx, cfg)
}

func (s *WebhookService) UpdateWebhookConfig(ctx context.Context, id int, req model.WebhookConfigRequest) error {
	cfg, err := webhookConfigFromRequest(req)
	if err != nil {
		return err
	}
	return webhookErr(id, s.db.UpdateWebhookConfig(ctx, id, cfg))
}

func (s *WebhookService) DeleteWebhookConfig(ctx context.Context, id int) error {
	return webhookErr(id, s.db.DeleteWebhookConfig(ctx, id))
}

// webhookConfigFromRequest - 요청 검증 및 정규화
//
// url은 http/https 절대 경로, method는 POST/PUT/PATCH (기본 POST)
// event_types는 알려진 타입만 허용, 중복 제거 (비어 있으면 전체 구독)
func webhookConfigFromRequest(req model.WebhookConfigRequest) (model.WebhookConfig, error) {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return model.WebhookConfig{}, validationError("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.WebhookConfig{}, validationError("url must be an absolute http(s) url")
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	switch method {
	case "":
		method = http.MethodPost
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return model.WebhookConfig{}, validationError("method %s is not supported", method)
	}

	types := make([]model.EventType, 0, len(req.EventTypes))
	seen := make(map[model.EventType]bool, len(req.EventTypes))
	for _, t := range req.EventTypes {
		if !t.Valid() {
			return model.WebhookConfig{}, validationError("unknown event type %q", t)
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}

	headers := make([]model.WebhookHeader, 0, len(req.Headers))
	for _, h := range req.Headers {
		if blank(h.Key) {
			continue
		}
		headers = append(headers, model.WebhookHeader{Key: strings.TrimSpace(h.Key), Value: h.Value})
	}

	return model.WebhookConfig{
		URL:        raw,
		Method:     method,
		Body:       req.Body,
		Headers:    headers,
		EventTypes: types,
	}, nil
}

func webhookErr(id int, err error) error {
	if err != nil && db.IsNoRows(err) {
		return &Error{Kind: ErrNotFound, Entity: "webhook", ID: strconv.Itoa(id)}
	}
	return err
}
