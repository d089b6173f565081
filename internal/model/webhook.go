package model

import "time"

// WebhookHeader - 헤더 키-값 쌍
type WebhookHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WebhookConfig - 라이프사이클 이벤트를 전달받을 외부 엔드포인트 설정
//
// EventTypes가 비어 있으면 모든 이벤트 전달
type WebhookConfig struct {
	ID         int             `json:"id"`
	URL        string          `json:"url"`
	Method     string          `json:"method"`
	Headers    []WebhookHeader `json:"headers"`
	Body       string          `json:"body"`
	EventTypes []EventType     `json:"event_types"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Accepts - 이벤트 타입 필터 일치 여부
func (c WebhookConfig) Accepts(t EventType) bool {
	if len(c.EventTypes) == 0 {
		return true
	}
	for _, et := range c.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// WebhookConfigRequest - 웹훅 설정 생성/수정 요청 구조체
type WebhookConfigRequest struct {
	URL        string          `json:"url" binding:"required"`
	Method     string          `json:"method"`
	Headers    []WebhookHeader `json:"headers"`
	Body       string          `json:"body"`
	EventTypes []EventType     `json:"event_types"`
}

// WebhookConfigResponse - 단건 조회 응답
type WebhookConfigResponse struct {
	Status string         `json:"status"`
	Data   *WebhookConfig `json:"data"`
}

// WebhookConfigListResponse - 목록 조회 응답
type WebhookConfigListResponse struct {
	Status string          `json:"status"`
	Data   []WebhookConfig `json:"data"`
}

// WebhookConfigMutationResponse - 생성/수정/삭제 응답
type WebhookConfigMutationResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      int    `json:"id,omitempty"`
}

// EventTypeListResponse - 구독 가능한 이벤트 타입 목록
type EventTypeListResponse struct {
	Status string      `json:"status"`
	Data   []EventType `json:"data"`
}
