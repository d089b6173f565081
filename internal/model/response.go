package model

type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Available *int   `json:"available,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AuthMeResponse struct {
	LoginID string `json:"loginId"`
}

// RaiseAlertResponse - Raise 결과 (merge 여부 포함)
type RaiseAlertResponse struct {
	Status  string `json:"status"`
	AlertID string `json:"alert_id"`
	Created bool   `json:"created"`
}

// AlertEnvelope - Alert 단건 응답
type AlertEnvelope struct {
	Status     string `json:"status"`
	Data       *Alert `json:"data"`
	Suppressed bool   `json:"suppressed"`
}

// AlertListEnvelope - Alert 목록 응답
type AlertListEnvelope struct {
	Status string   `json:"status"`
	Data   []*Alert `json:"data"`
}

// ConvertAlertResponse - 전환 결과
type ConvertAlertResponse struct {
	Status      string     `json:"status"`
	AlertID     string     `json:"alert_id"`
	WorkOrderID string     `json:"work_order_id"`
	WorkOrder   *WorkOrder `json:"work_order"`
}

// WorkOrderEnvelope - WorkOrder 단건 응답
type WorkOrderEnvelope struct {
	Status  string     `json:"status"`
	Data    *WorkOrder `json:"data"`
	Overdue bool       `json:"overdue"`
}

// WorkOrderListEnvelope - WorkOrder 목록 응답
type WorkOrderListEnvelope struct {
	Status string       `json:"status"`
	Data   []*WorkOrder `json:"data"`
}

// AssetEnvelope - Asset 단건 응답
type AssetEnvelope struct {
	Status string `json:"status"`
	Data   *Asset `json:"data"`
}

// AssetListEnvelope - Asset 목록 응답
type AssetListEnvelope struct {
	Status string   `json:"status"`
	Data   []*Asset `json:"data"`
}

// PartEnvelope - 부품 단건 응답
type PartEnvelope struct {
	Status string       `json:"status"`
	Data   PartResponse `json:"data"`
}

// PartListEnvelope - 부품 목록 응답
type PartListEnvelope struct {
	Status string         `json:"status"`
	Data   []PartResponse `json:"data"`
}

// FleetHealthEnvelope - 설비 KPI 응답
type FleetHealthEnvelope struct {
	Status string               `json:"status"`
	Data   *FleetHealthSnapshot `json:"data"`
}

// EventListEnvelope - 이벤트 로그 응답
type EventListEnvelope struct {
	Status string  `json:"status"`
	Data   []Event `json:"data"`
}

// ObservationResponse - 관측치 수신 결과 (오래된 관측치는 accepted=false)
type ObservationResponse struct {
	Status   string `json:"status"`
	Accepted bool   `json:"accepted"`
	Data     *Asset `json:"data"`
}
