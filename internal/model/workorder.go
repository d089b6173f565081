package model

import "time"

// WorkOrderStatus - 작업지시 상태
//
//	pending -> approved -> in-progress -> completed
//	pending/approved -> cancelled
type WorkOrderStatus string

const (
	WorkOrderPending    WorkOrderStatus = "pending"
	WorkOrderApproved   WorkOrderStatus = "approved"
	WorkOrderInProgress WorkOrderStatus = "in-progress"
	WorkOrderCompleted  WorkOrderStatus = "completed"
	WorkOrderCancelled  WorkOrderStatus = "cancelled"
)

// Terminal - completed, cancelled는 종료 상태
func (s WorkOrderStatus) Terminal() bool {
	return s == WorkOrderCompleted || s == WorkOrderCancelled
}

// PartRequest - 부품 예약 요청/기록 (partId, qty)
type PartRequest struct {
	PartID string `json:"part_id" yaml:"part_id" validate:"required"`
	Qty    int    `json:"qty" yaml:"qty" validate:"gt=0"`
}

// WorkOrderDraft - 직접 생성 또는 Alert 전환 시 입력
type WorkOrderDraft struct {
	AssetID              string        `json:"asset_id"`
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	Priority             Severity      `json:"priority" validate:"omitempty,oneof=critical high medium low"`
	DueDate              *time.Time    `json:"due_date"`
	EstimatedDurationHrs float64       `json:"estimated_duration_hours" validate:"gte=0"`
	Assignee             string        `json:"assignee"`
	Parts                []PartRequest `json:"parts" validate:"dive"`
}

// WorkOrder - 작업지시
type WorkOrder struct {
	ID                   string          `json:"id"`
	AssetID              string          `json:"asset_id"`
	AlertID              string          `json:"alert_id,omitempty"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	Priority             Severity        `json:"priority"`
	Status               WorkOrderStatus `json:"status"`
	CreatedAt            time.Time       `json:"created_date"`
	DueDate              time.Time       `json:"due_date"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty"`
	StartedAt            *time.Time      `json:"started_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_date,omitempty"`
	Assignee             string          `json:"assignee,omitempty"`
	EstimatedDurationHrs float64         `json:"estimated_duration_hours"`
	ActualDurationHrs    float64         `json:"actual_duration_hours"`
	ReservedParts        []PartRequest   `json:"reserved_parts"`
	RootCause            string          `json:"root_cause,omitempty"`
	CancelReason         string          `json:"cancel_reason,omitempty"`
	Notes                []Note          `json:"notes"`
	Version              int64           `json:"version"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Overdue - dueDate가 지났고 종료 상태가 아니면 true (상태가 아닌 파생 플래그)
func (w *WorkOrder) Overdue(now time.Time) bool {
	return !w.Status.Terminal() && !w.DueDate.IsZero() && now.After(w.DueDate)
}

// Clone - 내부 슬라이스까지 복사
func (w *WorkOrder) Clone() *WorkOrder {
	c := *w
	c.ReservedParts = append([]PartRequest(nil), w.ReservedParts...)
	c.Notes = append([]Note(nil), w.Notes...)
	if w.ApprovedAt != nil {
		t := *w.ApprovedAt
		c.ApprovedAt = &t
	}
	if w.StartedAt != nil {
		t := *w.StartedAt
		c.StartedAt = &t
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// WorkOrderFilter - 작업지시 목록 필터
type WorkOrderFilter struct {
	AssetID     string
	AlertID     string
	Status      WorkOrderStatus
	Assignee    string
	OverdueOnly bool
	Now         time.Time
}

// Match - 필터 조건 일치 여부
func (f WorkOrderFilter) Match(w *WorkOrder) bool {
	if f.AssetID != "" && w.AssetID != f.AssetID {
		return false
	}
	if f.AlertID != "" && w.AlertID != f.AlertID {
		return false
	}
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	if f.Assignee != "" && w.Assignee != f.Assignee {
		return false
	}
	if f.OverdueOnly && !w.Overdue(f.Now) {
		return false
	}
	return true
}

// ============================================================================
// WorkOrder 요청 구조체
// ============================================================================

// CompleteWorkOrderRequest - 완료 요청
type CompleteWorkOrderRequest struct {
	ActualDurationHrs float64 `json:"actual_duration_hours"`
	RootCause         string  `json:"root_cause"`
	Version           int64   `json:"version"`
}

// CancelWorkOrderRequest - 취소 요청
type CancelWorkOrderRequest struct {
	Reason  string `json:"reason"`
	Version int64  `json:"version"`
}

// AssignTechnicianRequest - 기술자 지정 요청
type AssignTechnicianRequest struct {
	Technician string `json:"technician"`
	Version    int64  `json:"version"`
}
