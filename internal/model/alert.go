// 탐지(Detection) 페이로드 및 Alert 모델 정의
// AlertLifecycleManager의 상태 머신이 다루는 구조체

package model

import (
	"sort"
	"time"
)

// Severity - 심각도 (Alert severity, WorkOrder priority 공용)
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank - 비교용 순위 (높을수록 심각)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Valid - 정의된 값인지 확인
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// DetectionType - 탐지 방식
type DetectionType string

const (
	DetectionRule      DetectionType = "rule"
	DetectionAnomaly   DetectionType = "anomaly"
	DetectionThreshold DetectionType = "threshold"
	DetectionModel     DetectionType = "model"
)

// AlertStatus - Alert 상태
//
//	new -> acknowledged -> investigating -> {converted | closed}
//	new/acknowledged/investigating -> closed
type AlertStatus string

const (
	AlertNew           AlertStatus = "new"
	AlertAcknowledged  AlertStatus = "acknowledged"
	AlertInvestigating AlertStatus = "investigating"
	AlertConverted     AlertStatus = "converted"
	AlertClosed        AlertStatus = "closed"
)

// AllAlertStatuses - 집계 시 카운트 순서
var AllAlertStatuses = []AlertStatus{
	AlertNew, AlertAcknowledged, AlertInvestigating, AlertConverted, AlertClosed,
}

// Terminal - closed, converted는 종료 상태
func (s AlertStatus) Terminal() bool {
	return s == AlertClosed || s == AlertConverted
}

// ClosureCode - 종료 사유 코드
type ClosureCode string

const (
	ClosureResolved      ClosureCode = "resolved"
	ClosureUnfounded     ClosureCode = "unfounded"
	ClosureDuplicate     ClosureCode = "duplicate"
	ClosureFalsePositive ClosureCode = "false-positive"
)

// Valid - 허용된 closure code인지 확인
func (c ClosureCode) Valid() bool {
	switch c {
	case ClosureResolved, ClosureUnfounded, ClosureDuplicate, ClosureFalsePositive:
		return true
	}
	return false
}

// Closure - 종료 정보
type Closure struct {
	Code     ClosureCode `json:"code"`
	Reason   string      `json:"reason"`
	ClosedBy string      `json:"closed_by"`
	ClosedAt time.Time   `json:"closed_at"`
}

// Note - 감사(audit) 주석, append-only
type Note struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// DetectionPayload - 룰/이상탐지/모델 평가기가 보내는 탐지 결과
type DetectionPayload struct {
	AssetID               string        `json:"asset_id" validate:"required,notblank"`
	Signal                string        `json:"signal" validate:"required,notblank"`
	DetectionType         DetectionType `json:"detection_type" validate:"required,oneof=rule anomaly threshold model"`
	Severity              Severity      `json:"severity" validate:"required,oneof=critical high medium low"`
	Description           string        `json:"description"`
	Confidence            float64       `json:"confidence" validate:"gte=0,lte=1"`
	SuspectedFailureModes []string      `json:"suspected_failure_modes"`
	DetectedAt            *time.Time    `json:"detected_at"`
}

// Alert - 알림
//
// 동일 asset+signal+detectionType의 열린 Alert가 있으면 새로 만들지 않고 merge
// (LastSeen 갱신, severity는 상향만)
type Alert struct {
	ID                    string        `json:"id"`
	AssetID               string        `json:"asset_id"`
	Severity              Severity      `json:"severity"`
	DetectionType         DetectionType `json:"detection_type"`
	Signal                string        `json:"signal"`
	Description           string        `json:"description"`
	Confidence            float64       `json:"confidence"`
	FirstSeen             time.Time     `json:"first_seen"`
	LastSeen              time.Time     `json:"last_seen"`
	Occurrences           int           `json:"occurrences"`
	Status                AlertStatus   `json:"status"`
	Assignee              string        `json:"assignee,omitempty"`
	SuspectedFailureModes []string      `json:"suspected_failure_modes"`
	Closure               *Closure      `json:"closure,omitempty"`
	SuppressedUntil       *time.Time    `json:"suppressed_until,omitempty"`
	WorkOrderID           string        `json:"work_order_id,omitempty"`
	Annotations           []Note        `json:"annotations"`
	Version               int64         `json:"version"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

// Suppressed - snooze 만료 전인지 확인
func (a *Alert) Suppressed(now time.Time) bool {
	return a.SuppressedUntil != nil && now.Before(*a.SuppressedUntil)
}

// Clone - 얕은 공유 없이 복사 (store가 내부 상태를 노출하지 않도록)
func (a *Alert) Clone() *Alert {
	c := *a
	c.SuspectedFailureModes = append([]string(nil), a.SuspectedFailureModes...)
	c.Annotations = append([]Note(nil), a.Annotations...)
	if a.Closure != nil {
		closure := *a.Closure
		c.Closure = &closure
	}
	if a.SuppressedUntil != nil {
		until := *a.SuppressedUntil
		c.SuppressedUntil = &until
	}
	return &c
}

// MergeFailureModes - 집합 합치기 (정렬, 중복 제거)
func MergeFailureModes(current, incoming []string) []string {
	set := make(map[string]struct{}, len(current)+len(incoming))
	for _, m := range current {
		if m != "" {
			set[m] = struct{}{}
		}
	}
	for _, m := range incoming {
		if m != "" {
			set[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// AlertFilter - Alert 목록 필터
type AlertFilter struct {
	AssetID       string
	Status        AlertStatus
	Severity      Severity
	Assignee      string
	DetectionType DetectionType
	OpenOnly      bool
}

// Match - 필터 조건 일치 여부
func (f AlertFilter) Match(a *Alert) bool {
	if f.AssetID != "" && a.AssetID != f.AssetID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Assignee != "" && a.Assignee != f.Assignee {
		return false
	}
	if f.DetectionType != "" && a.DetectionType != f.DetectionType {
		return false
	}
	if f.OpenOnly && a.Status.Terminal() {
		return false
	}
	return true
}

// ============================================================================
// Alert 요청 구조체
// ============================================================================

// AcknowledgeAlertRequest - 확인 요청
type AcknowledgeAlertRequest struct {
	Comment string `json:"comment"`
	Version int64  `json:"version"`
}

// AssignAlertRequest - 담당자 지정 요청
type AssignAlertRequest struct {
	Assignee string `json:"assignee"`
	Version  int64  `json:"version"`
}

// CloseAlertRequest - 종료 요청
type CloseAlertRequest struct {
	Code    ClosureCode `json:"code"`
	Reason  string      `json:"reason"`
	Version int64       `json:"version"`
}

// SnoozeAlertRequest - 일시 억제 요청
type SnoozeAlertRequest struct {
	DurationHours float64 `json:"duration_hours"`
	Version       int64   `json:"version"`
}

// ConvertAlertRequest - WorkOrder 전환 요청
type ConvertAlertRequest struct {
	Draft   WorkOrderDraft `json:"draft"`
	Version int64          `json:"version"`
}

// AnnotateRequest - 주석 추가 요청 (Alert, WorkOrder 공용)
type AnnotateRequest struct {
	Text string `json:"text"`
}

// VersionRequest - 본문이 버전만 필요한 명령용
type VersionRequest struct {
	Version int64 `json:"version"`
}
