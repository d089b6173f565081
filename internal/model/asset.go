// 설비(Asset) 및 건강 관측치(Observation) 모델 정의
// AssetRegistry, HealthScoreAggregator, db 레이어에서 공통으로 사용

package model

import "time"

// Criticality - 설비 중요도 (critical, high, medium, low)
type Criticality string

const (
	CriticalityCritical Criticality = "critical"
	CriticalityHigh     Criticality = "high"
	CriticalityMedium   Criticality = "medium"
	CriticalityLow      Criticality = "low"
)

// HealthStatus - Aggregator가 관측치로부터 파생하는 설비 상태
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthWatch       HealthStatus = "watch"
	HealthDegrading   HealthStatus = "degrading"
	HealthCritical    HealthStatus = "critical"
	HealthDataMissing HealthStatus = "data-missing"
)

// AllHealthStatuses - 집계 시 카운트 순서
var AllHealthStatuses = []HealthStatus{
	HealthHealthy, HealthWatch, HealthDegrading, HealthCritical, HealthDataMissing,
}

// Location - plant / area / line 3단 위치
type Location struct {
	Plant string `json:"plant" yaml:"plant"`
	Area  string `json:"area" yaml:"area"`
	Line  string `json:"line" yaml:"line"`
}

// Observation - 외부 센서/ML 파이프라인이 push하는 건강 관측치
type Observation struct {
	HealthScore float64   `json:"health_score" validate:"gte=0,lte=100"`
	Confidence  float64   `json:"confidence" validate:"gte=0,lte=1"`
	DataQuality float64   `json:"data_quality" validate:"gte=0,lte=100"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
}

// Asset - 설비
//
// HealthStatus, HealthUpdatedAt은 Aggregator만 수정하는 파생 필드
// Version은 optimistic concurrency용 (모든 쓰기마다 +1)
type Asset struct {
	ID              string       `json:"id"`
	Tag             string       `json:"tag"`
	Type            string       `json:"type"`
	Location        Location     `json:"location"`
	Criticality     Criticality  `json:"criticality"`
	Observation     *Observation `json:"observation"`
	HealthStatus    HealthStatus `json:"health_status"`
	HealthUpdatedAt *time.Time   `json:"health_updated_at"`
	Active          bool         `json:"active"`
	Version         int64        `json:"version"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// HealthScore - 최신 관측치의 점수 (관측치가 없으면 false)
func (a *Asset) HealthScore() (float64, bool) {
	if a.Observation == nil {
		return 0, false
	}
	return a.Observation.HealthScore, true
}

// OnboardAssetRequest - 설비 등록 요청 (외부 onboarding 또는 seed)
type OnboardAssetRequest struct {
	ID          string      `json:"id" yaml:"id" validate:"required"`
	Tag         string      `json:"tag" yaml:"tag" validate:"required"`
	Type        string      `json:"type" yaml:"type"`
	Location    Location    `json:"location" yaml:"location"`
	Criticality Criticality `json:"criticality" yaml:"criticality" validate:"required,oneof=critical high medium low"`
}

// RecordObservationRequest - 관측치 수신 요청
type RecordObservationRequest struct {
	HealthScore float64    `json:"health_score"`
	Confidence  float64    `json:"confidence"`
	DataQuality float64    `json:"data_quality"`
	Timestamp   *time.Time `json:"timestamp"`
}

// AssetFilter - 설비 목록 필터 (빈 값은 무시)
type AssetFilter struct {
	Plant        string
	Area         string
	Line         string
	Criticality  Criticality
	HealthStatus HealthStatus
	ActiveOnly   bool
}

// Match - 필터 조건 일치 여부
func (f AssetFilter) Match(a *Asset) bool {
	if f.Plant != "" && a.Location.Plant != f.Plant {
		return false
	}
	if f.Area != "" && a.Location.Area != f.Area {
		return false
	}
	if f.Line != "" && a.Location.Line != f.Line {
		return false
	}
	if f.Criticality != "" && a.Criticality != f.Criticality {
		return false
	}
	if f.HealthStatus != "" && a.HealthStatus != f.HealthStatus {
		return false
	}
	if f.ActiveOnly && !a.Active {
		return false
	}
	return true
}
