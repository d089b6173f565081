package model

import "time"

// FleetHealthSnapshot - 전체 설비 KPI (파생 데이터, 직접 수정 금지)
type FleetHealthSnapshot struct {
	FleetHealthScore    float64              `json:"fleet_health_score"`
	ScoredAssets        int                  `json:"scored_assets"`
	TotalAssets         int                  `json:"total_assets"`
	AssetsByStatus      map[HealthStatus]int `json:"assets_by_status"`
	AlertsByStatus      map[AlertStatus]int  `json:"alerts_by_status"`
	CriticalOpenAlerts  int                  `json:"critical_open_alerts"`
	OpenWorkOrders      int                  `json:"open_work_orders"`
	OverdueWorkOrders   int                  `json:"overdue_work_orders"`
	CompletedWorkOrders int                  `json:"completed_work_orders"`
	MTTRHours           float64              `json:"mttr_hours"`
	PartsBelowMinStock  int                  `json:"parts_below_min_stock"`
	ComputedAt          time.Time            `json:"computed_at"`
}
