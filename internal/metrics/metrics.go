// Prometheus 수집기 정의 (GET /metrics 에서 promhttp로 노출)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions - 엔티티별 명령 결과 (result: ok, invalid_transition, validation, conflict ...)
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equipment_health_commands_total",
		Help: "Lifecycle commands by entity, operation and result",
	}, []string{"entity", "operation", "result"})

	// ReservationFailures - 재고 부족으로 실패한 예약
	ReservationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equipment_health_reservation_failures_total",
		Help: "Spare part reservations rejected for insufficient stock",
	}, []string{"part_id"})

	// ConflictRetries - optimistic concurrency 재시도 횟수
	ConflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equipment_health_conflict_retries_total",
		Help: "Optimistic version conflicts retried with a re-read",
	}, []string{"entity"})

	// EventDeliveries - 이벤트 subscriber 전달 결과 (result: ok, retry, dropped, overflow, shutdown)
	EventDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "equipment_health_event_deliveries_total",
		Help: "Lifecycle event deliveries by subscriber and result",
	}, []string{"subscriber", "result"})

	// FleetHealthScore - 최근 집계된 fleet 건강 점수
	FleetHealthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "equipment_health_fleet_score",
		Help: "Mean health score of scored assets in the latest snapshot",
	})

	// AssetsByStatus - healthStatus별 설비 수
	AssetsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "equipment_health_assets",
		Help: "Assets by derived health status in the latest snapshot",
	}, []string{"status"})

	// AggregationDuration - 전체 재계산 소요 시간
	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "equipment_health_aggregation_duration_seconds",
		Help:    "Duration of a full health aggregation pass",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)
