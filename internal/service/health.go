// HealthScoreAggregator
//
// 설비 healthStatus는 최신 관측치 점수와 설비 중요도별 임계값으로 결정
// 관측치가 staleness 임계값보다 오래됐거나 dataQuality = 0이면 data-missing
//
// Fleet KPI(ComputeSnapshot)는 현재 상태에 대한 순수 함수라 몇 번을 다시 계산해도 결과가 같음
// RefreshAsset은 파생 필드만 optimistic write로 갱신하고 충돌 시 재시도 (명령 처리를 막지 않음)

package service

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/metrics"
	"github.com/plantops/equipment-health/internal/model"
	"go.uber.org/zap"
)

// HealthPolicy - healthStatus 판정 기준
//
// Critical 구간은 중요도 critical 설비에만 적용 (나머지는 Default)
type HealthPolicy struct {
	Staleness time.Duration
	Default   config.HealthBands
	Critical  config.HealthBands
}

// DefaultHealthPolicy - 80/60/40, critical 설비 85/70/50
func DefaultHealthPolicy(staleness time.Duration) HealthPolicy {
	return HealthPolicy{
		Staleness: staleness,
		Default:   config.HealthBands{Healthy: 80, Watch: 60, Degrading: 40},
		Critical:  config.HealthBands{Healthy: 85, Watch: 70, Degrading: 50},
	}
}

func NewHealthPolicy(cfg config.HealthConfig) HealthPolicy {
	p := DefaultHealthPolicy(cfg.StalenessThreshold)
	if cfg.DefaultBands != (config.HealthBands{}) {
		p.Default = cfg.DefaultBands
	}
	if cfg.CriticalBands != (config.HealthBands{}) {
		p.Critical = cfg.CriticalBands
	}
	return p
}

func (p HealthPolicy) bands(c model.Criticality) config.HealthBands {
	if c == model.CriticalityCritical {
		return p.Critical
	}
	return p.Default
}

// Derive - 관측치로부터 healthStatus 계산
func (p HealthPolicy) Derive(obs *model.Observation, criticality model.Criticality, now time.Time) model.HealthStatus {
	if obs == nil || obs.DataQuality == 0 {
		return model.HealthDataMissing
	}
	if p.Staleness > 0 && now.Sub(obs.Timestamp) > p.Staleness {
		return model.HealthDataMissing
	}
	t := p.bands(criticality)
	switch {
	case obs.HealthScore >= t.Healthy:
		return model.HealthHealthy
	case obs.HealthScore >= t.Watch:
		return model.HealthWatch
	case obs.HealthScore >= t.Degrading:
		return model.HealthDegrading
	}
	return model.HealthCritical
}

// ComputeSnapshot - 현재 상태로부터 Fleet KPI 계산 (부수효과 없음)
//
// 비활성 설비는 집계 대상에서 제외
// fleetHealthScore는 data-missing이 아닌 설비 점수의 단순 평균
func ComputeSnapshot(assets []*model.Asset, alerts []*model.Alert, workOrders []*model.WorkOrder, parts []*model.SparePart, now time.Time, policy HealthPolicy) model.FleetHealthSnapshot {
	snap := model.FleetHealthSnapshot{
		AssetsByStatus: make(map[model.HealthStatus]int, len(model.AllHealthStatuses)),
		AlertsByStatus: make(map[model.AlertStatus]int, len(model.AllAlertStatuses)),
		ComputedAt:     now,
	}
	for _, st := range model.AllHealthStatuses {
		snap.AssetsByStatus[st] = 0
	}
	for _, st := range model.AllAlertStatuses {
		snap.AlertsByStatus[st] = 0
	}

	var scoreSum float64
	for _, a := range assets {
		if !a.Active {
			continue
		}
		snap.TotalAssets++
		status := policy.Derive(a.Observation, a.Criticality, now)
		snap.AssetsByStatus[status]++
		if status != model.HealthDataMissing {
			scoreSum += a.Observation.HealthScore
			snap.ScoredAssets++
		}
	}
	if snap.ScoredAssets > 0 {
		snap.FleetHealthScore = round2(scoreSum / float64(snap.ScoredAssets))
	}

	for _, al := range alerts {
		snap.AlertsByStatus[al.Status]++
		if al.Severity == model.SeverityCritical && !al.Status.Terminal() {
			snap.CriticalOpenAlerts++
		}
	}

	var repairHours float64
	for _, w := range workOrders {
		switch {
		case w.Status == model.WorkOrderCompleted:
			snap.CompletedWorkOrders++
			repairHours += w.ActualDurationHrs
		case !w.Status.Terminal():
			snap.OpenWorkOrders++
			if w.Overdue(now) {
				snap.OverdueWorkOrders++
			}
		}
	}
	if snap.CompletedWorkOrders > 0 {
		snap.MTTRHours = round2(repairHours / float64(snap.CompletedWorkOrders))
	}

	for _, p := range parts {
		if p.LowStock() {
			snap.PartsBelowMinStock++
		}
	}
	return snap
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type aggregatorAssets interface {
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
	ListAssets(ctx context.Context, f model.AssetFilter) ([]*model.Asset, error)
	UpdateAsset(ctx context.Context, a *model.Asset) error
}

type aggregatorAlerts interface {
	ListAlerts(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error)
}

type aggregatorWorkOrders interface {
	ListWorkOrders(ctx context.Context, f model.WorkOrderFilter) ([]*model.WorkOrder, error)
}

type aggregatorParts interface {
	ListParts(ctx context.Context) ([]*model.SparePart, error)
}

// HealthAggregator - 파생 건강 상태 / Fleet KPI 재계산
type HealthAggregator struct {
	assets     aggregatorAssets
	alerts     aggregatorAlerts
	workOrders aggregatorWorkOrders
	parts      aggregatorParts
	events     Publisher
	logger     *zap.Logger
	policy     HealthPolicy
	interval   time.Duration
	now        func() time.Time

	mu   sync.RWMutex
	last *model.FleetHealthSnapshot
}

func NewHealthAggregator(assets aggregatorAssets, alerts aggregatorAlerts, workOrders aggregatorWorkOrders, parts aggregatorParts, events Publisher, logger *zap.Logger, policy HealthPolicy, interval time.Duration) *HealthAggregator {
	return &HealthAggregator{
		assets:     assets,
		alerts:     alerts,
		workOrders: workOrders,
		parts:      parts,
		events:     events,
		logger:     logger,
		policy:     policy,
		interval:   interval,
		now:        time.Now,
	}
}

// RefreshAsset - 설비 파생 필드 재계산, 바뀌었으면 AssetHealthChanged 발행
func (g *HealthAggregator) RefreshAsset(ctx context.Context, assetID string) (*model.Asset, bool, error) {
	var (
		out     *model.Asset
		changed bool
		old     model.HealthStatus
	)
	err := RetryOnConflict(ctx, DefaultRetryAttempts*2, func() error {
		a, err := g.assets.GetAsset(ctx, assetID)
		if err != nil {
			return storeErr(model.EntityAsset, assetID, err)
		}
		now := utcNow(g.now)
		status := g.policy.Derive(a.Observation, a.Criticality, now)
		out, old, changed = a, a.HealthStatus, false
		if !a.Active || status == a.HealthStatus {
			return nil
		}
		a.HealthStatus = status
		a.HealthUpdatedAt = &now
		a.UpdatedAt = now
		if err := g.assets.UpdateAsset(ctx, a); err != nil {
			err = storeErr(model.EntityAsset, assetID, err)
			if ErrorKind(err) == "conflict" {
				metrics.ConflictRetries.WithLabelValues(string(model.EntityAsset)).Inc()
			}
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		publish(ctx, g.events, g.logger, healthChangedEvent(out, old, "health-aggregator"))
	}
	return out, changed, nil
}

// Snapshot - 현재 상태로 Fleet KPI 계산 (쓰기 없음)
func (g *HealthAggregator) Snapshot(ctx context.Context) (*model.FleetHealthSnapshot, error) {
	assets, err := g.assets.ListAssets(ctx, model.AssetFilter{})
	if err != nil {
		return nil, err
	}
	alerts, err := g.alerts.ListAlerts(ctx, model.AlertFilter{})
	if err != nil {
		return nil, err
	}
	workOrders, err := g.workOrders.ListWorkOrders(ctx, model.WorkOrderFilter{})
	if err != nil {
		return nil, err
	}
	parts, err := g.parts.ListParts(ctx)
	if err != nil {
		return nil, err
	}
	snap := ComputeSnapshot(assets, alerts, workOrders, parts, utcNow(g.now), g.policy)

	g.mu.Lock()
	g.last = &snap
	g.mu.Unlock()

	metrics.FleetHealthScore.Set(snap.FleetHealthScore)
	for status, n := range snap.AssetsByStatus {
		metrics.AssetsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
	return &snap, nil
}

// Last - 마지막으로 계산된 스냅샷 (없으면 nil)
func (g *HealthAggregator) Last() *model.FleetHealthSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last
}

// RefreshAll - 모든 활성 설비 재계산 후 스냅샷 갱신
// 개별 설비 실패는 로그만 남기고 계속 진행
func (g *HealthAggregator) RefreshAll(ctx context.Context) (*model.FleetHealthSnapshot, error) {
	start := time.Now()
	defer func() { metrics.AggregationDuration.Observe(time.Since(start).Seconds()) }()

	assets, err := g.assets.ListAssets(ctx, model.AssetFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		if _, _, err := g.RefreshAsset(ctx, a.ID); err != nil {
			if ctx.Err() != nil {
				return nil, ctxError(ctx.Err())
			}
			g.logger.Warn("failed to refresh asset health", zap.String("asset_id", a.ID), zap.Error(err))
		}
	}
	return g.Snapshot(ctx)
}

// HandleEvent - LifecycleEventBus 구독 핸들러
func (g *HealthAggregator) HandleEvent(ctx context.Context, ev model.Event) error {
	if ev.AssetID != "" {
		if _, _, err := g.RefreshAsset(ctx, ev.AssetID); err != nil && ErrorKind(err) != "not_found" {
			return err
		}
	}
	_, err := g.Snapshot(ctx)
	return err
}

// TriggerEvents - Aggregator가 구독하는 이벤트
var TriggerEvents = []model.EventType{
	model.EventAlertCreated,
	model.EventAlertClosed,
	model.EventAlertConverted,
	model.EventWorkOrderCompleted,
	model.EventObservationRecorded,
}

// Run - 주기적 재계산 (관측치만 바뀌고 alert 활동이 없는 경우 staleness 반영)
func (g *HealthAggregator) Run(ctx context.Context) error {
	if g.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	if _, err := g.RefreshAll(ctx); err != nil && ctx.Err() == nil {
		g.logger.Warn("health aggregation pass failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := g.RefreshAll(ctx); err != nil && ctx.Err() == nil {
				g.logger.Warn("health aggregation pass failed", zap.Error(err))
			}
		}
	}
}

func healthChangedEvent(a *model.Asset, old model.HealthStatus, actor string) model.Event {
	attrs := map[string]string{"criticality": string(a.Criticality)}
	if score, ok := a.HealthScore(); ok {
		attrs["health_score"] = strconv.FormatFloat(score, 'f', 1, 64)
	}
	return model.Event{
		Type:       model.EventAssetHealthChanged,
		EntityKind: model.EntityAsset,
		EntityID:   a.ID,
		AssetID:    a.ID,
		OldState:   string(old),
		NewState:   string(a.HealthStatus),
		Actor:      actor,
		Attributes: attrs,
	}
}
