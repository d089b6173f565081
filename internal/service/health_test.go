package service

import (
	"context"
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthPolicyDerive(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	obs := func(score, quality float64, age time.Duration) *model.Observation {
		return &model.Observation{HealthScore: score, Confidence: 0.9, DataQuality: quality, Timestamp: now.Add(-age)}
	}

	tests := []struct {
		name        string
		obs         *model.Observation
		criticality model.Criticality
		want        model.HealthStatus
	}{
		{"no observation", nil, model.CriticalityHigh, model.HealthDataMissing},
		{"zero data quality", obs(95, 0, 0), model.CriticalityHigh, model.HealthDataMissing},
		{"stale", obs(95, 90, 7*time.Hour), model.CriticalityHigh, model.HealthDataMissing},
		{"healthy", obs(80, 90, 0), model.CriticalityHigh, model.HealthHealthy},
		{"watch", obs(79.9, 90, 0), model.CriticalityHigh, model.HealthWatch},
		{"degrading", obs(45, 90, 0), model.CriticalityHigh, model.HealthDegrading},
		{"critical", obs(39, 90, 0), model.CriticalityMedium, model.HealthCritical},
		{"critical asset watch band", obs(82, 90, 0), model.CriticalityCritical, model.HealthWatch},
		{"critical asset at 45", obs(45, 90, 0), model.CriticalityCritical, model.HealthCritical},
		{"critical asset healthy", obs(85, 90, time.Hour), model.CriticalityCritical, model.HealthHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultHealthPolicy(6*time.Hour).Derive(tt.obs, tt.criticality, now))
		})
	}
}

func TestHealthPolicyFromConfig(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	obs := &model.Observation{HealthScore: 82, DataQuality: 90, Timestamp: now}

	// 같은 구간을 critical 설비에도 쓰면 82는 healthy
	flat := NewHealthPolicy(config.HealthConfig{
		StalenessThreshold: time.Hour,
		DefaultBands:       config.HealthBands{Healthy: 80, Watch: 60, Degrading: 40},
		CriticalBands:      config.HealthBands{Healthy: 80, Watch: 60, Degrading: 40},
	})
	assert.Equal(t, model.HealthHealthy, flat.Derive(obs, model.CriticalityCritical, now))
	assert.Equal(t, model.HealthDataMissing, flat.Derive(obs, model.CriticalityCritical, now.Add(2*time.Hour)))

	unset := NewHealthPolicy(config.HealthConfig{StalenessThreshold: time.Hour})
	assert.Equal(t, DefaultHealthPolicy(time.Hour), unset)
	assert.Equal(t, model.HealthWatch, unset.Derive(obs, model.CriticalityCritical, now))
}

func TestComputeSnapshot(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fresh := func(score float64) *model.Observation {
		return &model.Observation{HealthScore: score, Confidence: 1, DataQuality: 90, Timestamp: now.Add(-time.Minute)}
	}
	past := now.Add(-time.Hour)

	assets := []*model.Asset{
		{ID: "A1", Criticality: model.CriticalityHigh, Active: true, Observation: fresh(90)},
		{ID: "A2", Criticality: model.CriticalityHigh, Active: true, Observation: fresh(50)},
		{ID: "A3", Criticality: model.CriticalityHigh, Active: true},
		{ID: "A4", Criticality: model.CriticalityHigh, Active: false, Observation: fresh(10)},
		{ID: "A5", Criticality: model.CriticalityCritical, Active: true, Observation: &model.Observation{HealthScore: 20, DataQuality: 80, Timestamp: now.Add(-24 * time.Hour)}},
	}
	alerts := []*model.Alert{
		{ID: "AL1", Severity: model.SeverityCritical, Status: model.AlertNew},
		{ID: "AL2", Severity: model.SeverityCritical, Status: model.AlertClosed},
		{ID: "AL3", Severity: model.SeverityLow, Status: model.AlertAcknowledged},
	}
	workOrders := []*model.WorkOrder{
		{ID: "W1", Status: model.WorkOrderPending, DueDate: past},
		{ID: "W2", Status: model.WorkOrderApproved, DueDate: now.Add(time.Hour)},
		{ID: "W3", Status: model.WorkOrderCompleted, ActualDurationHrs: 2, DueDate: past},
		{ID: "W4", Status: model.WorkOrderCompleted, ActualDurationHrs: 5},
		{ID: "W5", Status: model.WorkOrderCancelled, DueDate: past},
	}
	parts := []*model.SparePart{
		{ID: "P1", QuantityOnHand: 10, QuantityReserved: 9, MinStock: 2},
		{ID: "P2", QuantityOnHand: 10, MinStock: 2},
	}

	snap := ComputeSnapshot(assets, alerts, workOrders, parts, now, DefaultHealthPolicy(6*time.Hour))
	assert.Equal(t, 4, snap.TotalAssets)
	assert.Equal(t, 2, snap.ScoredAssets)
	assert.Equal(t, 70.0, snap.FleetHealthScore)
	assert.Equal(t, 1, snap.AssetsByStatus[model.HealthHealthy])
	assert.Equal(t, 1, snap.AssetsByStatus[model.HealthDegrading])
	assert.Equal(t, 2, snap.AssetsByStatus[model.HealthDataMissing])
	assert.Equal(t, 0, snap.AssetsByStatus[model.HealthCritical])
	assert.Equal(t, 1, snap.CriticalOpenAlerts)
	assert.Equal(t, 1, snap.AlertsByStatus[model.AlertClosed])
	assert.Equal(t, 0, snap.AlertsByStatus[model.AlertConverted])
	assert.Equal(t, 2, snap.OpenWorkOrders)
	assert.Equal(t, 1, snap.OverdueWorkOrders)
	assert.Equal(t, 2, snap.CompletedWorkOrders)
	assert.Equal(t, 3.5, snap.MTTRHours)
	assert.Equal(t, 1, snap.PartsBelowMinStock)

	again := ComputeSnapshot(assets, alerts, workOrders, parts, now, DefaultHealthPolicy(6*time.Hour))
	assert.Equal(t, snap, again)
	assert.Nil(t, assets[2].Observation)
	assert.Equal(t, model.HealthStatus(""), assets[0].HealthStatus)
}

func TestComputeSnapshotEmptyFleet(t *testing.T) {
	snap := ComputeSnapshot(nil, nil, nil, nil, time.Now(), DefaultHealthPolicy(time.Hour))
	assert.Zero(t, snap.FleetHealthScore)
	assert.Zero(t, snap.MTTRHours)
	assert.Len(t, snap.AssetsByStatus, len(model.AllHealthStatuses))
}

func TestRefreshAssetMarksStaleData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	asset := env.observe(t, "A001", 92)
	assert.Equal(t, model.HealthHealthy, asset.HealthStatus)

	_, changed, err := env.aggregator.RefreshAsset(ctx, "A001")
	require.NoError(t, err)
	assert.False(t, changed)

	env.aggregator.now = func() time.Time { return time.Now().Add(7 * time.Hour) }

	asset, changed, err = env.aggregator.RefreshAsset(ctx, "A001")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.HealthDataMissing, asset.HealthStatus)

	ev, ok := env.events.last(model.EventAssetHealthChanged)
	require.True(t, ok)
	assert.Equal(t, string(model.HealthHealthy), ev.OldState)
	assert.Equal(t, string(model.HealthDataMissing), ev.NewState)
	assert.Equal(t, "92.0", ev.Attributes["health_score"])

	before := len(env.events.types())
	_, changed, err = env.aggregator.RefreshAsset(ctx, "A001")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, env.events.types(), before)

	_, _, err = env.aggregator.RefreshAsset(ctx, "A404")
	assert.Equal(t, "not_found", ErrorKind(err))
}

func TestRefreshAllAndSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityCritical)
	env.onboard(t, "A002", model.CriticalityHigh)
	env.onboard(t, "A003", model.CriticalityLow)
	env.observe(t, "A001", 45)
	env.observe(t, "A002", 95)
	env.raise(t, "A001", model.SeverityCritical)

	assert.Nil(t, env.aggregator.Last())
	snap, err := env.aggregator.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalAssets)
	assert.Equal(t, 70.0, snap.FleetHealthScore)
	assert.Equal(t, 1, snap.AssetsByStatus[model.HealthCritical])
	assert.Equal(t, 1, snap.AssetsByStatus[model.HealthDataMissing])
	assert.Equal(t, 1, snap.CriticalOpenAlerts)
	assert.Equal(t, snap, env.aggregator.Last())

	again, err := env.aggregator.Snapshot(ctx)
	require.NoError(t, err)
	again.ComputedAt = snap.ComputedAt
	assert.Equal(t, snap, again)
}

func TestAggregatorHandleEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)

	err := env.aggregator.HandleEvent(ctx, model.Event{Type: model.EventAlertCreated, AssetID: "A001"})
	require.NoError(t, err)
	require.NotNil(t, env.aggregator.Last())

	err = env.aggregator.HandleEvent(ctx, model.Event{Type: model.EventAlertCreated, AssetID: "gone"})
	assert.NoError(t, err)
}

func TestAggregatorRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	env.aggregator.interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.aggregator.Run(ctx) }()

	assert.Eventually(t, func() bool { return env.aggregator.Last() != nil }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("aggregator did not stop")
	}
}
