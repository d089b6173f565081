package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/db"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBearingFailureScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityCritical)
	env.addPart(t, "BRG-6308", 8)

	asset := env.observe(t, "A001", 45)
	assert.Equal(t, model.HealthCritical, asset.HealthStatus)

	alert := env.raise(t, "A001", model.SeverityCritical)
	assert.Equal(t, "AL001", alert.ID)
	assert.Equal(t, model.AlertNew, alert.Status)

	alert, err := env.alerts.Acknowledge(ctx, "AL001", model.AcknowledgeAlertRequest{Comment: "investigating"}, "kim")
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcknowledged, alert.Status)
	assert.Equal(t, "kim", alert.Assignee)

	alert, wo, err := env.alerts.Convert(ctx, "AL001", model.ConvertAlertRequest{
		Draft: model.WorkOrderDraft{
			Title: "Replace bearing",
			Parts: []model.PartRequest{{PartID: "BRG-6308", Qty: 1}},
		},
	}, "kim")
	require.NoError(t, err)
	assert.Equal(t, "WO001", wo.ID)
	assert.Equal(t, model.WorkOrderPending, wo.Status)
	assert.Equal(t, "AL001", wo.AlertID)
	assert.Equal(t, model.SeverityCritical, wo.Priority)
	assert.Equal(t, model.AlertConverted, alert.Status)
	assert.Equal(t, "WO001", alert.WorkOrderID)

	part, err := env.ledger.Get(ctx, "BRG-6308")
	require.NoError(t, err)
	assert.Equal(t, 1, part.QuantityReserved)
	assert.Equal(t, 8, part.QuantityOnHand)

	types := env.events.types()
	assert.Contains(t, types, model.EventAlertCreated)
	assert.Contains(t, types, model.EventPartsReserved)
	assert.Contains(t, types, model.EventWorkOrderCreated)
	assert.Equal(t, model.EventAlertConverted, types[len(types)-1])
}

func TestAlertStateGraph(t *testing.T) {
	ctx := context.Background()
	closeReq := model.CloseAlertRequest{Code: model.ClosureResolved, Reason: "bearing replaced"}

	tests := []struct {
		name    string
		prepare func(env *testEnv, id string)
		op      func(env *testEnv, id string) error
		wantErr error
	}{
		{
			name: "investigate requires acknowledged",
			op: func(env *testEnv, id string) error {
				_, err := env.alerts.Investigate(ctx, id, 0, "kim")
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "acknowledge twice",
			prepare: func(env *testEnv, id string) {
				_, err := env.alerts.Acknowledge(ctx, id, model.AcknowledgeAlertRequest{Comment: "seen"}, "kim")
				require.NoError(t, err)
			},
			op: func(env *testEnv, id string) error {
				_, err := env.alerts.Acknowledge(ctx, id, model.AcknowledgeAlertRequest{Comment: "again"}, "kim")
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "close directly from new",
			op: func(env *testEnv, id string) error {
				_, err := env.alerts.Close(ctx, id, closeReq, "kim")
				return err
			},
		},
		{
			name: "nothing leaves closed",
			prepare: func(env *testEnv, id string) {
				_, err := env.alerts.Close(ctx, id, closeReq, "kim")
				require.NoError(t, err)
			},
			op: func(env *testEnv, id string) error {
				_, err := env.alerts.Acknowledge(ctx, id, model.AcknowledgeAlertRequest{Comment: "reopen"}, "kim")
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "assign after close",
			prepare: func(env *testEnv, id string) {
				_, err := env.alerts.Close(ctx, id, closeReq, "kim")
				require.NoError(t, err)
			},
			op: func(env *testEnv, id string) error {
				_, err := env.alerts.Assign(ctx, id, model.AssignAlertRequest{Assignee: "lee"}, "kim")
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "annotate after close",
			prepare: func(env *testEnv, id string) {
				_, err := env.alerts.Close(ctx, id, closeReq, "kim")
				require.NoError(t, err)
			},
			op: func(env *testEnv, id string) error {
				_, err := env.alerts.Annotate(ctx, id, model.AnnotateRequest{Text: "post-mortem linked"}, "kim")
				return err
			},
		},
		{
			name: "acknowledge, investigate, close",
			prepare: func(env *testEnv, id string) {
				_, err := env.alerts.Acknowledge(ctx, id, model.AcknowledgeAlertRequest{Comment: "seen"}, "kim")
				require.NoError(t, err)
				_, err = env.alerts.Investigate(ctx, id, 0, "kim")
				require.NoError(t, err)
			},
			op: func(env *testEnv, id string) error {
				_, err := env.alerts.Close(ctx, id, closeReq, "kim")
				return err
			},
		},
		{
			name: "stale version",
			op: func(env *testEnv, id string) error {
				_, err := env.alerts.Acknowledge(ctx, id, model.AcknowledgeAlertRequest{Comment: "seen", Version: 7}, "kim")
				return err
			},
			wantErr: ErrConflict,
		},
		{
			name: "unknown alert",
			op: func(env *testEnv, _ string) error {
				_, err := env.alerts.Investigate(ctx, "AL999", 0, "kim")
				return err
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.onboard(t, "A001", model.CriticalityHigh)
			alert := env.raise(t, "A001", model.SeverityHigh)
			if tt.prepare != nil {
				tt.prepare(env, alert.ID)
			}
			before, err := env.alerts.Get(ctx, alert.ID)
			require.NoError(t, err)

			err = tt.op(env, alert.ID)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			after, err := env.alerts.Get(ctx, alert.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestCloseRequiresEvidence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	alert := env.raise(t, "A001", model.SeverityHigh)

	_, err := env.alerts.Close(ctx, alert.ID, model.CloseAlertRequest{Code: model.ClosureResolved}, "kim")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = env.alerts.Close(ctx, alert.ID, model.CloseAlertRequest{Code: "fixed", Reason: "done"}, "kim")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = env.alerts.Acknowledge(ctx, alert.ID, model.AcknowledgeAlertRequest{Comment: "  "}, "kim")
	assert.True(t, errors.Is(err, ErrValidation))

	closed, err := env.alerts.Close(ctx, alert.ID, model.CloseAlertRequest{Code: model.ClosureFalsePositive, Reason: "sensor cable loose"}, "kim")
	require.NoError(t, err)
	require.NotNil(t, closed.Closure)
	assert.Equal(t, model.ClosureFalsePositive, closed.Closure.Code)
	assert.Equal(t, "kim", closed.Closure.ClosedBy)
}

func TestRaiseMergesIntoOpenAlert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)

	first := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	second := first.Add(10 * time.Minute)

	a1, created, err := env.alerts.Raise(ctx, model.DetectionPayload{
		AssetID: "A001", Signal: "vibration", DetectionType: model.DetectionAnomaly,
		Severity: model.SeverityMedium, Confidence: 0.6, DetectedAt: &first,
		SuspectedFailureModes: []string{"imbalance"},
	})
	require.NoError(t, err)
	assert.True(t, created)

	a2, created, err := env.alerts.Raise(ctx, model.DetectionPayload{
		AssetID: "A001", Signal: "vibration", DetectionType: model.DetectionAnomaly,
		Severity: model.SeverityCritical, Confidence: 0.9, DetectedAt: &second,
		SuspectedFailureModes: []string{"bearing-wear", "imbalance"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a1.ID, a2.ID)

	alerts, err := env.alerts.List(ctx, model.AlertFilter{AssetID: "A001"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	merged := alerts[0]
	assert.Equal(t, model.SeverityCritical, merged.Severity)
	assert.Equal(t, second, merged.LastSeen)
	assert.Equal(t, first, merged.FirstSeen)
	assert.Equal(t, 2, merged.Occurrences)
	assert.Equal(t, 0.9, merged.Confidence)
	assert.Equal(t, []string{"bearing-wear", "imbalance"}, merged.SuspectedFailureModes)

	// severity never downgrades
	_, _, err = env.alerts.Raise(ctx, model.DetectionPayload{
		AssetID: "A001", Signal: "vibration", DetectionType: model.DetectionAnomaly, Severity: model.SeverityLow,
	})
	require.NoError(t, err)
	got, err := env.alerts.Get(ctx, a1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityCritical, got.Severity)
}

func TestRaiseAfterCloseOpensNewAlert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)

	first := env.raise(t, "A001", model.SeverityHigh)
	_, err := env.alerts.Close(ctx, first.ID, model.CloseAlertRequest{Code: model.ClosureResolved, Reason: "fixed"}, "kim")
	require.NoError(t, err)

	second := env.raise(t, "A001", model.SeverityHigh)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "AL002", second.ID)
}

func TestSnoozedAlertOnlyAdvancesLastSeen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)

	alert := env.raise(t, "A001", model.SeverityMedium)
	snoozed, err := env.alerts.Snooze(ctx, alert.ID, model.SnoozeAlertRequest{DurationHours: 4}, "kim")
	require.NoError(t, err)
	assert.True(t, snoozed.Suppressed(time.Now()))
	assert.Equal(t, model.AlertNew, snoozed.Status)

	later := time.Now().Add(time.Minute)
	_, created, err := env.alerts.Raise(ctx, model.DetectionPayload{
		AssetID: "A001", Signal: "vibration", DetectionType: model.DetectionAnomaly,
		Severity: model.SeverityCritical, DetectedAt: &later,
	})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := env.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityMedium, got.Severity)
	assert.Equal(t, 1, got.Occurrences)
	assert.Equal(t, later.UTC(), got.LastSeen)

	_, err = env.alerts.Snooze(ctx, alert.ID, model.SnoozeAlertRequest{}, "kim")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestConvertIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	env.addPart(t, "BRG-6308", 8)
	env.addPart(t, "SEAL-01", 1)

	alert := env.raise(t, "A001", model.SeverityHigh)
	before, err := env.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)

	_, _, err = env.alerts.Convert(ctx, alert.ID, model.ConvertAlertRequest{
		Draft: model.WorkOrderDraft{
			Title: "Replace bearing and seal",
			Parts: []model.PartRequest{{PartID: "BRG-6308", Qty: 2}, {PartID: "SEAL-01", Qty: 3}},
		},
	}, "kim")
	require.Error(t, err)
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "SEAL-01", stockErr.PartID)
	assert.Equal(t, 1, stockErr.Available)

	after, err := env.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	orders, err := env.workOrders.List(ctx, model.WorkOrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	bearing, err := env.ledger.Get(ctx, "BRG-6308")
	require.NoError(t, err)
	assert.Equal(t, 0, bearing.QuantityReserved)
	assert.NotContains(t, env.events.types(), model.EventAlertConverted)
}

// racingAlertStore - 전환 중 Alert 쓰기 직전에 새 작업지시를 승인하고 쓰기를 실패시킴
type racingAlertStore struct {
	*db.Memory
	workOrders *WorkOrderService
	failures   int
	approved   []string
}

func (s *racingAlertStore) UpdateAlert(ctx context.Context, a *model.Alert) error {
	if s.failures > 0 && a.WorkOrderID != "" {
		s.failures--
		if _, err := s.workOrders.Approve(ctx, a.WorkOrderID, 0, "planner"); err != nil {
			return err
		}
		s.approved = append(s.approved, a.WorkOrderID)
		return db.ErrVersionConflict
	}
	return s.Memory.UpdateAlert(ctx, a)
}

func TestConvertDiscardsWorkOrderTouchedBeforeAlertWrite(t *testing.T) {
	draft := model.WorkOrderDraft{
		Title: "Replace drive-end bearing",
		Parts: []model.PartRequest{{PartID: "BRG-6308", Qty: 1}},
	}

	t.Run("retry links a fresh work order", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		env.onboard(t, "A001", model.CriticalityCritical)
		env.addPart(t, "BRG-6308", 8)
		racing := &racingAlertStore{Memory: env.store, workOrders: env.workOrders, failures: 1}
		alerts := NewAlertService(racing, env.store, env.workOrders, env.events, zap.NewNop())
		alert := env.raise(t, "A001", model.SeverityCritical)

		converted, wo, err := alerts.Convert(ctx, alert.ID, model.ConvertAlertRequest{Draft: draft}, "kim")
		require.NoError(t, err)
		assert.Equal(t, []string{"WO001"}, racing.approved)
		assert.Equal(t, model.AlertConverted, converted.Status)
		assert.Equal(t, "WO002", wo.ID)

		_, err = env.workOrders.Get(ctx, "WO001")
		assert.ErrorIs(t, err, ErrNotFound)
		orders, err := env.workOrders.List(ctx, model.WorkOrderFilter{AlertID: alert.ID})
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, "WO002", orders[0].ID)

		part, err := env.ledger.Get(ctx, "BRG-6308")
		require.NoError(t, err)
		assert.Equal(t, 1, part.QuantityReserved)
	})

	t.Run("failed conversion leaves nothing behind", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		env.onboard(t, "A001", model.CriticalityCritical)
		env.addPart(t, "BRG-6308", 8)
		racing := &racingAlertStore{Memory: env.store, workOrders: env.workOrders, failures: 1}
		alerts := NewAlertService(racing, env.store, env.workOrders, env.events, zap.NewNop())
		alert := env.raise(t, "A001", model.SeverityCritical)

		_, _, err := alerts.Convert(ctx, alert.ID, model.ConvertAlertRequest{Version: alert.Version, Draft: draft}, "kim")
		assert.ErrorIs(t, err, ErrConflict)

		after, err := env.alerts.Get(ctx, alert.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AlertNew, after.Status)
		assert.Empty(t, after.WorkOrderID)

		orders, err := env.workOrders.List(ctx, model.WorkOrderFilter{})
		require.NoError(t, err)
		assert.Empty(t, orders)
		part, err := env.ledger.Get(ctx, "BRG-6308")
		require.NoError(t, err)
		assert.Equal(t, 0, part.QuantityReserved)

		// 다시 전환 가능
		_, wo, err := alerts.Convert(ctx, alert.ID, model.ConvertAlertRequest{Draft: draft}, "kim")
		require.NoError(t, err)
		assert.Equal(t, model.WorkOrderPending, wo.Status)
	})
}

func TestConvertRejectsTerminalAndMismatchedAsset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	env.onboard(t, "A002", model.CriticalityLow)

	alert := env.raise(t, "A001", model.SeverityHigh)
	_, _, err := env.alerts.Convert(ctx, alert.ID, model.ConvertAlertRequest{
		Draft: model.WorkOrderDraft{AssetID: "A002", Title: "Wrong asset"},
	}, "kim")
	assert.True(t, errors.Is(err, ErrValidation))

	_, wo, err := env.alerts.Convert(ctx, alert.ID, model.ConvertAlertRequest{
		Draft: model.WorkOrderDraft{Title: "Inspect"},
	}, "kim")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(3*24*time.Hour), wo.DueDate, time.Minute)

	_, _, err = env.alerts.Convert(ctx, alert.ID, model.ConvertAlertRequest{
		Draft: model.WorkOrderDraft{Title: "Inspect again"},
	}, "kim")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}
