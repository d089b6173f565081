package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/db"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recorder - 발행된 이벤트를 순서대로 기록하는 Publisher
type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Publish(_ context.Context, ev model.Event) (model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Sequence = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return ev, nil
}

func (r *recorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) last(t model.EventType) (model.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return model.Event{}, false
}

type testEnv struct {
	store      *db.Memory
	events     *recorder
	assets     *AssetService
	ledger     *LedgerService
	workOrders *WorkOrderService
	alerts     *AlertService
	aggregator *HealthAggregator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := db.NewMemory()
	rec := &recorder{}
	logger := zap.NewNop()

	assets := NewAssetService(store, rec, logger, DefaultHealthPolicy(6*time.Hour))
	ledger := NewLedgerService(store, rec, logger)
	workOrders := NewWorkOrderService(store, store, ledger, rec, logger)
	alerts := NewAlertService(store, store, workOrders, rec, logger)
	aggregator := NewHealthAggregator(store, store, store, store, rec, logger, DefaultHealthPolicy(6*time.Hour), time.Minute)

	return &testEnv{
		store:      store,
		events:     rec,
		assets:     assets,
		ledger:     ledger,
		workOrders: workOrders,
		alerts:     alerts,
		aggregator: aggregator,
	}
}

func (e *testEnv) onboard(t *testing.T, id string, criticality model.Criticality) *model.Asset {
	t.Helper()
	a, err := e.assets.Onboard(context.Background(), model.OnboardAssetRequest{
		ID:          id,
		Tag:         "TAG-" + id,
		Type:        "pump",
		Location:    model.Location{Plant: "P1", Area: "North", Line: "L1"},
		Criticality: criticality,
	}, "seed")
	require.NoError(t, err)
	return a
}

func (e *testEnv) addPart(t *testing.T, id string, onHand int) *model.SparePart {
	t.Helper()
	p, err := e.ledger.CreatePart(context.Background(), model.CreatePartRequest{
		ID:             id,
		PartNumber:     "PN-" + id,
		QuantityOnHand: onHand,
		MinStock:       2,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) observe(t *testing.T, assetID string, score float64) *model.Asset {
	t.Helper()
	a, accepted, err := e.assets.RecordObservation(context.Background(), assetID, model.RecordObservationRequest{
		HealthScore: score,
		Confidence:  0.9,
		DataQuality: 95,
	}, "sensor-gateway")
	require.NoError(t, err)
	require.True(t, accepted)
	return a
}

func (e *testEnv) raise(t *testing.T, assetID string, severity model.Severity) *model.Alert {
	t.Helper()
	a, _, err := e.alerts.Raise(context.Background(), model.DetectionPayload{
		AssetID:       assetID,
		Signal:        "vibration",
		DetectionType: model.DetectionAnomaly,
		Severity:      severity,
		Description:   "bearing vibration above baseline",
		Confidence:    0.8,
	})
	require.NoError(t, err)
	return a
}

func dueIn(d time.Duration) *time.Time {
	t := time.Now().Add(d)
	return &t
}
