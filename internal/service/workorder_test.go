package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraft(assetID string, parts ...model.PartRequest) model.WorkOrderDraft {
	return model.WorkOrderDraft{
		AssetID:              assetID,
		Title:                "Replace pump seal",
		Description:          "seal leaking at drive end",
		Priority:             model.SeverityHigh,
		DueDate:              dueIn(48 * time.Hour),
		EstimatedDurationHrs: 3,
		Parts:                parts,
	}
}

func TestWorkOrderLifecycleConsumesParts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	env.addPart(t, "SEAL-01", 5)

	wo, err := env.workOrders.Create(ctx, newDraft("A001", model.PartRequest{PartID: "SEAL-01", Qty: 2}), "planner")
	require.NoError(t, err)
	assert.Equal(t, "WO001", wo.ID)
	assert.Equal(t, model.WorkOrderPending, wo.Status)
	assert.Empty(t, wo.AlertID)

	wo, err = env.workOrders.Approve(ctx, wo.ID, wo.Version, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, model.WorkOrderApproved, wo.Status)
	require.NotNil(t, wo.ApprovedAt)

	wo, err = env.workOrders.Start(ctx, wo.ID, 0, "tech")
	require.NoError(t, err)
	assert.Equal(t, model.WorkOrderInProgress, wo.Status)

	wo, err = env.workOrders.Complete(ctx, wo.ID, model.CompleteWorkOrderRequest{ActualDurationHrs: 2.5, RootCause: "worn seal"}, "tech")
	require.NoError(t, err)
	assert.Equal(t, model.WorkOrderCompleted, wo.Status)
	assert.Equal(t, 2.5, wo.ActualDurationHrs)
	require.NotNil(t, wo.CompletedAt)

	part, err := env.ledger.Get(ctx, "SEAL-01")
	require.NoError(t, err)
	assert.Equal(t, 3, part.QuantityOnHand)
	assert.Equal(t, 0, part.QuantityReserved)

	ev, ok := env.events.last(model.EventWorkOrderCompleted)
	require.True(t, ok)
	assert.Equal(t, "worn seal", ev.Attributes["root_cause"])
	assert.Equal(t, string(model.WorkOrderInProgress), ev.OldState)
}

func TestCancelReleasesReservedParts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	env.addPart(t, "SEAL-01", 5)

	wo, err := env.workOrders.Create(ctx, newDraft("A001",
		model.PartRequest{PartID: "SEAL-01", Qty: 1},
		model.PartRequest{PartID: "SEAL-01", Qty: 2},
	), "planner")
	require.NoError(t, err)
	assert.Equal(t, []model.PartRequest{{PartID: "SEAL-01", Qty: 3}}, wo.ReservedParts)

	part, err := env.ledger.Get(ctx, "SEAL-01")
	require.NoError(t, err)
	assert.Equal(t, 3, part.QuantityReserved)

	_, err = env.workOrders.Cancel(ctx, wo.ID, model.CancelWorkOrderRequest{}, "planner")
	assert.True(t, errors.Is(err, ErrValidation))

	wo, err = env.workOrders.Cancel(ctx, wo.ID, model.CancelWorkOrderRequest{Reason: "duplicate request"}, "planner")
	require.NoError(t, err)
	assert.Equal(t, model.WorkOrderCancelled, wo.Status)
	assert.Equal(t, "duplicate request", wo.CancelReason)

	part, err = env.ledger.Get(ctx, "SEAL-01")
	require.NoError(t, err)
	assert.Equal(t, 0, part.QuantityReserved)
	assert.Equal(t, 5, part.QuantityOnHand)
}

func TestCreateReservesAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	env.addPart(t, "BRG-6308", 8)
	env.addPart(t, "SEAL-01", 1)

	_, err := env.workOrders.Create(ctx, newDraft("A001",
		model.PartRequest{PartID: "BRG-6308", Qty: 4},
		model.PartRequest{PartID: "SEAL-01", Qty: 2},
	), "planner")
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 2, stockErr.Requested)

	for _, id := range []string{"BRG-6308", "SEAL-01"} {
		part, err := env.ledger.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, part.QuantityReserved, id)
	}
	orders, err := env.workOrders.List(ctx, model.WorkOrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.NotContains(t, env.events.types(), model.EventWorkOrderCreated)

	_, err = env.workOrders.Create(ctx, newDraft("A001", model.PartRequest{PartID: "NOPE", Qty: 1}), "planner")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	env.onboard(t, "A002", model.CriticalityLow)
	_, err := env.assets.Deactivate(ctx, "A002", 0, "admin")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(d *model.WorkOrderDraft)
		wantErr error
	}{
		{name: "missing title", mutate: func(d *model.WorkOrderDraft) { d.Title = " " }, wantErr: ErrValidation},
		{name: "missing description", mutate: func(d *model.WorkOrderDraft) { d.Description = "" }, wantErr: ErrValidation},
		{name: "missing due date", mutate: func(d *model.WorkOrderDraft) { d.DueDate = nil }, wantErr: ErrValidation},
		{name: "bad priority", mutate: func(d *model.WorkOrderDraft) { d.Priority = "urgent" }, wantErr: ErrValidation},
		{name: "zero qty", mutate: func(d *model.WorkOrderDraft) { d.Parts = []model.PartRequest{{PartID: "X", Qty: 0}} }, wantErr: ErrValidation},
		{name: "unknown asset", mutate: func(d *model.WorkOrderDraft) { d.AssetID = "A404" }, wantErr: ErrNotFound},
		{name: "deactivated asset", mutate: func(d *model.WorkOrderDraft) { d.AssetID = "A002" }, wantErr: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDraft("A001")
			tt.mutate(&d)
			_, err := env.workOrders.Create(ctx, d, "planner")
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestWorkOrderInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)

	wo, err := env.workOrders.Create(ctx, newDraft("A001"), "planner")
	require.NoError(t, err)

	_, err = env.workOrders.Start(ctx, wo.ID, 0, "tech")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = env.workOrders.Complete(ctx, wo.ID, model.CompleteWorkOrderRequest{ActualDurationHrs: 1}, "tech")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = env.workOrders.Complete(ctx, wo.ID, model.CompleteWorkOrderRequest{}, "tech")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = env.workOrders.Approve(ctx, wo.ID, 0, "supervisor")
	require.NoError(t, err)
	_, err = env.workOrders.Approve(ctx, wo.ID, 0, "supervisor")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = env.workOrders.Start(ctx, wo.ID, 0, "tech")
	require.NoError(t, err)
	_, err = env.workOrders.Cancel(ctx, wo.ID, model.CancelWorkOrderRequest{Reason: "too late"}, "planner")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	_, err = env.workOrders.Approve(ctx, "WO404", 0, "supervisor")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = env.workOrders.Approve(ctx, wo.ID, 1, "supervisor")
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestAssignAndNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)

	wo, err := env.workOrders.Create(ctx, newDraft("A001"), "planner")
	require.NoError(t, err)

	wo, err = env.workOrders.AssignTechnician(ctx, wo.ID, model.AssignTechnicianRequest{Technician: "park"}, "planner")
	require.NoError(t, err)
	assert.Equal(t, "park", wo.Assignee)

	_, err = env.workOrders.Cancel(ctx, wo.ID, model.CancelWorkOrderRequest{Reason: "scope changed"}, "planner")
	require.NoError(t, err)

	_, err = env.workOrders.AssignTechnician(ctx, wo.ID, model.AssignTechnicianRequest{Technician: "lee"}, "planner")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	wo, err = env.workOrders.AddNote(ctx, wo.ID, model.AnnotateRequest{Text: "merged into WO002"}, "planner")
	require.NoError(t, err)
	require.Len(t, wo.Notes, 1)
	assert.Equal(t, "planner", wo.Notes[0].Author)
}

func TestOverdueIsDerived(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)

	d := newDraft("A001")
	d.DueDate = dueIn(time.Hour)
	wo, err := env.workOrders.Create(ctx, d, "planner")
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Hour)
	assert.True(t, wo.Overdue(later))
	assert.Equal(t, model.WorkOrderPending, wo.Status)

	overdue, err := env.workOrders.List(ctx, model.WorkOrderFilter{OverdueOnly: true, Now: later})
	require.NoError(t, err)
	assert.Len(t, overdue, 1)

	_, err = env.workOrders.Cancel(ctx, wo.ID, model.CancelWorkOrderRequest{Reason: "not needed"}, "planner")
	require.NoError(t, err)
	overdue, err = env.workOrders.List(ctx, model.WorkOrderFilter{OverdueOnly: true, Now: later})
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func startedWorkOrder(t *testing.T, env *testEnv, parts ...model.PartRequest) *model.WorkOrder {
	t.Helper()
	ctx := context.Background()
	wo, err := env.workOrders.Create(ctx, newDraft("A001", parts...), "planner")
	require.NoError(t, err)
	_, err = env.workOrders.Approve(ctx, wo.ID, 0, "supervisor")
	require.NoError(t, err)
	wo, err = env.workOrders.Start(ctx, wo.ID, 0, "tech")
	require.NoError(t, err)
	return wo
}

func TestConcurrentCompleteConsumesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	env.addPart(t, "SEAL-01", 5)

	first := startedWorkOrder(t, env, model.PartRequest{PartID: "SEAL-01", Qty: 2})
	startedWorkOrder(t, env, model.PartRequest{PartID: "SEAL-01", Qty: 2})

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.workOrders.Complete(ctx, first.ID, model.CompleteWorkOrderRequest{ActualDurationHrs: 1}, "tech")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
			default:
				t.Errorf("unexpected error kind %s: %v", ErrorKind(err), err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	part, err := env.ledger.Get(ctx, "SEAL-01")
	require.NoError(t, err)
	assert.Equal(t, 3, part.QuantityOnHand)
	// 두 번째 작업지시 예약분은 그대로
	assert.Equal(t, 2, part.QuantityReserved)
}

func TestCompleteReopensWhenPartsCannotBeConsumed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.onboard(t, "A001", model.CriticalityHigh)
	env.addPart(t, "SEAL-01", 5)
	env.addPart(t, "BRG-6308", 4)

	wo := startedWorkOrder(t, env,
		model.PartRequest{PartID: "SEAL-01", Qty: 1},
		model.PartRequest{PartID: "BRG-6308", Qty: 2})

	// 외부에서 예약이 풀린 상태
	bearing, err := env.store.GetPart(ctx, "BRG-6308")
	require.NoError(t, err)
	bearing.QuantityReserved = 0
	require.NoError(t, env.store.UpdatePart(ctx, bearing))

	_, err = env.workOrders.Complete(ctx, wo.ID, model.CompleteWorkOrderRequest{ActualDurationHrs: 1}, "tech")
	assert.ErrorIs(t, err, ErrValidation)

	after, err := env.workOrders.Get(ctx, wo.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkOrderInProgress, after.Status)
	assert.Nil(t, after.CompletedAt)

	seal, err := env.ledger.Get(ctx, "SEAL-01")
	require.NoError(t, err)
	assert.Equal(t, 5, seal.QuantityOnHand)
	assert.Equal(t, 1, seal.QuantityReserved)
	assert.NotContains(t, env.events.types(), model.EventWorkOrderCompleted)
}
