// WorkOrderLifecycleManager
//
//	pending -> approved -> in-progress -> completed
//	pending/approved -> cancelled
//
// Create: 부품 예약은 all-or-nothing (하나라도 실패하면 앞서 예약한 부품 해제)
// Complete: 작업지시 상태를 먼저 쓰고 예약 부품 출고(Consume), 출고 실패 시 in-progress로 되돌림
// Cancel: 작업지시 쓰기 후 예약 부품 해제

package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/plantops/equipment-health/internal/metrics"
	"github.com/plantops/equipment-health/internal/model"
	"go.uber.org/zap"
)

// defaultDueIn - priority별 기본 due date (전환 시 미지정이면 사용)
var defaultDueIn = map[model.Severity]time.Duration{
	model.SeverityCritical: 24 * time.Hour,
	model.SeverityHigh:     3 * 24 * time.Hour,
	model.SeverityMedium:   7 * 24 * time.Hour,
	model.SeverityLow:      14 * 24 * time.Hour,
}

type WorkOrderService struct {
	repo   workOrderRepo
	assets assetReader
	ledger *LedgerService
	events Publisher
	logger *zap.Logger
	now    func() time.Time
}

func NewWorkOrderService(repo workOrderRepo, assets assetReader, ledger *LedgerService, events Publisher, logger *zap.Logger) *WorkOrderService {
	return &WorkOrderService{
		repo:   repo,
		assets: assets,
		ledger: ledger,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Create - 작업지시 직접 생성 (alert 연결 없음)
func (s *WorkOrderService) Create(ctx context.Context, draft model.WorkOrderDraft, actor string) (*model.WorkOrder, error) {
	w, err := s.create(ctx, draft, "")
	metrics.Transitions.WithLabelValues(string(model.EntityWorkOrder), "create", ErrorKind(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.publishCreated(ctx, w, actor)
	return w, nil
}

// create - 검증, 부품 예약, 저장 (이벤트 발행은 호출자가 최종 확정 후 수행)
func (s *WorkOrderService) create(ctx context.Context, draft model.WorkOrderDraft, alertID string) (*model.WorkOrder, error) {
	if err := validateStruct(draft); err != nil {
		return nil, err
	}
	switch {
	case blank(draft.AssetID):
		return nil, validationError("asset_id is required")
	case blank(draft.Title):
		return nil, validationError("title is required")
	case blank(draft.Description):
		return nil, validationError("description is required")
	case draft.DueDate == nil || draft.DueDate.IsZero():
		return nil, validationError("due_date is required")
	}
	priority := draft.Priority
	if priority == "" {
		priority = model.SeverityMedium
	}

	asset, err := s.assets.GetAsset(ctx, draft.AssetID)
	if err != nil {
		return nil, storeErr(model.EntityAsset, draft.AssetID, err)
	}
	if !asset.Active {
		return nil, validationError("asset %s is deactivated", asset.ID)
	}

	n, err := s.repo.NextID(ctx, "work_order")
	if err != nil {
		return nil, err
	}
	now := utcNow(s.now)
	w := &model.WorkOrder{
		ID:                   formatID("WO", n),
		AssetID:              asset.ID,
		AlertID:              alertID,
		Title:                strings.TrimSpace(draft.Title),
		Description:          strings.TrimSpace(draft.Description),
		Priority:             priority,
		Status:               model.WorkOrderPending,
		CreatedAt:            now,
		DueDate:              draft.DueDate.UTC(),
		Assignee:             strings.TrimSpace(draft.Assignee),
		EstimatedDurationHrs: draft.EstimatedDurationHrs,
		ReservedParts:        []model.PartRequest{},
		Notes:                []model.Note{},
		UpdatedAt:            now,
	}

	parts := mergePartRequests(draft.Parts)
	for i, p := range parts {
		if _, err := s.ledger.Reserve(ctx, p.PartID, p.Qty, w.ID); err != nil {
			s.releaseParts(ctx, parts[:i], w.ID)
			return nil, err
		}
	}
	w.ReservedParts = parts

	if err := s.repo.InsertWorkOrder(ctx, w); err != nil {
		s.releaseParts(ctx, parts, w.ID)
		if alertID != "" && ErrorKind(storeErr(model.EntityWorkOrder, w.ID, err)) == "conflict" {
			return nil, conflict(model.EntityAlert, alertID, "alert already has a work order")
		}
		return nil, storeErr(model.EntityWorkOrder, w.ID, err)
	}
	return w, nil
}

// discard - 전환 실패 시 보상 (작업지시 삭제 + 예약 해제)
//
// 생성 직후 다른 명령이 작업지시를 바꿨을 수 있으므로 저장된 행을 다시 읽어 그 version으로 삭제
// 해제할 부품도 저장된 행 기준 (cancelled면 Cancel이 이미 반환, completed면 출고되어 삭제하지 않음)
func (s *WorkOrderService) discard(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	var release []model.PartRequest
	err := RetryOnConflict(ctx, ledgerRetryAttempts, func() error {
		release = nil
		w, err := s.repo.GetWorkOrder(ctx, id)
		if err != nil {
			return storeErr(model.EntityWorkOrder, id, err)
		}
		if w.Status == model.WorkOrderCompleted {
			return invalidTransition(model.EntityWorkOrder, id, "discard", w.Status)
		}
		if err := s.repo.DeleteWorkOrder(ctx, id, w.Version); err != nil {
			return storeErr(model.EntityWorkOrder, id, err)
		}
		if w.Status != model.WorkOrderCancelled {
			release = w.ReservedParts
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return
		}
		s.logger.Error("failed to discard work order", zap.String("work_order_id", id), zap.Error(err))
		return
	}
	s.releaseParts(ctx, release, id)
}

func (s *WorkOrderService) releaseParts(ctx context.Context, parts []model.PartRequest, ref string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range parts {
		if _, err := s.ledger.Release(ctx, p.PartID, p.Qty, ref); err != nil {
			s.logger.Error("failed to release reserved part",
				zap.String("work_order_id", ref),
				zap.String("part_id", p.PartID),
				zap.Int("qty", p.Qty),
				zap.Error(err))
		}
	}
}

func (s *WorkOrderService) publishCreated(ctx context.Context, w *model.WorkOrder, actor string) {
	attrs := map[string]string{
		"priority": string(w.Priority),
		"due_date": w.DueDate.Format(time.RFC3339),
	}
	if w.AlertID != "" {
		attrs["alert_id"] = w.AlertID
	}
	publish(ctx, s.events, s.logger, model.Event{
		Type:       model.EventWorkOrderCreated,
		EntityKind: model.EntityWorkOrder,
		EntityID:   w.ID,
		AssetID:    w.AssetID,
		NewState:   string(w.Status),
		Actor:      actor,
		Attributes: attrs,
	})
}

func (s *WorkOrderService) Approve(ctx context.Context, id string, expected int64, actor string) (*model.WorkOrder, error) {
	return s.mutate(ctx, id, expected, "approve", actor, func(w *model.WorkOrder, now time.Time) (model.EventType, map[string]string, error) {
		if w.Status != model.WorkOrderPending {
			return "", nil, invalidTransition(model.EntityWorkOrder, id, "approve", w.Status)
		}
		w.Status = model.WorkOrderApproved
		w.ApprovedAt = &now
		return model.EventWorkOrderApproved, nil, nil
	})
}

func (s *WorkOrderService) Start(ctx context.Context, id string, expected int64, actor string) (*model.WorkOrder, error) {
	return s.mutate(ctx, id, expected, "start", actor, func(w *model.WorkOrder, now time.Time) (model.EventType, map[string]string, error) {
		if w.Status != model.WorkOrderApproved {
			return "", nil, invalidTransition(model.EntityWorkOrder, id, "start", w.Status)
		}
		w.Status = model.WorkOrderInProgress
		w.StartedAt = &now
		return model.EventWorkOrderStarted, nil, nil
	})
}

// Complete - in-progress -> completed, 예약 부품 출고
func (s *WorkOrderService) Complete(ctx context.Context, id string, req model.CompleteWorkOrderRequest, actor string) (*model.WorkOrder, error) {
	if req.ActualDurationHrs <= 0 {
		return nil, validationError("actual_duration_hours must be positive")
	}

	var out *model.WorkOrder
	err := RetryOnConflict(ctx, attemptsFor(req.Version), func() error {
		w, err := s.repo.GetWorkOrder(ctx, id)
		if err != nil {
			return storeErr(model.EntityWorkOrder, id, err)
		}
		if err := expectVersion(model.EntityWorkOrder, id, w.Version, req.Version); err != nil {
			return err
		}
		if w.Status != model.WorkOrderInProgress {
			return invalidTransition(model.EntityWorkOrder, id, "complete", w.Status)
		}

		now := utcNow(s.now)
		w.Status = model.WorkOrderCompleted
		w.CompletedAt = &now
		w.ActualDurationHrs = req.ActualDurationHrs
		w.RootCause = strings.TrimSpace(req.RootCause)
		w.UpdatedAt = now
		if err := s.repo.UpdateWorkOrder(ctx, w); err != nil {
			return storeErr(model.EntityWorkOrder, id, err)
		}
		out = w
		return nil
	})
	if err == nil {
		if err = s.consumeParts(ctx, out); err != nil {
			s.reopen(ctx, id)
			out = nil
		}
	}
	metrics.Transitions.WithLabelValues(string(model.EntityWorkOrder), "complete", ErrorKind(err)).Inc()
	if err != nil {
		return nil, err
	}

	attrs := map[string]string{"actual_duration_hours": strconv.FormatFloat(out.ActualDurationHrs, 'f', 2, 64)}
	if out.RootCause != "" {
		attrs["root_cause"] = out.RootCause
	}
	if out.AlertID != "" {
		attrs["alert_id"] = out.AlertID
	}
	publish(ctx, s.events, s.logger, model.Event{
		Type:       model.EventWorkOrderCompleted,
		EntityKind: model.EntityWorkOrder,
		EntityID:   id,
		AssetID:    out.AssetID,
		OldState:   string(model.WorkOrderInProgress),
		NewState:   string(out.Status),
		Actor:      actor,
		Attributes: attrs,
	})
	return out, nil
}

// consumeParts - 완료된 작업지시의 예약 부품 출고 (하나라도 실패하면 앞서 출고한 부품 복구)
func (s *WorkOrderService) consumeParts(ctx context.Context, w *model.WorkOrder) error {
	ctx = context.WithoutCancel(ctx)
	consumed := make([]model.PartRequest, 0, len(w.ReservedParts))
	for _, p := range w.ReservedParts {
		if _, err := s.ledger.Consume(ctx, p.PartID, p.Qty, w.ID); err != nil {
			s.restoreParts(ctx, consumed, w.ID)
			return err
		}
		consumed = append(consumed, p)
	}
	return nil
}

// reopen - 출고 실패 시 completed -> in-progress 복구
func (s *WorkOrderService) reopen(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	err := RetryOnConflict(ctx, ledgerRetryAttempts, func() error {
		w, err := s.repo.GetWorkOrder(ctx, id)
		if err != nil {
			return storeErr(model.EntityWorkOrder, id, err)
		}
		if w.Status != model.WorkOrderCompleted {
			return nil
		}
		w.Status = model.WorkOrderInProgress
		w.CompletedAt = nil
		w.ActualDurationHrs = 0
		w.RootCause = ""
		w.UpdatedAt = utcNow(s.now)
		return storeErr(model.EntityWorkOrder, id, s.repo.UpdateWorkOrder(ctx, w))
	})
	if err != nil {
		s.logger.Error("failed to reopen work order after consume failure", zap.String("work_order_id", id), zap.Error(err))
	}
}

func (s *WorkOrderService) restoreParts(ctx context.Context, parts []model.PartRequest, ref string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range parts {
		if _, err := s.ledger.restore(ctx, p.PartID, p.Qty, ref); err != nil {
			s.logger.Error("failed to restore consumed part",
				zap.String("work_order_id", ref),
				zap.String("part_id", p.PartID),
				zap.Error(err))
		}
	}
}

// Cancel - pending/approved에서만 가능, 예약 부품 반환
func (s *WorkOrderService) Cancel(ctx context.Context, id string, req model.CancelWorkOrderRequest, actor string) (*model.WorkOrder, error) {
	if blank(req.Reason) {
		return nil, validationError("reason is required")
	}
	w, err := s.mutate(ctx, id, req.Version, "cancel", actor, func(w *model.WorkOrder, now time.Time) (model.EventType, map[string]string, error) {
		if w.Status != model.WorkOrderPending && w.Status != model.WorkOrderApproved {
			return "", nil, invalidTransition(model.EntityWorkOrder, id, "cancel", w.Status)
		}
		w.Status = model.WorkOrderCancelled
		w.CancelReason = strings.TrimSpace(req.Reason)
		return model.EventWorkOrderCancelled, map[string]string{"reason": w.CancelReason}, nil
	})
	if err != nil {
		return nil, err
	}
	s.releaseParts(ctx, w.ReservedParts, id)
	return w, nil
}

func (s *WorkOrderService) AssignTechnician(ctx context.Context, id string, req model.AssignTechnicianRequest, actor string) (*model.WorkOrder, error) {
	if blank(req.Technician) {
		return nil, validationError("technician is required")
	}
	return s.mutate(ctx, id, req.Version, "assign", actor, func(w *model.WorkOrder, _ time.Time) (model.EventType, map[string]string, error) {
		if w.Status.Terminal() {
			return "", nil, invalidTransition(model.EntityWorkOrder, id, "assign", w.Status)
		}
		w.Assignee = strings.TrimSpace(req.Technician)
		return model.EventWorkOrderAssigned, map[string]string{"assignee": w.Assignee}, nil
	})
}

// AddNote - 감사 기록, 종료 상태에서도 허용
func (s *WorkOrderService) AddNote(ctx context.Context, id string, req model.AnnotateRequest, actor string) (*model.WorkOrder, error) {
	if blank(req.Text) {
		return nil, validationError("text is required")
	}
	return s.mutate(ctx, id, 0, "note", actor, func(w *model.WorkOrder, now time.Time) (model.EventType, map[string]string, error) {
		w.Notes = append(w.Notes, model.Note{Author: actor, Text: strings.TrimSpace(req.Text), CreatedAt: now})
		return model.EventWorkOrderNoted, nil, nil
	})
}

func (s *WorkOrderService) Get(ctx context.Context, id string) (*model.WorkOrder, error) {
	w, err := s.repo.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, storeErr(model.EntityWorkOrder, id, err)
	}
	return w, nil
}

func (s *WorkOrderService) List(ctx context.Context, f model.WorkOrderFilter) ([]*model.WorkOrder, error) {
	if f.Now.IsZero() {
		f.Now = utcNow(s.now)
	}
	return s.repo.ListWorkOrders(ctx, f)
}

// Now - overdue 플래그 계산용 현재 시각
func (s *WorkOrderService) Now() time.Time {
	return utcNow(s.now)
}

type workOrderMutation func(w *model.WorkOrder, now time.Time) (model.EventType, map[string]string, error)

func (s *WorkOrderService) mutate(ctx context.Context, id string, expected int64, op, actor string, apply workOrderMutation) (*model.WorkOrder, error) {
	var (
		out    *model.WorkOrder
		old    model.WorkOrderStatus
		evType model.EventType
		attrs  map[string]string
	)
	err := RetryOnConflict(ctx, attemptsFor(expected), func() error {
		w, err := s.repo.GetWorkOrder(ctx, id)
		if err != nil {
			return storeErr(model.EntityWorkOrder, id, err)
		}
		if err := expectVersion(model.EntityWorkOrder, id, w.Version, expected); err != nil {
			return err
		}
		old = w.Status
		now := utcNow(s.now)
		evType, attrs, err = apply(w, now)
		if err != nil {
			return err
		}
		w.UpdatedAt = now
		if err := s.repo.UpdateWorkOrder(ctx, w); err != nil {
			err = storeErr(model.EntityWorkOrder, id, err)
			if errors.Is(err, ErrConflict) {
				metrics.ConflictRetries.WithLabelValues(string(model.EntityWorkOrder)).Inc()
			}
			return err
		}
		out = w
		return nil
	})
	metrics.Transitions.WithLabelValues(string(model.EntityWorkOrder), op, ErrorKind(err)).Inc()
	if err != nil {
		return nil, err
	}
	publish(ctx, s.events, s.logger, model.Event{
		Type:       evType,
		EntityKind: model.EntityWorkOrder,
		EntityID:   id,
		AssetID:    out.AssetID,
		OldState:   string(old),
		NewState:   string(out.Status),
		Actor:      actor,
		Attributes: attrs,
	})
	return out, nil
}

// mergePartRequests - 같은 부품 요청 합산 (첫 등장 순서 유지)
func mergePartRequests(reqs []model.PartRequest) []model.PartRequest {
	out := make([]model.PartRequest, 0, len(reqs))
	index := make(map[string]int, len(reqs))
	for _, r := range reqs {
		if i, ok := index[r.PartID]; ok {
			out[i].Qty += r.Qty
			continue
		}
		index[r.PartID] = len(out)
		out = append(out, r)
	}
	return out
}
