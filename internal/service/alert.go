// AlertLifecycleManager
//
// 상태 전이:
//
//	new -> acknowledged -> investigating -> {converted | closed}
//	new/acknowledged/investigating -> closed
//
// closed, converted는 종료 상태 (이후에는 Annotate만 허용)
// snooze는 상태가 아니라 suppressedUntil 플래그
//
// Raise 처리 흐름:
//  1. 같은 asset+signal+detectionType의 열린 Alert 조회
//     - 있으면: merge (lastSeen 전진, severity는 상향만, failure mode 합집합)
//     - snooze 중이면 lastSeen만 전진
//  2. 없으면 새 Alert 생성 (동시 생성 경합 시 저장소 유니크 제약 -> merge로 재시도)

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plantops/equipment-health/internal/db"
	"github.com/plantops/equipment-health/internal/metrics"
	"github.com/plantops/equipment-health/internal/model"
	"go.uber.org/zap"
)

// AlertService 구조체 정의
type AlertService struct {
	repo       alertRepo
	assets     assetReader
	workOrders *WorkOrderService
	events     Publisher
	logger     *zap.Logger
	now        func() time.Time
}

// AlertService 객체 생성
func NewAlertService(repo alertRepo, assets assetReader, workOrders *WorkOrderService, events Publisher, logger *zap.Logger) *AlertService {
	return &AlertService{
		repo:       repo,
		assets:     assets,
		workOrders: workOrders,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// Raise - 탐지 결과로 Alert 생성 또는 기존 열린 Alert에 merge
// created=false면 merge된 것
func (s *AlertService) Raise(ctx context.Context, payload model.DetectionPayload) (*model.Alert, bool, error) {
	if err := validateStruct(payload); err != nil {
		return nil, false, err
	}
	if _, err := s.assets.GetAsset(ctx, payload.AssetID); err != nil {
		return nil, false, storeErr(model.EntityAsset, payload.AssetID, err)
	}
	detectedAt := utcNow(s.now)
	if payload.DetectedAt != nil && !payload.DetectedAt.IsZero() {
		detectedAt = payload.DetectedAt.UTC()
	}

	var (
		out     *model.Alert
		created bool
		ev      model.Event
	)
	err := RetryOnConflict(ctx, DefaultRetryAttempts, func() error {
		existing, err := s.repo.FindOpenAlert(ctx, payload.AssetID, payload.Signal, payload.DetectionType)
		if err == nil {
			ev = s.merge(existing, payload, detectedAt)
			if err := s.repo.UpdateAlert(ctx, existing); err != nil {
				return storeErr(model.EntityAlert, existing.ID, err)
			}
			out, created = existing, false
			return nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("find open alert: %w", err)
		}

		a, err := s.newAlert(ctx, payload, detectedAt)
		if err != nil {
			return err
		}
		if err := s.repo.InsertAlert(ctx, a); err != nil {
			// 동시에 같은 키로 열린 Alert가 생성됨 -> 다음 시도에서 merge
			return storeErr(model.EntityAlert, a.ID, err)
		}
		out, created = a, true
		ev = model.Event{
			Type:     model.EventAlertCreated,
			NewState: string(a.Status),
			Attributes: map[string]string{
				"severity":       string(a.Severity),
				"signal":         a.Signal,
				"detection_type": string(a.DetectionType),
			},
		}
		return nil
	})
	op := "raise"
	if !created {
		op = "merge"
	}
	metrics.Transitions.WithLabelValues(string(model.EntityAlert), op, ErrorKind(err)).Inc()
	if err != nil {
		return nil, false, err
	}

	ev.EntityKind = model.EntityAlert
	ev.EntityID = out.ID
	ev.AssetID = out.AssetID
	ev.Actor = string(payload.DetectionType)
	publish(ctx, s.events, s.logger, ev)
	return out, created, nil
}

func (s *AlertService) newAlert(ctx context.Context, payload model.DetectionPayload, detectedAt time.Time) (*model.Alert, error) {
	n, err := s.repo.NextID(ctx, "alert")
	if err != nil {
		return nil, err
	}
	now := utcNow(s.now)
	return &model.Alert{
		ID:                    formatID("AL", n),
		AssetID:               payload.AssetID,
		Severity:              payload.Severity,
		DetectionType:         payload.DetectionType,
		Signal:                payload.Signal,
		Description:           strings.TrimSpace(payload.Description),
		Confidence:            payload.Confidence,
		FirstSeen:             detectedAt,
		LastSeen:              detectedAt,
		Occurrences:           1,
		Status:                model.AlertNew,
		SuspectedFailureModes: model.MergeFailureModes(nil, payload.SuspectedFailureModes),
		Annotations:           []model.Note{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// merge - 반복 탐지 반영, 발행할 이벤트 반환
func (s *AlertService) merge(a *model.Alert, payload model.DetectionPayload, detectedAt time.Time) model.Event {
	now := utcNow(s.now)
	if detectedAt.After(a.LastSeen) {
		a.LastSeen = detectedAt
	}
	a.UpdatedAt = now

	attrs := map[string]string{"last_seen": a.LastSeen.Format(time.RFC3339)}
	if a.Suppressed(now) {
		attrs["suppressed"] = "true"
		return model.Event{Type: model.EventAlertMerged, OldState: string(a.Status), NewState: string(a.Status), Attributes: attrs}
	}

	a.Occurrences++
	a.SuspectedFailureModes = model.MergeFailureModes(a.SuspectedFailureModes, payload.SuspectedFailureModes)
	if payload.Confidence > a.Confidence {
		a.Confidence = payload.Confidence
	}
	if payload.Severity.Rank() > a.Severity.Rank() {
		attrs["escalated_from"] = string(a.Severity)
		a.Severity = payload.Severity
	}
	attrs["severity"] = string(a.Severity)
	attrs["occurrences"] = strconv.Itoa(a.Occurrences)
	return model.Event{Type: model.EventAlertMerged, OldState: string(a.Status), NewState: string(a.Status), Attributes: attrs}
}

// Acknowledge - new -> acknowledged, 담당자가 없으면 호출자로 지정
func (s *AlertService) Acknowledge(ctx context.Context, id string, req model.AcknowledgeAlertRequest, actor string) (*model.Alert, error) {
	if blank(req.Comment) {
		return nil, validationError("comment is required")
	}
	return s.mutate(ctx, id, req.Version, "acknowledge", actor, func(a *model.Alert, now time.Time) (model.EventType, map[string]string, error) {
		if a.Status != model.AlertNew {
			return "", nil, invalidTransition(model.EntityAlert, id, "acknowledge", a.Status)
		}
		a.Status = model.AlertAcknowledged
		if a.Assignee == "" {
			a.Assignee = actor
		}
		a.Annotations = append(a.Annotations, model.Note{Author: actor, Text: strings.TrimSpace(req.Comment), CreatedAt: now})
		return model.EventAlertAcknowledged, map[string]string{"assignee": a.Assignee}, nil
	})
}

// Assign - 상태 변경 없이 담당자 지정 (종료 상태 불가)
func (s *AlertService) Assign(ctx context.Context, id string, req model.AssignAlertRequest, actor string) (*model.Alert, error) {
	if blank(req.Assignee) {
		return nil, validationError("assignee is required")
	}
	return s.mutate(ctx, id, req.Version, "assign", actor, func(a *model.Alert, _ time.Time) (model.EventType, map[string]string, error) {
		if a.Status.Terminal() {
			return "", nil, invalidTransition(model.EntityAlert, id, "assign", a.Status)
		}
		a.Assignee = strings.TrimSpace(req.Assignee)
		return model.EventAlertAssigned, map[string]string{"assignee": a.Assignee}, nil
	})
}

// Investigate - acknowledged -> investigating
func (s *AlertService) Investigate(ctx context.Context, id string, expected int64, actor string) (*model.Alert, error) {
	return s.mutate(ctx, id, expected, "investigate", actor, func(a *model.Alert, _ time.Time) (model.EventType, map[string]string, error) {
		if a.Status != model.AlertAcknowledged {
			return "", nil, invalidTransition(model.EntityAlert, id, "investigate", a.Status)
		}
		a.Status = model.AlertInvestigating
		return model.EventAlertInvestigating, nil, nil
	})
}

// Close - 종료 코드와 사유 필수
func (s *AlertService) Close(ctx context.Context, id string, req model.CloseAlertRequest, actor string) (*model.Alert, error) {
	if !req.Code.Valid() {
		return nil, validationError("closure code must be one of resolved, unfounded, duplicate, false-positive")
	}
	if blank(req.Reason) {
		return nil, validationError("reason is required")
	}
	return s.mutate(ctx, id, req.Version, "close", actor, func(a *model.Alert, now time.Time) (model.EventType, map[string]string, error) {
		if a.Status.Terminal() {
			return "", nil, invalidTransition(model.EntityAlert, id, "close", a.Status)
		}
		a.Status = model.AlertClosed
		a.Closure = &model.Closure{
			Code:     req.Code,
			Reason:   strings.TrimSpace(req.Reason),
			ClosedBy: actor,
			ClosedAt: now,
		}
		return model.EventAlertClosed, map[string]string{"code": string(req.Code), "severity": string(a.Severity)}, nil
	})
}

// Snooze - suppressedUntil 설정 (상태 변경 없음)
func (s *AlertService) Snooze(ctx context.Context, id string, req model.SnoozeAlertRequest, actor string) (*model.Alert, error) {
	if req.DurationHours <= 0 {
		return nil, validationError("duration_hours must be positive")
	}
	return s.mutate(ctx, id, req.Version, "snooze", actor, func(a *model.Alert, now time.Time) (model.EventType, map[string]string, error) {
		if a.Status.Terminal() {
			return "", nil, invalidTransition(model.EntityAlert, id, "snooze", a.Status)
		}
		until := now.Add(time.Duration(req.DurationHours * float64(time.Hour)))
		a.SuppressedUntil = &until
		return model.EventAlertSnoozed, map[string]string{"suppressed_until": until.Format(time.RFC3339)}, nil
	})
}

// Annotate - 감사 주석 (종료 상태 포함 모든 상태에서 허용)
func (s *AlertService) Annotate(ctx context.Context, id string, req model.AnnotateRequest, actor string) (*model.Alert, error) {
	if blank(req.Text) {
		return nil, validationError("text is required")
	}
	return s.mutate(ctx, id, 0, "annotate", actor, func(a *model.Alert, now time.Time) (model.EventType, map[string]string, error) {
		a.Annotations = append(a.Annotations, model.Note{Author: actor, Text: strings.TrimSpace(req.Text), CreatedAt: now})
		return model.EventAlertAnnotated, nil, nil
	})
}

// Convert - Alert를 WorkOrder로 전환
//
// 작업지시 생성(부품 예약 포함)이 실패하면 Alert는 그대로
// 작업지시 생성 후 Alert 쓰기가 실패하면 작업지시 삭제 + 예약 해제 후 에러 반환
func (s *AlertService) Convert(ctx context.Context, id string, req model.ConvertAlertRequest, actor string) (*model.Alert, *model.WorkOrder, error) {
	var (
		out *model.Alert
		wo  *model.WorkOrder
		old model.AlertStatus
	)
	err := RetryOnConflict(ctx, attemptsFor(req.Version), func() error {
		a, err := s.repo.GetAlert(ctx, id)
		if err != nil {
			return storeErr(model.EntityAlert, id, err)
		}
		if err := expectVersion(model.EntityAlert, id, a.Version, req.Version); err != nil {
			return err
		}
		if a.Status.Terminal() {
			return invalidTransition(model.EntityAlert, id, "convert", a.Status)
		}

		draft, err := s.conversionDraft(a, req.Draft)
		if err != nil {
			return err
		}
		created, err := s.workOrders.create(ctx, draft, a.ID)
		if err != nil {
			return err
		}

		old = a.Status
		now := utcNow(s.now)
		a.Status = model.AlertConverted
		a.WorkOrderID = created.ID
		a.UpdatedAt = now
		if err := s.repo.UpdateAlert(ctx, a); err != nil {
			s.workOrders.discard(ctx, created.ID)
			return storeErr(model.EntityAlert, id, err)
		}
		out, wo = a, created
		return nil
	})
	metrics.Transitions.WithLabelValues(string(model.EntityAlert), "convert", ErrorKind(err)).Inc()
	if err != nil {
		return nil, nil, err
	}

	s.workOrders.publishCreated(ctx, wo, actor)
	publish(ctx, s.events, s.logger, model.Event{
		Type:       model.EventAlertConverted,
		EntityKind: model.EntityAlert,
		EntityID:   out.ID,
		AssetID:    out.AssetID,
		OldState:   string(old),
		NewState:   string(out.Status),
		Actor:      actor,
		Attributes: map[string]string{"work_order_id": wo.ID},
	})
	return out, wo, nil
}

// conversionDraft - Alert 정보로 draft 기본값 채우기
func (s *AlertService) conversionDraft(a *model.Alert, draft model.WorkOrderDraft) (model.WorkOrderDraft, error) {
	if draft.AssetID != "" && draft.AssetID != a.AssetID {
		return draft, validationError("draft asset_id %s does not match alert asset %s", draft.AssetID, a.AssetID)
	}
	draft.AssetID = a.AssetID
	if draft.Priority == "" {
		draft.Priority = a.Severity
	}
	if blank(draft.Description) {
		draft.Description = a.Description
		if blank(draft.Description) {
			draft.Description = fmt.Sprintf("%s %s detection on %s", a.Severity, a.DetectionType, a.Signal)
		}
	}
	if draft.DueDate == nil {
		due := utcNow(s.now).Add(defaultDueIn[draft.Priority])
		draft.DueDate = &due
	}
	if draft.Assignee == "" {
		draft.Assignee = a.Assignee
	}
	return draft, nil
}

func (s *AlertService) Get(ctx context.Context, id string) (*model.Alert, error) {
	a, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, storeErr(model.EntityAlert, id, err)
	}
	return a, nil
}

func (s *AlertService) List(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error) {
	return s.repo.ListAlerts(ctx, f)
}

// Now - suppressed 플래그 계산용 현재 시각
func (s *AlertService) Now() time.Time {
	return utcNow(s.now)
}

type alertMutation func(a *model.Alert, now time.Time) (model.EventType, map[string]string, error)

// mutate - 재조회 -> 전이 검증 -> version 비교 쓰기 -> 이벤트 발행
func (s *AlertService) mutate(ctx context.Context, id string, expected int64, op, actor string, apply alertMutation) (*model.Alert, error) {
	var (
		out    *model.Alert
		old    model.AlertStatus
		evType model.EventType
		attrs  map[string]string
	)
	err := RetryOnConflict(ctx, attemptsFor(expected), func() error {
		a, err := s.repo.GetAlert(ctx, id)
		if err != nil {
			return storeErr(model.EntityAlert, id, err)
		}
		if err := expectVersion(model.EntityAlert, id, a.Version, expected); err != nil {
			return err
		}
		old = a.Status
		now := utcNow(s.now)
		evType, attrs, err = apply(a, now)
		if err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := s.repo.UpdateAlert(ctx, a); err != nil {
			err = storeErr(model.EntityAlert, id, err)
			if errors.Is(err, ErrConflict) {
				metrics.ConflictRetries.WithLabelValues(string(model.EntityAlert)).Inc()
			}
			return err
		}
		out = a
		return nil
	})
	metrics.Transitions.WithLabelValues(string(model.EntityAlert), op, ErrorKind(err)).Inc()
	if err != nil {
		return nil, err
	}
	publish(ctx, s.events, s.logger, model.Event{
		Type:       evType,
		EntityKind: model.EntityAlert,
		EntityID:   id,
		AssetID:    out.AssetID,
		OldState:   string(old),
		NewState:   string(out.Status),
		Actor:      actor,
		Attributes: attrs,
	})
	return out, nil
}
