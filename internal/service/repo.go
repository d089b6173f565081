package service

import (
	"context"
	"fmt"
	"time"

	"github.com/plantops/equipment-health/internal/model"
	"go.uber.org/zap"
)

// 서비스별 저장소 인터페이스 (db.Postgres, db.Memory가 구현)

type idAllocator interface {
	NextID(ctx context.Context, kind string) (int64, error)
}

type assetReader interface {
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
}

type assetRepo interface {
	assetReader
	InsertAsset(ctx context.Context, a *model.Asset) error
	ListAssets(ctx context.Context, f model.AssetFilter) ([]*model.Asset, error)
	UpdateAsset(ctx context.Context, a *model.Asset) error
}

type alertRepo interface {
	idAllocator
	InsertAlert(ctx context.Context, a *model.Alert) error
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	FindOpenAlert(ctx context.Context, assetID, signal string, detectionType model.DetectionType) (*model.Alert, error)
	ListAlerts(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error)
	UpdateAlert(ctx context.Context, a *model.Alert) error
}

type workOrderRepo interface {
	idAllocator
	InsertWorkOrder(ctx context.Context, w *model.WorkOrder) error
	GetWorkOrder(ctx context.Context, id string) (*model.WorkOrder, error)
	ListWorkOrders(ctx context.Context, f model.WorkOrderFilter) ([]*model.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, w *model.WorkOrder) error
	DeleteWorkOrder(ctx context.Context, id string, version int64) error
}

type partRepo interface {
	InsertPart(ctx context.Context, p *model.SparePart) error
	GetPart(ctx context.Context, id string) (*model.SparePart, error)
	ListParts(ctx context.Context) ([]*model.SparePart, error)
	UpdatePart(ctx context.Context, p *model.SparePart) error
}

// Publisher - LifecycleEventBus (events.Bus)
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) (model.Event, error)
}

// publish - 이벤트 발행 실패는 명령 결과를 바꾸지 않음 (로그만 남김)
// 요청 ctx가 취소돼도 로그 append는 끝까지 수행
func publish(ctx context.Context, pub Publisher, logger *zap.Logger, ev model.Event) {
	if pub == nil {
		return
	}
	if _, err := pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn("failed to publish lifecycle event",
			zap.String("event_type", string(ev.Type)),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err))
	}
}

// expectVersion - 호출자가 version을 명시했으면 현재 version과 같아야 함
func expectVersion(entity model.EntityKind, id string, current, expected int64) error {
	if expected > 0 && expected != current {
		return conflict(entity, id, fmt.Sprintf("expected version %d, current %d", expected, current))
	}
	return nil
}

// attemptsFor - version 명시 시 재시도 없음 (호출자가 재조회 후 판단)
func attemptsFor(expected int64) int {
	if expected > 0 {
		return 1
	}
	return DefaultRetryAttempts
}

func formatID(prefix string, n int64) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}

func utcNow(now func() time.Time) time.Time {
	return now().UTC()
}
