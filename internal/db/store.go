package db

import (
	"context"

	"github.com/plantops/equipment-health/internal/model"
)

// Store - Postgres, Memory 공통 저장소
type Store interface {
	NextID(ctx context.Context, kind string) (int64, error)

	InsertAsset(ctx context.Context, a *model.Asset) error
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
	ListAssets(ctx context.Context, f model.AssetFilter) ([]*model.Asset, error)
	UpdateAsset(ctx context.Context, a *model.Asset) error

	InsertAlert(ctx context.Context, a *model.Alert) error
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	FindOpenAlert(ctx context.Context, assetID, signal string, detectionType model.DetectionType) (*model.Alert, error)
	ListAlerts(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error)
	UpdateAlert(ctx context.Context, a *model.Alert) error

	InsertWorkOrder(ctx context.Context, w *model.WorkOrder) error
	GetWorkOrder(ctx context.Context, id string) (*model.WorkOrder, error)
	ListWorkOrders(ctx context.Context, f model.WorkOrderFilter) ([]*model.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, w *model.WorkOrder) error
	DeleteWorkOrder(ctx context.Context, id string, version int64) error

	InsertPart(ctx context.Context, p *model.SparePart) error
	GetPart(ctx context.Context, id string) (*model.SparePart, error)
	ListParts(ctx context.Context) ([]*model.SparePart, error)
	UpdatePart(ctx context.Context, p *model.SparePart) error

	AppendEvent(ctx context.Context, ev *model.Event) error
	ListEvents(ctx context.Context, entityID string) ([]model.Event, error)

	CreateUser(ctx context.Context, loginID, passwordHash string) (*model.User, error)
	GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error)

	GetWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error)
	GetWebhookConfigByID(ctx context.Context, id int) (*model.WebhookConfig, error)
	CreateWebhookConfig(ctx context.Context, cfg model.WebhookConfig) (int, error)
	UpdateWebhookConfig(ctx context.Context, id int, cfg model.WebhookConfig) error
	DeleteWebhookConfig(ctx context.Context, id int) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
