package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/plantops/equipment-health/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterDeps - 라우터 구성에 필요한 서비스 묶음
//
// Auth가 nil이면 인증 없이 동작 (actor는 X-Actor 헤더)
type RouterDeps struct {
	Assets         *service.AssetService
	Alerts         *service.AlertService
	WorkOrders     *service.WorkOrderService
	Ledger         *service.LedgerService
	Aggregator     *service.HealthAggregator
	History        historyReader
	Webhooks       webhookService
	Auth           *service.AuthService
	Idempotency    *service.IdempotencyGuard
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if d.Logger != nil {
		router.Use(RequestLogger(d.Logger))
	}
	router.Use(CORSMiddleware(d.AllowedOrigins, true))

	router.GET("/", Root)
	router.GET("/ping", Ping)
	router.GET("/openapi.json", OpenAPIDoc)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	if d.Auth != nil {
		authHandler := NewAuthHandler(d.Auth)
		api.POST("/auth/login", authHandler.Login)
		api.Use(AuthMiddleware(d.Auth))
		api.GET("/auth/me", authHandler.Me)
	}

	assets := NewAssetHandler(d.Assets, d.Idempotency)
	api.GET("/assets", assets.ListAssets)
	api.POST("/assets", assets.OnboardAsset)
	api.GET("/assets/:id", assets.GetAsset)
	api.POST("/assets/:id/observations", assets.RecordObservation)
	api.POST("/assets/:id/deactivate", assets.DeactivateAsset)

	alerts := NewAlertHandler(d.Alerts, d.Idempotency)
	api.GET("/alerts", alerts.ListAlerts)
	api.POST("/alerts", alerts.RaiseAlert)
	api.GET("/alerts/:id", alerts.GetAlert)
	api.POST("/alerts/:id/acknowledge", alerts.AcknowledgeAlert)
	api.POST("/alerts/:id/assign", alerts.AssignAlert)
	api.POST("/alerts/:id/investigate", alerts.InvestigateAlert)
	api.POST("/alerts/:id/close", alerts.CloseAlert)
	api.POST("/alerts/:id/snooze", alerts.SnoozeAlert)
	api.POST("/alerts/:id/annotations", alerts.AnnotateAlert)
	api.POST("/alerts/:id/convert", alerts.ConvertAlert)

	workOrders := NewWorkOrderHandler(d.WorkOrders, d.Idempotency)
	api.GET("/work-orders", workOrders.ListWorkOrders)
	api.POST("/work-orders", workOrders.CreateWorkOrder)
	api.GET("/work-orders/:id", workOrders.GetWorkOrder)
	api.POST("/work-orders/:id/approve", workOrders.ApproveWorkOrder)
	api.POST("/work-orders/:id/start", workOrders.StartWorkOrder)
	api.POST("/work-orders/:id/complete", workOrders.CompleteWorkOrder)
	api.POST("/work-orders/:id/cancel", workOrders.CancelWorkOrder)
	api.POST("/work-orders/:id/assign", workOrders.AssignTechnician)
	api.POST("/work-orders/:id/notes", workOrders.AddNote)

	parts := NewPartHandler(d.Ledger, d.Idempotency)
	api.GET("/parts", parts.ListParts)
	api.POST("/parts", parts.CreatePart)
	api.GET("/parts/:id", parts.GetPart)
	api.POST("/parts/:id/reserve", parts.ReserveParts)
	api.POST("/parts/:id/release", parts.ReleaseParts)
	api.POST("/parts/:id/consume", parts.ConsumeParts)
	api.POST("/parts/:id/receive", parts.ReceiveParts)

	fleet := NewFleetHandler(d.Aggregator)
	api.GET("/fleet/health", fleet.GetFleetHealth)
	api.POST("/fleet/health/refresh", fleet.RefreshFleetHealth)

	if d.History != nil {
		api.GET("/events/:entityId", NewEventHandler(d.History).ListEvents)
	}

	if d.Webhooks != nil {
		webhooks := NewWebhookSettingsHandler(d.Webhooks)
		api.GET("/settings/webhooks/event-types", webhooks.ListEventTypes)
		api.GET("/settings/webhooks", webhooks.ListWebhookConfigs)
		api.POST("/settings/webhooks", webhooks.CreateWebhookConfig)
		api.GET("/settings/webhooks/:id", webhooks.GetWebhookConfig)
		api.PUT("/settings/webhooks/:id", webhooks.UpdateWebhookConfig)
		api.DELETE("/settings/webhooks/:id", webhooks.DeleteWebhookConfig)
	}

	return router
}
