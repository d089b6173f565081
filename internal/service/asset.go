// AssetRegistry
//
// 설비 등록/비활성화, 관측치 수신
// 관측치 수신 시 healthStatus를 바로 파생하고 등록된 ObservationRule(임계값 룰 등)을 실행

package service

import (
	"context"
	"strconv"
	"time"

	"github.com/plantops/equipment-health/internal/metrics"
	"github.com/plantops/equipment-health/internal/model"
	"go.uber.org/zap"
)

// ObservationRule - 관측치 수신 후 실행되는 룰 훅 (Alert 발생 등)
type ObservationRule interface {
	Evaluate(ctx context.Context, asset *model.Asset) error
}

type AssetService struct {
	repo      assetRepo
	events    Publisher
	logger    *zap.Logger
	policy    HealthPolicy
	rules     []ObservationRule
	now       func() time.Time
}

func NewAssetService(repo assetRepo, events Publisher, logger *zap.Logger, policy HealthPolicy) *AssetService {
	return &AssetService{
		repo:      repo,
		events:    events,
		logger:    logger,
		policy:    policy,
		now:       time.Now,
	}
}

// AddRule - 룰 등록 (AlertService 생성 이후 연결)
func (s *AssetService) AddRule(rule ObservationRule) {
	s.rules = append(s.rules, rule)
}

func (s *AssetService) Onboard(ctx context.Context, req model.OnboardAssetRequest, actor string) (*model.Asset, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	now := utcNow(s.now)
	a := &model.Asset{
		ID:           req.ID,
		Tag:          req.Tag,
		Type:         req.Type,
		Location:     req.Location,
		Criticality:  req.Criticality,
		HealthStatus: model.HealthDataMissing,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertAsset(ctx, a); err != nil {
		return nil, storeErr(model.EntityAsset, req.ID, err)
	}
	publish(ctx, s.events, s.logger, model.Event{
		Type:       model.EventAssetOnboarded,
		EntityKind: model.EntityAsset,
		EntityID:   a.ID,
		AssetID:    a.ID,
		NewState:   string(a.HealthStatus),
		Actor:      actor,
		Attributes: map[string]string{"criticality": string(a.Criticality), "plant": a.Location.Plant},
	})
	return a, nil
}

// Deactivate - 삭제 대신 비활성화 (이후 관측치 / 작업지시 생성 거부)
func (s *AssetService) Deactivate(ctx context.Context, id string, expected int64, actor string) (*model.Asset, error) {
	var out *model.Asset
	err := RetryOnConflict(ctx, attemptsFor(expected), func() error {
		a, err := s.repo.GetAsset(ctx, id)
		if err != nil {
			return storeErr(model.EntityAsset, id, err)
		}
		if err := expectVersion(model.EntityAsset, id, a.Version, expected); err != nil {
			return err
		}
		if !a.Active {
			return invalidTransition(model.EntityAsset, id, "deactivate", "inactive")
		}
		a.Active = false
		a.UpdatedAt = utcNow(s.now)
		if err := s.repo.UpdateAsset(ctx, a); err != nil {
			return storeErr(model.EntityAsset, id, err)
		}
		out = a
		return nil
	})
	metrics.Transitions.WithLabelValues(string(model.EntityAsset), "deactivate", ErrorKind(err)).Inc()
	if err != nil {
		return nil, err
	}
	publish(ctx, s.events, s.logger, model.Event{
		Type:       model.EventAssetDeactivated,
		EntityKind: model.EntityAsset,
		EntityID:   id,
		AssetID:    id,
		OldState:   "active",
		NewState:   "inactive",
		Actor:      actor,
	})
	return out, nil
}

// RecordObservation - 최신 관측치 갱신 + healthStatus 파생
//
// 저장된 관측치보다 오래된 관측치는 무시 (latest가 과거로 돌아가지 않음)
// 반환값 accepted=false면 무시된 것
func (s *AssetService) RecordObservation(ctx context.Context, id string, req model.RecordObservationRequest, actor string) (*model.Asset, bool, error) {
	obs := model.Observation{
		HealthScore: req.HealthScore,
		Confidence:  req.Confidence,
		DataQuality: req.DataQuality,
	}
	if req.Timestamp != nil {
		obs.Timestamp = req.Timestamp.UTC()
	} else {
		obs.Timestamp = utcNow(s.now)
	}
	if err := validateStruct(obs); err != nil {
		return nil, false, err
	}

	var (
		out      *model.Asset
		accepted bool
		old      model.HealthStatus
	)
	err := RetryOnConflict(ctx, DefaultRetryAttempts, func() error {
		a, err := s.repo.GetAsset(ctx, id)
		if err != nil {
			return storeErr(model.EntityAsset, id, err)
		}
		if !a.Active {
			return invalidTransition(model.EntityAsset, id, "record observation", "inactive")
		}
		out, accepted, old = a, false, a.HealthStatus
		if a.Observation != nil && obs.Timestamp.Before(a.Observation.Timestamp) {
			return nil
		}
		now := utcNow(s.now)
		latest := obs
		a.Observation = &latest
		a.HealthStatus = s.policy.Derive(a.Observation, a.Criticality, now)
		a.HealthUpdatedAt = &now
		a.UpdatedAt = now
		if err := s.repo.UpdateAsset(ctx, a); err != nil {
			return storeErr(model.EntityAsset, id, err)
		}
		accepted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !accepted {
		s.logger.Debug("ignoring out-of-order observation",
			zap.String("asset_id", id),
			zap.Time("timestamp", obs.Timestamp))
		return out, false, nil
	}

	publish(ctx, s.events, s.logger, model.Event{
		Type:       model.EventObservationRecorded,
		EntityKind: model.EntityAsset,
		EntityID:   id,
		AssetID:    id,
		NewState:   string(out.HealthStatus),
		Actor:      actor,
		Attributes: map[string]string{
			"health_score": strconv.FormatFloat(obs.HealthScore, 'f', 1, 64),
			"confidence":   strconv.FormatFloat(obs.Confidence, 'f', 2, 64),
			"data_quality": strconv.FormatFloat(obs.DataQuality, 'f', 1, 64),
		},
	})
	if old != out.HealthStatus {
		publish(ctx, s.events, s.logger, healthChangedEvent(out, old, actor))
	}

	for _, rule := range s.rules {
		if err := rule.Evaluate(ctx, out); err != nil {
			s.logger.Warn("observation rule failed", zap.String("asset_id", id), zap.Error(err))
		}
	}
	return out, true, nil
}

func (s *AssetService) Get(ctx context.Context, id string) (*model.Asset, error) {
	a, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return nil, storeErr(model.EntityAsset, id, err)
	}
	return a, nil
}

func (s *AssetService) List(ctx context.Context, f model.AssetFilter) ([]*model.Asset, error) {
	return s.repo.ListAssets(ctx, f)
}

// ============================================================================
// 임계값 룰
// ============================================================================

type alertRaiser interface {
	Raise(ctx context.Context, payload model.DetectionPayload) (*model.Alert, bool, error)
}

// HealthScoreSignal - 임계값 룰이 사용하는 signal 이름
const HealthScoreSignal = "health-score"

// ThresholdRule - 파생 healthStatus가 나빠지면 threshold 탐지를 Raise
//
//	critical  -> severity critical
//	degrading -> severity high
//	watch     -> severity medium (WatchAlerts일 때만)
type ThresholdRule struct {
	raiser      alertRaiser
	watchAlerts bool
}

func NewThresholdRule(raiser alertRaiser, watchAlerts bool) *ThresholdRule {
	return &ThresholdRule{raiser: raiser, watchAlerts: watchAlerts}
}

func (r *ThresholdRule) Evaluate(ctx context.Context, asset *model.Asset) error {
	obs := asset.Observation
	if obs == nil {
		return nil
	}
	var severity model.Severity
	switch asset.HealthStatus {
	case model.HealthCritical:
		severity = model.SeverityCritical
	case model.HealthDegrading:
		severity = model.SeverityHigh
	case model.HealthWatch:
		if !r.watchAlerts {
			return nil
		}
		severity = model.SeverityMedium
	default:
		return nil
	}
	detectedAt := obs.Timestamp
	_, _, err := r.raiser.Raise(ctx, model.DetectionPayload{
		AssetID:       asset.ID,
		Signal:        HealthScoreSignal,
		DetectionType: model.DetectionThreshold,
		Severity:      severity,
		Description:   "health score " + strconv.FormatFloat(obs.HealthScore, 'f', 1, 64) + " is " + string(asset.HealthStatus),
		Confidence:    obs.Confidence,
		DetectedAt:    &detectedAt,
	})
	return err
}
