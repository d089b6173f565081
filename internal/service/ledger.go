// SparePartsLedger
//
// 불변식: 0 <= quantityReserved <= quantityOnHand (모든 쓰기 전에 검사, 저장소도 거부)
// 각 명령은 재조회 -> 재검증 -> version 비교 쓰기를 충돌 시 반복
// 호출자 deadline이 지나면 ErrDeadlineExceeded

package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/plantops/equipment-health/internal/metrics"
	"github.com/plantops/equipment-health/internal/model"
	"go.uber.org/zap"
)

const ledgerRetryAttempts = 32

type LedgerService struct {
	repo     partRepo
	events   Publisher
	logger   *zap.Logger
	attempts int
	now      func() time.Time
}

func NewLedgerService(repo partRepo, events Publisher, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		repo:     repo,
		events:   events,
		logger:   logger,
		attempts: ledgerRetryAttempts,
		now:      time.Now,
	}
}

// CreatePart - 부품 등록 (seed, 관리자)
func (s *LedgerService) CreatePart(ctx context.Context, req model.CreatePartRequest) (*model.SparePart, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	p := &model.SparePart{
		ID:             req.ID,
		PartNumber:     req.PartNumber,
		Description:    req.Description,
		QuantityOnHand: req.QuantityOnHand,
		MinStock:       req.MinStock,
		UnitCost:       req.UnitCost,
		LeadTimeDays:   req.LeadTimeDays,
		UpdatedAt:      utcNow(s.now),
	}
	if err := s.repo.InsertPart(ctx, p); err != nil {
		return nil, storeErr(model.EntityPart, req.ID, err)
	}
	return p, nil
}

func (s *LedgerService) Get(ctx context.Context, id string) (*model.SparePart, error) {
	p, err := s.repo.GetPart(ctx, id)
	if err != nil {
		return nil, storeErr(model.EntityPart, id, err)
	}
	return p, nil
}

func (s *LedgerService) List(ctx context.Context) ([]*model.SparePart, error) {
	return s.repo.ListParts(ctx)
}

// Reserve - 가용 수량(onHand - reserved) >= qty일 때만 reserved 증가
// 부족하면 상태 변경 없이 StockError
func (s *LedgerService) Reserve(ctx context.Context, partID string, qty int, ref string) (*model.SparePart, error) {
	if qty <= 0 {
		return nil, validationError("qty must be positive")
	}
	return s.mutate(ctx, partID, model.EventPartsReserved, qty, ref, func(p *model.SparePart) error {
		if available := p.Available(); available < qty {
			metrics.ReservationFailures.WithLabelValues(partID).Inc()
			return &StockError{PartID: partID, Requested: qty, Available: available}
		}
		p.QuantityReserved += qty
		return nil
	})
}

// Release - reserved 감소 (0 미만으로 내려가지 않음)
func (s *LedgerService) Release(ctx context.Context, partID string, qty int, ref string) (*model.SparePart, error) {
	if qty <= 0 {
		return nil, validationError("qty must be positive")
	}
	return s.mutate(ctx, partID, model.EventPartsReleased, qty, ref, func(p *model.SparePart) error {
		p.QuantityReserved -= qty
		if p.QuantityReserved < 0 {
			p.QuantityReserved = 0
		}
		return nil
	})
}

// Consume - 예약분을 실제 출고 처리 (reserved, onHand 모두 감소)
func (s *LedgerService) Consume(ctx context.Context, partID string, qty int, ref string) (*model.SparePart, error) {
	if qty <= 0 {
		return nil, validationError("qty must be positive")
	}
	return s.mutate(ctx, partID, model.EventPartsConsumed, qty, ref, func(p *model.SparePart) error {
		if p.QuantityReserved < qty {
			return validationError("cannot consume %d of part %s: only %d reserved", qty, partID, p.QuantityReserved)
		}
		p.QuantityReserved -= qty
		p.QuantityOnHand -= qty
		return nil
	})
}

// Receive - 입고
func (s *LedgerService) Receive(ctx context.Context, partID string, qty int, ref string) (*model.SparePart, error) {
	if qty <= 0 {
		return nil, validationError("qty must be positive")
	}
	return s.mutate(ctx, partID, model.EventPartsReceived, qty, ref, func(p *model.SparePart) error {
		p.QuantityOnHand += qty
		return nil
	})
}

// restore - Consume 보상 (작업지시 완료 쓰기 실패 시 출고 취소)
func (s *LedgerService) restore(ctx context.Context, partID string, qty int, ref string) (*model.SparePart, error) {
	return s.mutate(ctx, partID, model.EventPartsReserved, qty, ref, func(p *model.SparePart) error {
		p.QuantityOnHand += qty
		p.QuantityReserved += qty
		return nil
	})
}

func (s *LedgerService) mutate(ctx context.Context, partID string, evType model.EventType, qty int, ref string, apply func(p *model.SparePart) error) (*model.SparePart, error) {
	var (
		out    *model.SparePart
		before string
	)
	err := RetryOnConflict(ctx, s.attempts, func() error {
		p, err := s.repo.GetPart(ctx, partID)
		if err != nil {
			return storeErr(model.EntityPart, partID, err)
		}
		before = stockState(p)
		if err := apply(p); err != nil {
			return err
		}
		if !p.Consistent() {
			return fmt.Errorf("part %s: reservation invariant violated (on_hand=%d reserved=%d)", partID, p.QuantityOnHand, p.QuantityReserved)
		}
		p.UpdatedAt = utcNow(s.now)
		if err := s.repo.UpdatePart(ctx, p); err != nil {
			err = storeErr(model.EntityPart, partID, err)
			if ErrorKind(err) == "conflict" {
				metrics.ConflictRetries.WithLabelValues(string(model.EntityPart)).Inc()
			}
			return err
		}
		out = p
		return nil
	})
	metrics.Transitions.WithLabelValues(string(model.EntityPart), string(evType), ErrorKind(err)).Inc()
	if err != nil {
		return nil, err
	}

	attrs := map[string]string{
		"qty":       strconv.Itoa(qty),
		"on_hand":   strconv.Itoa(out.QuantityOnHand),
		"reserved":  strconv.Itoa(out.QuantityReserved),
		"available": strconv.Itoa(out.Available()),
	}
	if ref != "" {
		attrs["ref"] = ref
	}
	publish(ctx, s.events, s.logger, model.Event{
		Type:       evType,
		EntityKind: model.EntityPart,
		EntityID:   partID,
		OldState:   before,
		NewState:   stockState(out),
		Attributes: attrs,
	})
	return out, nil
}

func stockState(p *model.SparePart) string {
	return fmt.Sprintf("on_hand=%d reserved=%d", p.QuantityOnHand, p.QuantityReserved)
}
