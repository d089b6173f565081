// LifecycleEventBus
//
// Publish 흐름:
//  1. 이벤트 id / 발생 시각 채우기
//  2. 이벤트 로그에 동기 append ((entity_id, sequence) 부여)
//  3. 구독자별 큐에 넣고 즉시 반환 (구독자 처리는 비동기)
//     큐가 가득 찬 구독자는 건너뜀 (overflow, 이벤트는 로그에 남아 History로 재조회 가능)
//
// 전달 보장은 at-least-once: 구독자 핸들러 실패 시 backoff 후 재시도
// 구독자는 event id 기준으로 멱등해야 함 (Dedup 헬퍼 참고)

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/metrics"
	"github.com/plantops/equipment-health/internal/model"
	"go.uber.org/zap"
)

// ErrClosed - Close 이후 Publish
var ErrClosed = errors.New("event bus closed")

// Log - append-only 이벤트 로그 (db.Postgres, db.Memory)
type Log interface {
	AppendEvent(ctx context.Context, ev *model.Event) error
	ListEvents(ctx context.Context, entityID string) ([]model.Event, error)
}

// Handler - 구독자 처리 함수 (에러 반환 시 재시도)
type Handler func(ctx context.Context, ev model.Event) error

type subscription struct {
	name    string
	types   map[model.EventType]struct{}
	handler Handler
	queue   chan model.Event
}

func (s *subscription) accepts(t model.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus - 이벤트 로그 + 구독자 fan-out
type Bus struct {
	log      Log
	logger   *zap.Logger
	buffer   int
	attempts int
	backoff  time.Duration
	drain    time.Duration

	mu      sync.RWMutex
	subs    []*subscription
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
	wg      sync.WaitGroup

	now func() time.Time
}

func NewBus(log Log, logger *zap.Logger, cfg config.EventsConfig) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.DeliveryAttempts <= 0 {
		cfg.DeliveryAttempts = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	return &Bus{
		log:      log,
		logger:   logger,
		buffer:   cfg.BufferSize,
		attempts: cfg.DeliveryAttempts,
		backoff:  cfg.RetryBackoff,
		drain:    cfg.DrainTimeout,
		now:      time.Now,
	}
}

// Subscribe - 구독자 등록 (types가 비어 있으면 모든 이벤트 수신)
// Start 이후 등록해도 바로 worker가 뜸
func (b *Bus) Subscribe(name string, handler Handler, types ...model.EventType) {
	sub := &subscription{
		name:    name,
		types:   make(map[model.EventType]struct{}, len(types)),
		handler: handler,
		queue:   make(chan model.Event, b.buffer),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	if b.started && !b.closed {
		b.runWorker(sub)
	}
}

// Start - 구독자 worker 시작
// worker는 ctx 취소와 무관하게 Close까지 동작 (ctx 값만 이어받음)
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for _, sub := range b.subs {
		b.runWorker(sub)
	}
}

func (b *Bus) runWorker(sub *subscription) {
	ctx := b.ctx
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range sub.queue {
			if ctx.Err() != nil {
				b.dropQueued(sub, "shutdown", 1)
				return
			}
			b.deliver(ctx, sub, ev)
		}
	}()
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, ev model.Event) {
	for attempt := 1; attempt <= b.attempts; attempt++ {
		err := sub.handler(ctx, ev)
		if err == nil {
			metrics.EventDeliveries.WithLabelValues(sub.name, "ok").Inc()
			return
		}
		if attempt == b.attempts {
			metrics.EventDeliveries.WithLabelValues(sub.name, "dropped").Inc()
			b.logger.Error("event delivery failed",
				zap.String("subscriber", sub.name),
				zap.String("event_id", ev.ID),
				zap.String("event_type", string(ev.Type)),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return
		}
		metrics.EventDeliveries.WithLabelValues(sub.name, "retry").Inc()
		b.logger.Warn("event delivery retry",
			zap.String("subscriber", sub.name),
			zap.String("event_id", ev.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		timer := time.NewTimer(b.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.EventDeliveries.WithLabelValues(sub.name, "shutdown").Inc()
			return
		case <-timer.C:
		}
	}
}

// dropQueued - 전달하지 못한 큐 잔여 이벤트 집계 (Close에서 큐를 닫은 뒤에만 호출)
func (b *Bus) dropQueued(sub *subscription, reason string, dropped int) {
	for range sub.queue {
		dropped++
	}
	if dropped == 0 {
		return
	}
	metrics.EventDeliveries.WithLabelValues(sub.name, reason).Add(float64(dropped))
	b.logger.Warn("undelivered events dropped",
		zap.String("subscriber", sub.name),
		zap.String("reason", reason),
		zap.Int("count", dropped))
}

// Publish - 로그 append 후 구독자 큐에 전달, 부여된 Sequence가 채워진 이벤트 반환
func (b *Bus) Publish(ctx context.Context, ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now().UTC()
	}

	if err := b.log.AppendEvent(ctx, &ev); err != nil {
		return ev, fmt.Errorf("append event %s: %w", ev.Type, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ev, ErrClosed
	}
	for _, sub := range b.subs {
		if !sub.accepts(ev.Type) {
			continue
		}
		select {
		case sub.queue <- ev:
		default:
			metrics.EventDeliveries.WithLabelValues(sub.name, "overflow").Inc()
			b.logger.Warn("subscriber queue full, event skipped",
				zap.String("subscriber", sub.name),
				zap.String("event_id", ev.ID),
				zap.String("event_type", string(ev.Type)),
				zap.String("entity_id", ev.EntityID))
		}
	}
	return ev, nil
}

// History - 엔티티 이벤트 로그 (sequence 순)
func (b *Bus) History(ctx context.Context, entityID string) ([]model.Event, error) {
	return b.log.ListEvents(ctx, entityID)
}

// Close - 큐를 닫고 worker가 남은 이벤트를 전달할 때까지 대기
//
// DrainTimeout 안에 끝나지 않으면 진행 중인 전달을 취소하고 남은 이벤트 수를 로그로 남김
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.queue)
	}
	started := b.started
	b.mu.Unlock()

	if !started {
		for _, sub := range b.subs {
			b.dropQueued(sub, "shutdown", 0)
		}
		return
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(b.drain)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		b.logger.Warn("event drain timed out, cancelling deliveries", zap.Duration("timeout", b.drain))
		b.cancel()
		<-done
	}
	b.cancel()
}
