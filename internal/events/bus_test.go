package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/cache"
	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/db"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T) (*Bus, *db.Memory) {
	t.Helper()
	store := db.NewMemory()
	bus := NewBus(store, zap.NewNop(), config.EventsConfig{BufferSize: 16, DeliveryAttempts: 3, RetryBackoff: time.Millisecond})
	return bus, store
}

func TestPublishAppendsSequencedLog(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Close()

	first, err := bus.Publish(ctx, model.Event{Type: model.EventAlertCreated, EntityKind: model.EntityAlert, EntityID: "AL001", NewState: "new"})
	require.NoError(t, err)
	second, err := bus.Publish(ctx, model.Event{Type: model.EventAlertAcknowledged, EntityKind: model.EntityAlert, EntityID: "AL001", OldState: "new", NewState: "acknowledged"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.False(t, first.OccurredAt.IsZero())
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)

	history, err := bus.History(ctx, "AL001")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.EventAlertAcknowledged, history[1].Type)
}

func TestSubscriberFilterAndRetry(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	received := []model.EventType{}
	bus.Subscribe("flaky", func(_ context.Context, ev model.Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("sink unavailable")
		}
		received = append(received, ev.Type)
		return nil
	}, model.EventWorkOrderCompleted)

	bus.Start(ctx)
	_, err := bus.Publish(ctx, model.Event{Type: model.EventWorkOrderCreated, EntityID: "WO001"})
	require.NoError(t, err)
	_, err = bus.Publish(ctx, model.Event{Type: model.EventWorkOrderCompleted, EntityID: "WO001"})
	require.NoError(t, err)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
	assert.Equal(t, []model.EventType{model.EventWorkOrderCompleted}, received)
}

func TestPublishAfterCloseStillLogs(t *testing.T) {
	bus, store := newTestBus(t)
	bus.Start(context.Background())
	bus.Close()

	_, err := bus.Publish(context.Background(), model.Event{Type: model.EventPartsReserved, EntityID: "BRG-6308"})
	assert.ErrorIs(t, err, ErrClosed)

	logged, err := store.ListEvents(context.Background(), "BRG-6308")
	require.NoError(t, err)
	assert.Len(t, logged, 1)
}

func TestDedupSkipsProcessedEvents(t *testing.T) {
	store := cache.NewMemory()
	count := 0
	h := Dedup(store, "aggregator", time.Hour, func(context.Context, model.Event) error {
		count++
		return nil
	})

	ev := model.Event{ID: "evt-1", Type: model.EventAlertCreated}
	require.NoError(t, h(context.Background(), ev))
	require.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 1, count)
}

func TestDedupRetriesFailedEvents(t *testing.T) {
	store := cache.NewMemory()
	count := 0
	h := Dedup(store, "webhook", time.Hour, func(context.Context, model.Event) error {
		count++
		if count == 1 {
			return errors.New("boom")
		}
		return nil
	})

	ev := model.Event{ID: "evt-2", Type: model.EventAlertClosed}
	assert.Error(t, h(context.Background(), ev))
	assert.NoError(t, h(context.Background(), ev))
	assert.NoError(t, h(context.Background(), ev))
	assert.Equal(t, 2, count)
}

func TestPublishDoesNotWaitForSlowSubscriber(t *testing.T) {
	store := db.NewMemory()
	bus := NewBus(store, zap.NewNop(), config.EventsConfig{BufferSize: 2, DeliveryAttempts: 1})
	ctx := context.Background()

	release := make(chan struct{})
	var mu sync.Mutex
	delivered := 0
	bus.Subscribe("webhooks", func(context.Context, model.Event) error {
		<-release
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})
	bus.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_, err := bus.Publish(context.WithoutCancel(ctx), model.Event{Type: model.EventAlertCreated, EntityID: "AL001"})
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("publish blocked behind a stalled subscriber")
	}

	logged, err := store.ListEvents(ctx, "AL001")
	require.NoError(t, err)
	assert.Len(t, logged, 10)

	close(release)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	// 처리 중 1건 + 큐 2건만 전달, 나머지는 overflow
	assert.GreaterOrEqual(t, delivered, 1)
	assert.LessOrEqual(t, delivered, 3)
}

func TestCloseDrainsQueueAfterStartContextCancelled(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	received := 0
	bus.Subscribe("aggregator", func(context.Context, model.Event) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		received++
		mu.Unlock()
		return nil
	})
	bus.Start(ctx)

	for i := 0; i < 5; i++ {
		_, err := bus.Publish(ctx, model.Event{Type: model.EventWorkOrderCompleted, EntityID: "WO001"})
		require.NoError(t, err)
	}
	cancel()
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, received)
}

func TestCloseGivesUpAfterDrainTimeout(t *testing.T) {
	store := db.NewMemory()
	bus := NewBus(store, zap.NewNop(), config.EventsConfig{
		BufferSize:       8,
		DeliveryAttempts: 1,
		DrainTimeout:     20 * time.Millisecond,
	})
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	bus.Subscribe("slack", func(ctx context.Context, _ model.Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	})
	bus.Start(ctx)

	for i := 0; i < 4; i++ {
		_, err := bus.Publish(ctx, model.Event{Type: model.EventAlertCreated, EntityID: "AL001"})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		bus.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return after drain timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
