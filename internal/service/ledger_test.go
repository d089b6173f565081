package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveInsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addPart(t, "BRG-6308", 8)

	_, err := env.ledger.Reserve(ctx, "BRG-6308", 10, "WO-test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 8, stockErr.Available)
	assert.Equal(t, 10, stockErr.Requested)

	p, err := env.ledger.Get(ctx, "BRG-6308")
	require.NoError(t, err)
	assert.Equal(t, 0, p.QuantityReserved)
	assert.Equal(t, 8, p.QuantityOnHand)
	assert.NotContains(t, env.events.types(), model.EventPartsReserved)
}

func TestReserveReleaseConsumeReceive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addPart(t, "SEAL-01", 5)

	p, err := env.ledger.Reserve(ctx, "SEAL-01", 3, "WO001")
	require.NoError(t, err)
	assert.Equal(t, 3, p.QuantityReserved)
	assert.Equal(t, 2, p.Available())

	p, err = env.ledger.Consume(ctx, "SEAL-01", 2, "WO001")
	require.NoError(t, err)
	assert.Equal(t, 3, p.QuantityOnHand)
	assert.Equal(t, 1, p.QuantityReserved)

	// release floors at zero
	p, err = env.ledger.Release(ctx, "SEAL-01", 5, "WO001")
	require.NoError(t, err)
	assert.Equal(t, 0, p.QuantityReserved)

	p, err = env.ledger.Receive(ctx, "SEAL-01", 10, "PO-77")
	require.NoError(t, err)
	assert.Equal(t, 13, p.QuantityOnHand)
	assert.False(t, p.LowStock())

	ev, ok := env.events.last(model.EventPartsReceived)
	require.True(t, ok)
	assert.Equal(t, "on_hand=3 reserved=0", ev.OldState)
	assert.Equal(t, "on_hand=13 reserved=0", ev.NewState)
	assert.Equal(t, "PO-77", ev.Attributes["ref"])
}

func TestConsumeBeyondReservedIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addPart(t, "FLT-9", 4)

	_, err := env.ledger.Reserve(ctx, "FLT-9", 1, "WO001")
	require.NoError(t, err)

	_, err = env.ledger.Consume(ctx, "FLT-9", 2, "WO001")
	assert.True(t, errors.Is(err, ErrValidation))

	p, err := env.ledger.Get(ctx, "FLT-9")
	require.NoError(t, err)
	assert.Equal(t, 4, p.QuantityOnHand)
	assert.Equal(t, 1, p.QuantityReserved)
}

func TestLedgerRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ledger.Reserve(ctx, "missing", 1, "")
	assert.True(t, errors.Is(err, ErrNotFound))

	env.addPart(t, "P1", 1)
	_, err = env.ledger.Reserve(ctx, "P1", 0, "")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = env.ledger.CreatePart(ctx, model.CreatePartRequest{ID: "P1", PartNumber: "x"})
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = env.ledger.CreatePart(ctx, model.CreatePartRequest{ID: "P2", PartNumber: "x", QuantityOnHand: -1})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addPart(t, "BRG-6308", 8)

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.Reserve(ctx, "BRG-6308", 1, "stress")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	p, err := env.ledger.Get(ctx, "BRG-6308")
	require.NoError(t, err)
	assert.LessOrEqual(t, succeeded, 8)
	assert.Equal(t, succeeded, p.QuantityReserved)
	assert.True(t, p.Consistent())
}

func TestLedgerInvariantUnderMixedOperations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const initial = 10
	env.addPart(t, "BRG-6308", initial)

	const (
		workers = 12
		rounds  = 40
	)
	var (
		wg                                     sync.WaitGroup
		mu                                     sync.Mutex
		reserved, released, consumed, received int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for r := 0; r < rounds; r++ {
				qty := rng.Intn(3) + 1
				op := rng.Intn(4)
				var (
					p   *model.SparePart
					err error
				)
				switch op {
				case 0:
					p, err = env.ledger.Reserve(ctx, "BRG-6308", qty, "stress")
				case 1:
					p, err = env.ledger.Release(ctx, "BRG-6308", qty, "stress")
				case 2:
					p, err = env.ledger.Consume(ctx, "BRG-6308", qty, "stress")
				case 3:
					p, err = env.ledger.Receive(ctx, "BRG-6308", qty, "stress")
				}

				mu.Lock()
				switch {
				case err == nil:
					if !p.Consistent() {
						t.Errorf("inconsistent part after op %d: on_hand=%d reserved=%d", op, p.QuantityOnHand, p.QuantityReserved)
					}
					switch op {
					case 0:
						reserved += qty
					case 1:
						released += qty
					case 2:
						consumed += qty
					case 3:
						received += qty
					}
				case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrValidation), errors.Is(err, ErrConflict):
				default:
					t.Errorf("unexpected error: %v", err)
				}
				mu.Unlock()
			}
		}(int64(i + 1))
	}
	wg.Wait()

	p, err := env.ledger.Get(ctx, "BRG-6308")
	require.NoError(t, err)
	assert.True(t, p.Consistent())
	assert.Equal(t, initial+received-consumed, p.QuantityOnHand)
	// Release는 0 아래로 내려가지 않으므로 실제 감소량은 요청량 이하
	assert.LessOrEqual(t, p.QuantityReserved, reserved-consumed)
	assert.GreaterOrEqual(t, p.QuantityReserved, reserved-consumed-released)
}

func TestReserveWithCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t, "A001", model.CriticalityHigh)
	env.addPart(t, "BRG-6308", 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.ledger.Reserve(ctx, "BRG-6308", 2, "WO001")
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Equal(t, "deadline_exceeded", ErrorKind(err))

	expired, stop := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer stop()
	_, _, err = env.alerts.Raise(expired, model.DetectionPayload{
		AssetID:       "A001",
		Signal:        "vibration",
		DetectionType: model.DetectionAnomaly,
		Severity:      model.SeverityHigh,
		Description:   "late detection",
		Confidence:    0.5,
	})
	assert.ErrorIs(t, err, ErrDeadlineExceeded)

	p, err := env.ledger.Get(context.Background(), "BRG-6308")
	require.NoError(t, err)
	assert.Equal(t, 0, p.QuantityReserved)
	assert.Equal(t, 8, p.QuantityOnHand)
}
