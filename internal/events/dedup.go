package events

import (
	"context"
	"errors"
	"time"

	"github.com/plantops/equipment-health/internal/cache"
	"github.com/plantops/equipment-health/internal/model"
)

// Dedup - 이미 성공 처리한 event id는 건너뛰는 Handler 래퍼
// 처리 성공 후에만 기록하므로 실패한 이벤트는 재전달 시 다시 처리됨
func Dedup(store cache.Store, name string, ttl time.Duration, next Handler) Handler {
	return func(ctx context.Context, ev model.Event) error {
		key := "event:" + name + ":" + ev.ID
		if _, err := store.Get(ctx, key); err == nil {
			return nil
		} else if !errors.Is(err, cache.ErrMiss) {
			return err
		}
		if err := next(ctx, ev); err != nil {
			return err
		}
		return store.Set(ctx, key, []byte{1}, ttl)
	}
}
