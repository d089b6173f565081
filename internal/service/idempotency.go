package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/plantops/equipment-health/internal/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// IdempotencyGuard - 클라이언트 요청 id(Idempotency-Key)별 첫 성공 결과를 저장하고 재요청 시 그대로 반환
//
// 실패한 명령은 저장하지 않음 (수정된 요청으로 재시도 가능)
// 같은 키로 동시에 들어온 요청은 singleflight로 한 번만 실행
type IdempotencyGuard struct {
	store  cache.Store
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

type storedResult struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

func NewIdempotencyGuard(store cache.Store, ttl time.Duration, logger *zap.Logger) *IdempotencyGuard {
	return &IdempotencyGuard{store: store, ttl: ttl, logger: logger}
}

// Do - key가 비어 있으면 fn만 실행
// replayed=true면 저장된 결과를 돌려준 것
func (g *IdempotencyGuard) Do(ctx context.Context, key string, fn func() (int, any, error)) (int, json.RawMessage, bool, error) {
	if key == "" {
		status, body, err := fn()
		if err != nil {
			return 0, nil, false, err
		}
		raw, err := json.Marshal(body)
		return status, raw, false, err
	}

	type outcome struct {
		result   storedResult
		replayed bool
	}
	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		if cached, err := g.store.Get(ctx, key); err == nil {
			var res storedResult
			if err := json.Unmarshal(cached, &res); err == nil {
				return outcome{result: res, replayed: true}, nil
			}
			g.logger.Warn("discarding unreadable idempotency record", zap.String("key", key))
		} else if !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}

		status, body, err := fn()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		res := storedResult{Status: status, Body: raw}
		if encoded, err := json.Marshal(res); err == nil {
			if err := g.store.Set(context.WithoutCancel(ctx), key, encoded, g.ttl); err != nil {
				g.logger.Warn("failed to store idempotency record", zap.String("key", key), zap.Error(err))
			}
		}
		return outcome{result: res}, nil
	})
	if err != nil {
		return 0, nil, false, err
	}
	o := v.(outcome)
	return o.result.Status, o.result.Body, o.replayed, nil
}
