// 라이프사이클 이벤트 -> Redis Stream (XADD)
// 외부 consumer group(ERP/CMMS 연동 등)이 이벤트를 순서대로 읽어가도록 전달

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/plantops/equipment-health/internal/model"
)

// 스트림 길이 상한 (근사 trim)
const defaultStreamMaxLen = 100000

// RedisStreamSink - 이벤트 버스 구독자
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: defaultStreamMaxLen}
}

// HandleEvent - 이벤트 1건 XADD
func (s *RedisStreamSink) HandleEvent(ctx context.Context, ev model.Event) error {
	values, err := streamValues(ev)
	if err != nil {
		return err
	}
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// streamValues - consumer가 본문 파싱 없이 라우팅할 수 있도록 주요 필드는 평문으로 분리
func streamValues(ev model.Event) (map[string]interface{}, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return map[string]interface{}{
		"event_id":    ev.ID,
		"type":        string(ev.Type),
		"entity_kind": string(ev.EntityKind),
		"entity_id":   ev.EntityID,
		"sequence":    strconv.FormatInt(ev.Sequence, 10),
		"data":        string(data),
		"timestamp":   ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}, nil
}
