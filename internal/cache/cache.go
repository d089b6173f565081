// 요청 id 멱등성 결과 저장소 및 이벤트 id 중복 제거용 키 저장소
//
// REDIS_ADDR 설정 시 Redis, 미설정 시 프로세스 내 메모리 구현 사용

package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss - 키 없음
var ErrMiss = errors.New("cache miss")

// Store - 멱등성 결과 / 처리 여부 기록
type Store interface {
	// Get - 저장된 값 조회 (없으면 ErrMiss)
	Get(ctx context.Context, key string) ([]byte, error)
	// Set - 값 저장 (ttl 0이면 만료 없음)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX - 키가 없을 때만 저장, 새로 저장했으면 true
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Close() error
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory - map 기반 Store (단일 인스턴스 / 테스트용)
type Memory struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: map[string]entry{}, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	if e.expired(m.now()) {
		delete(m.items, key)
		return nil, ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = m.newEntry(value, ttl)
	return nil
}

func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[key]; ok && !e.expired(m.now()) {
		return false, nil
	}
	m.items[key] = m.newEntry(value, ttl)
	return true, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) newEntry(value []byte, ttl time.Duration) entry {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	return e
}
