// 인메모리 Store 구현체
// DATABASE_URL/PGUSER 미설정 시 serve 기본값이며, service 테스트의 기반
// Postgres 구현과 동일한 의미(버전 검사, 유니크 제약, 에러 값)를 따름

package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/plantops/equipment-health/internal/model"
)

// Memory - 맵 기반 Store
// mu는 단일 읽기/compare-and-swap 동안만 잡음 (장시간 락 없음)
type Memory struct {
	mu         sync.RWMutex
	assets     map[string]*model.Asset
	alerts     map[string]*model.Alert
	workOrders map[string]*model.WorkOrder
	parts      map[string]*model.SparePart
	events     map[string][]model.Event
	eventIDs   map[string]int64
	sequences  map[string]int64
	users      map[string]*model.User
	webhooks   map[int]model.WebhookConfig
	nextUserID int64
	nextHookID int
}

func NewMemory() *Memory {
	return &Memory{
		assets:     map[string]*model.Asset{},
		alerts:     map[string]*model.Alert{},
		workOrders: map[string]*model.WorkOrder{},
		parts:      map[string]*model.SparePart{},
		events:     map[string][]model.Event{},
		eventIDs:   map[string]int64{},
		sequences:  map[string]int64{},
		users:      map[string]*model.User{},
		webhooks:   map[int]model.WebhookConfig{},
	}
}

func (m *Memory) NextID(_ context.Context, kind string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[kind]++
	return m.sequences[kind], nil
}

// ============================================================================
// Assets
// ============================================================================

func (m *Memory) InsertAsset(_ context.Context, a *model.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assets[a.ID]; ok {
		return ErrDuplicate
	}
	a.Version = 1
	m.assets[a.ID] = cloneAsset(a)
	return nil
}

func (m *Memory) GetAsset(_ context.Context, id string) (*model.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAsset(a), nil
}

func (m *Memory) ListAssets(_ context.Context, f model.AssetFilter) ([]*model.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := []*model.Asset{}
	for _, a := range m.assets {
		if f.Match(a) {
			list = append(list, cloneAsset(a))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *Memory) UpdateAsset(_ context.Context, a *model.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.assets[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != a.Version {
		return ErrVersionConflict
	}
	a.Version++
	m.assets[a.ID] = cloneAsset(a)
	return nil
}

// ============================================================================
// Alerts
// ============================================================================

func (m *Memory) InsertAlert(_ context.Context, a *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.ID]; ok {
		return ErrDuplicate
	}
	if !a.Status.Terminal() && m.findOpenAlertLocked(a.AssetID, a.Signal, a.DetectionType) != nil {
		return ErrDuplicate
	}
	a.Version = 1
	m.alerts[a.ID] = a.Clone()
	return nil
}

func (m *Memory) GetAlert(_ context.Context, id string) (*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *Memory) FindOpenAlert(_ context.Context, assetID, signal string, detectionType model.DetectionType) (*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := m.findOpenAlertLocked(assetID, signal, detectionType)
	if a == nil {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *Memory) findOpenAlertLocked(assetID, signal string, detectionType model.DetectionType) *model.Alert {
	for _, a := range m.alerts {
		if a.AssetID == assetID && a.Signal == signal && a.DetectionType == detectionType && !a.Status.Terminal() {
			return a
		}
	}
	return nil
}

func (m *Memory) ListAlerts(_ context.Context, f model.AlertFilter) ([]*model.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := []*model.Alert{}
	for _, a := range m.alerts {
		if f.Match(a) {
			list = append(list, a.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (m *Memory) UpdateAlert(_ context.Context, a *model.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.alerts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != a.Version {
		return ErrVersionConflict
	}
	a.Version++
	m.alerts[a.ID] = a.Clone()
	return nil
}

// ============================================================================
// Work orders
// ============================================================================

func (m *Memory) InsertWorkOrder(_ context.Context, w *model.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workOrders[w.ID]; ok {
		return ErrDuplicate
	}
	if w.AlertID != "" {
		for _, existing := range m.workOrders {
			if existing.AlertID == w.AlertID {
				return ErrDuplicate
			}
		}
	}
	w.Version = 1
	m.workOrders[w.ID] = w.Clone()
	return nil
}

func (m *Memory) GetWorkOrder(_ context.Context, id string) (*model.WorkOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workOrders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w.Clone(), nil
}

func (m *Memory) ListWorkOrders(_ context.Context, f model.WorkOrderFilter) ([]*model.WorkOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := []*model.WorkOrder{}
	for _, w := range m.workOrders {
		if f.Match(w) {
			list = append(list, w.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (m *Memory) UpdateWorkOrder(_ context.Context, w *model.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.workOrders[w.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != w.Version {
		return ErrVersionConflict
	}
	w.Version++
	m.workOrders[w.ID] = w.Clone()
	return nil
}

func (m *Memory) DeleteWorkOrder(_ context.Context, id string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.workOrders[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != version {
		return ErrVersionConflict
	}
	delete(m.workOrders, id)
	return nil
}

// ============================================================================
// Spare parts
// ============================================================================

func (m *Memory) InsertPart(_ context.Context, p *model.SparePart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.parts[p.ID]; ok {
		return ErrDuplicate
	}
	p.Version = 1
	c := *p
	m.parts[p.ID] = &c
	return nil
}

func (m *Memory) GetPart(_ context.Context, id string) (*model.SparePart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *Memory) ListParts(_ context.Context) ([]*model.SparePart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*model.SparePart, 0, len(m.parts))
	for _, p := range m.parts {
		c := *p
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// UpdatePart - Postgres의 CHECK 제약과 동일하게 재고 불변식 위반 쓰기를 거부
func (m *Memory) UpdatePart(_ context.Context, p *model.SparePart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.parts[p.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != p.Version {
		return ErrVersionConflict
	}
	if !p.Consistent() {
		return ErrConstraint
	}
	p.Version++
	c := *p
	m.parts[p.ID] = &c
	return nil
}

// ============================================================================
// Event log
// ============================================================================

func (m *Memory) AppendEvent(_ context.Context, ev *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq, ok := m.eventIDs[ev.ID]; ok {
		ev.Sequence = seq
		return nil
	}
	ev.Sequence = int64(len(m.events[ev.EntityID]) + 1)
	m.events[ev.EntityID] = append(m.events[ev.EntityID], *ev)
	m.eventIDs[ev.ID] = ev.Sequence
	return nil
}

func (m *Memory) ListEvents(_ context.Context, entityID string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Event{}, m.events[entityID]...), nil
}

// ============================================================================
// Operators
// ============================================================================

func (m *Memory) CreateUser(_ context.Context, loginID, passwordHash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[loginID]; ok {
		return nil, ErrDuplicate
	}
	m.nextUserID++
	now := time.Now().UTC()
	u := &model.User{ID: m.nextUserID, LoginID: loginID, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	m.users[loginID] = u
	c := *u
	return &c, nil
}

func (m *Memory) GetUserByLoginID(_ context.Context, loginID string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[loginID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

// ============================================================================
// Webhook configs
// ============================================================================

func (m *Memory) GetWebhookConfigs(_ context.Context) ([]model.WebhookConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]model.WebhookConfig, 0, len(m.webhooks))
	for _, cfg := range m.webhooks {
		list = append(list, cfg)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

func (m *Memory) GetWebhookConfigByID(_ context.Context, id int) (*model.WebhookConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.webhooks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (m *Memory) CreateWebhookConfig(_ context.Context, cfg model.WebhookConfig) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHookID++
	cfg.ID = m.nextHookID
	cfg.UpdatedAt = time.Now().UTC()
	m.webhooks[cfg.ID] = cfg
	return cfg.ID, nil
}

func (m *Memory) UpdateWebhookConfig(_ context.Context, id int, cfg model.WebhookConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[id]; !ok {
		return ErrNotFound
	}
	cfg.ID = id
	cfg.UpdatedAt = time.Now().UTC()
	m.webhooks[id] = cfg
	return nil
}

func (m *Memory) DeleteWebhookConfig(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[id]; !ok {
		return ErrNotFound
	}
	delete(m.webhooks, id)
	return nil
}

func cloneAsset(a *model.Asset) *model.Asset {
	c := *a
	if a.Observation != nil {
		obs := *a.Observation
		c.Observation = &obs
	}
	if a.HealthUpdatedAt != nil {
		t := *a.HealthUpdatedAt
		c.HealthUpdatedAt = &t
	}
	return &c
}
