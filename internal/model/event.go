package model

import "time"

// EventType - 도메인 이벤트 종류
type EventType string

const (
	EventAlertCreated        EventType = "AlertCreated"
	EventAlertMerged         EventType = "AlertMerged"
	EventAlertAcknowledged   EventType = "AlertAcknowledged"
	EventAlertAssigned       EventType = "AlertAssigned"
	EventAlertInvestigating  EventType = "AlertInvestigating"
	EventAlertSnoozed        EventType = "AlertSnoozed"
	EventAlertAnnotated      EventType = "AlertAnnotated"
	EventAlertClosed         EventType = "AlertClosed"
	EventAlertConverted      EventType = "AlertConverted"
	EventWorkOrderCreated    EventType = "WorkOrderCreated"
	EventWorkOrderApproved   EventType = "WorkOrderApproved"
	EventWorkOrderStarted    EventType = "WorkOrderStarted"
	EventWorkOrderAssigned   EventType = "WorkOrderAssigned"
	EventWorkOrderNoted      EventType = "WorkOrderNoted"
	EventWorkOrderCompleted  EventType = "WorkOrderCompleted"
	EventWorkOrderCancelled  EventType = "WorkOrderCancelled"
	EventPartsReserved       EventType = "PartsReserved"
	EventPartsReleased       EventType = "PartsReleased"
	EventPartsConsumed       EventType = "PartsConsumed"
	EventPartsReceived       EventType = "PartsReceived"
	EventAssetOnboarded      EventType = "AssetOnboarded"
	EventAssetDeactivated    EventType = "AssetDeactivated"
	EventObservationRecorded EventType = "ObservationRecorded"
	EventAssetHealthChanged  EventType = "AssetHealthChanged"
)

// EventTypes - 발행되는 모든 이벤트 타입 (웹훅 구독 필터 검증용)
var EventTypes = []EventType{
	EventAlertCreated, EventAlertMerged, EventAlertAcknowledged, EventAlertAssigned,
	EventAlertInvestigating, EventAlertSnoozed, EventAlertAnnotated, EventAlertClosed, EventAlertConverted,
	EventWorkOrderCreated, EventWorkOrderApproved, EventWorkOrderStarted, EventWorkOrderAssigned,
	EventWorkOrderNoted, EventWorkOrderCompleted, EventWorkOrderCancelled,
	EventPartsReserved, EventPartsReleased, EventPartsConsumed, EventPartsReceived,
	EventAssetOnboarded, EventAssetDeactivated, EventObservationRecorded, EventAssetHealthChanged,
}

func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// EntityKind - 이벤트 대상 엔티티 종류
type EntityKind string

const (
	EntityAsset     EntityKind = "asset"
	EntityAlert     EntityKind = "alert"
	EntityWorkOrder EntityKind = "work_order"
	EntityPart      EntityKind = "spare_part"
)

// Event - 이벤트 로그 레코드
//
// (EntityID, Sequence)가 로그 키. ID는 at-least-once 전달 시 consumer 중복 제거용
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	EntityKind EntityKind        `json:"entity_kind"`
	EntityID   string            `json:"entity_id"`
	AssetID    string            `json:"asset_id,omitempty"`
	Sequence   int64             `json:"sequence"`
	OldState   string            `json:"old_state,omitempty"`
	NewState   string            `json:"new_state,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
