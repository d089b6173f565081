// Package template provides webhook body template rendering.
//
// 지원하는 변수 형식:
//
//	{{event.id}}, {{event.type}}, {{event.entity_kind}}, {{event.entity_id}},
//	{{event.sequence}}, {{event.old_state}}, {{event.new_state}},
//	{{event.actor}}, {{event.occurred_at}}, {{event.attr.<key>}}
//
//	{{asset.id}}, {{asset.tag}}, {{asset.type}}, {{asset.plant}},
//	{{asset.area}}, {{asset.line}}, {{asset.criticality}}, {{asset.health_status}}
package template

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/plantops/equipment-health/internal/model"
)

// EventData - 템플릿 렌더링에 사용할 이벤트 데이터
type EventData struct {
	ID         string
	Type       string
	EntityKind string
	EntityID   string
	Sequence   int64
	OldState   string
	NewState   string
	Actor      string
	OccurredAt time.Time
	Attributes map[string]string
}

// AssetData - 템플릿 렌더링에 사용할 설비 데이터
type AssetData struct {
	ID           string
	Tag          string
	Type         string
	Plant        string
	Area         string
	Line         string
	Criticality  string
	HealthStatus string
}

var attrPattern = regexp.MustCompile(`\{\{event\.attr\.([A-Za-z0-9_\-]+)\}\}`)

// EventDataFromModel - model.Event에서 EventData 생성
func EventDataFromModel(ev model.Event) EventData {
	return EventData{
		ID:         ev.ID,
		Type:       string(ev.Type),
		EntityKind: string(ev.EntityKind),
		EntityID:   ev.EntityID,
		Sequence:   ev.Sequence,
		OldState:   ev.OldState,
		NewState:   ev.NewState,
		Actor:      ev.Actor,
		OccurredAt: ev.OccurredAt,
		Attributes: ev.Attributes,
	}
}

// AssetDataFromModel - model.Asset에서 AssetData 생성
func AssetDataFromModel(a *model.Asset) AssetData {
	return AssetData{
		ID:           a.ID,
		Tag:          a.Tag,
		Type:         a.Type,
		Plant:        a.Location.Plant,
		Area:         a.Location.Area,
		Line:         a.Location.Line,
		Criticality:  string(a.Criticality),
		HealthStatus: string(a.HealthStatus),
	}
}

// RenderBody - webhook body 템플릿의 변수를 실제 값으로 치환
//
// nil로 전달된 항목의 변수는 빈 문자열로 치환됩니다.
// 이벤트에 없는 {{event.attr.*}} 키도 빈 문자열이 됩니다.
func RenderBody(body string, ev *EventData, asset *AssetData) string {
	pairs := make([]string, 0, 40)

	// --- Event 변수 ---
	if ev != nil {
		occurredAt := ""
		if !ev.OccurredAt.IsZero() {
			occurredAt = ev.OccurredAt.Format(time.RFC3339)
		}
		pairs = append(pairs,
			"{{event.id}}", ev.ID,
			"{{event.type}}", ev.Type,
			"{{event.entity_kind}}", ev.EntityKind,
			"{{event.entity_id}}", ev.EntityID,
			"{{event.sequence}}", strconv.FormatInt(ev.Sequence, 10),
			"{{event.old_state}}", ev.OldState,
			"{{event.new_state}}", ev.NewState,
			"{{event.actor}}", ev.Actor,
			"{{event.occurred_at}}", occurredAt,
		)
		keys := make([]string, 0, len(ev.Attributes))
		for k := range ev.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = append(pairs, "{{event.attr."+k+"}}", ev.Attributes[k])
		}
	} else {
		pairs = append(pairs,
			"{{event.id}}", "",
			"{{event.type}}", "",
			"{{event.entity_kind}}", "",
			"{{event.entity_id}}", "",
			"{{event.sequence}}", "",
			"{{event.old_state}}", "",
			"{{event.new_state}}", "",
			"{{event.actor}}", "",
			"{{event.occurred_at}}", "",
		)
	}

	// --- Asset 변수 ---
	if asset != nil {
		pairs = append(pairs,
			"{{asset.id}}", asset.ID,
			"{{asset.tag}}", asset.Tag,
			"{{asset.type}}", asset.Type,
			"{{asset.plant}}", asset.Plant,
			"{{asset.area}}", asset.Area,
			"{{asset.line}}", asset.Line,
			"{{asset.criticality}}", asset.Criticality,
			"{{asset.health_status}}", asset.HealthStatus,
		)
	} else {
		pairs = append(pairs,
			"{{asset.id}}", "",
			"{{asset.tag}}", "",
			"{{asset.type}}", "",
			"{{asset.plant}}", "",
			"{{asset.area}}", "",
			"{{asset.line}}", "",
			"{{asset.criticality}}", "",
			"{{asset.health_status}}", "",
		)
	}

	rendered := strings.NewReplacer(pairs...).Replace(body)
	return attrPattern.ReplaceAllString(rendered, "")
}
