package template

import (
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestRenderBodyEventAndAsset(t *testing.T) {
	occurred := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	ev := EventDataFromModel(model.Event{
		ID:         "evt-1",
		Type:       model.EventAlertClosed,
		EntityKind: model.EntityAlert,
		EntityID:   "AL001",
		Sequence:   4,
		OldState:   "investigating",
		NewState:   "closed",
		Actor:      "kim",
		OccurredAt: occurred,
		Attributes: map[string]string{"code": "resolved"},
	})
	asset := AssetDataFromModel(&model.Asset{
		ID:           "A001",
		Tag:          "P-101",
		Location:     model.Location{Plant: "Ulsan", Area: "Pumps", Line: "L1"},
		Criticality:  model.CriticalityCritical,
		HealthStatus: model.HealthCritical,
	})

	body := `{"id":"{{event.id}}","text":"{{asset.tag}} {{event.entity_id}} {{event.old_state}}->{{event.new_state}} ({{event.attr.code}}) at {{event.occurred_at}} #{{event.sequence}}{{event.attr.missing}}"}`
	got := RenderBody(body, &ev, &asset)

	assert.Equal(t, `{"id":"evt-1","text":"P-101 AL001 investigating->closed (resolved) at 2024-05-02T09:30:00Z #4"}`, got)
}

func TestRenderBodyNilInputs(t *testing.T) {
	got := RenderBody("[{{event.type}}|{{asset.plant}}|{{event.attr.qty}}]", nil, nil)
	assert.Equal(t, "[||]", got)
}
