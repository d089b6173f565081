package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSubject(t *testing.T) {
	assert.Equal(t, "equipment.health.AlertCreated", eventSubject("equipment.health", model.EventAlertCreated))
	assert.Equal(t, "PartsReserved", eventSubject("", model.EventPartsReserved))
}

func TestStreamValues(t *testing.T) {
	ev := model.Event{
		ID:         "e-1",
		Type:       model.EventWorkOrderCreated,
		EntityKind: model.EntityWorkOrder,
		EntityID:   "WO001",
		Sequence:   3,
		OccurredAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}

	values, err := streamValues(ev)
	require.NoError(t, err)

	assert.Equal(t, "WorkOrderCreated", values["type"])
	assert.Equal(t, "3", values["sequence"])
	assert.Equal(t, "2026-03-01T08:00:00Z", values["timestamp"])

	var decoded model.Event
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, "WO001", decoded.EntityID)
}
