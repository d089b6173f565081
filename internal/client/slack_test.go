package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlack(t *testing.T) (*SlackClient, *[]SlackMessage) {
	t.Helper()
	var (
		mu   sync.Mutex
		sent []SlackMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		var msg SlackMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		mu.Lock()
		sent = append(sent, msg)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(SlackResponse{OK: true, TS: "1700000000.0001"})
	}))
	t.Cleanup(srv.Close)

	c := NewSlackClient(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123"})
	c.apiURL = srv.URL
	return c, &sent
}

func TestSlackCriticalAlertThread(t *testing.T) {
	c, sent := newTestSlack(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.HandleEvent(ctx, model.Event{
		Type: model.EventAlertCreated, EntityID: "AL001", AssetID: "A001", OccurredAt: now,
		Attributes: map[string]string{"severity": "critical", "signal": "vibration", "detection_type": "anomaly"},
	}))
	ts, ok := c.GetThreadTS("AL001")
	require.True(t, ok)
	assert.Equal(t, "1700000000.0001", ts)

	require.NoError(t, c.HandleEvent(ctx, model.Event{
		Type: model.EventAlertConverted, EntityID: "AL001", NewState: "converted", Actor: "kim",
		Attributes: map[string]string{"work_order_id": "WO001"},
	}))
	_, ok = c.GetThreadTS("AL001")
	assert.False(t, ok)

	require.Len(t, *sent, 2)
	assert.Equal(t, "1700000000.0001", (*sent)[1].ThreadTS)
	assert.Contains(t, (*sent)[1].Attachments[0].Text, "WO001")
}

func TestSlackIgnoresNonCritical(t *testing.T) {
	c, sent := newTestSlack(t)
	ctx := context.Background()

	require.NoError(t, c.HandleEvent(ctx, model.Event{
		Type: model.EventAlertCreated, EntityID: "AL002", Attributes: map[string]string{"severity": "medium"},
	}))
	require.NoError(t, c.HandleEvent(ctx, model.Event{
		Type: model.EventAlertClosed, EntityID: "AL002", NewState: "closed",
	}))
	require.NoError(t, c.HandleEvent(ctx, model.Event{
		Type: model.EventAssetHealthChanged, AssetID: "A002", NewState: "watch",
	}))
	assert.Empty(t, *sent)
}

func TestSlackUnconfiguredIsNoop(t *testing.T) {
	c := NewSlackClient(config.SlackConfig{})
	assert.NoError(t, c.HandleEvent(context.Background(), model.Event{
		Type: model.EventAssetHealthChanged, NewState: "critical",
	}))
}
