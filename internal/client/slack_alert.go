// 라이프사이클 이벤트 -> Slack 메시지 (이벤트 버스 구독자)
//
//   - AlertCreated (severity critical): 새 메시지, thread_ts 저장
//   - AlertClosed / AlertConverted: 저장된 쓰레드가 있으면 답글 후 thread_ts 삭제
//   - AssetHealthChanged (-> critical): 새 메시지

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/plantops/equipment-health/internal/model"
)

// SlackEvents - Slack 구독 대상 이벤트
var SlackEvents = []model.EventType{
	model.EventAlertCreated,
	model.EventAlertClosed,
	model.EventAlertConverted,
	model.EventAssetHealthChanged,
}

// HandleEvent - 이벤트 버스 핸들러 (미설정이면 아무것도 안 함)
func (c *SlackClient) HandleEvent(ctx context.Context, ev model.Event) error {
	if !c.IsConfigured() {
		return nil
	}
	switch ev.Type {
	case model.EventAlertCreated:
		if ev.Attributes["severity"] != string(model.SeverityCritical) {
			return nil
		}
		return c.sendAlertOpened(ctx, ev)
	case model.EventAlertClosed, model.EventAlertConverted:
		return c.sendAlertFollowUp(ctx, ev)
	case model.EventAssetHealthChanged:
		if ev.NewState != string(model.HealthCritical) {
			return nil
		}
		return c.sendAssetCritical(ctx, ev)
	}
	return nil
}

func (c *SlackClient) sendAlertOpened(ctx context.Context, ev model.Event) error {
	msg := SlackMessage{
		Channel: c.channelID,
		Attachments: []SlackAttachment{
			{
				Color: c.getColorBySeverity(ev.Attributes["severity"]),
				Title: fmt.Sprintf("🔥 [%s] %s on %s", ev.Attributes["severity"], ev.Attributes["signal"], ev.AssetID),
				Fields: []SlackField{
					{Title: "Alert", Value: ev.EntityID, Short: true},
					{Title: "Asset", Value: ev.AssetID, Short: true},
					{Title: "Detection", Value: ev.Attributes["detection_type"], Short: true},
					{Title: "Detected", Value: ev.OccurredAt.Format(time.RFC3339), Short: true},
				},
				Footer: "equipment-health",
				Ts:     ev.OccurredAt.Unix(),
			},
		},
	}
	resp, err := c.send(ctx, msg)
	if err != nil {
		return err
	}
	if resp.TS != "" {
		c.StoreThreadTS(ev.EntityID, resp.TS)
	}
	return nil
}

func (c *SlackClient) sendAlertFollowUp(ctx context.Context, ev model.Event) error {
	threadTS, ok := c.GetThreadTS(ev.EntityID)
	if !ok {
		return nil
	}
	text := fmt.Sprintf("Alert %s %s by %s", ev.EntityID, ev.NewState, ev.Actor)
	if wo := ev.Attributes["work_order_id"]; wo != "" {
		text += fmt.Sprintf(" (work order %s)", wo)
	}
	if code := ev.Attributes["code"]; code != "" {
		text += fmt.Sprintf(" (%s)", code)
	}
	msg := SlackMessage{
		Channel:  c.channelID,
		ThreadTS: threadTS,
		Attachments: []SlackAttachment{
			{Color: "#36a64f", Title: "✅ " + ev.NewState, Text: text},
		},
	}
	if _, err := c.send(ctx, msg); err != nil {
		return err
	}
	c.DeleteThreadTS(ev.EntityID)
	return nil
}

func (c *SlackClient) sendAssetCritical(ctx context.Context, ev model.Event) error {
	msg := SlackMessage{
		Channel: c.channelID,
		Attachments: []SlackAttachment{
			{
				Color: c.getColorBySeverity(string(model.SeverityCritical)),
				Title: fmt.Sprintf("⚠️ Asset %s is critical", ev.AssetID),
				Fields: []SlackField{
					{Title: "Previous", Value: ev.OldState, Short: true},
					{Title: "Health score", Value: ev.Attributes["health_score"], Short: true},
				},
				Footer: "equipment-health",
				Ts:     ev.OccurredAt.Unix(),
			},
		},
	}
	_, err := c.send(ctx, msg)
	return err
}

// severity에 따른 메시지 색상 반환
func (c *SlackClient) getColorBySeverity(severity string) string {
	switch severity {
	case "critical":
		return "#dc3545" // red
	case "high":
		return "#fd7e14" // orange
	case "medium":
		return "#ffc107" // yellow
	default:
		return "#17a2b8" // blue
	}
}
