// 라이프사이클 이벤트 -> NATS subject 발행
//
// subject: <prefix>.<EventType> (예: equipment.health.AlertCreated)

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/model"
	"go.uber.org/zap"
)

// NATSPublisher - 이벤트 버스 구독자
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher - NATS 연결 (끊기면 자동 재연결)
func NewNATSPublisher(cfg config.NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("equipment-health"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

// HandleEvent - 이벤트 1건 발행
func (p *NATSPublisher) HandleEvent(ctx context.Context, ev model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := nats.NewMsg(eventSubject(p.prefix, ev.Type))
	msg.Data = data
	// consumer 측 중복 제거용 (JetStream이면 서버가 처리)
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	return p.conn.PublishMsg(msg)
}

// Close - 버퍼된 메시지 flush 후 연결 종료
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

func eventSubject(prefix string, t model.EventType) string {
	if prefix == "" {
		return string(t)
	}
	return prefix + "." + string(t)
}
