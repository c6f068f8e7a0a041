package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"relgraph_backend/pkg/logger"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Envelope 发布到 NATS 的事件结构
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type NatsPublisher struct {
	nc     *nats.Conn
	prefix string
}

func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("relgraph"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

func NewNatsPublisher(nc *nats.Conn, prefix string) *NatsPublisher {
	return &NatsPublisher{nc: nc, prefix: prefix}
}

// Subject 由前缀和事件类型组成，如 relationship.connection.accepted
func (p *NatsPublisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

func (p *NatsPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	data, err := json.Marshal(Envelope{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshalling error: %w", err)
	}

	msg := &nats.Msg{
		Subject: p.Subject(eventType),
		Data:    data,
		Header:  nats.Header{},
	}
	// 注入 trace 上下文，消费方可以续接链路
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	return p.nc.PublishMsg(msg)
}

func (p *NatsPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}
