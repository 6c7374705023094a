package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// EventPublisher pushes photo lifecycle events to NATS. A nil publisher is
// valid and drops everything, so handlers never need to care whether eventing
// is configured.
type EventPublisher struct {
	nc  *nats.Conn
	log *zap.Logger
}

func ConnectEvents(url string, log *zap.Logger) (*EventPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}
	log.Info("connected to NATS", zap.String("url", url))
	return &EventPublisher{nc: nc, log: log}, nil
}

// Conn exposes the underlying connection for subscribers.
func (p *EventPublisher) Conn() *nats.Conn {
	if p == nil {
		return nil
	}
	return p.nc
}

// Publish sends a JSON-encoded event. Failures are logged, not propagated:
// eventing is advisory and must never fail a photo operation.
func (p *EventPublisher) Publish(subject string, payload interface{}) {
	if p == nil || p.nc == nil || !p.nc.IsConnected() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("event marshal failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn("event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (p *EventPublisher) Close() {
	if p != nil && p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
