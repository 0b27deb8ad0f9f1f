package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	logger "github.com/sirupsen/logrus"
)

const DefaultSubject = "watchtower.alerts"

// NatsSink publishes alerts as JSON on a NATS subject.
type NatsSink struct {
	conn    *nats.Conn
	subject string
}

func NewNatsSink(url, subject string) (*NatsSink, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("watchtower"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warnf("nats disconnected: err=%v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NatsSink{conn: conn, subject: subject}, nil
}

func (s *NatsSink) Alert(ctx context.Context, a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject, data)
}

func (s *NatsSink) Close() {
	if err := s.conn.Drain(); err != nil {
		logger.Warnf("failed to drain nats connection: err=%v", err)
	}
}
