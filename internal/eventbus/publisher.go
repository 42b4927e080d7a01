// Package eventbus implements the optional Kafka subscription sink
// described in SPEC_FULL.md's DOMAIN STACK: a neighbor-changes/
// receive-routes helper subscription can be "a topic" instead of "a pipe",
// publishing the same JSON-encoded event records the process encoder
// produces for forked helpers. It is wired the same way the teacher wires
// its Kafka consumers — a dedicated goroutine draining a bounded channel
// that the reactor writes to once per turn and never touches directly.
package eventbus

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"go.uber.org/zap"

	"github.com/exabgpd/bgpd/internal/metrics"
)

// Publisher produces helper-process event records onto a configured topic.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *zap.Logger
}

// BuildSASL constructs a sasl.Mechanism from config, or nil if disabled —
// same shape as the teacher's cfg.Kafka.BuildSASLMechanism.
func BuildSASL(enabled bool, mechanism, username, password string) sasl.Mechanism {
	if !enabled {
		return nil
	}
	switch mechanism {
	case "plain", "":
		return plain.Auth{User: username, Pass: password}.AsMechanism()
	default:
		return plain.Auth{User: username, Pass: password}.AsMechanism()
	}
}

func NewPublisher(brokers []string, topic, clientID string, tlsCfg *tls.Config, saslMech sasl.Mechanism, logger *zap.Logger) (*Publisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}
	if tlsCfg != nil {
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if saslMech != nil {
		opts = append(opts, kgo.SASL(saslMech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("eventbus: new client: %w", err)
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Run drains payloads off events and produces each as one Kafka record,
// fire-and-forget: a publish failure is logged and counted, never
// propagated back to the reactor, since this sink is explicitly
// best-effort (§6/DOMAIN STACK).
func (p *Publisher) Run(ctx context.Context, events <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.client.Flush(flushCtx)
			cancel()
			return
		case payload, ok := <-events:
			if !ok {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				p.client.Flush(flushCtx)
				cancel()
				return
			}
			rec := &kgo.Record{Topic: p.topic, Value: payload}
			p.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
				if err != nil {
					p.logger.Error("eventbus: publish failed", zap.Error(err))
					metrics.EventBusPublishTotal.WithLabelValues("error").Inc()
					return
				}
				metrics.EventBusPublishTotal.WithLabelValues("ok").Inc()
			})
		}
	}
}

func (p *Publisher) Close() { p.client.Close() }
