// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/TenantForge/internal/logger"
	"github.com/Strob0t/TenantForge/internal/port/messagequeue"
)

const headerRequestID = "X-Request-ID"

// Config configures the JetStream connection.
type Config struct {
	URL    string
	Stream string
	// MaxDeliver bounds redeliveries of a failing message before it moves
	// to the dead-letter subject.
	MaxDeliver int
	// NakDelay is the base redelivery delay, doubled per attempt.
	NakDelay time.Duration
}

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg Config
}

var _ messagequeue.Queue = (*Queue)(nil)

// Connect establishes a connection to NATS and ensures the stream exists.
func Connect(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.NakDelay <= 0 {
		cfg.NakDelay = 2 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("tenantforge"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{"mail.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", cfg.URL, "stream", cfg.Stream)
	return &Queue{nc: nc, js: js, cfg: cfg}, nil
}

// JetStream exposes the context for KV buckets.
func (q *Queue) JetStream() jetstream.JetStream { return q.js }

// KeyValue creates or opens a KV bucket with a bucket-wide TTL.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket, TTL: ttl, History: 1})
	if err != nil {
		return nil, fmt.Errorf("kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Publish validates data against the subject schema and sends it. The
// request ID in ctx travels as a header.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe binds handler to a durable consumer for subject. Messages that
// fail validation are dead-lettered at once. Handler failures are redelivered
// with growing delay until MaxDeliver, then dead-lettered.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       durableName(subject),
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    q.cfg.MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.dispatch(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}
	return cons.Stop, nil
}

func (q *Queue) dispatch(msg jetstream.Msg, handler messagequeue.Handler) {
	ctx := context.Background()
	if id := msg.Headers().Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}

	if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
		slog.ErrorContext(ctx, "invalid message, dead-lettering", "subject", msg.Subject(), "error", err)
		q.deadLetter(ctx, msg)
		return
	}

	err := handler(ctx, msg.Subject(), msg.Data())
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			slog.ErrorContext(ctx, "nats ack failed", "error", ackErr)
		}
		return
	}

	delivered := uint64(1)
	if meta, metaErr := msg.Metadata(); metaErr == nil {
		delivered = meta.NumDelivered
	}
	if delivered >= uint64(q.cfg.MaxDeliver) {
		slog.ErrorContext(ctx, "message retries exhausted, dead-lettering",
			"subject", msg.Subject(), "deliveries", delivered, "error", err)
		q.deadLetter(ctx, msg)
		return
	}

	slog.WarnContext(ctx, "message handler failed, will redeliver",
		"subject", msg.Subject(), "deliveries", delivered, "error", err)
	if nakErr := msg.NakWithDelay(q.nakDelay(delivered)); nakErr != nil {
		slog.ErrorContext(ctx, "nats nak failed", "error", nakErr)
	}
}

func (q *Queue) nakDelay(delivered uint64) time.Duration {
	d := q.cfg.NakDelay
	for i := uint64(1); i < delivered && d < 5*time.Minute; i++ {
		d *= 2
	}
	return d
}

// deadLetter republishes the raw message on the DLQ subject and terminates
// the original so JetStream stops redelivering it.
func (q *Queue) deadLetter(ctx context.Context, msg jetstream.Msg) {
	dlq := &nats.Msg{Subject: messagequeue.DeadLetter(msg.Subject()), Data: msg.Data(), Header: msg.Headers()}
	if _, err := q.js.PublishMsg(ctx, dlq); err != nil {
		slog.ErrorContext(ctx, "dlq publish failed", "subject", dlq.Subject, "error", err)
		_ = msg.Nak()
		return
	}
	if err := msg.Term(); err != nil {
		slog.ErrorContext(ctx, "nats term failed", "error", err)
	}
}

// Drain flushes in-flight messages and closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports the live connection state for readiness.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.IsConnected()
}

func durableName(subject string) string {
	return "tenantforge_" + strings.NewReplacer(".", "_", "*", "any", ">", "all").Replace(subject)
}
