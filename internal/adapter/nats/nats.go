// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/switchyard-ai/switchyard/internal/logger"
	"github.com/switchyard-ai/switchyard/internal/port/messagequeue"
)

const streamName = "SWITCHYARD"

const (
	headerRequestID  = "Request-Id"
	headerRetryCount = "Retry-Count"

	// dlqSuffix is appended to a subject to form its dead-letter subject.
	dlqSuffix = ".dlq"

	// maxRetries is how many times a message is requeued after handler
	// failure before it moves to the subject's DLQ.
	maxRetries = 3
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching our topic patterns.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"usage.>", "providers.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject. A request ID present in
// the context travels with the message as a header so consumers log under
// the same ID.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
//
// Payloads failing schema validation move straight to the subject's DLQ.
// Handler failures are requeued with an incremented retry counter; after
// maxRetries the message moves to the DLQ as well.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.handle(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// handle runs a single delivery through validation, the handler, and the
// retry policy.
func (q *Queue) handle(msg jetstream.Msg, handler messagequeue.Handler) {
	subject := msg.Subject()
	hdrs := msg.Headers()

	// Invalid payloads never succeed; retrying is pointless.
	if err := messagequeue.Validate(subject, msg.Data()); err != nil {
		slog.Error("message validation failed", "subject", subject, "error", err)
		q.moveToDLQ(msg)
		return
	}

	ctx := context.Background()
	if reqID := hdrs.Get(headerRequestID); reqID != "" {
		ctx = logger.WithRequestID(ctx, reqID)
	}

	if err := handler(ctx, subject, msg.Data()); err != nil {
		retries := retryCount(hdrs)
		if retries >= maxRetries {
			slog.Error("message handler failed, retries exhausted",
				"subject", subject, "retries", retries, "error", err)
			q.moveToDLQ(msg)
			return
		}
		slog.Warn("message handler failed, requeueing",
			"subject", subject, "retry", retries+1, "error", err)
		q.requeue(msg, retries+1)
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "subject", subject, "error", ackErr)
	}
}

// requeue republishes the message with an updated retry counter and acks
// the original delivery.
func (q *Queue) requeue(msg jetstream.Msg, retries int) {
	m := &nats.Msg{Subject: msg.Subject(), Data: msg.Data(), Header: nats.Header{}}
	for k, vals := range msg.Headers() {
		for _, v := range vals {
			m.Header.Add(k, v)
		}
	}
	m.Header.Set(headerRetryCount, strconv.Itoa(retries))

	if _, err := q.js.PublishMsg(context.Background(), m); err != nil {
		slog.Error("nats requeue failed", "subject", msg.Subject(), "error", err)
		// Fall back to redelivery of the original message.
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "error", err)
	}
}

// moveToDLQ copies the message onto its subject's dead-letter subject and
// acks the original. Messages already on a DLQ subject are dropped so a
// poisoned payload cannot cycle through ever-longer DLQ suffixes.
func (q *Queue) moveToDLQ(msg jetstream.Msg) {
	subject := msg.Subject()
	if !strings.HasSuffix(subject, dlqSuffix) {
		m := &nats.Msg{Subject: subject + dlqSuffix, Data: msg.Data(), Header: msg.Headers()}
		if _, err := q.js.PublishMsg(context.Background(), m); err != nil {
			slog.Error("dlq publish failed", "subject", subject, "error", err)
			// Leave unacked so JetStream redelivers and we try again.
			return
		}
		slog.Warn("message moved to dlq", "subject", subject)
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack failed", "subject", subject, "error", err)
	}
}

// retryCount reads the retry counter header, defaulting to zero.
func retryCount(hdrs nats.Header) int {
	v := hdrs.Get(headerRetryCount)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// KeyValue creates or opens a JetStream key-value bucket with the given
// per-entry TTL. The bucket backs the remote cache tier.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream keyvalue %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain flushes pending messages on all subscriptions and then closes the
// connection. New messages are rejected once draining starts.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is currently up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
