package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is where reports are published when none is configured.
const DefaultSubject = "semcheck.report"

// flushTimeout bounds Publish when ctx carries no deadline.
const flushTimeout = 5 * time.Second

// Publisher hands a finished report to a downstream consumer.
type Publisher interface {
	Publish(ctx context.Context, r *Report) error
	Close() error
}

// NATSPublisher publishes the JSON report on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(nc *nats.Conn, subject string) (*NATSPublisher, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

// DialNATS connects to url and returns a publisher owning the connection.
func DialNATS(url, subject string) (*NATSPublisher, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	nc, err := nats.Connect(url, nats.Name("semcheck-report"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return NewNATSPublisher(nc, subject)
}

// Subject returns the subject reports go to.
func (p *NATSPublisher) Subject() string { return p.subject }

// Publish sends the report and waits for the server to acknowledge the
// flush.
func (p *NATSPublisher) Publish(ctx context.Context, r *Report) error {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = buf.Bytes()
	msg.Header.Set("Semcheck-Run-Id", r.RunID)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
