package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/diagnosis/refcheck/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) { handler(wrap(msg)) })
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) { handler(wrap(msg)) })
	return err
}

func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

func wrap(msg *nats.Msg) *Message {
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now(),
		ID:        uuid.NewString(),
	}
}

// LogBus stands in for NATS when no server is configured. Publishes are
// logged and handed to local subscribers.
type LogBus struct {
	handlers map[string][]func(msg *Message)
}

func NewLogBus() *LogBus {
	return &LogBus{handlers: make(map[string][]func(msg *Message))}
}

func (b *LogBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	logger.InfoContext(ctx, "Event", "subject", subject, "data", string(payload))

	msg := &Message{Subject: subject, Data: payload, Timestamp: time.Now(), ID: uuid.NewString()}
	for _, h := range b.handlers[subject] {
		h(msg)
	}
	return nil
}

// Subscribe must be called before the bus is shared between goroutines.
func (b *LogBus) Subscribe(subject string, handler func(msg *Message)) error {
	b.handlers[subject] = append(b.handlers[subject], handler)
	return nil
}

func (b *LogBus) QueueSubscribe(subject, _ string, handler func(msg *Message)) error {
	return b.Subscribe(subject, handler)
}

func (b *LogBus) Close() error { return nil }

// Event types and subjects
const (
	RequestSubmitted = "refcheck.request.submitted"
	RequestCompleted = "refcheck.request.completed"

	ResponseConsented = "refcheck.response.consented"
	ResponseSubmitted = "refcheck.response.submitted"
	ResponseRejected  = "refcheck.response.rejected"

	TokenReminded = "refcheck.token.reminded"
)

// Event payloads
type RequestSubmittedEvent struct {
	RequestID   string    `json:"request_id"`
	OwnerID     string    `json:"owner_id"`
	TalentName  string    `json:"talent_name"`
	Companies   int       `json:"companies"`
	Tokens      int       `json:"tokens"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type RequestCompletedEvent struct {
	RequestID   string    `json:"request_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type ResponseConsentedEvent struct {
	RequestID   string    `json:"request_id"`
	CompanyID   string    `json:"company_id"`
	ConsentedAt time.Time `json:"consented_at"`
}

type ResponseSubmittedEvent struct {
	RequestID   string    `json:"request_id"`
	CompanyID   string    `json:"company_id"`
	ResponseID  string    `json:"response_id"`
	Answers     int       `json:"answers"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type ResponseRejectedEvent struct {
	RequestID  string    `json:"request_id"`
	CompanyID  string    `json:"company_id"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}

type TokenRemindedEvent struct {
	RequestID     string    `json:"request_id"`
	CompanyID     string    `json:"company_id"`
	RemindersSent int       `json:"reminders_sent"`
	RemindedAt    time.Time `json:"reminded_at"`
}
