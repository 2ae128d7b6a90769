package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cassaevelyn/smartlib/pkg/logger"
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

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
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

	logger.DebugContext(ctx, "Publishing event", "subject", subject)

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Identity events
	UserRegistered = "user.registered"
	UserVerified   = "user.verified"
	UserApproved   = "user.approved"
	UserRejected   = "user.rejected"
	UserLoggedIn   = "user.logged_in"
	UserLoggedOut  = "user.logged_out"

	// Library access events
	AccessRequested = "access.requested"
	AccessGranted   = "access.granted"
	AccessRevoked   = "access.revoked"

	// Loyalty events
	PointsAwarded  = "loyalty.points.awarded"
	PointsRedeemed = "loyalty.points.redeemed"

	// Notification events
	NotifySend = "notify.send"
)

// Notification kinds carried on NotifySend
const (
	NotifyKindActivation    = "activation"
	NotifyKindOTP           = "otp"
	NotifyKindPasswordReset = "password_reset"
	NotifyKindApproval      = "approval"
	NotifyKindRejection     = "rejection"
)

// Event payloads
type UserRegisteredEvent struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	CRN       string    `json:"crn"`
	CreatedAt time.Time `json:"created_at"`
}

type UserVerifiedEvent struct {
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	VerifiedAt time.Time `json:"verified_at"`
}

type UserLoggedInEvent struct {
	UserID    int64     `json:"user_id"`
	SessionID int64     `json:"session_id"`
	IP        string    `json:"ip"`
	LoggedAt  time.Time `json:"logged_at"`
}

type AccessChangedEvent struct {
	UserID    int64     `json:"user_id"`
	LibraryID int64     `json:"library_id"`
	GrantID   int64     `json:"grant_id"`
	Active    bool      `json:"active"`
	Approved  bool      `json:"approved"`
	ChangedAt time.Time `json:"changed_at"`
}

type PointsEvent struct {
	UserID    int64     `json:"user_id"`
	Points    int       `json:"points"`
	Type      string    `json:"type"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationEvent struct {
	Kind      string            `json:"kind"`
	Recipient string            `json:"recipient"`
	Name      string            `json:"name"`
	Data      map[string]string `json:"data"`
}
