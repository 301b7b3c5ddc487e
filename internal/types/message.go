package types

import "time"

// SenderType identifies who wrote a message
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderBot      SenderType = "bot"
	SenderAgent    SenderType = "agent"
	SenderSystem   SenderType = "system"
)

// DeliveryStatus tracks message delivery to the other party
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Message is a single chat message. MessageID is a ULID so the
// transcript sorts chronologically by id alone.
type Message struct {
	MessageID  string         `json:"messageId"`
	SessionID  string         `json:"sessionId"`
	SenderType SenderType     `json:"senderType"`
	SenderName string         `json:"senderName,omitempty"`
	SenderID   string         `json:"senderId,omitempty"`
	Body       string         `json:"body"`
	Delivery   DeliveryStatus `json:"delivery"`
	IsRead     bool           `json:"isRead"`
	ReadAt     *time.Time     `json:"readAt,omitempty"`
	IsInternal bool           `json:"isInternal,omitempty"` // agent-only note
	CreatedAt  time.Time      `json:"createdAt"`
}
