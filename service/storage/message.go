package storage

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Message is one persisted chat message. It is immutable once created.
type Message struct {
	ID         string    `bson:"_id" json:"id"`
	Seq        int64     `bson:"seq" json:"-"`
	Sender     string    `bson:"sender" json:"senderId"`
	Recipient  string    `bson:"recipient" json:"recipientId"`
	Text       string    `bson:"text,omitempty" json:"text,omitempty"`
	Attachment string    `bson:"attachment,omitempty" json:"attachmentRef,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
}

// MessageStore is the durable, append-only message log.
type MessageStore interface {
	// Create assigns id and creation time and persists the message.
	Create(ctx context.Context, sender, recipient, text, attachment string) (*Message, error)
	// Find returns every message exchanged between a and b, oldest first.
	Find(ctx context.Context, a, b string) ([]*Message, error)
}

// DMKey is the order-independent key of the conversation between a and b.
func DMKey(a, b string) string {
	p := []string{a, b}
	sort.Strings(p)
	return fmt.Sprintf("im:dm:%s:%s", p[0], p[1])
}
