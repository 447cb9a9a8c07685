// Package store provides the DedupRepo interface for inbound webhook deduplication.
package store

import (
	"context"
	"time"
)

// DefaultDedupRetention is how long inbound message ids are remembered.
// Cloud API redeliveries stop well within this window.
const DefaultDedupRetention = 72 * time.Hour

// DedupRecord represents one inbound WhatsApp message id seen by the webhook.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	UserID      string     `json:"user_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards against the platform redelivering a message we already handled.
type DedupRepo interface {
	// IsDuplicate checks if a message ID has already been recorded.
	IsDuplicate(ctx context.Context, messageID string) (bool, error)

	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(ctx context.Context, messageID, userID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(ctx context.Context, messageID string) error

	// PruneDedup deletes records received before the cutoff and returns how many were removed.
	PruneDedup(ctx context.Context, before time.Time) (int64, error)
}
