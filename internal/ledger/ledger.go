// Package ledger provides PostgreSQL-backed, append-only storage for
// moderation outcomes. Accepted messages and rejected (flagged) messages are
// kept in separate tables; every record embeds the verdict that produced it.
// Records are immutable once written — the only deletions are the explicit
// administrative removal of a flagged message and the cascade delete of a
// slot's transcript when the slot itself is deleted.
package ledger

import (
	"errors"
	"time"

	"github.com/unislot/slot-app/internal/classifier"
)

// ErrNotFound is returned when a referenced ledger record does not exist.
var ErrNotFound = errors.New("ledger: record not found")

// ChatMessage is an accepted message persisted to the shared transcript.
// Its verdict is always acceptable.
type ChatMessage struct {
	ID         string               `json:"id"`
	SlotID     string               `json:"slotId"`
	SenderID   string               `json:"senderId"`
	SenderName string               `json:"senderName"`
	Body       string               `json:"body"`
	CreatedAt  time.Time            `json:"createdAt"`
	Confidence float64              `json:"confidence"`
	Mechanism  classifier.Mechanism `json:"checkedBy"`
	CheckedAt  time.Time            `json:"checkedAt"`
}

// FlaggedMessage is a rejected message retained for audit. It never reaches
// the shared transcript; only the sender ever saw the rejection.
type FlaggedMessage struct {
	ID           string               `json:"id"`
	SlotID       string               `json:"slotId"`
	SenderID     string               `json:"senderId"`
	SenderName   string               `json:"senderName"`
	OriginalBody string               `json:"originalBody"`
	Suggestion   string               `json:"suggestion"`
	CreatedAt    time.Time            `json:"createdAt"`
	Confidence   float64              `json:"confidence"`
	Mechanism    classifier.Mechanism `json:"checkedBy"`
	CheckedAt    time.Time            `json:"checkedAt"`
}

// Order selects transcript ordering for ListBySlot.
type Order string

const (
	OrderAsc  Order = "asc"  // oldest first (transcript reads)
	OrderDesc Order = "desc" // newest first (dashboards)
)

// Filter narrows admin list queries. A zero SlotID means all slots; a zero
// Limit applies DefaultListLimit.
type Filter struct {
	SlotID string
	Limit  int
}

// DefaultListLimit bounds admin list queries when no limit is given.
const DefaultListLimit = 100

// Counts is the aggregate moderation statistic consumed by dashboards.
// FlaggedPercentage uses accepted+flagged as the denominator: the share of
// all judged messages that were flagged.
type Counts struct {
	TotalMessages     int            `json:"totalMessages"`
	TotalFlagged      int            `json:"totalFlagged"`
	FlaggedPercentage float64        `json:"flaggedPercentage"`
	ByMechanism       map[string]int `json:"checkedBy"`
}
