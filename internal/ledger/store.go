package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/unislot/slot-app/internal/classifier"
)

// Store manages the moderation ledger in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a ledger store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendAccepted inserts an accepted message into chat_messages.
func (s *Store) AppendAccepted(ctx context.Context, msg *ChatMessage) error {
	const query = `
		INSERT INTO chat_messages (id, slot_id, sender_id, sender_name, body, created_at, confidence, checked_by, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SlotID, msg.SenderID, msg.SenderName, msg.Body,
		msg.CreatedAt, msg.Confidence, string(msg.Mechanism), msg.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger: append accepted: %w", err)
	}
	return nil
}

// AppendRejected inserts a rejected message into flagged_messages.
func (s *Store) AppendRejected(ctx context.Context, msg *FlaggedMessage) error {
	const query = `
		INSERT INTO flagged_messages (id, slot_id, sender_id, sender_name, original_body, suggestion, created_at, confidence, checked_by, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SlotID, msg.SenderID, msg.SenderName, msg.OriginalBody,
		msg.Suggestion, msg.CreatedAt, msg.Confidence, string(msg.Mechanism), msg.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger: append rejected: %w", err)
	}
	return nil
}

// ListBySlot returns the accepted messages of one slot in the given order.
func (s *Store) ListBySlot(ctx context.Context, slotID string, order Order) ([]ChatMessage, error) {
	direction := "ASC"
	if order == OrderDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT id, slot_id, sender_id, sender_name, body, created_at, confidence, checked_by, checked_at
		FROM chat_messages
		WHERE slot_id = $1
		ORDER BY created_at %s`, direction)

	rows, err := s.db.QueryContext(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list by slot: %w", err)
	}
	defer rows.Close()

	return scanChatMessages(rows)
}

// ListMessages returns accepted messages for the admin dashboard, newest
// first, optionally filtered by slot and bounded by the filter limit.
func (s *Store) ListMessages(ctx context.Context, filter Filter) ([]ChatMessage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if filter.SlotID != "" {
		const query = `
			SELECT id, slot_id, sender_id, sender_name, body, created_at, confidence, checked_by, checked_at
			FROM chat_messages
			WHERE slot_id = $1
			ORDER BY created_at DESC
			LIMIT $2`
		rows, err = s.db.QueryContext(ctx, query, filter.SlotID, limit)
	} else {
		const query = `
			SELECT id, slot_id, sender_id, sender_name, body, created_at, confidence, checked_by, checked_at
			FROM chat_messages
			ORDER BY created_at DESC
			LIMIT $1`
		rows, err = s.db.QueryContext(ctx, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: list messages: %w", err)
	}
	defer rows.Close()

	return scanChatMessages(rows)
}

// ListFlagged returns rejected messages for the admin dashboard, newest
// first, optionally filtered by slot and bounded by the filter limit.
func (s *Store) ListFlagged(ctx context.Context, filter Filter) ([]FlaggedMessage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if filter.SlotID != "" {
		const query = `
			SELECT id, slot_id, sender_id, sender_name, original_body, suggestion, created_at, confidence, checked_by, checked_at
			FROM flagged_messages
			WHERE slot_id = $1
			ORDER BY created_at DESC
			LIMIT $2`
		rows, err = s.db.QueryContext(ctx, query, filter.SlotID, limit)
	} else {
		const query = `
			SELECT id, slot_id, sender_id, sender_name, original_body, suggestion, created_at, confidence, checked_by, checked_at
			FROM flagged_messages
			ORDER BY created_at DESC
			LIMIT $1`
		rows, err = s.db.QueryContext(ctx, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: list flagged: %w", err)
	}
	defer rows.Close()

	var out []FlaggedMessage
	for rows.Next() {
		var m FlaggedMessage
		var mechanism string
		if err := rows.Scan(&m.ID, &m.SlotID, &m.SenderID, &m.SenderName, &m.OriginalBody,
			&m.Suggestion, &m.CreatedAt, &m.Confidence, &mechanism, &m.CheckedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan flagged: %w", err)
		}
		m.Mechanism = classifier.Mechanism(mechanism)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AggregateCounts computes totals and the per-mechanism breakdown across both
// tables in a single round trip each.
func (s *Store) AggregateCounts(ctx context.Context) (Counts, error) {
	counts := Counts{ByMechanism: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages`).Scan(&counts.TotalMessages); err != nil {
		return Counts{}, fmt.Errorf("ledger: count messages: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flagged_messages`).Scan(&counts.TotalFlagged); err != nil {
		return Counts{}, fmt.Errorf("ledger: count flagged: %w", err)
	}

	const query = `
		SELECT checked_by, COUNT(*) FROM (
			SELECT checked_by FROM chat_messages
			UNION ALL
			SELECT checked_by FROM flagged_messages
		) AS judged
		GROUP BY checked_by`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return Counts{}, fmt.Errorf("ledger: count by mechanism: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mechanism string
		var n int
		if err := rows.Scan(&mechanism, &n); err != nil {
			return Counts{}, fmt.Errorf("ledger: scan mechanism count: %w", err)
		}
		counts.ByMechanism[mechanism] = n
	}
	if err := rows.Err(); err != nil {
		return Counts{}, err
	}

	counts.FlaggedPercentage = FlaggedPercentage(counts.TotalMessages, counts.TotalFlagged)
	return counts, nil
}

// DeleteFlagged removes one flagged message by ID — the single administrative
// deletion the ledger allows.
func (s *Store) DeleteFlagged(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flagged_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ledger: delete flagged: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForSlot removes every accepted message of a slot inside tx. It is
// called from the slot cascade delete so that the slot row and its transcript
// go away atomically — either all messages are removed or none are.
func DeleteForSlot(ctx context.Context, tx *sql.Tx, slotID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE slot_id = $1`, slotID)
	if err != nil {
		return 0, fmt.Errorf("ledger: cascade delete for slot %s: %w", slotID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger: cascade rows affected: %w", err)
	}
	return n, nil
}

// FlaggedPercentage computes the share of all judged messages that were
// flagged, as a percentage. The denominator is accepted + flagged.
func FlaggedPercentage(accepted, flagged int) float64 {
	total := accepted + flagged
	if total == 0 {
		return 0
	}
	return float64(flagged) / float64(total) * 100
}

func scanChatMessages(rows *sql.Rows) ([]ChatMessage, error) {
	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var mechanism string
		if err := rows.Scan(&m.ID, &m.SlotID, &m.SenderID, &m.SenderName, &m.Body,
			&m.CreatedAt, &m.Confidence, &mechanism, &m.CheckedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan message: %w", err)
		}
		m.Mechanism = classifier.Mechanism(mechanism)
		out = append(out, m)
	}
	return out, rows.Err()
}
