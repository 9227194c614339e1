package slots

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/unislot/slot-app/internal/ledger"
)

// Store manages slots in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a slot store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const slotColumns = `id, title, description, category, max_participants,
	current_participants, participants, location, date_time,
	creator_id, creator_name, tags, requirements, status, created_at`

// Create inserts a new slot. The creator is auto-joined as the first
// participant and the generated slot is returned.
func (s *Store) Create(ctx context.Context, slot *Slot) (*Slot, error) {
	slot.ID = uuid.New().String()
	slot.CreatedAt = time.Now().UTC()
	slot.Status = StatusOpen
	slot.Participants = []Participant{{
		ID:       slot.CreatorID,
		Name:     slot.CreatorName,
		JoinedAt: slot.CreatedAt,
	}}
	slot.CurrentParticipants = 1
	if slot.MaxParticipants == 1 {
		slot.Status = StatusFull
	}

	participants, err := json.Marshal(slot.Participants)
	if err != nil {
		return nil, fmt.Errorf("slots: marshal participants: %w", err)
	}

	const query = `
		INSERT INTO slots (id, title, description, category, max_participants,
			current_participants, participants, location, date_time,
			creator_id, creator_name, tags, requirements, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = s.db.ExecContext(ctx, query,
		slot.ID, slot.Title, slot.Description, slot.Category, slot.MaxParticipants,
		slot.CurrentParticipants, participants, slot.Location, slot.DateTime,
		slot.CreatorID, slot.CreatorName, pq.Array(slot.Tags), slot.Requirements,
		slot.Status, slot.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("slots: create: %w", err)
	}
	return slot, nil
}

// Get returns one slot by ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Slot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	return scanSlot(row)
}

// List returns slots matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots`
	var args []interface{}
	var conds []string

	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("slots: list: %w", err)
	}
	defer rows.Close()

	var out []Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *slot)
	}
	return out, rows.Err()
}

// Join adds a user to a slot. The row is locked for the duration of the
// capacity and duplicate checks so that two concurrent joins cannot both pass
// the capacity check. The status flips to full when the slot reaches
// capacity. Returns the updated slot.
func (s *Store) Join(ctx context.Context, slotID, userID, userName string) (*Slot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("slots: join begin tx: %w", err)
	}
	defer tx.Rollback()

	slot, err := lockSlot(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.IsParticipant(userID) {
		return nil, ErrAlreadyJoined
	}
	if slot.CurrentParticipants >= slot.MaxParticipants {
		return nil, ErrSlotFull
	}

	slot.Participants = append(slot.Participants, Participant{
		ID:       userID,
		Name:     userName,
		JoinedAt: time.Now().UTC(),
	})
	slot.CurrentParticipants++
	if slot.CurrentParticipants >= slot.MaxParticipants {
		slot.Status = StatusFull
	}

	if err := updateParticipants(ctx, tx, slot); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("slots: join commit: %w", err)
	}
	return slot, nil
}

// Leave removes a user from a slot. A departure from a full slot reopens it.
// Returns the updated slot.
func (s *Store) Leave(ctx context.Context, slotID, userID string) (*Slot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("slots: leave begin tx: %w", err)
	}
	defer tx.Rollback()

	slot, err := lockSlot(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, p := range slot.Participants {
		if p.ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotParticipant
	}

	slot.Participants = append(slot.Participants[:idx], slot.Participants[idx+1:]...)
	slot.CurrentParticipants--
	slot.Status = StatusOpen

	if err := updateParticipants(ctx, tx, slot); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("slots: leave commit: %w", err)
	}
	return slot, nil
}

// Delete removes a slot and its chat transcript in one transaction. Either
// the slot row and every one of its messages go away together or nothing
// changes.
func (s *Store) Delete(ctx context.Context, slotID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("slots: delete begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE id = $1`, slotID)
	if err != nil {
		return fmt.Errorf("slots: delete: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	deleted, err := ledger.DeleteForSlot(ctx, tx, slotID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("slots: delete commit: %w", err)
	}

	log.Printf("slots: deleted slot=%s cascaded_messages=%d", slotID, deleted)
	return nil
}

// lockSlot reads a slot inside tx with FOR UPDATE so that concurrent joins
// and leaves serialize on the row.
func lockSlot(ctx context.Context, tx *sql.Tx, slotID string) (*Slot, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, slotID)
	return scanSlot(row)
}

func updateParticipants(ctx context.Context, tx *sql.Tx, slot *Slot) error {
	participants, err := json.Marshal(slot.Participants)
	if err != nil {
		return fmt.Errorf("slots: marshal participants: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE slots
		SET participants = $1, current_participants = $2, status = $3
		WHERE id = $4`,
		participants, slot.CurrentParticipants, slot.Status, slot.ID,
	)
	if err != nil {
		return fmt.Errorf("slots: update participants: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSlot(row rowScanner) (*Slot, error) {
	var slot Slot
	var participants []byte
	err := row.Scan(
		&slot.ID, &slot.Title, &slot.Description, &slot.Category, &slot.MaxParticipants,
		&slot.CurrentParticipants, &participants, &slot.Location, &slot.DateTime,
		&slot.CreatorID, &slot.CreatorName, pq.Array(&slot.Tags), &slot.Requirements,
		&slot.Status, &slot.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("slots: scan slot: %w", err)
	}
	if err := json.Unmarshal(participants, &slot.Participants); err != nil {
		return nil, fmt.Errorf("slots: unmarshal participants: %w", err)
	}
	return &slot, nil
}
