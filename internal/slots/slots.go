// Package slots manages activity slots: group activities that users create,
// join, and chat in. A slot carries a capacity, a denormalized participant
// list, and an open/full status that flips automatically at capacity.
package slots

import (
	"errors"
	"time"
)

// Slot statuses.
const (
	StatusOpen = "open"
	StatusFull = "full"
)

// Typed errors returned by the store. Callers check them with errors.Is to
// pick the right HTTP status.
var (
	ErrNotFound       = errors.New("slots: slot not found")
	ErrSlotFull       = errors.New("slots: slot is full")
	ErrAlreadyJoined  = errors.New("slots: user already joined")
	ErrNotParticipant = errors.New("slots: user is not a participant")
)

// Participant is one member of a slot, stored denormalized in the slot row.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Slot is an activity slot.
type Slot struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title"`
	Description         string        `json:"description"`
	Category            string        `json:"category"`
	MaxParticipants     int           `json:"maxParticipants"`
	CurrentParticipants int           `json:"currentParticipants"`
	Participants        []Participant `json:"participants"`
	Location            string        `json:"location"`
	DateTime            time.Time     `json:"dateTime"`
	CreatorID           string        `json:"creatorId"`
	CreatorName         string        `json:"creatorName"`
	Tags                []string      `json:"tags"`
	Requirements        string        `json:"requirements"`
	Status              string        `json:"status"`
	CreatedAt           time.Time     `json:"createdAt"`
}

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	Category string
	Status   string
}

// IsParticipant reports whether the user is in the slot's participant list.
func (s *Slot) IsParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
