package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/unislot/slot-app/internal/slots"
)

// createSlotRequest is the POST /api/slots body. Server-managed fields
// (id, participants, status, timestamps) are ignored if present.
type createSlotRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	MaxParticipants int       `json:"maxParticipants"`
	Location        string    `json:"location"`
	DateTime        time.Time `json:"dateTime"`
	CreatorID       string    `json:"creatorId"`
	CreatorName     string    `json:"creatorName"`
	Tags            []string  `json:"tags"`
	Requirements    string    `json:"requirements"`
}

// membershipRequest is the join/leave body.
type membershipRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (a *API) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || req.CreatorID == "" {
		writeError(w, http.StatusBadRequest, "title and creatorId are required")
		return
	}
	if req.MaxParticipants < 1 {
		writeError(w, http.StatusBadRequest, "maxParticipants must be at least 1")
		return
	}

	slot, err := a.slots.Create(r.Context(), &slots.Slot{
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		MaxParticipants: req.MaxParticipants,
		Location:        req.Location,
		DateTime:        req.DateTime,
		CreatorID:       req.CreatorID,
		CreatorName:     req.CreatorName,
		Tags:            req.Tags,
		Requirements:    req.Requirements,
	})
	if err != nil {
		log.Printf("httpapi: create slot: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create slot")
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (a *API) handleListSlots(w http.ResponseWriter, r *http.Request) {
	filter := slots.ListFilter{
		Category: r.URL.Query().Get("category"),
		Status:   r.URL.Query().Get("status"),
	}

	list, err := a.slots.List(r.Context(), filter)
	if err != nil {
		log.Printf("httpapi: list slots: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}
	if list == nil {
		list = []slots.Slot{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := a.slots.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSlotError(w, err, "get slot")
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (a *API) handleJoinSlot(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	slot, err := a.slots.Join(r.Context(), r.PathValue("id"), req.UserID, req.UserName)
	if err != nil {
		writeSlotError(w, err, "join slot")
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (a *API) handleLeaveSlot(w http.ResponseWriter, r *http.Request) {
	var req membershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	slot, err := a.slots.Leave(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		writeSlotError(w, err, "leave slot")
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (a *API) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := a.slots.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeSlotError(w, err, "delete slot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeSlotError maps the slot store's typed errors to HTTP statuses.
func writeSlotError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, slots.ErrNotFound):
		writeError(w, http.StatusNotFound, "slot not found")
	case errors.Is(err, slots.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot is full")
	case errors.Is(err, slots.ErrAlreadyJoined):
		writeError(w, http.StatusConflict, "already joined")
	case errors.Is(err, slots.ErrNotParticipant):
		writeError(w, http.StatusBadRequest, "not a participant")
	default:
		log.Printf("httpapi: %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
