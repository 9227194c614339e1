package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/unislot/slot-app/internal/ledger"
)

// handleChatTranscript returns the accepted messages of one slot, oldest
// first. Rejected messages never appear here.
func (a *API) handleChatTranscript(w http.ResponseWriter, r *http.Request) {
	slotID := r.PathValue("slotID")

	messages, err := a.ledger.ListBySlot(r.Context(), slotID, ledger.OrderAsc)
	if err != nil {
		log.Printf("httpapi: chat transcript slot=%s: %v", slotID, err)
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if messages == nil {
		messages = []ledger.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (a *API) handleAdminMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := a.ledger.ListMessages(r.Context(), listFilter(r))
	if err != nil {
		log.Printf("httpapi: admin messages: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if messages == nil {
		messages = []ledger.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (a *API) handleAdminFlagged(w http.ResponseWriter, r *http.Request) {
	flagged, err := a.ledger.ListFlagged(r.Context(), listFilter(r))
	if err != nil {
		log.Printf("httpapi: admin flagged: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load flagged messages")
		return
	}
	if flagged == nil {
		flagged = []ledger.FlaggedMessage{}
	}
	writeJSON(w, http.StatusOK, flagged)
}

func (a *API) handleAdminDeleteFlagged(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.ledger.DeleteFlagged(r.Context(), id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "flagged message not found")
			return
		}
		log.Printf("httpapi: delete flagged id=%s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.ledger.AggregateCounts(r.Context())
	if err != nil {
		log.Printf("httpapi: admin stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// listFilter extracts the slot_id and limit query parameters shared by the
// admin list endpoints.
func listFilter(r *http.Request) ledger.Filter {
	filter := ledger.Filter{SlotID: r.URL.Query().Get("slot_id")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	return filter
}
