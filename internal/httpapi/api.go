// Package httpapi implements the REST surface of the API server: slot CRUD
// with join/leave, chat transcripts, and the admin moderation endpoints over
// the ledger.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/unislot/slot-app/internal/ledger"
	"github.com/unislot/slot-app/internal/metrics"
	"github.com/unislot/slot-app/internal/slots"
)

// SlotStore is the slot persistence surface the handlers need.
type SlotStore interface {
	Create(ctx context.Context, slot *slots.Slot) (*slots.Slot, error)
	Get(ctx context.Context, id string) (*slots.Slot, error)
	List(ctx context.Context, filter slots.ListFilter) ([]slots.Slot, error)
	Join(ctx context.Context, slotID, userID, userName string) (*slots.Slot, error)
	Leave(ctx context.Context, slotID, userID string) (*slots.Slot, error)
	Delete(ctx context.Context, slotID string) error
}

// LedgerStore is the moderation ledger surface the handlers need.
type LedgerStore interface {
	ListBySlot(ctx context.Context, slotID string, order ledger.Order) ([]ledger.ChatMessage, error)
	ListMessages(ctx context.Context, filter ledger.Filter) ([]ledger.ChatMessage, error)
	ListFlagged(ctx context.Context, filter ledger.Filter) ([]ledger.FlaggedMessage, error)
	AggregateCounts(ctx context.Context) (ledger.Counts, error)
	DeleteFlagged(ctx context.Context, id string) error
}

// API holds the handler dependencies.
type API struct {
	slots  SlotStore
	ledger LedgerStore
}

// NewAPI creates the REST API over the given stores.
func NewAPI(slotStore SlotStore, ledgerStore LedgerStore) *API {
	return &API{slots: slotStore, ledger: ledgerStore}
}

// Router returns the fully wired HTTP mux.
func (a *API) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/slots", a.handleListSlots)
	mux.HandleFunc("POST /api/slots", a.handleCreateSlot)
	mux.HandleFunc("GET /api/slots/{id}", a.handleGetSlot)
	mux.HandleFunc("DELETE /api/slots/{id}", a.handleDeleteSlot)
	mux.HandleFunc("POST /api/slots/{id}/join", a.handleJoinSlot)
	mux.HandleFunc("POST /api/slots/{id}/leave", a.handleLeaveSlot)

	mux.HandleFunc("GET /api/chat/{slotID}", a.handleChatTranscript)

	mux.HandleFunc("GET /api/admin/messages", a.handleAdminMessages)
	mux.HandleFunc("GET /api/admin/flagged-messages", a.handleAdminFlagged)
	mux.HandleFunc("DELETE /api/admin/flagged-messages/{id}", a.handleAdminDeleteFlagged)
	mux.HandleFunc("GET /api/admin/stats", a.handleAdminStats)

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
