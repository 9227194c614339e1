package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unislot/slot-app/internal/ledger"
	"github.com/unislot/slot-app/internal/metrics"
	"github.com/unislot/slot-app/internal/moderation"
	"github.com/unislot/slot-app/internal/protocol"
)

// Sender delivers a raw frame to one connected session. The WebSocket server
// satisfies it.
type Sender interface {
	Send(sessionID string, data []byte) error
}

// Ledger is the persistence surface the broadcaster needs: one append per
// outcome. *ledger.Store satisfies it.
type Ledger interface {
	AppendAccepted(ctx context.Context, msg *ledger.ChatMessage) error
	AppendRejected(ctx context.Context, msg *ledger.FlaggedMessage) error
}

// Publisher fans accepted messages out to other server instances. The NATS
// client satisfies it. A nil Publisher keeps delivery local.
type Publisher interface {
	PublishRoom(slotID string, data []byte) error
}

// FanoutEvent is the cross-instance payload published for every accepted
// message. Instances skip events whose Origin is their own server name.
type FanoutEvent struct {
	Origin        string    `json:"origin"`
	SlotID        string    `json:"slot_id"`
	Body          string    `json:"body"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	CreatedAt     time.Time `json:"created_at"`
	Encouragement string    `json:"encouragement,omitempty"`
}

// Broadcaster runs the submit pipeline for one server instance: moderation,
// ledger persistence, and delivery. Accepted messages go to every member of
// the slot's room (sender included); rejections and failures go privately to
// the sender only.
type Broadcaster struct {
	engine   *moderation.Engine
	registry *Registry
	ledger   Ledger
	sender   Sender
	bus      Publisher // may be nil (single-instance deployment)
	origin   string    // this server's name, stamped on published events

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-room delivery serialization
}

// NewBroadcaster wires the submit pipeline. origin identifies this server
// instance on the fan-out bus; bus may be nil.
func NewBroadcaster(engine *moderation.Engine, registry *Registry, ledgerStore Ledger, sender Sender, bus Publisher, origin string) *Broadcaster {
	return &Broadcaster{
		engine:   engine,
		registry: registry,
		ledger:   ledgerStore,
		sender:   sender,
		bus:      bus,
		origin:   origin,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Registry returns the membership registry backing this broadcaster.
func (b *Broadcaster) Registry() *Registry {
	return b.registry
}

// Submit runs one candidate message through validation, moderation,
// persistence, and delivery. The returned error is for logging; every
// user-visible outcome has already been sent to the appropriate sessions
// when Submit returns.
func (b *Broadcaster) Submit(ctx context.Context, sessionID, slotID, senderID, senderName, body string) error {
	if err := ValidateBody(body); err != nil {
		metrics.MessagesTotal.WithLabelValues("invalid").Inc()
		b.sendError(sessionID, "invalid_message", err.Error())
		return fmt.Errorf("room: submit validation: %w", err)
	}
	if !b.registry.Contains(sessionID, slotID) {
		metrics.MessagesTotal.WithLabelValues("invalid").Inc()
		b.sendError(sessionID, "not_in_room", "join the slot before sending messages")
		return fmt.Errorf("room: session %s not in room %s", sessionID, slotID)
	}

	// The pipeline is never cancelled once initiated: the verdict and its
	// audit record must land even if the sender disconnects while the remote
	// classifier is in flight.
	ctx = context.WithoutCancel(ctx)

	started := time.Now()
	verdict := b.engine.Moderate(ctx, body)
	metrics.ModerationLatency.Observe(time.Since(started).Seconds())
	metrics.VerdictsTotal.WithLabelValues(string(verdict.Mechanism)).Inc()

	now := time.Now().UTC()

	// Delivery order within a room follows verdict-resolution order, so the
	// room is locked only after the verdict is in hand.
	lock := b.roomLock(slotID)
	lock.Lock()
	defer lock.Unlock()

	if verdict.Acceptable {
		return b.deliverAccepted(ctx, sessionID, slotID, senderID, senderName, body, verdict, now)
	}
	return b.deliverRejected(ctx, sessionID, slotID, senderID, senderName, body, verdict, now)
}

// deliverAccepted persists the accepted message and fans it out to the room.
// If persistence fails the message is withheld from the room and only the
// sender learns about the failure.
func (b *Broadcaster) deliverAccepted(ctx context.Context, sessionID, slotID, senderID, senderName, body string, verdict moderation.Result, now time.Time) error {
	record := &ledger.ChatMessage{
		ID:         uuid.New().String(),
		SlotID:     slotID,
		SenderID:   senderID,
		SenderName: senderName,
		Body:       body,
		CreatedAt:  now,
		Confidence: verdict.Confidence,
		Mechanism:  verdict.Mechanism,
		CheckedAt:  now,
	}
	if err := b.ledger.AppendAccepted(ctx, record); err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		b.sendDeliveryFailed(sessionID, slotID)
		return fmt.Errorf("room: persist accepted: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues("accepted").Inc()

	data, err := protocol.NewServerMessage(protocol.TypeMessageDelivered, protocol.MessageDeliveredMsg{
		SlotID:        slotID,
		Body:          body,
		SenderID:      senderID,
		SenderName:    senderName,
		CreatedAt:     now,
		Encouragement: verdict.Note,
	})
	if err != nil {
		return fmt.Errorf("room: build message_delivered: %w", err)
	}
	b.fanout(slotID, data)

	if b.bus != nil {
		event, err := json.Marshal(FanoutEvent{
			Origin:        b.origin,
			SlotID:        slotID,
			Body:          body,
			SenderID:      senderID,
			SenderName:    senderName,
			CreatedAt:     now,
			Encouragement: verdict.Note,
		})
		if err == nil {
			if err := b.bus.PublishRoom(slotID, event); err != nil {
				log.Printf("room: publish fanout slot=%s: %v", slotID, err)
			}
		}
	}
	return nil
}

// deliverRejected persists the flagged message and sends the private
// rejection notice. No other room member observes anything.
func (b *Broadcaster) deliverRejected(ctx context.Context, sessionID, slotID, senderID, senderName, body string, verdict moderation.Result, now time.Time) error {
	record := &ledger.FlaggedMessage{
		ID:           uuid.New().String(),
		SlotID:       slotID,
		SenderID:     senderID,
		SenderName:   senderName,
		OriginalBody: body,
		Suggestion:   verdict.Note,
		CreatedAt:    now,
		Confidence:   verdict.Confidence,
		Mechanism:    verdict.Mechanism,
		CheckedAt:    now,
	}
	if err := b.ledger.AppendRejected(ctx, record); err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		b.sendDeliveryFailed(sessionID, slotID)
		return fmt.Errorf("room: persist rejected: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues("rejected").Inc()

	data, err := protocol.NewServerMessage(protocol.TypeMessageRejected, protocol.MessageRejectedMsg{
		SlotID:       slotID,
		OriginalBody: body,
		Suggestion:   verdict.Note,
		Confidence:   verdict.Confidence,
	})
	if err != nil {
		return fmt.Errorf("room: build message_rejected: %w", err)
	}
	if err := b.sender.Send(sessionID, data); err != nil {
		log.Printf("room: send rejection notice session=%s: %v", sessionID, err)
	}
	return nil
}

// DeliverRemote fans a message published by another instance out to this
// instance's local room members. Events originating here are ignored — the
// local fan-out already happened before publishing.
func (b *Broadcaster) DeliverRemote(event FanoutEvent) {
	if event.Origin == b.origin {
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeMessageDelivered, protocol.MessageDeliveredMsg{
		SlotID:        event.SlotID,
		Body:          event.Body,
		SenderID:      event.SenderID,
		SenderName:    event.SenderName,
		CreatedAt:     event.CreatedAt,
		Encouragement: event.Encouragement,
	})
	if err != nil {
		log.Printf("room: build remote message_delivered: %v", err)
		return
	}

	lock := b.roomLock(event.SlotID)
	lock.Lock()
	defer lock.Unlock()
	b.fanout(event.SlotID, data)
}

// fanout writes a frame to every current member of the room. Per-session
// write errors are ignored — dead connections are reaped by the heartbeat.
func (b *Broadcaster) fanout(slotID string, data []byte) {
	for _, sessionID := range b.registry.Members(slotID) {
		_ = b.sender.Send(sessionID, data)
	}
}

// roomLock returns the delivery mutex for a slot, creating it on first use.
func (b *Broadcaster) roomLock(slotID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()

	lock, ok := b.locks[slotID]
	if !ok {
		lock = &sync.Mutex{}
		b.locks[slotID] = lock
	}
	return lock
}

// ForgetRoom drops the delivery mutex of a room with no local members left,
// so the locks map does not grow with every slot ever chatted in. Called when
// the registry reports the room emptied.
func (b *Broadcaster) ForgetRoom(slotID string) {
	b.mu.Lock()
	delete(b.locks, slotID)
	b.mu.Unlock()
}

func (b *Broadcaster) sendError(sessionID, code, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	if err := b.sender.Send(sessionID, data); err != nil {
		log.Printf("room: send error notice session=%s: %v", sessionID, err)
	}
}

func (b *Broadcaster) sendDeliveryFailed(sessionID, slotID string) {
	data, err := protocol.NewServerMessage(protocol.TypeDeliveryFailed, protocol.DeliveryFailedMsg{
		SlotID: slotID,
		Reason: "message not delivered",
	})
	if err != nil {
		return
	}
	if err := b.sender.Send(sessionID, data); err != nil {
		log.Printf("room: send delivery_failed session=%s: %v", sessionID, err)
	}
}
