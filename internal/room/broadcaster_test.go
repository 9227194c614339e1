package room

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/unislot/slot-app/internal/classifier"
	"github.com/unislot/slot-app/internal/ledger"
	"github.com/unislot/slot-app/internal/moderation"
)

// recordingSender captures every frame sent to each session.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][]map[string]interface{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{frames: make(map[string][]map[string]interface{})}
}

func (s *recordingSender) Send(sessionID string, data []byte) error {
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	s.mu.Lock()
	s.frames[sessionID] = append(s.frames[sessionID], decoded)
	s.mu.Unlock()
	return nil
}

// received returns the frames of the given type delivered to a session.
func (s *recordingSender) received(sessionID, msgType string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]interface{}
	for _, f := range s.frames[sessionID] {
		if f["type"] == msgType {
			out = append(out, f)
		}
	}
	return out
}

func (s *recordingSender) total(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames[sessionID])
}

// memoryLedger is an in-memory Ledger with injectable failures.
type memoryLedger struct {
	mu       sync.Mutex
	accepted []ledger.ChatMessage
	rejected []ledger.FlaggedMessage
	fail     bool
}

func (m *memoryLedger) AppendAccepted(ctx context.Context, msg *ledger.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store down")
	}
	m.accepted = append(m.accepted, *msg)
	return nil
}

func (m *memoryLedger) AppendRejected(ctx context.Context, msg *ledger.FlaggedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store down")
	}
	m.rejected = append(m.rejected, *msg)
	return nil
}

// failingRemote always reports the remote classifier as unavailable, forcing
// the deterministic fallback for every verdict.
type failingRemote struct{}

func (failingRemote) Classify(ctx context.Context, text string) (classifier.Verdict, error) {
	return classifier.Verdict{}, classifier.ErrUnavailable
}

func newTestBroadcaster(store *memoryLedger, sender *recordingSender) *Broadcaster {
	engine := moderation.NewEngine(failingRemote{}, rand.NewSource(1))
	return NewBroadcaster(engine, NewRegistry(), store, sender, nil, "test-server")
}

func TestSubmitAcceptedBroadcastToAllIncludingSender(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{}
	b := newTestBroadcaster(store, sender)
	b.Registry().Join("sess-a", "slot-1")
	b.Registry().Join("sess-b", "slot-1")

	err := b.Submit(context.Background(), "sess-a", "slot-1", "user-a", "Ada", "let's meet at 5pm")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	for _, sid := range []string{"sess-a", "sess-b"} {
		got := sender.received(sid, "message_delivered")
		if len(got) != 1 {
			t.Fatalf("session %s received %d message_delivered frames, want 1", sid, len(got))
		}
		if got[0]["body"] != "let's meet at 5pm" {
			t.Errorf("session %s body = %v", sid, got[0]["body"])
		}
		if got[0]["sender_id"] != "user-a" {
			t.Errorf("session %s sender_id = %v", sid, got[0]["sender_id"])
		}
	}

	if len(store.accepted) != 1 || len(store.rejected) != 0 {
		t.Fatalf("ledger has %d accepted, %d rejected; want 1, 0", len(store.accepted), len(store.rejected))
	}
	rec := store.accepted[0]
	if rec.Mechanism != classifier.MechanismFallback {
		t.Errorf("Mechanism = %q, want fallback", rec.Mechanism)
	}
	if rec.Confidence != classifier.FallbackCleanConfidence {
		t.Errorf("Confidence = %v, want %v", rec.Confidence, classifier.FallbackCleanConfidence)
	}
}

func TestSubmitRejectedOnlySenderNotified(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{}
	b := newTestBroadcaster(store, sender)
	b.Registry().Join("sess-a", "slot-1")
	b.Registry().Join("sess-b", "slot-1")

	// "worst" is on the fallback denylist.
	err := b.Submit(context.Background(), "sess-a", "slot-1", "user-a", "Ada", "this is the worst idea ever")
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	rejections := sender.received("sess-a", "message_rejected")
	if len(rejections) != 1 {
		t.Fatalf("sender received %d message_rejected frames, want 1", len(rejections))
	}
	if rejections[0]["original_body"] != "this is the worst idea ever" {
		t.Errorf("original_body = %v", rejections[0]["original_body"])
	}
	if rejections[0]["confidence"] != classifier.FallbackFlaggedConfidence {
		t.Errorf("confidence = %v, want %v", rejections[0]["confidence"], classifier.FallbackFlaggedConfidence)
	}
	if rejections[0]["suggestion"] == "" || rejections[0]["suggestion"] == nil {
		t.Error("rejection must carry a suggestion")
	}

	// The other member must observe nothing at all.
	if n := sender.total("sess-b"); n != 0 {
		t.Errorf("bystander received %d frames, want 0", n)
	}

	if len(store.rejected) != 1 || len(store.accepted) != 0 {
		t.Fatalf("ledger has %d rejected, %d accepted; want 1, 0", len(store.rejected), len(store.accepted))
	}
	if store.rejected[0].Suggestion == "" {
		t.Error("persisted flagged message missing suggestion")
	}
}

func TestSubmitPersistenceFailureWithholdsMessage(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{fail: true}
	b := newTestBroadcaster(store, sender)
	b.Registry().Join("sess-a", "slot-1")
	b.Registry().Join("sess-b", "slot-1")

	err := b.Submit(context.Background(), "sess-a", "slot-1", "user-a", "Ada", "let's meet at 5pm")
	if err == nil {
		t.Fatal("Submit() should report the persistence failure")
	}

	// Fail closed: the room never sees the message, the sender gets an
	// explicit failure notice.
	if got := sender.received("sess-a", "delivery_failed"); len(got) != 1 {
		t.Fatalf("sender received %d delivery_failed frames, want 1", len(got))
	}
	if got := sender.received("sess-a", "message_delivered"); len(got) != 0 {
		t.Error("message must not be delivered when persistence fails")
	}
	if n := sender.total("sess-b"); n != 0 {
		t.Errorf("bystander received %d frames, want 0", n)
	}
}

func TestSubmitEmptyBodyRejectedBeforeModeration(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{}
	b := newTestBroadcaster(store, sender)
	b.Registry().Join("sess-a", "slot-1")

	for _, body := range []string{"", "   ", "\n\t"} {
		if err := b.Submit(context.Background(), "sess-a", "slot-1", "user-a", "Ada", body); err == nil {
			t.Errorf("Submit(%q) should fail validation", body)
		}
	}

	if got := sender.received("sess-a", "error"); len(got) != 3 {
		t.Errorf("sender received %d error frames, want 3", len(got))
	}
	if len(store.accepted)+len(store.rejected) != 0 {
		t.Error("validation failures must leave no ledger record")
	}
}

func TestSubmitRequiresRoomMembership(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{}
	b := newTestBroadcaster(store, sender)

	if err := b.Submit(context.Background(), "sess-a", "slot-1", "user-a", "Ada", "hello"); err == nil {
		t.Fatal("Submit() from a non-member should fail")
	}
	if got := sender.received("sess-a", "error"); len(got) != 1 {
		t.Errorf("sender received %d error frames, want 1", len(got))
	}
	if len(store.accepted)+len(store.rejected) != 0 {
		t.Error("non-member submissions must leave no ledger record")
	}
}

func TestDeliverRemote(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{}
	b := newTestBroadcaster(store, sender)
	b.Registry().Join("sess-a", "slot-1")

	// Event from another instance is delivered to local members.
	b.DeliverRemote(FanoutEvent{
		Origin:     "other-server",
		SlotID:     "slot-1",
		Body:       "hello from afar",
		SenderID:   "user-z",
		SenderName: "Zoe",
	})
	if got := sender.received("sess-a", "message_delivered"); len(got) != 1 {
		t.Fatalf("local member received %d frames, want 1", len(got))
	}

	// Events stamped with our own origin are skipped (already fanned out).
	b.DeliverRemote(FanoutEvent{Origin: "test-server", SlotID: "slot-1", Body: "echo"})
	if got := sender.received("sess-a", "message_delivered"); len(got) != 1 {
		t.Errorf("self-origin event must not be re-delivered, got %d frames", len(got))
	}
}

// gatedRemote blocks each Classify call on a per-text gate so tests can
// control the order in which verdicts resolve.
type gatedRemote struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func (g *gatedRemote) Classify(ctx context.Context, text string) (classifier.Verdict, error) {
	g.mu.Lock()
	gate := g.gates[text]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return classifier.Verdict{Acceptable: true, Confidence: 0.1}, nil
}

func TestSubmitDeliveryFollowsVerdictOrder(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{}
	remote := &gatedRemote{gates: map[string]chan struct{}{
		"submitted first":  make(chan struct{}),
		"submitted second": make(chan struct{}),
	}}
	engine := moderation.NewEngine(remote, rand.NewSource(1))
	b := NewBroadcaster(engine, NewRegistry(), store, sender, nil, "test-server")
	b.Registry().Join("sess-a", "slot-1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = b.Submit(context.Background(), "sess-a", "slot-1", "user-a", "Ada", "submitted first")
	}()
	go func() {
		defer wg.Done()
		_ = b.Submit(context.Background(), "sess-a", "slot-1", "user-a", "Ada", "submitted second")
	}()

	waitForDelivered := func(n int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if len(sender.received("sess-a", "message_delivered")) >= n {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for %d delivered frames", n)
	}

	// Release the second submission's verdict first: it must be delivered
	// first even though the first submission arrived earlier.
	close(remote.gates["submitted second"])
	waitForDelivered(1)
	close(remote.gates["submitted first"])
	waitForDelivered(2)
	wg.Wait()

	frames := sender.received("sess-a", "message_delivered")
	if frames[0]["body"] != "submitted second" || frames[1]["body"] != "submitted first" {
		t.Errorf("delivery order = [%v, %v], want verdict-resolution order [submitted second, submitted first]",
			frames[0]["body"], frames[1]["body"])
	}
}

func TestSubmitModerationSurvivesCancelledContext(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{}
	remote := &stubContextRemote{}
	engine := moderation.NewEngine(remote, rand.NewSource(1))
	b := NewBroadcaster(engine, NewRegistry(), store, sender, nil, "test-server")
	b.Registry().Join("sess-a", "slot-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Submit(ctx, "sess-a", "slot-1", "user-a", "Ada", "still in flight"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	// The remote classifier saw an uncancelled context and its verdict was
	// recorded, so a disconnect cannot abort an in-flight decision.
	if len(store.accepted) != 1 {
		t.Fatalf("ledger has %d accepted records, want 1", len(store.accepted))
	}
	if store.accepted[0].Mechanism != classifier.MechanismRemote {
		t.Errorf("Mechanism = %q, want %q", store.accepted[0].Mechanism, classifier.MechanismRemote)
	}
}

// stubContextRemote fails when its context is already cancelled, so a test
// can prove the pipeline detaches from the caller's cancellation.
type stubContextRemote struct{}

func (stubContextRemote) Classify(ctx context.Context, text string) (classifier.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return classifier.Verdict{}, err
	}
	return classifier.Verdict{Acceptable: true, Confidence: 0.4}, nil
}

func TestForgetRoomReleasesDeliveryLock(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{}
	b := newTestBroadcaster(store, sender)
	b.Registry().Join("sess-a", "slot-1")

	if err := b.Submit(context.Background(), "sess-a", "slot-1", "user-a", "Ada", "hello"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	b.mu.Lock()
	n := len(b.locks)
	b.mu.Unlock()
	if n != 1 {
		t.Fatalf("locks map has %d entries after first submit, want 1", n)
	}

	b.ForgetRoom("slot-1")

	b.mu.Lock()
	n = len(b.locks)
	b.mu.Unlock()
	if n != 0 {
		t.Errorf("locks map has %d entries after ForgetRoom, want 0", n)
	}
}

func TestSubmitExactlyOneRecordPerCandidate(t *testing.T) {
	sender := newRecordingSender()
	store := &memoryLedger{}
	b := newTestBroadcaster(store, sender)
	b.Registry().Join("sess-a", "slot-1")

	bodies := []string{
		"let's meet at 5pm",
		"this is the worst idea ever",
		"see you at the library",
		"that was a stupid plan",
	}
	for _, body := range bodies {
		if err := b.Submit(context.Background(), "sess-a", "slot-1", "user-a", "Ada", body); err != nil {
			t.Fatalf("Submit(%q) error: %v", body, err)
		}
	}

	if got := len(store.accepted) + len(store.rejected); got != len(bodies) {
		t.Errorf("ledger has %d records for %d candidates", got, len(bodies))
	}
	if len(store.accepted) != 2 || len(store.rejected) != 2 {
		t.Errorf("accepted=%d rejected=%d, want 2 and 2", len(store.accepted), len(store.rejected))
	}
}
