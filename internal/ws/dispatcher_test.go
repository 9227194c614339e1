package ws

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/unislot/slot-app/internal/protocol"
)

func newPipeConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return &Connection{ID: "sess-1", Conn: server, CreatedAt: time.Now()}, client
}

func readFrame(t *testing.T, client net.Conn) map[string]interface{} {
	t.Helper()
	data, err := wsutil.ReadServerText(client)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return decoded
}

func TestDispatchPingAnswersPongAndFiresHook(t *testing.T) {
	conn, client := newPipeConnection(t)

	d := NewMessageDispatcher()
	pinged := make(chan string, 1)
	d.SetOnPing(func(connID string) { pinged <- connID })

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Dispatch(conn, []byte(`{"type":"ping"}`))
	}()

	if frame := readFrame(t, client); frame["type"] != "pong" {
		t.Errorf("frame type = %v, want pong", frame["type"])
	}
	<-done

	select {
	case id := <-pinged:
		if id != "sess-1" {
			t.Errorf("onPing connID = %q, want sess-1", id)
		}
	default:
		t.Error("onPing hook was not invoked")
	}
}

func TestDispatchUnknownTypeSendsError(t *testing.T) {
	conn, client := newPipeConnection(t)
	d := NewMessageDispatcher()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Dispatch(conn, []byte(`{"type":"make_coffee"}`))
	}()

	frame := readFrame(t, client)
	<-done
	if frame["type"] != "error" {
		t.Errorf("frame type = %v, want error", frame["type"])
	}
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	conn, _ := newPipeConnection(t)
	d := NewMessageDispatcher()

	var gotSlot string
	d.Register(protocol.TypeJoinSlot, func(c *Connection, msg interface{}) {
		if m, ok := msg.(protocol.JoinSlotMsg); ok {
			gotSlot = m.SlotID
		}
	})
	d.Dispatch(conn, []byte(`{"type":"join_slot","slot_id":"slot-9"}`))

	if gotSlot != "slot-9" {
		t.Errorf("handler received slot %q, want slot-9", gotSlot)
	}
}
