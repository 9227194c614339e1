package room

import (
	"sort"
	"testing"
)

func TestRegistryJoinIdempotent(t *testing.T) {
	r := NewRegistry()

	joined, created := r.Join("sess-a", "slot-1")
	if !joined || !created {
		t.Fatalf("first Join = (%v, %v), want (true, true)", joined, created)
	}

	joined, created = r.Join("sess-a", "slot-1")
	if joined || created {
		t.Errorf("second Join = (%v, %v), want (false, false)", joined, created)
	}

	members := r.Members("slot-1")
	if len(members) != 1 || members[0] != "sess-a" {
		t.Errorf("Members = %v, want exactly [sess-a]", members)
	}
}

func TestRegistryJoinSecondMemberDoesNotCreate(t *testing.T) {
	r := NewRegistry()
	r.Join("sess-a", "slot-1")

	joined, created := r.Join("sess-b", "slot-1")
	if !joined {
		t.Error("expected sess-b to join")
	}
	if created {
		t.Error("room already existed, created should be false")
	}
}

func TestRegistryLeave(t *testing.T) {
	r := NewRegistry()
	r.Join("sess-a", "slot-1")
	r.Join("sess-b", "slot-1")

	left, emptied := r.Leave("sess-a", "slot-1")
	if !left || emptied {
		t.Errorf("Leave = (%v, %v), want (true, false) with a member remaining", left, emptied)
	}

	left, emptied = r.Leave("sess-b", "slot-1")
	if !left || !emptied {
		t.Errorf("Leave = (%v, %v), want (true, true) for last member", left, emptied)
	}

	left, _ = r.Leave("sess-b", "slot-1")
	if left {
		t.Error("leaving twice should report not a member")
	}
	if r.RoomCount() != 0 {
		t.Errorf("RoomCount = %d, want 0", r.RoomCount())
	}
}

func TestRegistryDropSession(t *testing.T) {
	r := NewRegistry()
	r.Join("sess-a", "slot-1")
	r.Join("sess-a", "slot-2")
	r.Join("sess-b", "slot-1")

	emptied := r.DropSession("sess-a")
	sort.Strings(emptied)
	if len(emptied) != 1 || emptied[0] != "slot-2" {
		t.Errorf("DropSession emptied %v, want [slot-2]", emptied)
	}

	if r.Contains("sess-a", "slot-1") {
		t.Error("sess-a should be out of slot-1")
	}
	if !r.Contains("sess-b", "slot-1") {
		t.Error("sess-b should still be in slot-1")
	}
	if got := r.DropSession("sess-unknown"); len(got) != 0 {
		t.Errorf("dropping unknown session emptied %v, want none", got)
	}
}

func TestRegistryMembersSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Join("sess-a", "slot-1")
	r.Join("sess-b", "slot-1")

	members := r.Members("slot-1")
	sort.Strings(members)
	want := []string{"sess-a", "sess-b"}
	if len(members) != len(want) {
		t.Fatalf("Members = %v, want %v", members, want)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("Members = %v, want %v", members, want)
		}
	}

	if got := r.Members("slot-unknown"); len(got) != 0 {
		t.Errorf("Members of unknown room = %v, want empty", got)
	}
}
