package events_test

import (
	"encoding/binary"
	"testing"

	"opendax/internal/events"
	"opendax/internal/ioengine"
	"opendax/internal/store"
	"opendax/internal/types"
)

type fakeSession struct {
	notifications []events.Notification
}

func (f *fakeSession) Notify(n events.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

func newRig(t *testing.T) (*store.Store, *ioengine.Engine, *events.Dispatcher) {
	t.Helper()
	reg := types.NewRegistry()
	s := store.New(reg, 16, 32)
	eng := ioengine.New(s)
	disp := events.New(reg)
	eng.SetNotifier(disp)
	return s, eng, disp
}

// TestChangeEventFiresOnlyOnActualChange covers scenario S4: a CHANGE
// event fires once when the covered bytes actually change, and not again
// on a write that reproduces the same value.
func TestChangeEventFiresOnlyOnActualChange(t *testing.T) {
	s, eng, disp := newRig(t)

	if _, err := s.Add("t", types.INT, 4, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := s.ResolveHandle("t", 4)
	if err != nil {
		t.Fatalf("ResolveHandle: %v", err)
	}

	owner := &fakeSession{}
	if _, err := disp.Add(h, events.Change, 0, 0, events.SendData, owner, nil); err != nil {
		t.Fatalf("Add event: %v", err)
	}

	in := make([]byte, h.SizeBytes)
	binary.NativeEndian.PutUint16(in[4:6], 1) // {0, 0, 1, 0}
	if err := eng.Write(h, in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(owner.notifications) != 1 {
		t.Fatalf("notifications after first write = %d, want 1", len(owner.notifications))
	}
	if owner.notifications[0].Kind != events.Change {
		t.Errorf("kind = %v, want Change", owner.notifications[0].Kind)
	}
	if len(owner.notifications[0].Data) != int(h.SizeBytes) {
		t.Errorf("SEND_DATA payload size = %d, want %d", len(owner.notifications[0].Data), h.SizeBytes)
	}

	if err := eng.Write(h, in); err != nil {
		t.Fatalf("Write (repeat): %v", err)
	}
	if len(owner.notifications) != 1 {
		t.Fatalf("notifications after repeat write = %d, want still 1 (no CHANGE)", len(owner.notifications))
	}
}

// TestEventFiresIffBytesDiffer covers invariant 5: fired == (pre_bytes !=
// post_bytes) for CHANGE events, across a range of write sequences.
func TestEventFiresIffBytesDiffer(t *testing.T) {
	s, eng, disp := newRig(t)

	if _, err := s.Add("u", types.DWORD, 1, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := s.ResolveHandle("u", 1)
	if err != nil {
		t.Fatalf("ResolveHandle: %v", err)
	}
	owner := &fakeSession{}
	if _, err := disp.Add(h, events.Change, 0, 0, 0, owner, nil); err != nil {
		t.Fatalf("Add event: %v", err)
	}

	write := func(v uint32) {
		buf := make([]byte, 4)
		binary.NativeEndian.PutUint32(buf, v)
		if err := eng.Write(h, buf); err != nil {
			t.Fatalf("Write(%d): %v", v, err)
		}
	}

	write(0) // 0 -> 0: no change (initial backing is already zero)
	if len(owner.notifications) != 0 {
		t.Fatalf("writing the same zero value fired a CHANGE event")
	}
	write(7) // 0 -> 7: change
	if len(owner.notifications) != 1 {
		t.Fatalf("notifications after differing write = %d, want 1", len(owner.notifications))
	}
	write(7) // 7 -> 7: no change
	if len(owner.notifications) != 1 {
		t.Fatalf("notifications after repeat write = %d, want still 1", len(owner.notifications))
	}
}

// TestSessionCloseFreesEventsOnce covers invariant 8: closing a session
// removes all its events and invokes each free-callback exactly once, in
// reverse insertion order.
func TestSessionCloseFreesEventsOnce(t *testing.T) {
	s, _, disp := newRig(t)

	if _, err := s.Add("a", types.UINT, 1, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := s.ResolveHandle("a", 1)
	if err != nil {
		t.Fatalf("ResolveHandle: %v", err)
	}

	owner := &fakeSession{}
	var freedOrder []int
	var ids []uint64
	for i := 0; i < 3; i++ {
		i := i
		id, err := disp.Add(h, events.Write, 0, 0, 0, owner, func() {
			freedOrder = append(freedOrder, i)
		})
		if err != nil {
			t.Fatalf("Add event %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	disp.CloseSession(owner)

	if len(freedOrder) != 3 {
		t.Fatalf("free-callbacks invoked %d times, want 3", len(freedOrder))
	}
	want := []int{2, 1, 0}
	for i, v := range want {
		if freedOrder[i] != v {
			t.Fatalf("free order = %v, want %v (reverse insertion)", freedOrder, want)
		}
	}

	for _, id := range ids {
		if err := disp.Options(id, events.SendData); err == nil {
			t.Fatalf("event %d still present after session close", id)
		}
	}

	// Closing again must not re-invoke any free-callback.
	disp.CloseSession(owner)
	if len(freedOrder) != 3 {
		t.Fatalf("free-callbacks invoked again on second CloseSession: %d", len(freedOrder))
	}
}

// TestOneShotEventRemovedAfterFiring checks that a ONESHOT event delivers
// exactly once and is then gone from the dispatcher.
func TestOneShotEventRemovedAfterFiring(t *testing.T) {
	s, eng, disp := newRig(t)

	if _, err := s.Add("o", types.BYTE, 1, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := s.ResolveHandle("o", 1)
	if err != nil {
		t.Fatalf("ResolveHandle: %v", err)
	}
	owner := &fakeSession{}
	freed := false
	id, err := disp.Add(h, events.Write, 0, 0, events.OneShot, owner, func() { freed = true })
	if err != nil {
		t.Fatalf("Add event: %v", err)
	}

	if err := eng.Write(h, []byte{1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(owner.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(owner.notifications))
	}
	if !freed {
		t.Fatalf("ONESHOT event's free-callback was not invoked after firing")
	}
	if err := disp.Options(id, 0); err == nil {
		t.Fatalf("ONESHOT event should have been removed after firing")
	}

	if err := eng.Write(h, []byte{2}); err != nil {
		t.Fatalf("Write (after removal): %v", err)
	}
	if len(owner.notifications) != 1 {
		t.Fatalf("notifications after removal = %d, want still 1", len(owner.notifications))
	}
}
