package recorder

import "testing"

func TestRegistryRejectsDuplicateRoom(t *testing.T) {
	r := NewRegistry()
	h, err := r.Register("room1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Register("room1"); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	r.Unregister("room1")
	select {
	case <-h.done:
	default:
		t.Fatal("expected handle to be marked done after unregister")
	}
}

func TestRegistryAllowsReregistrationAfterUnregister(t *testing.T) {
	r := NewRegistry()
	h1, _ := r.Register("room1")
	r.Unregister("room1")
	h2, err := r.Register("room1")
	if err != nil {
		t.Fatalf("expected re-registration to succeed: %v", err)
	}
	if h1 == h2 {
		t.Fatal("expected a fresh handle on re-registration")
	}
}

func TestHandleSplitAndTitleSignals(t *testing.T) {
	h := newHandle("room1")
	if h.TakeSplitRequest() {
		t.Fatal("expected no split request initially")
	}
	h.RequestSplit()
	if !h.TakeSplitRequest() {
		t.Fatal("expected split request to be observed")
	}
	if h.TakeSplitRequest() {
		t.Fatal("expected split request to clear after being taken")
	}

	if got := h.TakeTitle(); got != "" {
		t.Fatalf("expected no pending title initially, got %q", got)
	}
	h.RequestTitle("new title")
	if got := h.TakeTitle(); got != "new title" {
		t.Fatalf("expected pending title, got %q", got)
	}
}

func TestHandleStopIsIdempotentAndObservable(t *testing.T) {
	h := newHandle("room1")
	h.Stop()
	h.Stop()
	select {
	case <-h.Stopped():
	default:
		t.Fatal("expected Stopped channel to be closed")
	}
}

func TestRegistryActiveRooms(t *testing.T) {
	r := NewRegistry()
	r.Register("a")
	r.Register("b")
	rooms := r.ActiveRooms()
	if len(rooms) != 2 {
		t.Fatalf("expected 2 active rooms, got %d", len(rooms))
	}
}
