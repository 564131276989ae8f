package recorder

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Registry tracks the rooms currently being recorded in this process,
// rejecting a second concurrent recorder for a room already active and
// giving external callers (an HTTP handler, a CLI command) a way to signal
// a running recorder without reaching into its goroutine directly. Modeled
// on the teacher's session-purger/worker registration idiom, generalized
// from "one worker" to "one handle per room" per spec §5/§9.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Handle
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Handle)}
}

// Handle is the control surface for one running room recorder: a stop
// signal, a split signal, and a title-change signal, all readable by the
// recorder's loop without the caller needing access to its internals.
type Handle struct {
	roomID string

	stopOnce sync.Once
	stopCh   chan struct{}

	splitRequested atomic.Bool
	pendingTitle   atomic.Value // string

	done chan struct{}
}

func newHandle(roomID string) *Handle {
	h := &Handle{roomID: roomID, stopCh: make(chan struct{}), done: make(chan struct{})}
	h.pendingTitle.Store("")
	return h
}

// RoomID returns the room this handle controls.
func (h *Handle) RoomID() string { return h.roomID }

// Stop signals the recorder loop to finalize and exit. Safe to call more
// than once.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// Stopped reports whether Stop has been requested, for the loop to select
// on.
func (h *Handle) Stopped() <-chan struct{} {
	return h.stopCh
}

// RequestSplit marks an explicit split request (spec §4.4 trigger 1). The
// loop consumes it via TakeSplitRequest.
func (h *Handle) RequestSplit() {
	h.splitRequested.Store(true)
}

// TakeSplitRequest reports and clears any pending explicit split request.
func (h *Handle) TakeSplitRequest() bool {
	return h.splitRequested.Swap(false)
}

// RequestTitle records a broadcast title change observed by the caller.
// The loop consumes it via TakeTitle.
func (h *Handle) RequestTitle(title string) {
	h.pendingTitle.Store(title)
}

// TakeTitle reports and clears any pending title observation.
func (h *Handle) TakeTitle() string {
	title, _ := h.pendingTitle.Swap("").(string)
	return title
}

// markDone signals that the recorder loop has exited, for Wait.
func (h *Handle) markDone() {
	close(h.done)
}

// Wait blocks until the recorder loop this handle controls has exited.
func (h *Handle) Wait() {
	<-h.done
}

// Register creates and returns a new Handle for roomID, failing if one is
// already active.
func (r *Registry) Register(roomID string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[roomID]; exists {
		return nil, fmt.Errorf("recorder: room %s already has an active recorder", roomID)
	}
	h := newHandle(roomID)
	r.active[roomID] = h
	return h, nil
}

// Unregister removes roomID's handle and marks it done. Callers run this
// in a defer immediately after a successful Register.
func (r *Registry) Unregister(roomID string) {
	r.mu.Lock()
	h, exists := r.active[roomID]
	if exists {
		delete(r.active, roomID)
	}
	r.mu.Unlock()
	if exists {
		h.markDone()
	}
}

// Lookup returns the active handle for roomID, if any.
func (r *Registry) Lookup(roomID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[roomID]
	return h, ok
}

// ActiveRooms lists the rooms currently registered.
func (r *Registry) ActiveRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]string, 0, len(r.active))
	for roomID := range r.active {
		rooms = append(rooms, roomID)
	}
	return rooms
}
