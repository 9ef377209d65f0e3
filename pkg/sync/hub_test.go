package sync

import (
	"testing"
)

// fakeSubscriber records delivered frames and eviction.
type fakeSubscriber struct {
	frames  [][]byte
	full    bool
	evicted bool
}

func (f *fakeSubscriber) enqueueText(data []byte) bool {
	if f.full {
		return false
	}
	f.frames = append(f.frames, data)
	return true
}

func (f *fakeSubscriber) evict() { f.evicted = true }

func TestHubBroadcastReachesAllPeers(t *testing.T) {
	h := NewHub(nil)

	a := &fakeSubscriber{}
	b := &fakeSubscriber{}
	h.Join("v1", a)
	h.Join("v1", b)

	other := &fakeSubscriber{}
	h.Join("v2", other)

	h.Broadcast("v1", map[string]string{"op": "push"})

	if len(a.frames) != 1 || len(b.frames) != 1 {
		t.Errorf("v1 peers got %d/%d frames, want 1/1", len(a.frames), len(b.frames))
	}
	if len(other.frames) != 0 {
		t.Errorf("v2 peer got %d frames, want 0", len(other.frames))
	}
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	h := NewHub(nil)

	a := &fakeSubscriber{}
	h.Join("v1", a)
	h.Leave("v1", a)

	h.Broadcast("v1", map[string]string{"op": "push"})

	if len(a.frames) != 0 {
		t.Errorf("left peer got %d frames, want 0", len(a.frames))
	}
	if h.Peers("v1") != 0 {
		t.Errorf("Peers = %d, want 0", h.Peers("v1"))
	}
}

func TestHubEvictsSlowPeer(t *testing.T) {
	h := NewHub(nil)

	slow := &fakeSubscriber{full: true}
	fast := &fakeSubscriber{}
	h.Join("v1", slow)
	h.Join("v1", fast)

	h.Broadcast("v1", map[string]string{"op": "push"})

	if !slow.evicted {
		t.Error("slow peer was not evicted")
	}
	if len(fast.frames) != 1 {
		t.Errorf("fast peer got %d frames, want 1", len(fast.frames))
	}
	if h.Peers("v1") != 1 {
		t.Errorf("Peers = %d, want 1 after eviction", h.Peers("v1"))
	}
}

func TestHubEmptyVaultCleanup(t *testing.T) {
	h := NewHub(nil)

	a := &fakeSubscriber{}
	h.Join("v1", a)
	h.Leave("v1", a)

	h.mu.Lock()
	_, exists := h.vaults["v1"]
	h.mu.Unlock()
	if exists {
		t.Error("empty vault entry was not dropped")
	}
}
