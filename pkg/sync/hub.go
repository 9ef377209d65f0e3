package sync

import (
	"encoding/json"
	gosync "sync"

	"github.com/youngmoe/obsync/internal/logger"
	"github.com/youngmoe/obsync/pkg/metrics"
)

// subscriber receives broadcast frames. Implementations must not block:
// enqueue reports false when the subscriber cannot keep up, and the hub
// evicts it.
type subscriber interface {
	enqueueText(data []byte) bool
	evict()
}

// Hub routes mutation notifications to every session connected to the same
// vault, the originator included (clients dedupe by device and uid).
//
// Membership and fanout are guarded by one mutex; delivery itself is an
// enqueue onto each session's outbound queue, so a slow peer never blocks
// a broadcast. A peer whose queue overflows is evicted instead.
type Hub struct {
	mu     gosync.Mutex
	vaults map[string]map[subscriber]struct{}

	metrics *metrics.SyncMetrics
}

// NewHub creates an empty hub.
func NewHub(m *metrics.SyncMetrics) *Hub {
	return &Hub{
		vaults:  make(map[string]map[subscriber]struct{}),
		metrics: m,
	}
}

// Join registers the session for the vault's broadcasts.
func (h *Hub) Join(vaultID string, s subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers, ok := h.vaults[vaultID]
	if !ok {
		peers = make(map[subscriber]struct{})
		h.vaults[vaultID] = peers
	}
	peers[s] = struct{}{}
}

// Leave removes the session; the vault entry is dropped once empty.
func (h *Hub) Leave(vaultID string, s subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers, ok := h.vaults[vaultID]
	if !ok {
		return
	}
	delete(peers, s)
	if len(peers) == 0 {
		delete(h.vaults, vaultID)
	}
}

// Broadcast marshals msg once and enqueues it to every session joined on the
// vault. Sessions that cannot accept the frame are evicted from the hub and
// asked to close.
func (h *Hub) Broadcast(vaultID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("failed to marshal broadcast", "vault", vaultID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	peers := h.vaults[vaultID]
	delivered := 0
	for peer := range peers {
		if peer.enqueueText(data) {
			delivered++
			continue
		}
		// Peer is too slow to drain its queue; dropping frames would lose
		// mutations, so drop the peer.
		delete(peers, peer)
		peer.evict()
	}
	if len(peers) == 0 {
		delete(h.vaults, vaultID)
	}

	h.metrics.BroadcastFanout(delivered)
}

// Peers returns the number of sessions currently joined on the vault.
func (h *Hub) Peers(vaultID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.vaults[vaultID])
}
