package handlers

import (
	"net/http"
	"time"
)

// SubscriptionHandler serves the subscription stub. Self-hosted deployments
// have no billing, so every account reports an active sync plan.
type SubscriptionHandler struct{}

// NewSubscriptionHandler creates the subscription stub handler.
func NewSubscriptionHandler() *SubscriptionHandler {
	return &SubscriptionHandler{}
}

// List handles POST /subscription/list.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, map[string]any{
		"business": nil,
		"publish":  nil,
		"sync": map[string]any{
			"earlybird": false,
			"expirt_ts": time.Now().UnixMilli() + 365*24*60*60*1000,
			"renew":     "",
		},
	})
}
