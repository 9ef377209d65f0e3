package sync

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/youngmoe/obsync/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	// Sessions authenticate with a signed token in the init frame, so any
	// origin may open the socket.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades the request to a WebSocket and runs a sync session on it.
// The session owns the connection from here on.
func (e *Engine) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		newSession(e, conn).run(r.Context())
	}
}
