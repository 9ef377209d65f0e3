package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/youngmoe/obsync/internal/logger"
	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/metrics"
	"github.com/youngmoe/obsync/pkg/store"
	"github.com/youngmoe/obsync/pkg/store/models"
)

// Config tunes the session protocol engine.
type Config struct {
	// SnapshotOnConnect compacts vault history during session initialization.
	SnapshotOnConnect bool

	// MaxFrameBytes bounds a single inbound text or binary frame.
	MaxFrameBytes int64

	// IdleTimeout closes sessions with no inbound frames for this long.
	IdleTimeout time.Duration

	// QuotaBytes is the per-vault storage quota.
	QuotaBytes int64
}

// Engine owns the shared dependencies of all sync sessions: the store, the
// token service, and the per-vault broadcast hub.
type Engine struct {
	store   *store.Store
	tokens  *auth.TokenService
	hub     *Hub
	cfg     Config
	metrics *metrics.SyncMetrics
}

// NewEngine creates the session engine.
func NewEngine(st *store.Store, tokens *auth.TokenService, cfg Config, m *metrics.SyncMetrics) *Engine {
	return &Engine{
		store:   st,
		tokens:  tokens,
		hub:     NewHub(m),
		cfg:     cfg,
		metrics: m,
	}
}

// Hub exposes the broadcast hub, primarily for tests.
func (e *Engine) Hub() *Hub {
	return e.hub
}

// broadcastQueueSize bounds the per-session broadcast queue. Broadcasts from
// peers only need room for bursts; a session that cannot drain this many
// frames is evicted rather than stalled.
const broadcastQueueSize = 256

// session is the per-connection protocol state machine.
//
// The read loop drives the state machine and writes its replies directly; a
// second goroutine drains broadcasts from other sessions. The write mutex
// keeps the two off the connection at the same time.
type session struct {
	engine *Engine
	conn   *websocket.Conn

	writeMu    gosync.Mutex
	broadcasts chan []byte
	done       chan struct{}
	closeOnce  gosync.Once

	vault         *models.Vault
	email         string
	device        string
	version       int64
	versionBumped bool
}

func newSession(e *Engine, conn *websocket.Conn) *session {
	return &session{
		engine:     e,
		conn:       conn,
		broadcasts: make(chan []byte, broadcastQueueSize),
		done:       make(chan struct{}),
	}
}

// run drives the session to completion. It always leaves the hub and closes
// the connection on the way out.
func (s *session) run(ctx context.Context) {
	s.engine.metrics.SessionStarted()
	defer s.engine.metrics.SessionEnded()

	s.conn.SetReadLimit(s.engine.cfg.MaxFrameBytes)

	go s.broadcastLoop()
	defer s.close()

	if err := s.initialize(ctx); err != nil {
		s.sendError(err)
		logger.Info("session rejected", "error", err)
		return
	}

	s.engine.hub.Join(s.vault.ID, s)
	defer s.engine.hub.Leave(s.vault.ID, s)

	logger.Info("session ready",
		"email", s.email,
		"device", s.device,
		"vault", s.vault.ID,
		"version", s.version,
	)

	for {
		data, err := s.readText()
		if err != nil {
			logger.Debug("session disconnected", "email", s.email, "device", s.device, "error", err)
			return
		}
		if err := s.handleFrame(ctx, data); err != nil {
			if isFatal(err) {
				logger.Debug("session aborted", "email", s.email, "device", s.device, "error", err)
				return
			}
			// Recoverable: report and keep serving.
			s.sendError(err)
		}
	}
}

// fatalError marks connection-level failures that end the session.
type fatalError struct{ err error }

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

func isFatal(err error) bool {
	var fe fatalError
	return errors.As(err, &fe)
}

// initialize performs the INIT handshake: authenticate, verify vault access,
// replay the live file set when the client is behind, and announce readiness.
func (s *session) initialize(ctx context.Context) error {
	data, err := s.readText()
	if err != nil {
		return fmt.Errorf("reading init frame: %w", err)
	}

	var init initRequest
	if err := json.Unmarshal(data, &init); err != nil {
		return fmt.Errorf("malformed init frame: %w", err)
	}

	email, err := s.engine.tokens.Email(init.Token)
	if err != nil {
		return err
	}
	s.email = email
	s.device = init.Device

	vault, err := s.engine.store.GetVault(ctx, init.ID, init.Keyhash)
	if err != nil {
		return err
	}
	s.vault = vault

	ok, err := s.engine.store.HasVaultAccess(ctx, vault.ID, email)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrVaultAccess
	}

	s.sendJSON(map[string]any{"res": "ok"})

	clientVersion := toInt(init.Version)
	s.version = vault.Version

	if vault.Version > clientVersion {
		files, err := s.engine.store.GetVaultFiles(ctx, vault.ID)
		if err != nil {
			return err
		}
		for _, f := range files {
			s.sendJSON(broadcastPush{
				Op:      "push",
				UID:     f.UID,
				Path:    f.Path,
				Hash:    f.Hash,
				Size:    f.Size,
				CTime:   f.Created,
				MTime:   f.Modified,
				Folder:  f.Folder,
				Deleted: f.Deleted,
				Device:  serverDevice,
			})
		}
	}

	s.sendJSON(map[string]any{"op": "ready", "version": vault.Version})

	if s.engine.cfg.SnapshotOnConnect {
		if err := s.engine.store.Snapshot(ctx, vault.ID); err != nil {
			return err
		}
	}

	// A client ahead of the server pushes the counter forward.
	if clientVersion > vault.Version {
		if err := s.engine.store.SetVaultVersion(ctx, vault.ID, clientVersion); err != nil {
			return err
		}
		s.version = clientVersion
	}

	return nil
}

// handleFrame dispatches one inbound text frame by op. Unknown ops are
// ignored.
func (s *session) handleFrame(ctx context.Context, data []byte) error {
	var probe opProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}

	switch probe.Op {
	case "size":
		return s.handleSize(ctx)
	case "pull":
		return s.handlePull(ctx, data)
	case "push":
		return s.handlePush(ctx, data)
	case "history":
		return s.handleHistory(ctx, data)
	case "ping":
		s.sendJSON(map[string]any{"op": "pong"})
		return nil
	case "deleted":
		return s.handleDeleted(ctx)
	case "restore":
		return s.handleRestore(ctx, data)
	default:
		return nil
	}
}

func (s *session) handleSize(ctx context.Context) error {
	size, err := s.engine.store.GetVaultSize(ctx, s.vault.ID)
	if err != nil {
		return err
	}
	s.sendJSON(map[string]any{"res": "ok", "size": size, "limit": s.engine.cfg.QuotaBytes})
	return nil
}

func (s *session) handlePull(ctx context.Context, data []byte) error {
	var pull pullFrame
	if err := json.Unmarshal(data, &pull); err != nil {
		return fmt.Errorf("malformed pull frame: %w", err)
	}

	file, err := s.engine.store.GetFile(ctx, toInt(pull.UID))
	if err != nil {
		return err
	}

	pieces := 0
	if file.Size != 0 {
		pieces = 1
	}
	s.sendJSON(map[string]any{"hash": file.Hash, "size": file.Size, "pieces": pieces})
	if file.Size != 0 {
		s.sendBinary(file.Data)
	}

	s.engine.metrics.PullServed(file.Size)
	return nil
}

func (s *session) handlePush(ctx context.Context, data []byte) error {
	var push pushFrame
	if err := json.Unmarshal(data, &push); err != nil {
		return fmt.Errorf("malformed push frame: %w", err)
	}

	var uid int64
	if push.Deleted {
		if err := s.engine.store.DeleteVaultFile(ctx, s.vault.ID, push.Path); err != nil {
			return err
		}
		uid = toInt(push.UID)
	} else {
		if err := s.checkQuota(ctx, push.Size); err != nil {
			return err
		}
		newUID, err := s.engine.store.InsertMetadata(ctx, &models.File{
			VaultID:   s.vault.ID,
			Hash:      push.Hash,
			Path:      push.Path,
			Extension: push.Extension,
			Size:      push.Size,
			Created:   push.CTime,
			Modified:  push.MTime,
			Folder:    push.Folder,
			Deleted:   push.Deleted,
		})
		if err != nil {
			return err
		}
		uid = newUID
	}

	if push.Size > 0 {
		payload := make([]byte, 0, push.Size)
		for i := 0; i < push.Pieces; i++ {
			s.sendJSON(map[string]any{"res": "next"})
			piece, err := s.readBinary()
			if err != nil {
				return fatalError{fmt.Errorf("reading push piece %d: %w", i, err)}
			}
			payload = append(payload, piece...)
		}
		if err := s.engine.store.InsertData(ctx, uid, payload); err != nil {
			return err
		}
	}

	// The version counter advances at most once per session, no matter how
	// many pushes arrive.
	if !s.versionBumped {
		if err := s.engine.store.SetVaultVersion(ctx, s.vault.ID, s.version+1); err != nil {
			return err
		}
		s.version++
		s.versionBumped = true
	}

	s.engine.metrics.PushHandled(push.Size)
	s.sendJSON(map[string]any{"op": "ok"})

	s.engine.hub.Broadcast(s.vault.ID, broadcastPush{
		Op:        "push",
		UID:       uid,
		Path:      push.Path,
		Extension: push.Extension,
		Hash:      push.Hash,
		CTime:     push.CTime,
		MTime:     push.MTime,
		Folder:    push.Folder,
		Deleted:   push.Deleted,
		Size:      push.Size,
		Pieces:    push.Pieces,
		Device:    push.Device,
	})
	return nil
}

// checkQuota rejects a push that would take the vault past its quota.
func (s *session) checkQuota(ctx context.Context, incoming int64) error {
	if incoming <= 0 {
		return nil
	}
	size, err := s.engine.store.GetVaultSize(ctx, s.vault.ID)
	if err != nil {
		return err
	}
	if size+incoming > s.engine.cfg.QuotaBytes {
		return models.ErrQuotaExceeded
	}
	return nil
}

func (s *session) handleHistory(ctx context.Context, data []byte) error {
	var hist historyFrame
	if err := json.Unmarshal(data, &hist); err != nil {
		return fmt.Errorf("malformed history frame: %w", err)
	}

	files, err := s.engine.store.GetFileHistory(ctx, s.vault.ID, hist.Path)
	if err != nil {
		return err
	}

	items := make([]historyItem, 0, len(files))
	for _, f := range files {
		items = append(items, historyItem{
			UID:      f.UID,
			Path:     f.Path,
			Size:     f.Size,
			Modified: f.Modified,
			Folder:   f.Folder,
			Deleted:  f.Deleted,
			TS:       f.Modified,
		})
	}
	s.sendJSON(map[string]any{"items": items, "more": false})
	return nil
}

func (s *session) handleDeleted(ctx context.Context) error {
	files, err := s.engine.store.GetDeletedFiles(ctx, s.vault.ID)
	if err != nil {
		return err
	}

	items := make([]trashItem, 0, len(files))
	for _, f := range files {
		items = append(items, trashItem{
			UID:      f.UID,
			Modified: f.Modified,
			Size:     f.Size,
			Path:     f.Path,
			Folder:   f.Folder,
			Deleted:  f.Deleted,
		})
	}
	s.sendJSON(map[string]any{"items": items})
	return nil
}

func (s *session) handleRestore(ctx context.Context, data []byte) error {
	var restore restoreFrame
	if err := json.Unmarshal(data, &restore); err != nil {
		return fmt.Errorf("malformed restore frame: %w", err)
	}

	file, err := s.engine.store.RestoreFile(ctx, toInt(restore.UID))
	if err != nil {
		return err
	}

	s.sendJSON(map[string]any{"res": "ok"})

	s.engine.hub.Broadcast(s.vault.ID, broadcastPush{
		Op:        "push",
		UID:       file.UID,
		Path:      file.Path,
		Extension: file.Extension,
		Hash:      file.Hash,
		CTime:     file.Created,
		MTime:     file.Modified,
		Folder:    file.Folder,
		Deleted:   file.Deleted,
		Size:      file.Size,
		Device:    serverDevice,
	})
	return nil
}

// ----------------------------------------------------------------------------
// Connection plumbing
// ----------------------------------------------------------------------------

// readText reads the next text frame, applying the idle timeout.
func (s *session) readText() ([]byte, error) {
	for {
		s.refreshReadDeadline()
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		// Binary frames outside a push piece loop carry no meaning.
		if mt != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

// readBinary reads the next binary frame, used inside the push piece loop.
func (s *session) readBinary() ([]byte, error) {
	s.refreshReadDeadline()
	mt, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("expected binary frame, got type %d", mt)
	}
	return data, nil
}

func (s *session) refreshReadDeadline() {
	if s.engine.cfg.IdleTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.engine.cfg.IdleTimeout))
	}
}

// broadcastLoop drains frames fanned out by peers. It exits when the session
// closes or a write fails.
func (s *session) broadcastLoop() {
	for {
		select {
		case data := <-s.broadcasts:
			if err := s.writeFrame(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// writeFrame is the only path onto the connection; the mutex serializes the
// read loop's replies against the broadcast drainer.
func (s *session) writeFrame(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

// sendJSON writes a text frame carrying the JSON encoding of v. Write
// failures surface as read errors and end the session, so they are not
// handled here.
func (s *session) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal frame", "error", err)
		return
	}
	_ = s.writeFrame(websocket.TextMessage, data)
}

// sendBinary writes a binary frame.
func (s *session) sendBinary(data []byte) {
	_ = s.writeFrame(websocket.BinaryMessage, data)
}

// sendError reports an error to the client as {"error": "..."}.
func (s *session) sendError(err error) {
	s.sendJSON(map[string]any{"error": err.Error()})
}

// enqueueText implements subscriber for the hub. It never blocks; a full
// queue reports failure so the hub can evict the peer.
func (s *session) enqueueText(data []byte) bool {
	select {
	case s.broadcasts <- data:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// evict implements subscriber: the hub gave up on this session.
func (s *session) evict() {
	logger.Warn("evicting slow session", "email", s.email, "device", s.device)
	s.close()
}

// close tears the connection down exactly once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
