package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/store"
	"github.com/youngmoe/obsync/pkg/store/models"
)

const testKeyhash = "kh-test"

type testEnv struct {
	engine *Engine
	store  *store.Store
	vault  *models.Vault
	token  string
	server *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	tokens, err := auth.NewTokenService(bytes.Repeat([]byte{7}, 64))
	require.NoError(t, err)

	vault, err := st.CreateVault(context.Background(), store.NewVaultParams{
		Name:    "V",
		Owner:   "a@x",
		Keyhash: testKeyhash,
		Quota:   1 << 30,
	})
	require.NoError(t, err)

	token, err := tokens.Mint("a@x")
	require.NoError(t, err)

	if cfg.MaxFrameBytes == 0 {
		cfg.MaxFrameBytes = 1 << 20
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 10 * time.Second
	}
	if cfg.QuotaBytes == 0 {
		cfg.QuotaBytes = 1 << 30
	}

	engine := NewEngine(st, tokens, cfg, nil)
	srv := httptest.NewServer(engine.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{engine: engine, store: st, vault: vault, token: token, server: srv}
}

func (env *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(env.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt, "payload: %s", data)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func readBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt)
	return data
}

// initSession performs the INIT handshake and consumes catch-up frames until
// the ready marker, returning them.
func initSession(t *testing.T, env *testEnv, conn *websocket.Conn, version int64, device string) []map[string]any {
	t.Helper()

	sendJSON(t, conn, map[string]any{
		"op":      "init",
		"token":   env.token,
		"id":      env.vault.ID,
		"keyhash": testKeyhash,
		"version": version,
		"initial": true,
		"device":  device,
	})

	msg := readJSON(t, conn)
	require.Equal(t, "ok", msg["res"], "init reply: %v", msg)

	var catchUp []map[string]any
	for {
		msg = readJSON(t, conn)
		if msg["op"] == "ready" {
			return catchUp
		}
		catchUp = append(catchUp, msg)
	}
}

func pushFile(t *testing.T, conn *websocket.Conn, path string, payload []byte) {
	t.Helper()

	sendJSON(t, conn, map[string]any{
		"op":     "push",
		"path":   path,
		"hash":   "h",
		"size":   len(payload),
		"pieces": 1,
		"ctime":  100,
		"mtime":  200,
		"folder": false,
		"device": "d1",
	})
	msg := readJSON(t, conn)
	require.Equal(t, "next", msg["res"])
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload))

	msg = readJSON(t, conn)
	require.Equal(t, "ok", msg["op"])

	// The pusher is also a hub peer, so its own broadcast follows the
	// completion marker.
	msg = readJSON(t, conn)
	require.Equal(t, "push", msg["op"])
	require.Equal(t, path, msg["path"])
}

func TestSessionPushPullRoundTrip(t *testing.T) {
	env := newTestEnv(t, Config{SnapshotOnConnect: true})

	first := env.dial(t)
	catchUp := initSession(t, env, first, 0, "d1")
	require.Empty(t, catchUp, "fresh vault must not replay anything")

	pushFile(t, first, "notes/a.md", []byte("hello"))

	// A second device behind the vault version receives the live set.
	second := env.dial(t)
	catchUp = initSession(t, env, second, 0, "d2")
	require.Len(t, catchUp, 1)
	require.Equal(t, "notes/a.md", catchUp[0]["path"])
	require.Equal(t, "insignificantv5", catchUp[0]["device"])

	uid := int64(catchUp[0]["uid"].(float64))
	sendJSON(t, second, map[string]any{"op": "pull", "uid": uid})

	msg := readJSON(t, second)
	require.Equal(t, "h", msg["hash"])
	require.EqualValues(t, 5, msg["size"])
	require.EqualValues(t, 1, msg["pieces"])
	require.Equal(t, []byte("hello"), readBinary(t, second))
}

func TestSessionVersionBumpsOncePerSession(t *testing.T) {
	env := newTestEnv(t, Config{})

	conn := env.dial(t)
	initSession(t, env, conn, 0, "d1")

	pushFile(t, conn, "a.md", []byte("one"))
	pushFile(t, conn, "b.md", []byte("two"))

	vault, err := env.store.GetVault(context.Background(), env.vault.ID, testKeyhash)
	require.NoError(t, err)
	require.EqualValues(t, 1, vault.Version, "two pushes in one session bump version once")
}

func TestSessionBroadcastFanout(t *testing.T) {
	env := newTestEnv(t, Config{})

	a := env.dial(t)
	initSession(t, env, a, 0, "d1")
	b := env.dial(t)
	initSession(t, env, b, 0, "d2")

	pushFile(t, a, "notes/a.md", []byte("hello"))

	msg := readJSON(t, b)
	require.Equal(t, "push", msg["op"])
	require.Equal(t, "notes/a.md", msg["path"])
	require.Equal(t, "d1", msg["device"], "broadcast echoes the originating device")
}

func TestSessionPingSizeAndDeleted(t *testing.T) {
	env := newTestEnv(t, Config{})

	conn := env.dial(t)
	initSession(t, env, conn, 0, "d1")

	sendJSON(t, conn, map[string]any{"op": "ping"})
	require.Equal(t, "pong", readJSON(t, conn)["op"])

	pushFile(t, conn, "notes/a.md", []byte("hello"))

	sendJSON(t, conn, map[string]any{"op": "size"})
	msg := readJSON(t, conn)
	require.Equal(t, "ok", msg["res"])
	require.EqualValues(t, 5, msg["size"])

	// Tombstone the file, then list the trash.
	sendJSON(t, conn, map[string]any{"op": "push", "path": "notes/a.md", "deleted": true, "size": 0})
	require.Equal(t, "ok", readJSON(t, conn)["op"])
	msg = readJSON(t, conn)
	require.Equal(t, "push", msg["op"]) // own broadcast
	require.Equal(t, true, msg["deleted"])

	sendJSON(t, conn, map[string]any{"op": "deleted"})
	msg = readJSON(t, conn)
	items := msg["items"].([]any)
	require.Len(t, items, 1)
	require.Equal(t, "notes/a.md", items[0].(map[string]any)["path"])
}

func TestSessionHistoryAndRestore(t *testing.T) {
	env := newTestEnv(t, Config{})

	conn := env.dial(t)
	initSession(t, env, conn, 0, "d1")

	pushFile(t, conn, "notes/a.md", []byte("hello"))

	sendJSON(t, conn, map[string]any{"op": "history", "path": "notes/a.md"})
	msg := readJSON(t, conn)
	items := msg["items"].([]any)
	require.Len(t, items, 1)
	uid := int64(items[0].(map[string]any)["uid"].(float64))

	sendJSON(t, conn, map[string]any{"op": "push", "path": "notes/a.md", "deleted": true, "size": 0, "uid": uid})
	require.Equal(t, "ok", readJSON(t, conn)["op"])
	require.Equal(t, "push", readJSON(t, conn)["op"])

	sendJSON(t, conn, map[string]any{"op": "restore", "uid": uid})
	require.Equal(t, "ok", readJSON(t, conn)["res"])
	msg = readJSON(t, conn)
	require.Equal(t, "push", msg["op"]) // restore broadcast
	require.Equal(t, false, msg["deleted"])

	files, err := env.store.GetVaultFiles(context.Background(), env.vault.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.EqualValues(t, uid, files[0].UID)
}

func TestSessionQuotaRejectsPush(t *testing.T) {
	env := newTestEnv(t, Config{QuotaBytes: 4})

	conn := env.dial(t)
	initSession(t, env, conn, 0, "d1")

	sendJSON(t, conn, map[string]any{
		"op": "push", "path": "big.md", "hash": "h", "size": 5, "pieces": 1,
	})
	msg := readJSON(t, conn)
	require.Contains(t, msg["error"], "quota")

	// The session survives the rejection.
	sendJSON(t, conn, map[string]any{"op": "ping"})
	require.Equal(t, "pong", readJSON(t, conn)["op"])
}

func TestSessionRejectsBadToken(t *testing.T) {
	env := newTestEnv(t, Config{})

	conn := env.dial(t)
	sendJSON(t, conn, map[string]any{
		"op": "init", "token": "garbage", "id": env.vault.ID, "keyhash": testKeyhash,
	})
	msg := readJSON(t, conn)
	require.NotEmpty(t, msg["error"])
}

func TestSessionRejectsWrongKeyhash(t *testing.T) {
	env := newTestEnv(t, Config{})

	conn := env.dial(t)
	sendJSON(t, conn, map[string]any{
		"op": "init", "token": env.token, "id": env.vault.ID, "keyhash": "bad",
	})
	msg := readJSON(t, conn)
	require.NotEmpty(t, msg["error"])
}

func TestSessionForwardVersionAdopted(t *testing.T) {
	env := newTestEnv(t, Config{})

	conn := env.dial(t)
	initSession(t, env, conn, 9, "d1")

	// Client ahead of the server pushes the counter forward during INIT.
	require.Eventually(t, func() bool {
		vault, err := env.store.GetVault(context.Background(), env.vault.ID, testKeyhash)
		return err == nil && vault.Version == 9
	}, 2*time.Second, 20*time.Millisecond)
}
