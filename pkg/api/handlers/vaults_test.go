package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/keyhash"
	"github.com/youngmoe/obsync/pkg/store"
)

func setupVaultTest(t *testing.T) (*store.Store, *auth.TokenService, *VaultHandler, string) {
	t.Helper()

	st := newTestStore(t)
	tokens := newTestTokens(t)
	handler := NewVaultHandler(st, tokens, "sync.example.com", 1<<30)

	if err := st.CreateUser(context.Background(), "a@x", "pw", "A"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	token, err := tokens.Mint("a@x")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	return st, tokens, handler, token
}

func TestVaultHandler_CreateGeneratesKeys(t *testing.T) {
	_, _, handler, token := setupVaultTest(t)

	w := postJSON(t, handler.Create, createVaultRequest{Token: token, Name: "V"})
	if w.Code != http.StatusOK {
		t.Fatalf("Create() status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := decodeBody(t, w)
	password, _ := resp["password"].(string)
	salt, _ := resp["salt"].(string)
	if len(password) != 20 || len(salt) != 20 {
		t.Errorf("generated password/salt lengths = %d/%d, want 20/20", len(password), len(salt))
	}
	want, err := keyhash.Make(password, salt)
	if err != nil {
		t.Fatalf("keyhash.Make() error = %v", err)
	}
	if resp["keyhash"] != want {
		t.Error("keyhash is not derived from the generated password and salt")
	}
	if resp["host"] != "sync.example.com" {
		t.Errorf("host = %v, want sync.example.com", resp["host"])
	}
	if v, _ := resp["version"].(float64); v != 0 {
		t.Errorf("new vault version = %v, want 0", resp["version"])
	}
}

func TestVaultHandler_CreateClientKeys(t *testing.T) {
	_, _, handler, token := setupVaultTest(t)

	tests := []struct {
		name       string
		body       createVaultRequest
		wantStatus int
		wantDetail string
	}{
		{
			name:       "salt with keyhash",
			body:       createVaultRequest{Token: token, Name: "V", Salt: "s", Keyhash: "kh"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "salt without keyhash",
			body:       createVaultRequest{Token: token, Name: "V", Salt: "s"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "keyhash must be provided if salt is provided",
		},
		{
			name:       "bad token",
			body:       createVaultRequest{Token: "garbage", Name: "V"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler.Create, tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("Create() status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decodeBody(t, w)
			if tt.wantDetail != "" && resp["detail"] != tt.wantDetail {
				t.Errorf("Create() detail = %v, want %q", resp["detail"], tt.wantDetail)
			}
			if tt.wantStatus == http.StatusOK && resp["keyhash"] != "kh" {
				t.Errorf("Create() keyhash = %v, want client-supplied kh", resp["keyhash"])
			}
		})
	}
}

func TestVaultHandler_List(t *testing.T) {
	st, _, handler, token := setupVaultTest(t)
	ctx := context.Background()

	vault, err := st.CreateVault(ctx, store.NewVaultParams{Name: "Mine", Owner: "a@x", Keyhash: "kh"})
	if err != nil {
		t.Fatalf("CreateVault() error = %v", err)
	}

	// A vault shared with a@x by somebody else shows up under "shared".
	if err := st.CreateUser(ctx, "b@x", "pw", "B"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	theirs, err := st.CreateVault(ctx, store.NewVaultParams{Name: "Theirs", Owner: "b@x", Keyhash: "kh"})
	if err != nil {
		t.Fatalf("CreateVault() error = %v", err)
	}
	if _, err := st.ShareInvite(ctx, "a@x", "A", theirs.ID); err != nil {
		t.Fatalf("ShareInvite() error = %v", err)
	}

	w := postJSON(t, handler.List, tokenRequest{Token: token})
	if w.Code != http.StatusOK {
		t.Fatalf("List() status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := decodeBody(t, w)
	owned, _ := resp["vaults"].([]any)
	shared, _ := resp["shared"].([]any)
	if len(owned) != 1 || len(shared) != 1 {
		t.Fatalf("List() = %d owned / %d shared, want 1/1", len(owned), len(shared))
	}
	if owned[0].(map[string]any)["id"] != vault.ID {
		t.Errorf("owned vault id = %v, want %s", owned[0].(map[string]any)["id"], vault.ID)
	}
	if shared[0].(map[string]any)["id"] != theirs.ID {
		t.Errorf("shared vault id = %v, want %s", shared[0].(map[string]any)["id"], theirs.ID)
	}
}

func TestVaultHandler_Access(t *testing.T) {
	st, _, handler, token := setupVaultTest(t)

	vault, err := st.CreateVault(context.Background(), store.NewVaultParams{
		Name: "V", Owner: "a@x", Keyhash: "kh",
	})
	if err != nil {
		t.Fatalf("CreateVault() error = %v", err)
	}

	tests := []struct {
		name       string
		body       accessVaultRequest
		wantStatus int
		wantDetail string
	}{
		{
			name:       "owner with correct keyhash",
			body:       accessVaultRequest{Token: token, VaultUID: vault.ID, Keyhash: "kh"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong keyhash",
			body:       accessVaultRequest{Token: token, VaultUID: vault.ID, Keyhash: "bad"},
			wantStatus: http.StatusForbidden,
			wantDetail: "Invalid keyhash",
		},
		{
			name:       "unknown vault",
			body:       accessVaultRequest{Token: token, VaultUID: "missing", Keyhash: "kh"},
			wantStatus: http.StatusUnauthorized,
			wantDetail: "You do not have access to this vault",
		},
		{
			name:       "bad token",
			body:       accessVaultRequest{Token: "garbage", VaultUID: vault.ID, Keyhash: "kh"},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler.Access, tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("Access() status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decodeBody(t, w)
			if tt.wantDetail != "" && resp["detail"] != tt.wantDetail {
				t.Errorf("Access() detail = %v, want %q", resp["detail"], tt.wantDetail)
			}
			if tt.wantStatus == http.StatusOK {
				if resp["allowed"] != true {
					t.Error("Access() allowed != true")
				}
				if resp["useruid"] != syncUserUID {
					t.Errorf("Access() useruid = %v, want the fixed sync uid", resp["useruid"])
				}
			}
		})
	}
}

func TestVaultHandler_Delete(t *testing.T) {
	st, _, handler, token := setupVaultTest(t)

	vault, err := st.CreateVault(context.Background(), store.NewVaultParams{
		Name: "V", Owner: "a@x", Keyhash: "kh",
	})
	if err != nil {
		t.Fatalf("CreateVault() error = %v", err)
	}

	w := postJSON(t, handler.Delete, deleteVaultRequest{Token: token, VaultUID: vault.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("Delete() status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp := decodeBody(t, w); resp["status"] != "ok" {
		t.Errorf("Delete() status field = %v, want ok", resp["status"])
	}

	vaults, err := st.GetVaults(context.Background(), "a@x")
	if err != nil {
		t.Fatalf("GetVaults() error = %v", err)
	}
	if len(vaults) != 0 {
		t.Errorf("vault still listed after Delete(), got %d", len(vaults))
	}
}
