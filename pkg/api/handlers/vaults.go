package handlers

import (
	"errors"
	"net/http"

	"github.com/youngmoe/obsync/internal/logger"
	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/store"
	"github.com/youngmoe/obsync/pkg/store/models"
)

// syncUserUID is the fixed user identifier returned by /vault/access. The
// client treats it as opaque; a stable value keeps every device of a user
// agreeing on identity.
const syncUserUID = "b094fc51bf40b9ddb9ff43d4aadfa962"

// VaultHandler serves the /vault management endpoints.
type VaultHandler struct {
	store      *store.Store
	tokens     *auth.TokenService
	host       string
	quotaBytes int64
}

// NewVaultHandler creates a vault handler. host is advertised to clients as
// the sync endpoint of newly created vaults; quotaBytes caps each vault.
func NewVaultHandler(st *store.Store, tokens *auth.TokenService, host string, quotaBytes int64) *VaultHandler {
	return &VaultHandler{store: st, tokens: tokens, host: host, quotaBytes: quotaBytes}
}

// vaultInfo is the wire shape of a vault, shared by create and list.
type vaultInfo struct {
	ID       string `json:"id"`
	Created  int64  `json:"created"`
	Host     string `json:"host"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Salt     string `json:"salt"`
	Size     int64  `json:"size"`
	Keyhash  string `json:"keyhash,omitempty"`
	Version  int64  `json:"version"`
}

func toVaultInfo(v *models.Vault) vaultInfo {
	return vaultInfo{
		ID:       v.ID,
		Created:  v.Created,
		Host:     v.Host,
		Name:     v.Name,
		Password: v.Password,
		Salt:     v.Salt,
		Size:     v.Size,
		Keyhash:  v.Keyhash,
		Version:  v.Version,
	}
}

type createVaultRequest struct {
	Token   string `json:"token"`
	Name    string `json:"name"`
	Salt    string `json:"salt"`
	Keyhash string `json:"keyhash"`
}

// Create handles POST /vault/create.
//
// Clients running end-to-end encryption supply their own salt and keyhash.
// Without a salt the server generates the vault password and salt itself and
// derives the keyhash from them.
func (h *VaultHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createVaultRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, err := h.tokens.Email(req.Token)
	if err != nil {
		Unauthorized(w, "Unauthorized")
		return
	}

	params := store.NewVaultParams{
		Name:  req.Name,
		Owner: email,
		Host:  h.host,
		Quota: h.quotaBytes,
	}
	if req.Salt == "" {
		params.Password = generatePassword(20, 5, 5)
		params.Salt = generatePassword(20, 5, 5)
	} else {
		if req.Keyhash == "" {
			BadRequest(w, "keyhash must be provided if salt is provided")
			return
		}
		params.Salt = req.Salt
		params.Keyhash = req.Keyhash
	}

	vault, err := h.store.CreateVault(r.Context(), params)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}

	logger.Info("created new vault", "vault", vault.ID, "name", vault.Name, "owner", email)
	WriteJSONOK(w, toVaultInfo(vault))
}

// List handles POST /vault/list, returning owned and shared vaults.
func (h *VaultHandler) List(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, ok := authEmail(w, h.tokens, req.Token)
	if !ok {
		return
	}

	vaults, err := h.store.GetVaults(r.Context(), email)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	shared, err := h.store.GetSharedVaults(r.Context(), email)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}

	owned := make([]vaultInfo, 0, len(vaults))
	for i := range vaults {
		owned = append(owned, toVaultInfo(&vaults[i]))
	}
	borrowed := make([]vaultInfo, 0, len(shared))
	for i := range shared {
		borrowed = append(borrowed, toVaultInfo(&shared[i]))
	}

	WriteJSONOK(w, map[string]any{"vaults": owned, "shared": borrowed})
}

type accessVaultRequest struct {
	Token    string `json:"token"`
	VaultUID string `json:"vault_uid"`
	Keyhash  string `json:"keyhash"`
}

// Access handles POST /vault/access: the client proves knowledge of the
// vault key before opening a sync session. A wrong keyhash is a 403, not a
// missing vault.
func (h *VaultHandler) Access(w http.ResponseWriter, r *http.Request) {
	var req accessVaultRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, err := h.tokens.Email(req.Token)
	if err != nil {
		Unauthorized(w, "Unauthorized")
		return
	}

	allowed, err := h.store.HasVaultAccess(r.Context(), req.VaultUID, email)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	if !allowed {
		Unauthorized(w, "You do not have access to this vault")
		return
	}

	if _, err := h.store.GetVault(r.Context(), req.VaultUID, req.Keyhash); err != nil {
		switch {
		case errors.Is(err, models.ErrKeyhashMismatch):
			Forbidden(w, "Invalid keyhash")
		case errors.Is(err, models.ErrVaultNotFound):
			NotFound(w, "Vault not found")
		default:
			InternalServerError(w, err.Error())
		}
		return
	}

	user, err := h.store.GetUser(r.Context(), email)
	if err != nil {
		NotFound(w, "User not found")
		return
	}

	WriteJSONOK(w, map[string]any{
		"allowed": true,
		"email":   email,
		"name":    user.Name,
		"useruid": syncUserUID,
	})
}

type deleteVaultRequest struct {
	Token    string `json:"token"`
	VaultUID string `json:"vault_uid"`
}

// Delete handles POST /vault/delete. Only the owner's vaults are affected;
// deleting somebody else's vault id is a silent no-op.
func (h *VaultHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteVaultRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, ok := authEmail(w, h.tokens, req.Token)
	if !ok {
		return
	}

	if err := h.store.DeleteVault(r.Context(), req.VaultUID, email); err != nil {
		InternalServerError(w, err.Error())
		return
	}

	logger.Info("deleted vault", "vault", req.VaultUID, "owner", email)
	WriteJSONOK(w, map[string]string{"status": "ok"})
}
