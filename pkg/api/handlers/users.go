package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/youngmoe/obsync/internal/logger"
	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/store"
	"github.com/youngmoe/obsync/pkg/store/models"
)

// UserHandler serves the /user identity endpoints. The Obsidian client posts
// JSON bodies carrying the token; there is no Authorization header.
type UserHandler struct {
	store     *store.Store
	tokens    *auth.TokenService
	signupKey string
}

// NewUserHandler creates a user handler. signupKey, when non-empty, gates
// account creation.
func NewUserHandler(st *store.Store, tokens *auth.TokenService, signupKey string) *UserHandler {
	return &UserHandler{store: st, tokens: tokens, signupKey: signupKey}
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	SignupKey string `json:"signup_key"`
}

// Signup handles POST /user/signup.
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if h.signupKey != "" && req.SignupKey != h.signupKey {
		BadRequest(w, "Invalid signup key")
		return
	}

	if err := h.store.CreateUser(r.Context(), req.Email, req.Password, req.Name); err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			Conflict(w, "User already exists")
			return
		}
		InternalServerError(w, err.Error())
		return
	}

	logger.Info("created new user", "email", req.Email, "name", req.Name)
	WriteJSONOK(w, map[string]string{"email": req.Email, "name": req.Name})
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signinResponse struct {
	Email   string `json:"email"`
	License string `json:"license"`
	Name    string `json:"name"`
	Token   string `json:"token"`
}

// Signin handles POST /user/signin. Unknown emails and wrong passwords are
// indistinguishable in the response.
func (h *UserHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	user, err := h.store.ValidateCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			BadRequest(w, "Invalid username or password")
			return
		}
		InternalServerError(w, err.Error())
		return
	}

	token, err := h.tokens.Mint(user.Email)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}

	logger.Info("user signed in", "email", user.Email)
	WriteJSONOK(w, signinResponse{
		Email:   user.Email,
		License: user.License,
		Name:    user.Name,
		Token:   token,
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

type userInfoResponse struct {
	UID      string         `json:"uid"`
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Payment  string         `json:"payment"`
	License  string         `json:"license"`
	Credit   int            `json:"credit"`
	MFA      bool           `json:"mfa"`
	Discount map[string]any `json:"discount"`
}

// Info handles POST /user/info. The discount block keeps the client's
// subscription checks satisfied.
func (h *UserHandler) Info(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, err := h.tokens.Email(req.Token)
	if err != nil {
		Unauthorized(w, "Not logged in")
		return
	}

	user, err := h.store.GetUser(r.Context(), email)
	if err != nil {
		NotFound(w, "User not found")
		return
	}

	WriteJSONOK(w, userInfoResponse{
		UID:     uuid.New().String(),
		Email:   email,
		Name:    user.Name,
		Payment: "",
		License: "",
		Credit:  0,
		MFA:     false,
		Discount: map[string]any{
			"status":    "approved",
			"expiry_ts": time.Now().UnixMilli() + 365*24*60*60*1000,
			"type":      "education",
		},
	})
}

// Signout handles POST /user/signout. Tokens are stateless, so there is
// nothing to invalidate server-side.
func (h *UserHandler) Signout(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, map[string]any{})
}

// Delete handles POST /user/delete.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	email, err := h.tokens.Email(req.Token)
	if err != nil {
		Unauthorized(w, "Not logged in")
		return
	}

	if err := h.store.DeleteUser(r.Context(), email); err != nil {
		InternalServerError(w, err.Error())
		return
	}

	logger.Info("deleted user", "email", email)
	WriteJSONOK(w, map[string]any{})
}
