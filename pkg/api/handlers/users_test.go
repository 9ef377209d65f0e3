package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()

	tokens, err := auth.NewTokenService(bytes.Repeat([]byte{7}, 64))
	if err != nil {
		t.Fatalf("auth.NewTokenService() error = %v", err)
	}
	return tokens
}

// postJSON invokes handler with a JSON request body and returns the recorder.
func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestUserHandler_Signup(t *testing.T) {
	st := newTestStore(t)
	handler := NewUserHandler(st, newTestTokens(t), "letmein")

	tests := []struct {
		name       string
		body       signupRequest
		wantStatus int
		wantDetail string
	}{
		{
			name:       "valid key",
			body:       signupRequest{Email: "a@x", Password: "pw", Name: "A", SignupKey: "letmein"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong key",
			body:       signupRequest{Email: "b@x", Password: "pw", SignupKey: "nope"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Invalid signup key",
		},
		{
			name:       "missing key",
			body:       signupRequest{Email: "b@x", Password: "pw"},
			wantStatus: http.StatusBadRequest,
			wantDetail: "Invalid signup key",
		},
		{
			name:       "duplicate email",
			body:       signupRequest{Email: "a@x", Password: "pw", SignupKey: "letmein"},
			wantStatus: http.StatusConflict,
			wantDetail: "User already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler.Signup, tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("Signup() status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decodeBody(t, w)
			if tt.wantDetail != "" && resp["detail"] != tt.wantDetail {
				t.Errorf("Signup() detail = %v, want %q", resp["detail"], tt.wantDetail)
			}
			if tt.wantStatus == http.StatusOK && resp["email"] != tt.body.Email {
				t.Errorf("Signup() email = %v, want %q", resp["email"], tt.body.Email)
			}
		})
	}
}

func TestUserHandler_SignupWithoutKeyGate(t *testing.T) {
	st := newTestStore(t)
	handler := NewUserHandler(st, newTestTokens(t), "")

	w := postJSON(t, handler.Signup, signupRequest{Email: "a@x", Password: "pw", Name: "A"})
	if w.Code != http.StatusOK {
		t.Errorf("Signup() status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
}

func TestUserHandler_Signin(t *testing.T) {
	st := newTestStore(t)
	tokens := newTestTokens(t)
	handler := NewUserHandler(st, tokens, "")

	if err := st.CreateUser(context.Background(), "a@x", "pw", "A"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	tests := []struct {
		name       string
		body       signinRequest
		wantStatus int
	}{
		{name: "valid credentials", body: signinRequest{Email: "a@x", Password: "pw"}, wantStatus: http.StatusOK},
		{name: "wrong password", body: signinRequest{Email: "a@x", Password: "bad"}, wantStatus: http.StatusBadRequest},
		{name: "unknown email", body: signinRequest{Email: "ghost@x", Password: "pw"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler.Signin, tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("Signin() status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decodeBody(t, w)
			if tt.wantStatus != http.StatusOK {
				// Wrong password and unknown email are indistinguishable.
				if resp["detail"] != "Invalid username or password" {
					t.Errorf("Signin() detail = %v, want invalid-credentials message", resp["detail"])
				}
				return
			}

			token, _ := resp["token"].(string)
			if token == "" {
				t.Fatal("Signin() returned no token")
			}
			email, err := tokens.Email(token)
			if err != nil || email != "a@x" {
				t.Errorf("minted token resolves to (%q, %v), want a@x", email, err)
			}
			if resp["name"] != "A" {
				t.Errorf("Signin() name = %v, want A", resp["name"])
			}
		})
	}
}

func TestUserHandler_Info(t *testing.T) {
	st := newTestStore(t)
	tokens := newTestTokens(t)
	handler := NewUserHandler(st, tokens, "")

	if err := st.CreateUser(context.Background(), "a@x", "pw", "A"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	token, err := tokens.Mint("a@x")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	w := postJSON(t, handler.Info, tokenRequest{Token: token})
	if w.Code != http.StatusOK {
		t.Fatalf("Info() status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["email"] != "a@x" || resp["name"] != "A" {
		t.Errorf("Info() = %v, want email a@x and name A", resp)
	}
	discount, _ := resp["discount"].(map[string]any)
	if discount["status"] != "approved" {
		t.Errorf("Info() discount status = %v, want approved", discount["status"])
	}

	w = postJSON(t, handler.Info, tokenRequest{Token: "garbage"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Info() with bad token status = %d, want 401", w.Code)
	}
}

func TestUserHandler_Delete(t *testing.T) {
	st := newTestStore(t)
	tokens := newTestTokens(t)
	handler := NewUserHandler(st, tokens, "")

	if err := st.CreateUser(context.Background(), "a@x", "pw", "A"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	token, err := tokens.Mint("a@x")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	w := postJSON(t, handler.Delete, tokenRequest{Token: token})
	if w.Code != http.StatusOK {
		t.Fatalf("Delete() status = %d, body = %s", w.Code, w.Body.String())
	}

	if _, err := st.GetUser(context.Background(), "a@x"); err == nil {
		t.Error("user still present after Delete()")
	}
}
