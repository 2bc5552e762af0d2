package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stkpush-backend/pkg/auth"
	"github.com/angelmondragon/stkpush-backend/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "identity"}

func captureUser(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = ""
		if id, ok := UserIDFromContext(r.Context()); ok {
			*captured = id.String()
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestOptionalAuthAllowsAnonymous(t *testing.T) {
	captured := "unset"
	handler := OptionalAuth(testJWT, nil)(captureUser(&captured))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured != "" {
		t.Fatalf("expected anonymous context, got %q", captured)
	}
}

func TestOptionalAuthRejectsInvalidToken(t *testing.T) {
	var captured string
	handler := OptionalAuth(testJWT, nil)(captureUser(&captured))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOptionalAuthAttachesUserID(t *testing.T) {
	userID := uuid.New()
	token, err := auth.MintAccessToken(testJWT, time.Now(), time.Hour, userID)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	var captured string
	handler := OptionalAuth(testJWT, nil)(captureUser(&captured))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured != userID.String() {
		t.Fatalf("expected user %s, got %s", userID, captured)
	}
}
