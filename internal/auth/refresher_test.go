package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func refreshServer(t *testing.T, status int, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("refresh method = %s, want POST", r.Method)
		}
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode refresh body: %v", err)
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(refreshResponse{Token: token})
		}
	}))
}

func TestHTTPRefresherSuccess(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	fresh, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))

	srv := refreshServer(t, http.StatusOK, fresh)
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, srv.Client(), nil)
	token, err := r.Refresh(context.Background(), Token{Raw: "old"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if token.Raw != fresh {
		t.Error("refreshed token not returned")
	}
	if token.Subject != "u1" {
		t.Errorf("subject = %q", token.Subject)
	}
}

func TestHTTPRefresherSessionExpired(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusGone} {
		srv := refreshServer(t, status, "")
		r := NewHTTPRefresher(srv.URL, srv.Client(), nil)

		_, err := r.Refresh(context.Background(), Token{Raw: "old"})
		if !errors.Is(err, ErrSessionExpired) {
			t.Errorf("status %d: err = %v, want ErrSessionExpired", status, err)
		}
		srv.Close()
	}
}

func TestHTTPRefresherTransientFailure(t *testing.T) {
	srv := refreshServer(t, http.StatusBadGateway, "")
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, srv.Client(), nil)
	_, err := r.Refresh(context.Background(), Token{Raw: "old"})
	if err == nil {
		t.Fatal("expected an error for 502")
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Error("transient failure misclassified as session expiry")
	}
}

func TestHTTPRefresherUnusableToken(t *testing.T) {
	srv := refreshServer(t, http.StatusOK, "garbage")
	defer srv.Close()

	r := NewHTTPRefresher(srv.URL, srv.Client(), nil)
	if _, err := r.Refresh(context.Background(), Token{Raw: "old"}); err == nil {
		t.Fatal("expected an error for an unparsable replacement token")
	}
}
