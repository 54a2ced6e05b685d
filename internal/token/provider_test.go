package token

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestFetchCredentialSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-123","expires_in":60}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "key")
	cred, err := p.FetchCredential(context.Background())
	if err != nil {
		t.Fatalf("FetchCredential() error = %v", err)
	}
	if cred.Token != "tok-123" {
		t.Fatalf("Token = %q, want %q", cred.Token, "tok-123")
	}
	if cred.ExpiresAt.IsZero() || !cred.ExpiresAt.After(cred.IssuedAt) {
		t.Fatalf("ExpiresAt = %v, want after IssuedAt %v", cred.ExpiresAt, cred.IssuedAt)
	}
}

func TestFetchCredentialCarriesServiceMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"quota exceeded"}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "")
	_, err := p.FetchCredential(context.Background())
	if !errors.Is(err, ErrTokenUnavailable) {
		t.Fatalf("error = %v, want ErrTokenUnavailable", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("error %q should carry the service message", err)
	}
}

func TestFetchCredentialRejectsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"token":""}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "")
	_, err := p.FetchCredential(context.Background())
	if !errors.Is(err, ErrTokenUnavailable) {
		t.Fatalf("error = %v, want ErrTokenUnavailable", err)
	}
}

func TestFetchCredentialIsRetryable(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok-2"}`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "")
	if _, err := p.FetchCredential(context.Background()); err == nil {
		t.Fatalf("first call should fail")
	}
	cred, err := p.FetchCredential(context.Background())
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if cred.Token != "tok-2" {
		t.Fatalf("Token = %q, want %q", cred.Token, "tok-2")
	}
}
