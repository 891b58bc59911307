package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(Options{BaseURL: srv.URL})
	return c, srv
}

func TestDoSendsBearerToken(t *testing.T) {
	var gotAuth string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{}) // nolint:errcheck
	}))
	defer srv.Close()

	c.SetToken("tok-1")
	if err := c.do(context.Background(), http.MethodGet, "/ping", nil, nil); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   apperrors.ErrorType
	}{
		{"unauthorized", http.StatusUnauthorized, "", apperrors.ErrorTypeAuthentication},
		{"forbidden", http.StatusForbidden, "", apperrors.ErrorTypeAuthorization},
		{"not found", http.StatusNotFound, "", apperrors.ErrorTypeNotFound},
		{"bad request", http.StatusBadRequest, `{"message":"email taken"}`, apperrors.ErrorTypeValidation},
		{"server error", http.StatusInternalServerError, "", apperrors.ErrorTypeExternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body)) // nolint:errcheck
			}))
			defer srv.Close()

			err := c.do(context.Background(), http.MethodGet, "/x", nil, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperrors.TypeOf(err); got != tt.want {
				t.Fatalf("type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationErrorCarriesServerMessage(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"name must not be empty"}`)) // nolint:errcheck
	}))
	defer srv.Close()

	err := c.do(context.Background(), http.MethodPost, "/x", map[string]string{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := apperrors.UserText(err); got != "name must not be empty" {
		t.Fatalf("user text = %q, want the server's verbatim message", got)
	}
}

func TestNetworkErrorMapping(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"}) // nothing listens here
	err := c.do(context.Background(), http.MethodGet, "/x", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := apperrors.TypeOf(err); got != apperrors.ErrorTypeNetwork {
		t.Fatalf("type = %v, want network", got)
	}
}

func TestUnauthorizedHookFiresOncePerGeneration(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var fired atomic.Int64
	c.SetToken("tok-1")
	c.OnUnauthorized(func() { fired.Add(1) })

	// N requests observe the same stale token.
	for i := 0; i < 5; i++ {
		_ = c.do(context.Background(), http.MethodGet, "/x", nil, nil) // nolint:errcheck
	}
	if got := fired.Load(); got != 1 {
		t.Fatalf("hook fired %d times, want once", got)
	}

	// A fresh token re-arms the hook.
	c.SetToken("tok-2")
	_ = c.do(context.Background(), http.MethodGet, "/x", nil, nil) // nolint:errcheck
	if got := fired.Load(); got != 2 {
		t.Fatalf("hook fired %d times after new token, want 2", got)
	}
}

func TestPagePath(t *testing.T) {
	if got := pagePath("/posts", "", 20); got != "/posts?limit=20" {
		t.Fatalf("got %q", got)
	}
	if got := pagePath("/posts", "abc", 20); got != "/posts?limit=20&cursor=abc" {
		t.Fatalf("got %q", got)
	}
	if got := pagePath("/posts?sort=new", "abc", 10); got != "/posts?sort=new&limit=10&cursor=abc" {
		t.Fatalf("got %q", got)
	}
}

func TestUnionListAcceptsBothShapes(t *testing.T) {
	type item struct {
		ID string `json:"id"`
	}

	bare := json.RawMessage(`[{"id":"a"},{"id":"b"}]`)
	got, err := unionList[item](bare, "users")
	if err != nil || len(got) != 2 {
		t.Fatalf("bare array: got %v err %v", got, err)
	}

	wrapped := json.RawMessage(`{"users":[{"id":"a"}]}`)
	got, err = unionList[item](wrapped, "users")
	if err != nil || len(got) != 1 {
		t.Fatalf("wrapped object: got %v err %v", got, err)
	}

	if _, err := unionList[item](json.RawMessage(`"nope"`), "users"); err == nil {
		t.Fatal("expected error for a non-list shape")
	}
}
