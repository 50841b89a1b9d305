package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() *RetryPolicy {
	r := DefaultRetryPolicy()
	r.BaseDelay = time.Millisecond
	r.MaxDelay = 5 * time.Millisecond
	return r
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestSend_SetsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/echo" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"echo": body["value"]})
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/api/", WithAccessToken("tok"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := c.Send(context.Background(), http.MethodPost, "/echo", map[string]string{"value": "x"}, true, true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil || got["echo"] != "x" {
		t.Fatalf("response = %s, %v", raw, err)
	}
}

func TestSend_AuthenticatedWithoutToken(t *testing.T) {
	c, _ := New("http://127.0.0.1:1")
	if _, err := c.Send(context.Background(), http.MethodGet, "/x", nil, true, true); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestSend_NoResponseDiscardsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ignored":true}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	raw, err := c.Send(context.Background(), http.MethodPost, "/x", nil, false, false)
	if err != nil || raw != nil {
		t.Fatalf("Send = %s, %v", raw, err)
	}
}

func TestSend_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, WithRetry(fastRetry()))
	if _, err := c.Send(context.Background(), http.MethodGet, "/x", nil, false, true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestSend_ErrorStatusMapsToSentinels(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrInvalidCredential},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"message":"nope"}`))
		}))
		c, _ := New(srv.URL, WithRetry(nil))
		_, err := c.Send(context.Background(), http.MethodGet, "/x", nil, false, true)
		srv.Close()

		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Message != "nope" {
			t.Fatalf("status %d: unexpected error %#v", tc.status, err)
		}
	}
}

func TestSend_TransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := New(url, WithRetry(fastRetry()))
	_, err := c.Send(context.Background(), http.MethodGet, "/x", nil, false, true)
	if !IsNetworkError(err) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestSend_NeverRetriesPost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, WithRetry(fastRetry()))
	if _, err := c.Send(context.Background(), http.MethodPost, "/accounts/verify-password", map[string]string{"masterPasswordHash": "h"}, false, true); err == nil {
		t.Fatal("expected error for 503")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestRetryPolicy_Allows(t *testing.T) {
	r := DefaultRetryPolicy()
	if !r.allows(http.MethodGet, 0) || !r.allows(http.MethodPut, 0) {
		t.Error("idempotent methods should be retried")
	}
	if r.allows(http.MethodPost, 0) {
		t.Error("POST must not be retried")
	}
	if r.allows(http.MethodGet, r.MaxRetries) {
		t.Error("no retry past MaxRetries")
	}
	var none *RetryPolicy
	if none.allows(http.MethodGet, 0) {
		t.Error("nil policy must not retry")
	}
}
