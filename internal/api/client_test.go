package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/inertia-live/inertia-go/internal/domain"
)

type testTokenSource struct {
	accessFn  func() (string, error)
	refreshFn func(ctx context.Context) (string, error)
}

func (s testTokenSource) AccessToken() (string, error) {
	if s.accessFn != nil {
		return s.accessFn()
	}
	return "token-1", nil
}

func (s testTokenSource) Refresh(ctx context.Context) (string, error) {
	if s.refreshFn != nil {
		return s.refreshFn(ctx)
	}
	return "token-2", nil
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newClient(t *testing.T, baseURL string, tokens TokenSource) *Client {
	t.Helper()
	c, err := NewClient(baseURL, tokens, testLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestClientInjectsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"T1","game_id":"G1","name":"Runners"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, testTokenSource{})
	team, err := c.Team(context.Background(), "T1")
	if err != nil {
		t.Fatalf("team: %v", err)
	}
	if gotAuth != "Bearer token-1" {
		t.Fatalf("unexpected Authorization header %q", gotAuth)
	}
	if team.GameID != "G1" {
		t.Fatalf("unexpected team %+v", team)
	}
}

func TestClientRefreshesOnceOn401(t *testing.T) {
	var refreshes atomic.Int32
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer token-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"T1","game_id":"G1"}`))
	}))
	defer srv.Close()

	tokens := testTokenSource{
		refreshFn: func(context.Context) (string, error) {
			refreshes.Add(1)
			return "token-2", nil
		},
	}
	c := newClient(t, srv.URL, tokens)
	if _, err := c.Team(context.Background(), "T1"); err != nil {
		t.Fatalf("team after refresh: %v", err)
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", got)
	}
}

func TestClientSurfacesUnauthorizedAfterFailedRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, testTokenSource{})
	_, err := c.Team(context.Background(), "T1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClientSurfacesUnauthorizedWhenRefreshFails(t *testing.T) {
	refreshErr := errors.New("refresh endpoint down")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := testTokenSource{refreshFn: func(context.Context) (string, error) { return "", refreshErr }}
	c := newClient(t, srv.URL, tokens)
	_, err := c.Team(context.Background(), "T1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClientDecodesRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"code":"INSUFFICIENT_BALANCE","message":"not enough coins"}}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, testTokenSource{})
	_, err := c.BuyPowerup(context.Background(), "T1", "freeze")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Status != http.StatusPaymentRequired || reqErr.Code != "INSUFFICIENT_BALANCE" {
		t.Fatalf("unexpected request error %+v", reqErr)
	}
}

func TestClientPublishLocationBody(t *testing.T) {
	var got domain.LocationPublish
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/locations" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := decodeJSONBody(r, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, testTokenSource{})
	sample := domain.LocationSample{Lat: 52.37, Lng: 4.9}
	if err := c.PublishLocation(context.Background(), "G1", sample); err != nil {
		t.Fatalf("publish location: %v", err)
	}
	if got.GameID != "G1" || got.Location.Lat != 52.37 || got.Location.Lng != 4.9 {
		t.Fatalf("unexpected publish body %+v", got)
	}
}
