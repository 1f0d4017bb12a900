package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inertia-live/inertia-go/internal/api"
	"github.com/inertia-live/inertia-go/internal/auth"
	"github.com/inertia-live/inertia-go/internal/config"
	"github.com/inertia-live/inertia-go/internal/domain"
	"github.com/inertia-live/inertia-go/internal/location"
	"github.com/inertia-live/inertia-go/internal/realtime"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

var upgrader = websocket.Upgrader{}

type stubSampler struct{ ch chan location.Position }

func (s *stubSampler) Watch(ctx context.Context) (<-chan location.Position, error) {
	return s.ch, nil
}

func testConfig(apiURL, wsURL string) *config.Config {
	return &config.Config{
		APIBaseURL:            apiURL,
		RealtimeURL:           wsURL,
		MinDisplacementMeters: 50,
		MinPublishInterval:    15 * time.Second,
		TeamStaleness:         time.Minute,
		QuestStaleness:        time.Minute,
		PowerupStaleness:      time.Minute,
		ReconnectMinBackoff:   10 * time.Millisecond,
		ReconnectMaxBackoff:   50 * time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

// One REST server, one realtime server, one session: connect, authenticate,
// ingest a location event, observe teardown.
func TestSessionLifecycle(t *testing.T) {
	var teamFetches atomic.Int32
	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/teams/T1":
			teamFetches.Add(1)
			_ = json.NewEncoder(w).Encode(domain.Team{
				ID:       "T1",
				GameID:   "G1",
				Name:     "Runners",
				IsRunner: true,
				ActivePowerups: []domain.ActivePowerup{
					{ID: "P1", Type: "blur", EndsAt: time.Now().Add(time.Minute)},
				},
			})
		case r.URL.Path == "/teams/T1/quests":
			_ = json.NewEncoder(w).Encode([]domain.Quest{})
		case r.URL.Path == "/powerups":
			_ = json.NewEncoder(w).Encode([]domain.Powerup{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer restSrv.Close()

	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`"ok"`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"typ":"loc","dat":{"user":{"id":"U9"},"team":{"id":"T2"},"loc":{"user_id":"U9","lat":5,"lng":6}}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer wsSrv.Close()

	logger := slog.New(slog.DiscardHandler)

	tokens := auth.NewManager(auth.NewMemoryTokenStore(), &oauth2.Config{}, "default", logger)
	if err := tokens.SetToken(&oauth2.Token{AccessToken: "tok-1", RefreshToken: "ref-1"}); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	client, err := api.NewClient(restSrv.URL, tokens, logger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	cfg := testConfig(restSrv.URL, "ws"+strings.TrimPrefix(wsSrv.URL, "http"))
	registry := realtime.NewRegistry()
	sampler := &stubSampler{ch: make(chan location.Position)}

	s := New("T1", Deps{
		Config:   cfg,
		Client:   client,
		Tokens:   tokens,
		Registry: registry,
		Sampler:  sampler,
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, 3*time.Second, func() bool { return s.ChannelState() == realtime.StateEstablished })
	waitFor(t, 3*time.Second, func() bool { return len(s.Players()) == 1 })

	players := s.Players()
	if players[0].Loc.UserID != "U9" || players[0].Loc.Lat != 5 {
		t.Fatalf("unexpected reconciled player %+v", players[0])
	}

	if _, ok := registry.Get(s.ID); !ok {
		t.Fatal("expected session channel registered")
	}

	// The snapshot's in-force effect seeds the live list exactly once, no
	// matter how many refetches resupply it.
	waitFor(t, 3*time.Second, func() bool { return len(s.ActivePowerups()) == 1 })
	if active := s.ActivePowerups(); active[0].ID != "P1" {
		t.Fatalf("unexpected seeded powerup %+v", active[0])
	}

	// The initial Get plus the refetch forced by the fresh handshake.
	waitFor(t, 3*time.Second, func() bool { return teamFetches.Load() >= 2 })

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
	}

	if _, ok := registry.Get(s.ID); ok {
		t.Fatal("expected channel removed from registry at teardown")
	}
}

// A session that outlives its first access token must reconnect with the
// refreshed one, not replay the token it started with.
func TestSessionReconnectUsesRotatedToken(t *testing.T) {
	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/teams/T1":
			_ = json.NewEncoder(w).Encode(domain.Team{ID: "T1", GameID: "G1", Name: "Runners"})
		case r.URL.Path == "/teams/T1/quests":
			_ = json.NewEncoder(w).Encode([]domain.Quest{})
		case r.URL.Path == "/powerups":
			_ = json.NewEncoder(w).Encode([]domain.Powerup{})
		default:
			http.NotFound(w, r)
		}
	}))
	defer restSrv.Close()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-new","refresh_token":"ref-2","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var (
		joinMu     sync.Mutex
		joinTokens []string
	)
	dropFirst := make(chan struct{})
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join struct {
			Data struct {
				Token string `json:"t"`
			} `json:"data"`
		}
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		joinMu.Lock()
		joinTokens = append(joinTokens, join.Data.Token)
		n := len(joinTokens)
		joinMu.Unlock()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`"ok"`))
		if n == 1 {
			<-dropFirst
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer wsSrv.Close()

	logger := slog.New(slog.DiscardHandler)
	tokens := auth.NewManager(auth.NewMemoryTokenStore(), &oauth2.Config{
		ClientID: "inertia",
		Endpoint: oauth2.Endpoint{TokenURL: tokenSrv.URL},
	}, "default", logger)
	if err := tokens.SetToken(&oauth2.Token{AccessToken: "tok-old", RefreshToken: "ref-1"}); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	client, err := api.NewClient(restSrv.URL, tokens, logger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	s := New("T1", Deps{
		Config:   testConfig(restSrv.URL, "ws"+strings.TrimPrefix(wsSrv.URL, "http")),
		Client:   client,
		Tokens:   tokens,
		Registry: realtime.NewRegistry(),
		Sampler:  &stubSampler{ch: make(chan location.Position)},
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, 3*time.Second, func() bool { return s.ChannelState() == realtime.StateEstablished })

	if _, err := tokens.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	close(dropFirst)

	waitFor(t, 3*time.Second, func() bool {
		joinMu.Lock()
		defer joinMu.Unlock()
		return len(joinTokens) >= 2
	})
	joinMu.Lock()
	got := append([]string(nil), joinTokens...)
	joinMu.Unlock()
	if got[0] != "tok-old" || got[1] != "tok-new" {
		t.Fatalf("reconnect joined with %q, want the rotated token: %v", got[1], got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSessionRequiresGameID(t *testing.T) {
	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.Team{ID: "T1", Name: "Lobby team"})
	}))
	defer restSrv.Close()

	logger := slog.New(slog.DiscardHandler)
	tokens := auth.NewManager(auth.NewMemoryTokenStore(), &oauth2.Config{}, "default", logger)
	if err := tokens.SetToken(&oauth2.Token{AccessToken: "tok-1"}); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	client, err := api.NewClient(restSrv.URL, tokens, logger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	s := New("T1", Deps{
		Config:   testConfig(restSrv.URL, "ws://unused"),
		Client:   client,
		Tokens:   tokens,
		Registry: realtime.NewRegistry(),
		Sampler:  &stubSampler{ch: make(chan location.Position)},
		Logger:   logger,
	})
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected run to fail without a game id")
	}
}
