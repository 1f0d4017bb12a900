package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inertia-live/inertia-go/internal/api"
	"github.com/inertia-live/inertia-go/internal/auth"
	"github.com/inertia-live/inertia-go/internal/domain"

	"golang.org/x/oauth2"
)

func newActionClient(t *testing.T, url string) *api.Client {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	tokens := auth.NewManager(auth.NewMemoryTokenStore(), &oauth2.Config{}, "default", logger)
	if err := tokens.SetToken(&oauth2.Token{AccessToken: "tok-1"}); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	client, err := api.NewClient(url, tokens, logger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestBuyPowerupRefetchesTeam(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/powerups":
			var req struct {
				TeamID string `json:"team_id"`
				Type   string `json:"type"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TeamID != "T1" || req.Type != "blur" {
				t.Errorf("unexpected buy request %+v (%v)", req, err)
			}
			_ = json.NewEncoder(w).Encode(domain.ActivePowerup{
				ID: "P1", Type: "blur", EndsAt: time.Now().Add(time.Minute),
			})
		case r.Method == http.MethodGet && r.URL.Path == "/teams/T1":
			_ = json.NewEncoder(w).Encode(domain.Team{ID: "T1", Name: "Runners", XP: 120, Balance: 30})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := buyPowerup(context.Background(), newActionClient(t, srv.URL), &out, "T1", "blur"); err != nil {
		t.Fatalf("buy powerup: %v", err)
	}

	if len(calls) != 2 || calls[1] != "GET /teams/T1" {
		t.Fatalf("expected the purchase followed by a team refetch, got %v", calls)
	}
	if !strings.Contains(out.String(), "30 balance") {
		t.Fatalf("output misses the refetched balance:\n%s", out.String())
	}
}

func TestCompleteQuestRefetchesTeam(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/quests/Q1/complete":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/teams/T1":
			_ = json.NewEncoder(w).Encode(domain.Team{ID: "T1", Name: "Runners", XP: 150, Balance: 45})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := completeQuest(context.Background(), newActionClient(t, srv.URL), &out, "T1", "Q1"); err != nil {
		t.Fatalf("complete quest: %v", err)
	}

	if len(calls) != 2 || calls[0] != "POST /quests/Q1/complete" || calls[1] != "GET /teams/T1" {
		t.Fatalf("expected completion followed by a team refetch, got %v", calls)
	}
	if !strings.Contains(out.String(), "150 xp") {
		t.Fatalf("output misses the refetched xp:\n%s", out.String())
	}
}

func TestGenerateSideQuestPrintsQuest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/teams/T1/generate-side":
			_ = json.NewEncoder(w).Encode(domain.Quest{ID: "Q7", Title: "Cross the bridge", XP: 40})
		case r.Method == http.MethodGet && r.URL.Path == "/teams/T1":
			_ = json.NewEncoder(w).Encode(domain.Team{ID: "T1", Name: "Runners"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := generateSideQuest(context.Background(), newActionClient(t, srv.URL), &out, "T1"); err != nil {
		t.Fatalf("generate side quest: %v", err)
	}
	if !strings.Contains(out.String(), "Cross the bridge") {
		t.Fatalf("output misses the generated quest:\n%s", out.String())
	}
}

func TestBuyPowerupPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient balance"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := buyPowerup(context.Background(), newActionClient(t, srv.URL), &out, "T1", "blur"); err == nil {
		t.Fatal("expected a failed purchase to surface an error")
	}
	if out.Len() != 0 {
		t.Fatalf("failed purchase must not print a result:\n%s", out.String())
	}
}
