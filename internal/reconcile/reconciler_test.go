package reconcile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inertia-live/inertia-go/internal/domain"
	"github.com/inertia-live/inertia-go/internal/realtime"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func locEnvelope(t *testing.T, userID string, lat, lng float64) realtime.Envelope {
	t.Helper()
	dat, err := json.Marshal(domain.LocationPayload{
		User: domain.PlayerIdentity{ID: userID, Username: "player-" + userID},
		Team: domain.TeamRef{ID: "T1", Color: "#ff0000"},
		Loc:  domain.Coordinates{UserID: userID, Lat: lat, Lng: lng},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return realtime.Envelope{Typ: KindLocation, Dat: dat}
}

func pwpEnvelope(t *testing.T, p domain.ActivePowerup) realtime.Envelope {
	t.Helper()
	dat, err := json.Marshal(map[string]domain.ActivePowerup{"pwp": p})
	if err != nil {
		t.Fatalf("marshal powerup: %v", err)
	}
	return realtime.Envelope{Typ: KindPowerup, Dat: dat}
}

func TestLocationUpsertKeepsOneEntryPerUser(t *testing.T) {
	r := New(Options{Logger: testLogger()})
	defer r.Stop()

	ids := []string{"U1", "U2", "U1", "U3", "U2", "U1"}
	for i, id := range ids {
		r.HandleMessage(locEnvelope(t, id, float64(i), float64(i)*2))
	}

	players := r.Players()
	if len(players) != 3 {
		t.Fatalf("expected 3 distinct players, got %d", len(players))
	}
	// U1 last appeared at index 5.
	u1, ok := r.Player("U1")
	if !ok {
		t.Fatal("expected U1 present")
	}
	if u1.Loc.Lat != 5 || u1.Loc.Lng != 10 {
		t.Fatalf("expected last write to win for U1, got %+v", u1.Loc)
	}
}

func TestDuplicateLocationReplacesInPlace(t *testing.T) {
	r := New(Options{Logger: testLogger()})
	defer r.Stop()

	r.HandleMessage(locEnvelope(t, "U1", 1, 2))
	r.HandleMessage(locEnvelope(t, "U1", 3, 4))

	players := r.Players()
	if len(players) != 1 {
		t.Fatalf("expected one entry, got %d", len(players))
	}
	if players[0].Loc.Lat != 3 || players[0].Loc.Lng != 4 {
		t.Fatalf("expected second coordinates, got %+v", players[0].Loc)
	}
}

func TestCatchClearsPlayersAndTriggersOneRefetch(t *testing.T) {
	var refetches atomic.Int32
	r := New(Options{
		RefetchTeam: func() { refetches.Add(1) },
		Logger:      testLogger(),
	})
	defer r.Stop()

	for i := 0; i < 5; i++ {
		r.HandleMessage(locEnvelope(t, fmt.Sprintf("U%d", i), 1, 1))
	}
	r.HandleMessage(realtime.Envelope{Typ: KindCatch})

	if got := len(r.Players()); got != 0 {
		t.Fatalf("expected empty player map after catch, got %d entries", got)
	}
	if got := refetches.Load(); got != 1 {
		t.Fatalf("expected exactly one team refetch, got %d", got)
	}
}

func TestCatchOnEmptyMapStillRefetches(t *testing.T) {
	var refetches atomic.Int32
	r := New(Options{RefetchTeam: func() { refetches.Add(1) }, Logger: testLogger()})
	defer r.Stop()

	r.HandleMessage(realtime.Envelope{Typ: KindCatch})
	if len(r.Players()) != 0 {
		t.Fatal("expected empty map")
	}
	if refetches.Load() != 1 {
		t.Fatalf("expected one refetch, got %d", refetches.Load())
	}
}

func TestPowerupAppendOrderAndDeduplication(t *testing.T) {
	now := time.Now()
	r := New(Options{Logger: testLogger(), Clock: func() time.Time { return now }})
	defer r.Stop()

	a := domain.ActivePowerup{ID: "P1", Type: "freeze", CasterID: "U1", CreatedAt: now, EndsAt: now.Add(time.Hour)}
	b := domain.ActivePowerup{ID: "P2", Type: "radar", CasterID: "U2", CreatedAt: now, EndsAt: now.Add(time.Hour)}

	// Snapshot seeds P1, then the realtime push delivers P1 again plus P2.
	r.SeedPowerups([]domain.ActivePowerup{a})
	r.HandleMessage(pwpEnvelope(t, a))
	r.HandleMessage(pwpEnvelope(t, b))

	got := r.ActivePowerups()
	if len(got) != 2 {
		t.Fatalf("expected de-duplicated list of 2, got %d", len(got))
	}
	if got[0].ID != "P1" || got[1].ID != "P2" {
		t.Fatalf("expected arrival order P1,P2, got %s,%s", got[0].ID, got[1].ID)
	}
}

func TestPowerupExpiresLocally(t *testing.T) {
	r := New(Options{Logger: testLogger()})
	defer r.Stop()

	now := time.Now()
	r.AddPowerup(domain.ActivePowerup{ID: "P1", Type: "freeze", EndsAt: now.Add(30 * time.Millisecond)})
	r.AddPowerup(domain.ActivePowerup{ID: "P2", Type: "radar", EndsAt: now.Add(time.Hour)})

	if len(r.ActivePowerups()) != 2 {
		t.Fatalf("expected both powerups active")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.ActivePowerups()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := r.ActivePowerups()
	if len(got) != 1 || got[0].ID != "P2" {
		t.Fatalf("expected only P2 to remain, got %+v", got)
	}
}

func TestAlreadyExpiredPowerupIsDropped(t *testing.T) {
	r := New(Options{Logger: testLogger()})
	defer r.Stop()

	if r.AddPowerup(domain.ActivePowerup{ID: "P1", EndsAt: time.Now().Add(-time.Minute)}) {
		t.Fatal("expected expired powerup to be rejected")
	}
	if len(r.ActivePowerups()) != 0 {
		t.Fatal("expected empty powerup list")
	}
}

func TestUnrecognizedKindDoesNotPanicOrMutate(t *testing.T) {
	var refetches atomic.Int32
	r := New(Options{RefetchTeam: func() { refetches.Add(1) }, Logger: testLogger()})
	defer r.Stop()

	r.HandleMessage(locEnvelope(t, "U1", 1, 1))
	r.HandleMessage(realtime.Envelope{Typ: "mystery", Dat: json.RawMessage(`{"x":1}`)})

	if len(r.Players()) != 1 {
		t.Fatal("unrecognized kind must not mutate state")
	}
	if refetches.Load() != 0 {
		t.Fatal("unrecognized kind must not trigger refetches")
	}
}

func TestMalformedPayloadIsSkipped(t *testing.T) {
	r := New(Options{Logger: testLogger()})
	defer r.Stop()

	r.HandleMessage(realtime.Envelope{Typ: KindLocation, Dat: json.RawMessage(`"not an object"`)})
	r.HandleMessage(realtime.Envelope{Typ: KindPowerup, Dat: json.RawMessage(`[]`)})

	if len(r.Players()) != 0 || len(r.ActivePowerups()) != 0 {
		t.Fatal("malformed payloads must not mutate state")
	}
}

func TestStopCancelsExpiryTimers(t *testing.T) {
	r := New(Options{Logger: testLogger()})
	r.AddPowerup(domain.ActivePowerup{ID: "P1", EndsAt: time.Now().Add(time.Hour)})
	r.Stop()

	if r.AddPowerup(domain.ActivePowerup{ID: "P2", EndsAt: time.Now().Add(time.Hour)}) {
		t.Fatal("expected add after stop to be rejected")
	}
}
