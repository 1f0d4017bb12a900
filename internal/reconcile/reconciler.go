package reconcile

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/inertia-live/inertia-go/internal/domain"
	"github.com/inertia-live/inertia-go/internal/observability"
	"github.com/inertia-live/inertia-go/internal/realtime"
)

// Message kinds the server pushes. The set is closed; anything else is a
// protocol error.
const (
	KindLocation = "loc"
	KindPowerup  = "pwp"
	KindCatch    = "cat"
)

// Options wires a reconciler. RefetchTeam is invoked fire-and-forget when an
// event implies the team snapshot is stale; its failures belong to the
// snapshot fetcher, not to the reconciler.
type Options struct {
	RefetchTeam func()
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Reconciler folds inbound realtime events into the live collections: the
// visible-players map and the active-powerups list. It is the only writer of
// either; readers receive copies.
type Reconciler struct {
	refetchTeam func()
	logger      *slog.Logger
	clock       func() time.Time

	mu       sync.RWMutex
	players  map[string]domain.LocationPayload
	powerups []domain.ActivePowerup
	timers   map[string]*time.Timer
	stopped  bool
}

func New(opts Options) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RefetchTeam == nil {
		opts.RefetchTeam = func() {}
	}
	return &Reconciler{
		refetchTeam: opts.RefetchTeam,
		logger:      opts.Logger,
		clock:       opts.Clock,
		players:     make(map[string]domain.LocationPayload),
		timers:      make(map[string]*time.Timer),
	}
}

// HandleMessage dispatches one inbound envelope. It satisfies
// realtime.MessageSink and runs on the channel's read loop, so handling
// never overlaps and arrival order is preserved.
func (r *Reconciler) HandleMessage(env realtime.Envelope) {
	switch env.Typ {
	case KindLocation:
		r.handleLocation(env.Dat)
	case KindPowerup:
		r.handlePowerup(env.Dat)
	case KindCatch:
		r.handleCatch()
	default:
		observability.RecordRealtimeMessage(env.Typ, "unrecognized")
		r.logger.Warn("unrecognized realtime message kind", "kind", env.Typ)
	}
}

func (r *Reconciler) handleLocation(dat json.RawMessage) {
	var payload domain.LocationPayload
	if err := json.Unmarshal(dat, &payload); err != nil {
		observability.RecordRealtimeMessage(KindLocation, "decode_error")
		r.logger.Warn("undecodable location payload", "error", err)
		return
	}
	if payload.Loc.UserID == "" {
		observability.RecordRealtimeMessage(KindLocation, "missing_user_id")
		r.logger.Warn("location payload without user id dropped")
		return
	}
	r.mu.Lock()
	r.players[payload.Loc.UserID] = payload
	r.mu.Unlock()
	observability.RecordRealtimeMessage(KindLocation, "applied")
}

func (r *Reconciler) handlePowerup(dat json.RawMessage) {
	var payload struct {
		Pwp domain.ActivePowerup `json:"pwp"`
	}
	if err := json.Unmarshal(dat, &payload); err != nil {
		observability.RecordRealtimeMessage(KindPowerup, "decode_error")
		r.logger.Warn("undecodable powerup payload", "error", err)
		return
	}
	if r.AddPowerup(payload.Pwp) {
		observability.RecordRealtimeMessage(KindPowerup, "applied")
	} else {
		observability.RecordRealtimeMessage(KindPowerup, "duplicate")
	}
}

func (r *Reconciler) handleCatch() {
	r.mu.Lock()
	r.players = make(map[string]domain.LocationPayload)
	r.mu.Unlock()
	observability.RecordRealtimeMessage(KindCatch, "applied")
	r.refetchTeam()
}

// AddPowerup appends an active powerup unless one with the same id is
// already tracked, which happens when the snapshot fetch and the realtime
// push both deliver the same server state. An already-expired effect is
// dropped. Each accepted powerup removes itself when its lifetime runs out.
func (r *Reconciler) AddPowerup(p domain.ActivePowerup) bool {
	now := r.clock()
	remaining := p.Remaining(now)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	if _, dup := r.timers[p.ID]; dup {
		return false
	}
	if remaining == 0 {
		return false
	}
	r.powerups = append(r.powerups, p)
	id := p.ID
	r.timers[id] = time.AfterFunc(remaining, func() { r.expirePowerup(id) })
	return true
}

func (r *Reconciler) expirePowerup(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timers, id)
	for i, p := range r.powerups {
		if p.ID == id {
			r.powerups = append(r.powerups[:i], r.powerups[i+1:]...)
			return
		}
	}
}

// SeedPowerups folds the initial snapshot's active powerups into the list,
// with the same de-duplication as realtime pushes.
func (r *Reconciler) SeedPowerups(powerups []domain.ActivePowerup) {
	for _, p := range powerups {
		r.AddPowerup(p)
	}
}

// Players returns a copy of the visible-players map as a slice sorted by
// user id.
func (r *Reconciler) Players() []domain.LocationPayload {
	r.mu.RLock()
	out := make([]domain.LocationPayload, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Loc.UserID < out[j].Loc.UserID })
	return out
}

// Player returns the last known payload for one user id.
func (r *Reconciler) Player(userID string) (domain.LocationPayload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[userID]
	return p, ok
}

// ActivePowerups returns a copy of the active list in arrival order.
func (r *Reconciler) ActivePowerups() []domain.ActivePowerup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ActivePowerup(nil), r.powerups...)
}

// Stop cancels the per-powerup expiry timers. Used at session teardown.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
}
