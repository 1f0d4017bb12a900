package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inertia-live/inertia-go/internal/api"
	"github.com/inertia-live/inertia-go/internal/auth"
	"github.com/inertia-live/inertia-go/internal/config"
	"github.com/inertia-live/inertia-go/internal/domain"
	"github.com/inertia-live/inertia-go/internal/location"
	"github.com/inertia-live/inertia-go/internal/realtime"
	"github.com/inertia-live/inertia-go/internal/reconcile"
	"github.com/inertia-live/inertia-go/internal/snapshot"

	"github.com/google/uuid"
)

// Session is one live device/user/game/team pairing: one realtime channel,
// one reconciler and at most one background location publisher. It exists
// from the moment a team view opens with a valid token until that view
// closes or the token dies.
type Session struct {
	ID     string
	TeamID string

	cfg       *config.Config
	client    *api.Client
	tokens    *auth.Manager
	registry  *realtime.Registry
	sampler   location.Sampler
	logger    *slog.Logger
	snapshots *snapshot.Store

	reconciler *reconcile.Reconciler
	channel    *realtime.Channel
	publisher  *location.Publisher
	creds      *auth.SessionCredentials
}

// Deps carries everything a session needs from the application shell.
type Deps struct {
	Config   *config.Config
	Client   *api.Client
	Tokens   *auth.Manager
	Registry *realtime.Registry
	Sampler  location.Sampler
	Logger   *slog.Logger
}

func New(teamID string, deps Deps) *Session {
	id := uuid.NewString()
	s := &Session{
		ID:       id,
		TeamID:   teamID,
		cfg:      deps.Config,
		client:   deps.Client,
		tokens:   deps.Tokens,
		registry: deps.Registry,
		sampler:  deps.Sampler,
		logger:   deps.Logger.With("session_id", id, "team_id", teamID),
	}
	s.snapshots = snapshot.NewStore(deps.Client, teamID, snapshot.Windows{
		Team:     deps.Config.TeamStaleness,
		Quests:   deps.Config.QuestStaleness,
		Powerups: deps.Config.PowerupStaleness,
	}, s.logger)
	return s
}

// Run drives the session until ctx is done. Teardown closes the channel,
// removes it from the registry, stops the background publisher and clears
// the session's credential context.
func (s *Session) Run(ctx context.Context) error {
	team, err := s.snapshots.Team.Get(ctx)
	if err != nil {
		return fmt.Errorf("resolve team snapshot: %w", err)
	}
	if team.GameID == "" {
		return fmt.Errorf("team %s has no active game", s.TeamID)
	}

	token, err := s.tokens.AccessToken()
	if err != nil {
		return fmt.Errorf("resolve access token: %w", err)
	}

	s.creds = auth.NewSessionCredentials(token, team.GameID)
	unsubscribe := s.tokens.OnRotate(s.creds.UpdateToken)
	defer unsubscribe()
	defer s.creds.Clear()

	s.reconciler = reconcile.New(reconcile.Options{
		RefetchTeam: func() {
			go func() {
				refetchCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if _, err := s.snapshots.Team.Refetch(refetchCtx); err != nil {
					s.logger.Warn("catch-triggered team refetch failed", "error", err)
				}
			}()
		},
		Logger: s.logger,
	})
	defer s.reconciler.Stop()
	s.reconciler.SeedPowerups(team.ActivePowerups)

	s.channel = realtime.NewChannel(s.cfg.RealtimeURL, s.reconciler, realtime.Options{
		MinBackoff: s.cfg.ReconnectMinBackoff,
		MaxBackoff: s.cfg.ReconnectMaxBackoff,
		Logger:     s.logger,
		// Streamed state is possibly stale after every reconnect; a full
		// refetch converges it with the server.
		OnEstablished: func() {
			go func() {
				refetchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				s.snapshots.RefetchAll(refetchCtx)
				if fresh, ok := s.snapshots.Team.Cached(); ok {
					s.reconciler.SeedPowerups(fresh.ActivePowerups)
				}
			}()
		},
	})
	s.registry.Put(s.ID, s.channel)
	defer s.registry.Remove(s.ID)

	s.publisher = location.NewPublisher(location.Config{
		MinDisplacementMeters: s.cfg.MinDisplacementMeters,
		MinInterval:           s.cfg.MinPublishInterval,
		Credentials:           s.creds,
		Sampler:               s.sampler,
		Rest:                  s.client,
		SenderSource: func() (location.RealtimeSender, bool) {
			ch, ok := s.registry.Get(s.ID)
			if !ok || ch.State() != realtime.StateEstablished {
				return nil, false
			}
			return ch, true
		},
		Logger: s.logger,
	})
	if err := s.publisher.Start(ctx); err != nil {
		return fmt.Errorf("start location publisher: %w", err)
	}
	defer s.publisher.Stop()

	s.logger.Info("session started", "game_id", team.GameID)
	// Each reconnect joins with the session's current credentials, which the
	// rotation subscription above keeps fresh across token refreshes.
	return s.channel.Run(ctx, func() (string, error) {
		tok, _, ok := s.creds.Snapshot()
		if !ok {
			return "", auth.ErrNoToken
		}
		return tok, nil
	}, team.GameID)
}

// Snapshots exposes the session's snapshot store to the presentation layer.
func (s *Session) Snapshots() *snapshot.Store {
	return s.snapshots
}

// Players returns the reconciled visible-players view.
func (s *Session) Players() []domain.LocationPayload {
	if s.reconciler == nil {
		return nil
	}
	return s.reconciler.Players()
}

// ActivePowerups returns the reconciled active-powerups view.
func (s *Session) ActivePowerups() []domain.ActivePowerup {
	if s.reconciler == nil {
		return nil
	}
	return s.reconciler.ActivePowerups()
}

// ChannelState reports the realtime channel's lifecycle state.
func (s *Session) ChannelState() realtime.State {
	if s.channel == nil {
		return realtime.StateClosed
	}
	return s.channel.State()
}
