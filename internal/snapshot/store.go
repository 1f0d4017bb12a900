package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/inertia-live/inertia-go/internal/api"
	"github.com/inertia-live/inertia-go/internal/domain"
)

// Windows carries the per-snapshot staleness windows.
type Windows struct {
	Team     time.Duration
	Quests   time.Duration
	Powerups time.Duration
}

// Store bundles the three snapshot queries one session reads from.
type Store struct {
	Team     *Query[*domain.Team]
	Quests   *Query[[]domain.Quest]
	Powerups *Query[[]domain.Powerup]

	logger *slog.Logger
}

func NewStore(client *api.Client, teamID string, windows Windows, logger *slog.Logger) *Store {
	return &Store{
		Team: NewQuery("team", windows.Team, func(ctx context.Context) (*domain.Team, error) {
			return client.Team(ctx, teamID)
		}),
		Quests: NewQuery("quests", windows.Quests, func(ctx context.Context) ([]domain.Quest, error) {
			return client.TeamQuests(ctx, teamID)
		}),
		Powerups: NewQuery("powerups", windows.Powerups, func(ctx context.Context) ([]domain.Powerup, error) {
			return client.PowerupCatalog(ctx)
		}),
		logger: logger,
	}
}

// RefetchAll refreshes every snapshot, logging failures instead of
// propagating them. Used after every fresh realtime handshake, when all
// streamed state must be treated as possibly stale.
func (s *Store) RefetchAll(ctx context.Context) {
	if _, err := s.Team.Refetch(ctx); err != nil {
		s.logger.Warn("team snapshot refetch failed", "error", err)
	}
	if _, err := s.Quests.Refetch(ctx); err != nil {
		s.logger.Warn("quest snapshot refetch failed", "error", err)
	}
	if _, err := s.Powerups.Refetch(ctx); err != nil {
		s.logger.Warn("powerup snapshot refetch failed", "error", err)
	}
}
