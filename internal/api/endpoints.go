package api

import (
	"context"

	"github.com/inertia-live/inertia-go/internal/domain"
)

// Team fetches the team snapshot.
func (c *Client) Team(ctx context.Context, teamID string) (*domain.Team, error) {
	var team domain.Team
	if err := c.get(ctx, "/teams/"+teamID, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

// TeamQuests fetches the quest list for a team.
func (c *Client) TeamQuests(ctx context.Context, teamID string) ([]domain.Quest, error) {
	var quests []domain.Quest
	if err := c.get(ctx, "/teams/"+teamID+"/quests", &quests); err != nil {
		return nil, err
	}
	return quests, nil
}

// PowerupCatalog fetches the purchasable powerup list.
func (c *Client) PowerupCatalog(ctx context.Context) ([]domain.Powerup, error) {
	var powerups []domain.Powerup
	if err := c.get(ctx, "/powerups", &powerups); err != nil {
		return nil, err
	}
	return powerups, nil
}

// GenerateSideQuest asks the server for a fresh side quest.
func (c *Client) GenerateSideQuest(ctx context.Context, teamID string) (*domain.Quest, error) {
	var quest domain.Quest
	if err := c.post(ctx, "/teams/"+teamID+"/generate-side", nil, &quest); err != nil {
		return nil, err
	}
	return &quest, nil
}

// CompleteQuest marks a quest as completed.
func (c *Client) CompleteQuest(ctx context.Context, questID string) error {
	return c.post(ctx, "/quests/"+questID+"/complete", nil, nil)
}

// VetoQuest rejects a generated side quest during the veto period.
func (c *Client) VetoQuest(ctx context.Context, questID string) error {
	return c.post(ctx, "/quests/"+questID+"/veto", nil, nil)
}

// CatchTeam reports that the hunters caught the given runner team.
func (c *Client) CatchTeam(ctx context.Context, teamID string) error {
	return c.post(ctx, "/teams/"+teamID+"/catch-team", nil, nil)
}

type buyPowerupRequest struct {
	TeamID string `json:"team_id"`
	Type   string `json:"type"`
}

// BuyPowerup spends team balance on a powerup.
func (c *Client) BuyPowerup(ctx context.Context, teamID, powerupType string) (*domain.ActivePowerup, error) {
	var active domain.ActivePowerup
	if err := c.post(ctx, "/powerups", buyPowerupRequest{TeamID: teamID, Type: powerupType}, &active); err != nil {
		return nil, err
	}
	return &active, nil
}

// PublishLocation is the REST fallback for the location publisher.
func (c *Client) PublishLocation(ctx context.Context, gameID string, sample domain.LocationSample) error {
	return c.post(ctx, "/locations", domain.LocationPublish{Location: sample, GameID: gameID}, nil)
}
