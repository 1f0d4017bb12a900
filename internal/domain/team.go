package domain

import "time"

// Team is the REST-sourced team snapshot. It is owned by the snapshot
// fetcher; realtime events never mutate it directly.
type Team struct {
	ID            string     `json:"id"`
	GameID        string     `json:"game_id"`
	Name          string     `json:"name"`
	Color         string     `json:"color"`
	XP            int        `json:"xp"`
	Balance       int        `json:"balance"`
	IsRunner      bool       `json:"is_runner"`
	VetoPeriodEnd *time.Time `json:"veto_period_end,omitempty"`

	// Effects already in force when the snapshot is taken. They seed the
	// live active-powerups list; pushes for the same ids are de-duplicated.
	ActivePowerups []ActivePowerup `json:"active_powerups,omitempty"`
}

// InVetoPeriod reports whether a generated side quest may still be rejected.
func (t *Team) InVetoPeriod(now time.Time) bool {
	return t.VetoPeriodEnd != nil && now.Before(*t.VetoPeriodEnd)
}
