package domain

import "time"

// Powerup is a purchasable catalog entry.
type Powerup struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       int           `json:"price"`
	Duration    time.Duration `json:"duration"`
}

// ActivePowerup is a temporary gameplay effect currently in force. It is
// removed locally when its remaining lifetime reaches zero, never by a
// server message.
type ActivePowerup struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CasterID  string    `json:"caster_id"`
	CreatedAt time.Time `json:"created_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// Remaining returns the effect's remaining lifetime, never negative.
func (p ActivePowerup) Remaining(now time.Time) time.Duration {
	if d := p.EndsAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
