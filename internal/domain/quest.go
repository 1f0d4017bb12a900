package domain

import "time"

type Quest struct {
	ID          string     `json:"id"`
	TeamID      string     `json:"team_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	XP          int        `json:"xp"`
	Reward      int        `json:"reward"`
	Completed   bool       `json:"completed"`
	PendingVeto bool       `json:"pending_veto"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// QuestFilter is a client-side view filter over a quest snapshot. Filtering
// never touches the cached snapshot itself.
type QuestFilter struct {
	HideCompleted   bool
	HidePendingVeto bool
}

func FilterQuests(quests []Quest, f QuestFilter) []Quest {
	out := make([]Quest, 0, len(quests))
	for _, q := range quests {
		if f.HideCompleted && q.Completed {
			continue
		}
		if f.HidePendingVeto && q.PendingVeto {
			continue
		}
		out = append(out, q)
	}
	return out
}
