package auth

import "sync"

// SessionCredentials is the credential context handed to background tasks
// for one session. It is created at session start, updated on every token
// rotation and cleared at teardown, so a background task never reads
// credentials that outlive the session they were issued for.
type SessionCredentials struct {
	mu          sync.RWMutex
	accessToken string
	gameID      string
	cleared     bool
}

func NewSessionCredentials(accessToken, gameID string) *SessionCredentials {
	return &SessionCredentials{accessToken: accessToken, gameID: gameID}
}

// Snapshot returns the current token and game id. ok is false once the
// session has ended or when either value is missing.
func (c *SessionCredentials) Snapshot() (accessToken, gameID string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cleared || c.accessToken == "" || c.gameID == "" {
		return "", "", false
	}
	return c.accessToken, c.gameID, true
}

func (c *SessionCredentials) UpdateToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleared {
		return
	}
	c.accessToken = accessToken
}

// Clear releases the credential context at session end.
func (c *SessionCredentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = true
	c.accessToken = ""
	c.gameID = ""
}
