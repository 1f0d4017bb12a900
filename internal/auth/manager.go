package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/inertia-live/inertia-go/internal/domain"
	"github.com/inertia-live/inertia-go/internal/observability"

	"golang.org/x/oauth2"
)

var (
	ErrNoToken        = errors.New("no access token available")
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// Manager owns the credential set for one profile: it hands out the current
// access token and performs the refresh capability the request layer relies
// on. Session-scoped consumers subscribe to rotation instead of holding the
// raw token.
type Manager struct {
	store    TokenStore
	oauth    *oauth2.Config
	profile  string
	logger   *slog.Logger
	clock    func() time.Time
	mu        sync.Mutex
	current   *domain.TokenRecord
	rotateSeq int
	onRotate  map[int]func(accessToken string)
}

func NewManager(store TokenStore, oauthCfg *oauth2.Config, profile string, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		oauth:   oauthCfg,
		profile: profile,
		logger:  logger,
		clock:   time.Now,
	}
}

// Load reads the persisted record for the profile into memory.
func (m *Manager) Load() error {
	rec, err := m.store.Load(m.profile)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = rec
	m.mu.Unlock()
	return nil
}

// SetToken replaces the credential set, persisting it for later runs.
func (m *Manager) SetToken(tok *oauth2.Token) error {
	rec := &domain.TokenRecord{
		Profile:      m.profile,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if rec.ExpiresAt.IsZero() {
		if exp, ok := TokenExpiry(tok.AccessToken); ok {
			rec.ExpiresAt = exp
		}
	}
	if err := m.store.Save(rec); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	m.mu.Lock()
	m.current = rec
	m.mu.Unlock()
	return nil
}

// AccessToken returns the current access token without touching the network.
func (m *Manager) AccessToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.AccessToken == "" {
		return "", ErrNoToken
	}
	return m.current.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new token pair, persists
// it and notifies subscribers. Concurrent callers are serialized; a caller
// that lost the race still receives the fresh token.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.RefreshToken == "" {
		observability.RecordAuthRefresh("no_refresh_token")
		return "", ErrNoRefreshToken
	}

	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: m.current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		observability.RecordAuthRefresh("error")
		return "", fmt.Errorf("refresh token: %w", err)
	}

	rec := &domain.TokenRecord{
		Profile:      m.profile,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = m.current.RefreshToken
	}
	if err := m.store.Save(rec); err != nil {
		observability.RecordAuthRefresh("persist_error")
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}
	m.current = rec
	observability.RecordAuthRefresh("success")
	m.logger.Debug("access token refreshed", "profile", m.profile, "expires_at", rec.ExpiresAt)
	for _, fn := range m.onRotate {
		fn(rec.AccessToken)
	}
	return rec.AccessToken, nil
}

// OnRotate registers a callback invoked with every freshly refreshed access
// token. The returned func cancels the subscription; sessions call it at
// teardown so a long-lived manager does not accumulate dead subscribers.
func (m *Manager) OnRotate(fn func(accessToken string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onRotate == nil {
		m.onRotate = make(map[int]func(accessToken string))
	}
	id := m.rotateSeq
	m.rotateSeq++
	m.onRotate[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.onRotate, id)
		m.mu.Unlock()
	}
}

// Expired reports whether the current token is past its known expiry.
func (m *Manager) Expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return true
	}
	if m.current.ExpiresAt.IsZero() {
		return false
	}
	return m.clock().After(m.current.ExpiresAt)
}
