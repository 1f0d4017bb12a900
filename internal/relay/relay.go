// Package relay is the stateless web half of the login flow. The app opens
// /login in a browser; the relay sends the user to the OAuth provider and the
// provider calls back with a code, which the relay exchanges and hands back to
// the app through a deep link.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/inertia-live/inertia-go/internal/observability"
)

// Provider is the slice of the OAuth client the relay needs. Tests substitute
// a stub; production wraps *oauth2.Config.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

type oauth2Provider struct {
	cfg *oauth2.Config
}

func (p oauth2Provider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (p oauth2Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.cfg.Exchange(ctx, code)
}

// NewProvider wraps an oauth2 endpoint configuration as a relay Provider.
func NewProvider(cfg *oauth2.Config) Provider {
	return oauth2Provider{cfg: cfg}
}

type Config struct {
	Provider Provider
	// StateSecret signs the state cookie so the callback only accepts states
	// this relay issued.
	StateSecret []byte
	// DeepLink is the app URL tokens are handed back through, e.g.
	// "inertia://login".
	DeepLink      string
	CookieTTL     time.Duration
	SecureCookies bool
	// LoginRateLimit is requests per minute per client IP across the two
	// endpoints. Zero disables limiting.
	LoginRateLimit int
	Logger         *slog.Logger
}

type Server struct {
	cfg    Config
	logger *slog.Logger
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Provider == nil {
		return nil, errors.New("relay: provider is required")
	}
	if len(cfg.StateSecret) == 0 {
		return nil, errors.New("relay: state secret is required")
	}
	if cfg.DeepLink == "" {
		return nil, errors.New("relay: deep link is required")
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = 10 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if s.cfg.LoginRateLimit > 0 {
		r.Use(newRateLimiter(s.cfg.LoginRateLimit, time.Minute).middleware())
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/login", s.handleLogin)
	r.Get("/callback", s.handleCallback)
	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	setStateCookie(w, signState(s.cfg.StateSecret, state), s.cfg.CookieTTL, s.cfg.SecureCookies)
	observability.Audit(r, "relay.login", "outcome", "redirect")
	http.Redirect(w, r, s.cfg.Provider.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		observability.Audit(r, "relay.callback", "outcome", "failure", "reason", "missing_code_or_state")
		writeError(w, r, http.StatusBadRequest, "MISSING_CODE_OR_STATE", "state and code query parameters are required")
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || !verifyState(s.cfg.StateSecret, cookie.Value, state) {
		observability.Audit(r, "relay.callback", "outcome", "failure", "reason", "invalid_state")
		writeError(w, r, http.StatusUnauthorized, "INVALID_STATE", "state does not match the login this relay issued")
		return
	}
	clearStateCookie(w, s.cfg.SecureCookies)

	tok, err := s.cfg.Provider.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("token exchange failed", "error", err)
		observability.Audit(r, "relay.callback", "outcome", "failure", "reason", "exchange_failed")
		writeError(w, r, http.StatusBadGateway, "EXCHANGE_FAILED", "could not exchange the authorization code")
		return
	}

	observability.Audit(r, "relay.callback", "outcome", "success")
	http.Redirect(w, r, s.deepLinkURL(tok), http.StatusFound)
}

// deepLinkURL hands the token pair back to the app. The deep link is the app's
// registered scheme; the browser never renders it.
func (s *Server) deepLinkURL(tok *oauth2.Token) string {
	q := url.Values{}
	q.Set("access_token", tok.AccessToken)
	if tok.RefreshToken != "" {
		q.Set("refresh_token", tok.RefreshToken)
	}
	return s.cfg.DeepLink + "?" + q.Encode()
}
