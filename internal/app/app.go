// Package app wires the client's long-lived dependencies: configuration,
// logging, the observability runtime, the credential store and the REST
// client. Commands build sessions and relays on top of it.
package app

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/inertia-live/inertia-go/internal/api"
	"github.com/inertia-live/inertia-go/internal/auth"
	"github.com/inertia-live/inertia-go/internal/config"
	"github.com/inertia-live/inertia-go/internal/observability"
	"github.com/inertia-live/inertia-go/internal/realtime"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Observability *observability.Runtime
	Tokens        *auth.Manager
	Client        *api.Client
	Registry      *realtime.Registry
}

// New bootstraps everything a command needs. The token store is opened but
// not required to hold credentials yet; `login` seeds it.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}

	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	runtime.LoggerProvider = loggerProvider

	store, err := auth.OpenStore(cfg.TokenDBPath)
	if err != nil {
		return nil, err
	}
	tokens := auth.NewManager(store, OAuthConfig(cfg), cfg.ProfileName, logger)

	client, err := api.NewClient(cfg.APIBaseURL, tokens, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Observability: runtime,
		Tokens:        tokens,
		Client:        client,
		Registry:      realtime.NewRegistry(),
	}, nil
}

// OAuthConfig builds the oauth2 endpoint configuration shared by the token
// manager and the login relay.
func OAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    cfg.OAuthClientID,
		RedirectURL: cfg.OAuthRedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OAuthAuthURL,
			TokenURL: cfg.OAuthTokenURL,
		},
	}
}

// Shutdown flushes the observability runtime.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Observability.Shutdown(ctx)
}
