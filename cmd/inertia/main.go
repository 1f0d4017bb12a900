package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/inertia-live/inertia-go/internal/app"
	"github.com/inertia-live/inertia-go/internal/auth"
	"github.com/inertia-live/inertia-go/internal/domain"
	"github.com/inertia-live/inertia-go/internal/location"
	"github.com/inertia-live/inertia-go/internal/relay"
	"github.com/inertia-live/inertia-go/internal/session"
	"github.com/inertia-live/inertia-go/internal/tools/common"
	"github.com/inertia-live/inertia-go/internal/tools/tracegen"
	"github.com/inertia-live/inertia-go/internal/ui"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "inertia",
		Short:         "Live client for the Inertia hide-and-seek game",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional environment file")
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newBuyCommand())
	cmd.AddCommand(newQuestCommand())
	cmd.AddCommand(newCatchCommand())
	cmd.AddCommand(newLoginCommand())
	cmd.AddCommand(newRelayCommand())
	cmd.AddCommand(newTracegenCommand())
	return cmd
}

func newTracegenCommand() *cobra.Command {
	cfg := tracegen.Config{}
	cmd := &cobra.Command{
		Use:   "tracegen",
		Short: "Generate a synthetic GPS trace for `run --trace`",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := tracegen.Run(cmd.OutOrStdout(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d samples, final position %.5f,%.5f\n", res.Samples, res.FinalLat, res.FinalLng)
			return nil
		},
	}
	cmd.Flags().Float64Var(&cfg.Lat, "lat", 52.37, "starting latitude")
	cmd.Flags().Float64Var(&cfg.Lng, "lng", 4.89, "starting longitude")
	cmd.Flags().Float64Var(&cfg.StepMeters, "step", 60, "meters between samples")
	cmd.Flags().IntVar(&cfg.Count, "count", 100, "number of samples")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", 42, "walk seed")
	return cmd
}

type runOptions struct {
	teamID        string
	tracePath     string
	fixedLat      float64
	fixedLng      float64
	fixedInterval time.Duration
	useFixed      bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join a game session and show the live view",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.teamID, "team", "", "team id to join as")
	cmd.Flags().StringVar(&opts.tracePath, "trace", "-", "newline-delimited JSON position source, - for stdin")
	cmd.Flags().Float64Var(&opts.fixedLat, "fixed-lat", 0, "emit a fixed latitude instead of reading a trace")
	cmd.Flags().Float64Var(&opts.fixedLng, "fixed-lng", 0, "emit a fixed longitude instead of reading a trace")
	cmd.Flags().DurationVar(&opts.fixedInterval, "fixed-interval", 20*time.Second, "interval between fixed-position samples")
	_ = cmd.MarkFlagRequired("team")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		opts.useFixed = cmd.Flags().Changed("fixed-lat") || cmd.Flags().Changed("fixed-lng")
	}
	return cmd
}

func runSession(ctx context.Context, opts *runOptions) error {
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	if err := a.Tokens.Load(); err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			return errors.New("no stored credentials, run `inertia login` first")
		}
		return err
	}

	sampler, closeSampler, err := buildSampler(opts)
	if err != nil {
		return err
	}
	defer closeSampler()

	s := session.New(opts.teamID, session.Deps{
		Config:   a.Config,
		Client:   a.Client,
		Tokens:   a.Tokens,
		Registry: a.Registry,
		Sampler:  sampler,
		Logger:   a.Logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- s.Run(ctx) }()

	program := tea.NewProgram(ui.New(s), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	cancel()

	if err := <-sessionDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildSampler(opts *runOptions) (location.Sampler, func(), error) {
	if opts.useFixed {
		return &location.TickerSampler{
			Sample:   domain.LocationSample{Lat: opts.fixedLat, Lng: opts.fixedLng},
			Interval: opts.fixedInterval,
		}, func() {}, nil
	}
	if opts.tracePath == "-" {
		return location.NewStreamSampler(os.Stdin), func() {}, nil
	}
	f, err := os.Open(opts.tracePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace: %w", err)
	}
	return location.NewStreamSampler(f), func() { _ = f.Close() }, nil
}

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Obtain and store credentials for this profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context())
			if err != nil {
				return err
			}
			oauthCfg := app.OAuthConfig(a.Config)

			fmt.Fprintln(cmd.OutOrStdout(), "Open this URL in a browser and sign in:")
			fmt.Fprintln(cmd.OutOrStdout(), "  "+oauthCfg.AuthCodeURL("cli", oauth2.AccessTypeOffline))
			fmt.Fprintln(cmd.OutOrStdout(), "Paste the deep link you are redirected to, or the authorization code:")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				return errors.New("no input")
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				return errors.New("no input")
			}

			tok, err := tokenFromInput(cmd.Context(), oauthCfg, input)
			if err != nil {
				return err
			}
			if err := a.Tokens.SetToken(tok); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials stored.")
			return nil
		},
	}
}

// tokenFromInput accepts either the relay's deep link, which already carries
// the token pair, or a bare authorization code to exchange directly.
func tokenFromInput(ctx context.Context, oauthCfg *oauth2.Config, input string) (*oauth2.Token, error) {
	if strings.Contains(input, "://") {
		u, err := url.Parse(input)
		if err != nil {
			return nil, fmt.Errorf("parse deep link: %w", err)
		}
		access := u.Query().Get("access_token")
		if access == "" {
			return nil, errors.New("deep link carries no access_token")
		}
		return &oauth2.Token{
			AccessToken:  access,
			RefreshToken: u.Query().Get("refresh_token"),
		}, nil
	}
	return oauthCfg.Exchange(ctx, input)
}

func newRelayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Serve the web login relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx)
			if err != nil {
				return err
			}
			if a.Config.RelayStateSecret == "" {
				return errors.New("INERTIA_RELAY_STATE_SECRET is required")
			}

			srv, err := relay.NewServer(relay.Config{
				Provider:       relay.NewProvider(app.OAuthConfig(a.Config)),
				StateSecret:    []byte(a.Config.RelayStateSecret),
				DeepLink:       a.Config.RelayDeepLink,
				SecureCookies:  a.Config.Environment == "prod",
				LoginRateLimit: 30,
				Logger:         a.Logger,
			})
			if err != nil {
				return err
			}

			httpSrv := &http.Server{
				Addr:              a.Config.RelayAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- httpSrv.ListenAndServe() }()
			a.Logger.Info("relay listening", "addr", a.Config.RelayAddr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}
}
