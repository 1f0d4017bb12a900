package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/inertia-live/inertia-go/internal/api"
	"github.com/inertia-live/inertia-go/internal/app"
	"github.com/inertia-live/inertia-go/internal/auth"
)

// withApp boots the application shell, loads stored credentials and hands a
// ready client to fn. One-shot actions share this instead of each redoing
// the bootstrap dance.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New(cmd.Context())
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
	return fn(cmd.Context(), a)
}

func newBuyCommand() *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "buy <powerup-type>",
		Short: "Spend team balance on a powerup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return buyPowerup(ctx, a.Client, cmd.OutOrStdout(), teamID, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team id to buy for")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func newQuestCommand() *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "quest",
		Short: "Generate, complete or veto quests",
	}
	cmd.PersistentFlags().StringVar(&teamID, "team", "", "team id the quest belongs to")
	_ = cmd.MarkPersistentFlagRequired("team")

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Ask the server for a fresh side quest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return generateSideQuest(ctx, a.Client, cmd.OutOrStdout(), teamID)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "complete <quest-id>",
		Short: "Mark a quest as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return completeQuest(ctx, a.Client, cmd.OutOrStdout(), teamID, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "veto <quest-id>",
		Short: "Reject a generated side quest during the veto period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return vetoQuest(ctx, a.Client, cmd.OutOrStdout(), teamID, args[0])
			})
		},
	})
	return cmd
}

func newCatchCommand() *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "catch <runner-team-id>",
		Short: "Report that your hunters caught a runner team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return catchTeam(ctx, a.Client, cmd.OutOrStdout(), teamID, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "your hunter team id")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func buyPowerup(ctx context.Context, client *api.Client, out io.Writer, teamID, powerupType string) error {
	active, err := client.BuyPowerup(ctx, teamID, powerupType)
	if err != nil {
		return fmt.Errorf("buy powerup: %w", err)
	}
	fmt.Fprintf(out, "%s active until %s\n", active.Type, active.EndsAt.Format(time.RFC3339))
	return printTeam(ctx, client, out, teamID)
}

func generateSideQuest(ctx context.Context, client *api.Client, out io.Writer, teamID string) error {
	quest, err := client.GenerateSideQuest(ctx, teamID)
	if err != nil {
		return fmt.Errorf("generate side quest: %w", err)
	}
	fmt.Fprintf(out, "new side quest: %s (%d xp)\n", quest.Title, quest.XP)
	return printTeam(ctx, client, out, teamID)
}

func completeQuest(ctx context.Context, client *api.Client, out io.Writer, teamID, questID string) error {
	if err := client.CompleteQuest(ctx, questID); err != nil {
		return fmt.Errorf("complete quest: %w", err)
	}
	fmt.Fprintf(out, "quest %s completed\n", questID)
	return printTeam(ctx, client, out, teamID)
}

func vetoQuest(ctx context.Context, client *api.Client, out io.Writer, teamID, questID string) error {
	if err := client.VetoQuest(ctx, questID); err != nil {
		return fmt.Errorf("veto quest: %w", err)
	}
	fmt.Fprintf(out, "quest %s vetoed\n", questID)
	return printTeam(ctx, client, out, teamID)
}

func catchTeam(ctx context.Context, client *api.Client, out io.Writer, teamID, caughtTeamID string) error {
	if err := client.CatchTeam(ctx, caughtTeamID); err != nil {
		return fmt.Errorf("catch team: %w", err)
	}
	fmt.Fprintf(out, "team %s caught\n", caughtTeamID)
	return printTeam(ctx, client, out, teamID)
}

// printTeam refetches the team after a mutating action, since the server has
// just changed the state the last snapshot describes.
func printTeam(ctx context.Context, client *api.Client, out io.Writer, teamID string) error {
	team, err := client.Team(ctx, teamID)
	if err != nil {
		return fmt.Errorf("refetch team: %w", err)
	}
	fmt.Fprintf(out, "team %s: %d xp, %d balance\n", team.Name, team.XP, team.Balance)
	return nil
}
