package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bnema/outreach-pool/internal/application"
	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newCampaignCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Create and run campaigns",
	}

	cmd.AddCommand(
		newCampaignCreateCmd(app),
		newCampaignRunCmd(app),
		newCampaignStatusCmd(app),
		newCampaignCancelCmd(app),
		newCampaignListCmd(app),
	)

	return cmd
}

func newCampaignCreateCmd(app *app) *cobra.Command {
	var id string
	var name string
	var capability string
	var targets []string
	var maxAttempts int
	var interActionDelay time.Duration
	var batchSize int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending campaign",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseTargets(targets)
			if err != nil {
				return err
			}

			campaign, err := app.orchestrator.CreateCampaign(cmd.Context(), application.CreateCampaignCommand{
				ID:         domain.CampaignID(id),
				Name:       name,
				Capability: domain.Capability(capability),
				Targets:    parsed,
				Policy: domain.Policy{
					MaxAttemptsPerTarget: maxAttempts,
					InterActionDelay:     interActionDelay,
					BatchSize:            batchSize,
				},
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with %d target(s)\n", campaign.ID, campaign.Name, len(campaign.Targets))
			return err
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Campaign ID (default: generated)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&capability, "capability", "", "Capability invoked for every target (e.g. invite, message)")
	cmd.Flags().StringArrayVar(&targets, "target", nil, "Target as subject[@destination]; the destination follows the last '@' (repeatable)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempts per target before it fails permanently (default from config)")
	cmd.Flags().DurationVar(&interActionDelay, "inter-action-delay", 0, "Minimum spacing between two actions of one account (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Targets processed concurrently (default from config)")
	_ = cmd.MarkFlagRequired("capability")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func newCampaignRunCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <campaign-id>",
		Short: "Process a campaign until every target is done or it is cancelled",
		Long:  "run drives the campaign with the recovery loop running alongside. Interrupting it leaves the campaign running; a later run picks it up again.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(app.config.Capability.Command) == "" {
				return errors.New("capability.command is not configured (set it in config.toml or OPOOL_CAPABILITY_COMMAND)")
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := runCampaign(signalCtx, app, domain.CampaignID(args[0]))
			if err != nil {
				if !errors.Is(err, context.Canceled) || signalCtx.Err() == nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "interrupted; %s stays %s and resumes on the next run\n", args[0], report.Status)
			}

			return writeCampaignOutput(cmd, app, report, false, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

// runCampaign co-runs the recovery loop so cooled down accounts come back while the campaign waits for them.
func runCampaign(ctx context.Context, app *app, id domain.CampaignID) (application.CampaignReport, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var report application.CampaignReport
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return app.recovery.Run(gctx, app.config.Recovery.SweepInterval)
	})
	g.Go(func() error {
		defer cancel()
		var err error
		report, err = app.orchestrator.Run(gctx, id)
		return err
	})

	err := g.Wait()
	return report, err
}

func newCampaignStatusCmd(app *app) *cobra.Command {
	var asJSON bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status <campaign-id>",
		Short: "Show campaign progress and per-target outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.service.GetCampaign(cmd.Context(), domain.CampaignID(args[0]))
			if err != nil {
				return err
			}
			return writeCampaignOutput(cmd, app, report, verbose, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List succeeded targets too")

	return cmd
}

func newCampaignCancelCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <campaign-id>",
		Short: "Cancel a campaign; running workers stop allocating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.orchestrator.Cancel(cmd.Context(), domain.CampaignID(args[0])); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return err
		},
	}
}

func newCampaignListCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reports, err := app.service.ListCampaigns(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, reports)
			}

			rendered, err := app.campaignsRenderer(reports, statusOptions(app))
			if err != nil {
				return fmt.Errorf("render campaigns: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func parseTargets(raw []string) ([]domain.Target, error) {
	targets := make([]domain.Target, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		subject, destination := entry, ""
		if i := strings.LastIndex(entry, "@"); i >= 0 {
			subject, destination = entry[:i], entry[i+1:]
		}
		if strings.TrimSpace(subject) == "" {
			return nil, fmt.Errorf("target %q has no subject", entry)
		}
		targets = append(targets, domain.Target{
			Subject:     subject,
			Destination: domain.Destination(destination),
		})
	}
	return targets, nil
}
