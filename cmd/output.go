package cmd

import (
	"encoding/json"
	"fmt"

	statusadapter "github.com/bnema/outreach-pool/internal/adapters/render/status"
	"github.com/bnema/outreach-pool/internal/application"
	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/spf13/cobra"
)

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func writeStatusesOutput(cmd *cobra.Command, app *app, statuses []application.AccountStatus, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, statuses)
	}

	rendered, err := app.statusRenderer(statuses, statusOptions(app))
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func writeCampaignOutput(cmd *cobra.Command, app *app, report application.CampaignReport, verbose bool, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, report)
	}

	opts := statusOptions(app)
	opts.Verbose = verbose
	rendered, err := app.campaignRenderer(report, opts)
	if err != nil {
		return fmt.Errorf("render campaign: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func loadStatuses(cmd *cobra.Command, svc *application.Service, accountID string) ([]application.AccountStatus, error) {
	if accountID == "" {
		return svc.GetStatusAll(cmd.Context())
	}

	status, err := svc.GetStatus(cmd.Context(), domain.AccountID(accountID))
	if err != nil {
		return nil, err
	}

	return []application.AccountStatus{status}, nil
}

func statusOptions(app *app) statusadapter.RenderOptions {
	return statusadapter.RenderOptions{Now: app.now()}
}
