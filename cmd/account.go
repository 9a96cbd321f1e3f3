package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/outreach-pool/internal/application"
	"github.com/bnema/outreach-pool/internal/domain"
	"github.com/spf13/cobra"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage pool accounts",
	}

	cmd.AddCommand(
		newAccountRegisterCmd(app),
		newAccountListCmd(app),
		newAccountShowCmd(app),
		newAccountStatusCmd(app),
		newAccountTransitionCmd(app),
		newAccountResetCmd(app),
		newAccountCredentialCmd(app),
		newAccountLimitsCmd(app),
	)

	return cmd
}

func newAccountRegisterCmd(app *app) *cobra.Command {
	var name string
	var credentialRef string
	var capabilities []string
	var dailyLimit int
	var perDestinationLimit int

	cmd := &cobra.Command{
		Use:   "register <account-id>",
		Short: "Register an active account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := app.registry.Register(cmd.Context(), application.RegisterAccountCommand{
				ID:            domain.AccountID(args[0]),
				Name:          name,
				CredentialRef: credentialRef,
				Capabilities:  parseCapabilities(capabilities),
				Limits: domain.AccountLimits{
					Daily:          dailyLimit,
					PerDestination: perDestinationLimit,
				},
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", account.ID, account.Name)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&credentialRef, "credential-ref", "", "Existing credential handle (see 'account credential set')")
	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "Capability the account may run (repeatable, default: all)")
	cmd.Flags().IntVar(&dailyLimit, "daily-limit", 0, "Actions per rolling 24h window (default from config)")
	cmd.Flags().IntVar(&perDestinationLimit, "per-destination-limit", 0, "Lifetime actions per destination (default from config)")

	return cmd
}

func newAccountListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := app.service.GetStatusAll(cmd.Context())
			if err != nil {
				return err
			}

			for _, status := range statuses {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", status.Account.ID, status.Account.Name, status.Account.Status)
			}

			return nil
		},
	}
}

func newAccountShowCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <account-id>",
		Short: "Show one account with its counters and lease holder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := loadStatuses(cmd, app.service, args[0])
			if err != nil {
				return err
			}
			return writeStatusesOutput(cmd, app, statuses, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newAccountStatusCmd(app *app) *cobra.Command {
	var accountID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pool status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := loadStatuses(cmd, app.service, accountID)
			if err != nil {
				return err
			}
			return writeStatusesOutput(cmd, app, statuses, asJSON)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID (default: all accounts)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newAccountTransitionCmd(app *app) *cobra.Command {
	var to string
	var reason string
	var cooldown time.Duration

	cmd := &cobra.Command{
		Use:   "transition <account-id>",
		Short: "Move an account to another lifecycle status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseAccountStatus(to)
			if err != nil {
				return err
			}

			transition := application.TransitionCommand{
				ID:     domain.AccountID(args[0]),
				Status: status,
				Reason: reason,
			}
			if status == domain.AccountStatusCoolingDown {
				if cooldown <= 0 {
					return fmt.Errorf("--cooldown is required when moving to %s", status)
				}
				transition.CooldownUntil = app.now().Add(cooldown)
			}

			account, err := app.registry.Transition(cmd.Context(), transition)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", account.ID, account.Status)
			return err
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Target status (active|cooling_down|disabled|unauthenticated)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the transition")
	cmd.Flags().DurationVar(&cooldown, "cooldown", 0, "Cooldown length when moving to cooling_down")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func newAccountResetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Roll over daily counters whose 24h window elapsed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reset, err := app.ledger.DailyReset(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset %d account(s)\n", reset)
			return err
		},
	}
}

func newAccountCredentialCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage account credentials",
	}

	cmd.AddCommand(newAccountCredentialSetCmd(app), newAccountCredentialRemoveCmd(app))

	return cmd
}

func newAccountCredentialSetCmd(app *app) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set <account-id>",
		Short: "Store a credential and point the account at it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.service.SetCredential(cmd.Context(), domain.AccountID(args[0]), value)
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Credential value")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func newAccountCredentialRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-id>",
		Short: "Delete the account credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.service.RemoveCredential(cmd.Context(), domain.AccountID(args[0]))
		},
	}
}

func newAccountLimitsCmd(app *app) *cobra.Command {
	var dailyLimit int
	var perDestinationLimit int

	cmd := &cobra.Command{
		Use:   "limits <account-id>",
		Short: "Change account limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.AccountID(args[0])
			account, err := app.registry.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			limits := account.Limits
			if cmd.Flags().Changed("daily-limit") {
				limits.Daily = dailyLimit
			}
			if cmd.Flags().Changed("per-destination-limit") {
				limits.PerDestination = perDestinationLimit
			}

			updated, err := app.service.SetLimits(cmd.Context(), id, limits)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s limits: daily %d, per destination %d\n",
				updated.ID, updated.Limits.Daily, updated.Limits.PerDestination)
			return err
		},
	}

	cmd.Flags().IntVar(&dailyLimit, "daily-limit", 0, "Actions per rolling 24h window")
	cmd.Flags().IntVar(&perDestinationLimit, "per-destination-limit", 0, "Lifetime actions per destination")
	cmd.MarkFlagsOneRequired("daily-limit", "per-destination-limit")

	return cmd
}

func parseAccountStatus(raw string) (domain.AccountStatus, error) {
	status := domain.AccountStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("unsupported account status %q", raw)
	}
	return status, nil
}

func parseCapabilities(raw []string) []domain.Capability {
	capabilities := make([]domain.Capability, 0, len(raw))
	for _, capability := range raw {
		capabilities = append(capabilities, domain.Capability(capability))
	}
	return capabilities
}
