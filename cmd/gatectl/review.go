package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/guildgate/internal/model"
	"github.com/sakif/guildgate/internal/repository"
)

// ===========================================================================
// ACTIVATIONS
// ===========================================================================

func activationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activations",
		Short: "Work the activation review queue",
	}
	cmd.AddCommand(activationsListCmd())
	cmd.AddCommand(activationsApproveCmd())
	cmd.AddCommand(activationsRejectCmd())
	return cmd
}

func activationsListCmd() *cobra.Command {
	var (
		as    string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending activation requests, oldest first",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			v, err := a.viewer(cmd.Context(), as)
			if err != nil {
				return err
			}
			pending, err := a.activation.ListPending(cmd.Context(), v, repository.ListOptions{Limit: limit})
			if err != nil {
				return err
			}
			return printProfiles(cmd.OutOrStdout(), pending)
		}),
	}

	cmd.Flags().StringVar(&as, "as", "", "profile id of the acting admin")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")

	return cmd
}

func activationsApproveCmd() *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "approve [subject-id]",
		Short: "Approve a pending activation request",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			v, err := a.viewer(cmd.Context(), as)
			if err != nil {
				return err
			}
			if _, err := a.activation.Approve(cmd.Context(), v, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", args[0])
			return nil
		}),
	}

	cmd.Flags().StringVar(&as, "as", "", "profile id of the acting admin")

	return cmd
}

func activationsRejectCmd() *cobra.Command {
	var as, reason string

	cmd := &cobra.Command{
		Use:   "reject [subject-id]",
		Short: "Reject a pending activation request",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			v, err := a.viewer(cmd.Context(), as)
			if err != nil {
				return err
			}
			if _, err := a.activation.Reject(cmd.Context(), v, args[0], reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rejected %s: %s\n", args[0], reason)
			return nil
		}),
	}

	cmd.Flags().StringVar(&as, "as", "", "profile id of the acting admin")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason shown to the subject")

	return cmd
}

func printProfiles(w io.Writer, profiles []model.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDISPLAY NAME\tIN-GAME NAME\tDISCORD\tSUBMITTED")
	for _, p := range profiles {
		submitted := "-"
		if p.ActivationRequest != nil {
			submitted = p.ActivationRequest.SubmittedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.DisplayName, p.InGameName, p.Username, submitted)
	}
	return tw.Flush()
}

// ===========================================================================
// PAYMENTS
// ===========================================================================

func paymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Review manual payments and inspect the ledger",
	}
	cmd.AddCommand(paymentsListCmd())
	cmd.AddCommand(paymentsApproveCmd())
	cmd.AddCommand(paymentsRejectCmd())
	return cmd
}

func paymentsListCmd() *cobra.Command {
	var (
		as      string
		status  string
		subject string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manual requests and provider transactions, newest first",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			v, err := a.viewer(cmd.Context(), as)
			if err != nil {
				return err
			}
			entries, err := a.payments.List(cmd.Context(), v, repository.LedgerFilter{
				SubjectID: subject,
				Status:    status,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			return printLedger(cmd.OutOrStdout(), entries)
		}),
	}

	cmd.Flags().StringVar(&as, "as", "", "profile id of the acting admin")
	cmd.Flags().StringVarP(&status, "status", "s", "", "pending, approved, rejected, completed or failed")
	cmd.Flags().StringVar(&subject, "subject", "", "only this subject's payments")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")

	return cmd
}

func paymentsApproveCmd() *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "approve [request-id]",
		Short: "Approve a pending manual payment",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			v, err := a.viewer(cmd.Context(), as)
			if err != nil {
				return err
			}
			pr, err := a.payments.Approve(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %s (%s %s)\n", pr.ID, pr.AmountLocal.StringFixed(2), a.cfg.Payments.LocalCurrency)
			return nil
		}),
	}

	cmd.Flags().StringVar(&as, "as", "", "profile id of the acting admin")

	return cmd
}

func paymentsRejectCmd() *cobra.Command {
	var as, reason string

	cmd := &cobra.Command{
		Use:   "reject [request-id]",
		Short: "Reject a pending manual payment",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			v, err := a.viewer(cmd.Context(), as)
			if err != nil {
				return err
			}
			pr, err := a.payments.Reject(cmd.Context(), v, args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rejected %s: %s\n", pr.ID, pr.RejectionReason)
			return nil
		}),
	}

	cmd.Flags().StringVar(&as, "as", "", "profile id of the acting admin")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason shown to the subject")

	return cmd
}

func printLedger(w io.Writer, entries []model.LedgerEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tSUBJECT\tITEM\tAMOUNT\tSTATUS\tCREATED")
	for _, e := range entries {
		switch {
		case e.Request != nil:
			r := e.Request
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s USD\t%s\t%s\n",
				e.Kind, r.ID, r.SubjectID, r.ItemID, r.AmountUSD.StringFixed(2), r.Status, e.CreatedAt.Format(time.RFC3339))
		case e.Transaction != nil:
			tx := e.Transaction
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\t%s\t%s\n",
				e.Kind, tx.ID, tx.SubjectID, tx.ItemID, tx.Amount.StringFixed(2), tx.Currency, tx.Status, e.CreatedAt.Format(time.RFC3339))
		}
	}
	return tw.Flush()
}
