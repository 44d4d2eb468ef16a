package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/service"
)

func newPurchaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Manage checkout purchases",
		Long:  "Record checkout sessions and turn paid ones into licenses.",
	}

	cmd.AddCommand(newPurchaseListCmd())
	cmd.AddCommand(newPurchaseRecordCmd())
	cmd.AddCommand(newPurchaseCompleteCmd())

	return cmd
}

// ---------- purchase list ----------

func newPurchaseListCmd() *cobra.Command {
	var (
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List purchases, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurchaseList(limit, offset, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of purchases")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of purchases to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runPurchaseList(limit, offset int, jsonOutput bool) error {
	svc, st, err := openServices()
	if err != nil {
		return err
	}
	defer st.Close()

	purchases, err := svc.purchases.ListPurchases(context.Background(), limit, offset)
	if err != nil {
		return fmt.Errorf("list purchases: %w", err)
	}
	if purchases == nil {
		purchases = []model.Purchase{}
	}

	if jsonOutput {
		return printJSON(purchases)
	}

	if len(purchases) == 0 {
		fmt.Println("No purchases recorded.")
		return nil
	}

	fmt.Printf("%-40s %-10s %-12s %-30s %-16s\n", "SESSION", "STATUS", "AMOUNT", "EMAIL", "CREATED")
	fmt.Printf("%-40s %-10s %-12s %-30s %-16s\n", "-------", "------", "------", "-----", "-------")
	for _, p := range purchases {
		fmt.Printf("%-40s %-10s %-12s %-30s %-16s\n",
			p.CheckoutSessionID, p.Status, formatAmount(p.Amount, p.Currency), p.CustomerEmail,
			p.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// formatAmount renders minor units with two decimals, e.g. 1999 usd -> 19.99 USD.
func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, strings.ToUpper(currency))
}

// ---------- purchase record ----------

func newPurchaseRecordCmd() *cobra.Command {
	var (
		amount   int64
		currency string
	)

	cmd := &cobra.Command{
		Use:     "record <session-id>",
		Short:   "Record a pending checkout session",
		Example: `  licensed purchase record cs_test_a1b2 --amount 4900 --currency usd`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, st, err := openServices()
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := svc.purchases.RecordPending(context.Background(), args[0], amount, currency)
			if err != nil {
				return fmt.Errorf("record purchase: %w", err)
			}
			fmt.Printf("Recorded pending purchase %s (%s)\n", p.CheckoutSessionID, formatAmount(p.Amount, p.Currency))
			return nil
		},
	}

	cmd.Flags().Int64Var(&amount, "amount", 0, "Amount in minor units (cents)")
	cmd.Flags().StringVar(&currency, "currency", "usd", "ISO currency code")

	return cmd
}

// ---------- purchase complete ----------

func newPurchaseCompleteCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Mark a checkout as paid and issue its license",
		Long: `Mark a checkout session as paid and issue a license for it. Running the
command again for the same session prints the license that was already
issued instead of creating another one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, st, err := openServices()
			if err != nil {
				return err
			}
			defer st.Close()

			p, lic, err := svc.purchases.Complete(context.Background(), args[0], true, email)
			switch {
			case errors.Is(err, service.ErrPurchaseNotFound):
				return fmt.Errorf("no purchase recorded for session %s", args[0])
			case errors.Is(err, service.ErrMissingEmail):
				return fmt.Errorf("purchase %s has no customer email; pass --email", args[0])
			case err != nil:
				return fmt.Errorf("complete purchase: %w", err)
			}

			fmt.Printf("Purchase %s is %s\n", p.CheckoutSessionID, p.Status)
			fmt.Printf("  License: %s\n", lic.Key)
			fmt.Printf("  Email:   %s\n", lic.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Customer email (defaults to the one on the purchase)")

	return cmd
}
