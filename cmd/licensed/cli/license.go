package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailtrack/licensed/internal/model"
	"github.com/trailtrack/licensed/internal/service"
	"github.com/trailtrack/licensed/internal/store"
)

func newLicenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "license",
		Aliases: []string{"lic"},
		Short:   "Manage licenses",
		Long:    "Issue, inspect, update, and revoke licenses, and free seats held by machines.",
	}

	cmd.AddCommand(newLicenseCreateCmd())
	cmd.AddCommand(newLicenseListCmd())
	cmd.AddCommand(newLicenseShowCmd())
	cmd.AddCommand(newLicenseUpdateCmd())
	cmd.AddCommand(newLicenseRevokeCmd(true))
	cmd.AddCommand(newLicenseRevokeCmd(false))
	cmd.AddCommand(newLicenseDeactivateCmd())

	return cmd
}

// parseExpiry accepts an RFC 3339 timestamp or a bare date, which is taken
// as the end of that day in UTC.
func parseExpiry(s string) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry %q: use RFC 3339 or YYYY-MM-DD", s)
	}
	t := d.Add(24*time.Hour - time.Second)
	return &t, nil
}

func licenseStatus(l *model.License, now time.Time) string {
	switch {
	case l.IsRevoked:
		return "revoked"
	case l.IsExpired(now):
		return "expired"
	}
	return "active"
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02")
}

// adminErr rewords the service sentinels for terminal output.
func adminErr(key string, err error) error {
	var le *service.LicenseError
	switch {
	case errors.As(err, &le):
		return fmt.Errorf("%s: %s", key, le.Message)
	case errors.Is(err, service.ErrLicenseNotFound):
		return fmt.Errorf("license %s not found", key)
	}
	return err
}

// ---------- license create ----------

func newLicenseCreateCmd() *cobra.Command {
	var (
		email   string
		seats   int
		expires string
		notes   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new license",
		Example: `  licensed license create --email buyer@example.com
  licensed license create --email team@example.com --max-activations 5 --expires 2027-12-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := service.CreateLicenseParams{
				Email:          email,
				MaxActivations: seats,
				Notes:          notes,
			}
			if expires != "" {
				t, err := parseExpiry(expires)
				if err != nil {
					return err
				}
				p.ExpiresAt = t
			}
			return runLicenseCreate(p)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Customer email (required)")
	cmd.Flags().IntVar(&seats, "max-activations", 0, "Concurrent machines allowed (default from licensing.default_max_activations)")
	cmd.Flags().StringVar(&expires, "expires", "", "Expiry as RFC 3339 or YYYY-MM-DD (default: perpetual)")
	cmd.Flags().StringVar(&notes, "notes", "", "Internal notes")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runLicenseCreate(p service.CreateLicenseParams) error {
	svc, st, err := openServices()
	if err != nil {
		return err
	}
	defer st.Close()

	lic, err := svc.licenses.CreateLicense(context.Background(), p)
	if err != nil {
		return adminErr(p.Email, err)
	}

	fmt.Println("License created:")
	fmt.Println()
	fmt.Printf("  Key:      %s\n", lic.Key)
	fmt.Printf("  Email:    %s\n", lic.Email)
	fmt.Printf("  Seats:    %d\n", lic.MaxActivations)
	fmt.Printf("  Expires:  %s\n", formatExpiry(lic.ExpiresAt))
	return nil
}

// ---------- license list ----------

func newLicenseListCmd() *cobra.Command {
	var (
		email      string
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List licenses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLicenseList(store.LicenseFilter{Email: email, Limit: limit, Offset: offset}, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Only licenses whose email contains this text")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of licenses")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of licenses to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runLicenseList(f store.LicenseFilter, jsonOutput bool) error {
	svc, st, err := openServices()
	if err != nil {
		return err
	}
	defer st.Close()

	licenses, err := svc.licenses.ListLicenses(context.Background(), f)
	if err != nil {
		return fmt.Errorf("list licenses: %w", err)
	}
	if licenses == nil {
		licenses = []model.LicenseSummary{}
	}

	if jsonOutput {
		return printJSON(licenses)
	}

	if len(licenses) == 0 {
		fmt.Println("No licenses found.")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-36s  %-30s %-7s %-8s %-10s\n", "KEY", "EMAIL", "SEATS", "STATUS", "EXPIRES")
	fmt.Printf("%-36s  %-30s %-7s %-8s %-10s\n", "---", "-----", "-----", "------", "-------")
	for _, l := range licenses {
		seats := fmt.Sprintf("%d/%d", l.ActiveActivations, l.MaxActivations)
		fmt.Printf("%-36s  %-30s %-7s %-8s %-10s\n",
			l.Key, l.Email, seats, licenseStatus(&l.License, now), formatExpiry(l.ExpiresAt))
	}
	return nil
}

// ---------- license show ----------

func newLicenseShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <license-key>",
		Short: "Show a license and its machine activations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLicenseShow(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runLicenseShow(key string, jsonOutput bool) error {
	svc, st, err := openServices()
	if err != nil {
		return err
	}
	defer st.Close()

	detail, err := svc.licenses.GetLicense(context.Background(), key)
	if err != nil {
		return adminErr(key, err)
	}

	if jsonOutput {
		return printJSON(detail)
	}

	fmt.Printf("Key:      %s\n", detail.Key)
	fmt.Printf("Email:    %s\n", detail.Email)
	fmt.Printf("Status:   %s\n", licenseStatus(&detail.License, time.Now()))
	fmt.Printf("Seats:    %d/%d in use\n", detail.ActiveActivations, detail.MaxActivations)
	fmt.Printf("Expires:  %s\n", formatExpiry(detail.ExpiresAt))
	fmt.Printf("Created:  %s\n", detail.CreatedAt.Format(time.RFC3339))
	if detail.Notes != "" {
		fmt.Printf("Notes:    %s\n", detail.Notes)
	}
	fmt.Println()

	if len(detail.Activations) == 0 {
		fmt.Println("No machines have activated this license.")
		return nil
	}

	fmt.Printf("%-32s %-8s %-10s %-8s %-20s\n", "MACHINE", "PLATFORM", "VERSION", "ACTIVE", "LAST VALIDATED")
	fmt.Printf("%-32s %-8s %-10s %-8s %-20s\n", "-------", "--------", "-------", "------", "--------------")
	for _, a := range detail.Activations {
		active := "yes"
		if !a.IsActive {
			active = "no"
		}
		fmt.Printf("%-32s %-8s %-10s %-8s %-20s\n",
			a.MachineID, a.Platform, a.AppVersion, active, a.LastValidatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// ---------- license update ----------

func newLicenseUpdateCmd() *cobra.Command {
	var (
		email       string
		seats       int
		expires     string
		clearExpiry bool
		notes       string
	)

	cmd := &cobra.Command{
		Use:   "update <license-key>",
		Short: "Change the email, seat count, expiry, or notes of a license",
		Example: `  licensed license update 3f1c... --max-activations 3
  licensed license update 3f1c... --clear-expiry`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p service.UpdateLicenseParams
			flags := cmd.Flags()
			if flags.Changed("email") {
				p.Email = &email
			}
			if flags.Changed("max-activations") {
				p.MaxActivations = &seats
			}
			if flags.Changed("notes") {
				p.Notes = &notes
			}
			if expires != "" {
				t, err := parseExpiry(expires)
				if err != nil {
					return err
				}
				p.ExpiresAt = t
			}
			p.ClearExpiry = clearExpiry
			return runLicenseUpdate(args[0], p)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "New customer email")
	cmd.Flags().IntVar(&seats, "max-activations", 0, "New concurrent machine limit")
	cmd.Flags().StringVar(&expires, "expires", "", "New expiry as RFC 3339 or YYYY-MM-DD")
	cmd.Flags().BoolVar(&clearExpiry, "clear-expiry", false, "Make the license perpetual")
	cmd.Flags().StringVar(&notes, "notes", "", "Replace the internal notes")
	cmd.MarkFlagsMutuallyExclusive("expires", "clear-expiry")

	return cmd
}

func runLicenseUpdate(key string, p service.UpdateLicenseParams) error {
	svc, st, err := openServices()
	if err != nil {
		return err
	}
	defer st.Close()

	lic, err := svc.licenses.UpdateLicense(context.Background(), key, p)
	if err != nil {
		return adminErr(key, err)
	}
	fmt.Printf("Updated license %s (seats %d, expires %s)\n", lic.Key, lic.MaxActivations, formatExpiry(lic.ExpiresAt))
	return nil
}

// ---------- license revoke / unrevoke ----------

func newLicenseRevokeCmd(revoke bool) *cobra.Command {
	use, short, done := "revoke", "Revoke one or more licenses", "Revoked"
	if !revoke {
		use, short, done = "unrevoke", "Reinstate one or more revoked licenses", "Reinstated"
	}

	return &cobra.Command{
		Use:   use + " <license-key>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, st, err := openServices()
			if err != nil {
				return err
			}
			defer st.Close()

			var failed int
			for _, key := range args {
				if err := svc.licenses.SetRevoked(context.Background(), key, revoke); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", adminErr(key, err))
					failed++
					continue
				}
				fmt.Printf("%s %s\n", done, key)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d licenses could not be updated", failed, len(args))
			}
			return nil
		},
	}
}

// ---------- license deactivate ----------

func newLicenseDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <license-key> <machine-id>",
		Short: "Free the seat held by a machine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, st, err := openServices()
			if err != nil {
				return err
			}
			defer st.Close()

			key, machineID := args[0], args[1]
			if err := svc.licenses.ForceDeactivate(context.Background(), key, machineID); err != nil {
				return adminErr(key, err)
			}
			fmt.Printf("Deactivated machine %s on license %s\n", machineID, key)
			return nil
		},
	}
}
