package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fixshop/internal/domain"
)

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantShowCmd)
	tenantCmd.AddCommand(tenantSubscriptionCmd)

	f := tenantCreateCmd.Flags()
	f.String("name", "", "Shop name")
	f.String("category", string(domain.CategoryGeneral), "Default job category (GENERAL, MOBILE, TV, MOTOR)")
	f.String("timezone", "", "IANA time zone used for statistics")
	f.String("subscription", string(domain.SubscriptionFreeTrial), "Subscription status")
	f.String("ends-at", "", "Subscription end date (YYYY-MM-DD)")
	f.Bool("unverified", false, "Create the tenant unverified")
	_ = tenantCreateCmd.MarkFlagRequired("name")
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage shop tenants",
}

type tenantView struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Verified           bool       `json:"verified"`
	SubscriptionStatus string     `json:"subscriptionStatus"`
	SubscriptionEndsAt *time.Time `json:"subscriptionEndsAt,omitempty"`
	Category           string     `json:"category"`
	Timezone           string     `json:"timezone,omitempty"`
	HasPIN             bool       `json:"hasPin"`
}

func newTenantView(t domain.Tenant) tenantView {
	return tenantView{
		ID:                 t.ID,
		Name:               t.Name,
		Verified:           t.Verified,
		SubscriptionStatus: string(t.SubscriptionStatus),
		SubscriptionEndsAt: t.SubscriptionEndsAt,
		Category:           string(t.Category),
		Timezone:           t.Timezone,
		HasPIN:             t.HasPIN(),
	}
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a tenant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		name, _ := f.GetString("name")
		category, _ := f.GetString("category")
		timezone, _ := f.GetString("timezone")
		subscription, _ := f.GetString("subscription")
		endsAt, _ := f.GetString("ends-at")
		unverified, _ := f.GetBool("unverified")

		tenant := domain.Tenant{
			ID:                 uuid.NewString(),
			Name:               strings.TrimSpace(name),
			Verified:           !unverified,
			SubscriptionStatus: domain.SubscriptionStatus(strings.ToUpper(subscription)),
			Category:           domain.ParseCategory(category),
			Timezone:           timezone,
		}
		if tenant.Name == "" {
			return fmt.Errorf("--name must not be empty")
		}
		if timezone != "" {
			if _, err := time.LoadLocation(timezone); err != nil {
				return fmt.Errorf("--timezone: %w", err)
			}
		}
		if endsAt != "" {
			t, err := time.Parse(time.DateOnly, endsAt)
			if err != nil {
				return fmt.Errorf("--ends-at: %w", err)
			}
			tenant.SubscriptionEndsAt = &t
		}

		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		created, err := e.repo.InsertTenant(cmd.Context(), tenant)
		if err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), newTenantView(*created))
	},
}

var tenantShowCmd = &cobra.Command{
	Use:   "show TENANT_ID",
	Short: "Show a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		tenant, err := e.repo.GetTenant(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), newTenantView(*tenant))
	},
}

var tenantSubscriptionCmd = &cobra.Command{
	Use:   "subscription TENANT_ID STATUS",
	Short: "Set a tenant's subscription status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		status := domain.SubscriptionStatus(strings.ToUpper(args[1]))
		if err := e.repo.UpdateSubscriptionStatus(cmd.Context(), args[0], status); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "tenant %s subscription set to %s\n", args[0], status)
		return nil
	},
}
