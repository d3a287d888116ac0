package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/m365dash/internal/backend"
	"github.com/kiranshivaraju/m365dash/pkg/models"
	"github.com/spf13/cobra"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type tenantFlags struct {
	name         string
	tenantID     string
	clientID     string
	clientSecret string
	active       bool
}

func (f *tenantFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Display name")
	cmd.Flags().StringVar(&f.tenantID, "tenant-id", "", "Azure AD tenant (directory) ID")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "App registration client ID")
	cmd.Flags().StringVar(&f.clientSecret, "client-secret", "", "App registration client secret")
	cmd.Flags().BoolVar(&f.active, "active", true, "Include the tenant in aggregation")
}

func newTenantsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "List and manage configured tenants",
	}
	cmd.AddCommand(newTenantsListCmd(a))
	cmd.AddCommand(newTenantsAddCmd(a))
	cmd.AddCommand(newTenantsUpdateCmd(a))
	cmd.AddCommand(newTenantsDeleteCmd(a))
	cmd.AddCommand(newTenantsSyncCmd(a))
	return cmd
}

func newTenantsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenants, err := a.client.ListTenants(cmd.Context())
			if err != nil {
				return backendErr(err)
			}
			return writeJSON(cmd.OutOrStdout(), tenants)
		},
	}
}

func newTenantsAddCmd(a *app) *cobra.Command {
	var f tenantFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			active := f.active
			in := models.TenantInput{
				Name:         strings.TrimSpace(f.name),
				TenantID:     strings.TrimSpace(f.tenantID),
				ClientID:     strings.TrimSpace(f.clientID),
				ClientSecret: strings.TrimSpace(f.clientSecret),
				IsActive:     &active,
			}
			if err := validate.Struct(in); err != nil {
				return withCode(exitUsage, validationError(err))
			}
			t, err := a.client.CreateTenant(cmd.Context(), in)
			if err != nil {
				return backendErr(err)
			}
			return writeJSON(cmd.OutOrStdout(), t)
		},
	}
	f.register(cmd)
	return cmd
}

func newTenantsUpdateCmd(a *app) *cobra.Command {
	var f tenantFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a tenant; unset flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cur, err := findTenant(ctx, a.client, args[0])
			if err != nil {
				return err
			}

			in := models.TenantInput{
				Name:     cur.Name,
				TenantID: cur.TenantID,
				ClientID: cur.ClientID,
			}
			active := cur.IsActive
			flags := cmd.Flags()
			if flags.Changed("name") {
				in.Name = strings.TrimSpace(f.name)
			}
			if flags.Changed("tenant-id") {
				in.TenantID = strings.TrimSpace(f.tenantID)
			}
			if flags.Changed("client-id") {
				in.ClientID = strings.TrimSpace(f.clientID)
			}
			if flags.Changed("client-secret") {
				in.ClientSecret = strings.TrimSpace(f.clientSecret)
			}
			if flags.Changed("active") {
				active = f.active
			}
			in.IsActive = &active

			if err := validate.StructExcept(in, "ClientSecret"); err != nil {
				return withCode(exitUsage, validationError(err))
			}
			t, err := a.client.UpdateTenant(ctx, cur.ID, in)
			if err != nil {
				return backendErr(err)
			}
			return writeJSON(cmd.OutOrStdout(), t)
		},
	}
	f.register(cmd)
	return cmd
}

func newTenantsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.DeleteTenant(cmd.Context(), args[0]); err != nil {
				return backendErr(err)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
		},
	}
}

func newTenantsSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <id>",
		Short: "Ask the backend to refresh a tenant from Microsoft Graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.client.SyncTenant(cmd.Context(), args[0])
			if err != nil {
				return backendErr(err)
			}
			return writeJSON(cmd.OutOrStdout(), t)
		},
	}
}

func findTenant(ctx context.Context, c *backend.HTTPClient, id string) (*models.Tenant, error) {
	tenants, err := c.ListTenants(ctx)
	if err != nil {
		return nil, backendErr(err)
	}
	for i := range tenants {
		if tenants[i].ID == id {
			return &tenants[i], nil
		}
	}
	return nil, withCode(exitNotFound, fmt.Errorf("tenant %q: %w", id, backend.ErrNotFound))
}

// validationError turns validator output into one line naming each failing flag.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, "--"+flagName(fe.Field())+" ("+fe.Tag()+")")
	}
	return fmt.Errorf("invalid tenant: %s", strings.Join(names, ", "))
}

func flagName(field string) string {
	switch field {
	case "TenantID":
		return "tenant-id"
	case "ClientID":
		return "client-id"
	case "ClientSecret":
		return "client-secret"
	}
	return strings.ToLower(field)
}
