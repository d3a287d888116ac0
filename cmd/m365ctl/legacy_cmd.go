package main

import (
	"github.com/spf13/cobra"
)

// The legacy endpoints serve the single-tenant setup that predates tenant
// management. Current backends answer them with 400.
func newLegacyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Call the single-tenant endpoints",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "token",
		Short: "GET /token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.client.Token(cmd.Context())
			if err != nil {
				return backendErr(err)
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "users",
		Short: "GET /users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := a.client.Users(cmd.Context())
			if err != nil {
				return backendErr(err)
			}
			return writeJSON(cmd.OutOrStdout(), users)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "metrics",
		Short: "GET /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.client.LegacyMetrics(cmd.Context())
			if err != nil {
				return backendErr(err)
			}
			return writeJSON(cmd.OutOrStdout(), m)
		},
	})
	return cmd
}
