package main

import (
	"github.com/spf13/cobra"
)

type healthOutput struct {
	Backend string `json:"backend"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the backend health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := healthOutput{Backend: a.cfg.Backend.BaseURL, Status: "unreachable"}
			h, err := a.client.Health(cmd.Context())
			if h != nil {
				out.Status = h.Status
			}
			if err != nil {
				out.Error = err.Error()
			}
			if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
				return werr
			}
			return backendErr(err)
		},
	}
}
