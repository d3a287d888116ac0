package main

import (
	"errors"

	"github.com/kiranshivaraju/m365dash/internal/dashboard"
	"github.com/spf13/cobra"
)

type dashboardOutput struct {
	dashboard.State
	Connected bool `json:"connected"`
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Refresh the aggregated dashboard once and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.refresh(cmd)
			if werr := writeJSON(cmd.OutOrStdout(), dashboardOutput{State: st, Connected: st.Connected()}); werr != nil {
				return werr
			}
			return err
		},
	}
}

// refresh runs one dashboard refresh. An offline backend is reported as an
// error alongside the fallback state.
func (a *app) refresh(cmd *cobra.Command) (dashboard.State, error) {
	ctrl, err := a.controller()
	if err != nil {
		return dashboard.State{}, err
	}
	st := ctrl.Refresh(cmd.Context())
	if !st.Connected() {
		return st, withCode(exitBackend, errors.New(st.ConnectionError))
	}
	return st, nil
}
