package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/aggregate"
	"github.com/kiranshivaraju/m365dash/internal/backend"
	"github.com/kiranshivaraju/m365dash/internal/cache"
	"github.com/kiranshivaraju/m365dash/internal/config"
	"github.com/kiranshivaraju/m365dash/internal/dashboard"
	"github.com/kiranshivaraju/m365dash/internal/retry"
	"github.com/spf13/cobra"
)

// app carries the settings shared by every subcommand. It is filled in by the
// root command's PersistentPreRunE.
type app struct {
	backendURL string
	timeout    time.Duration
	retries    int

	cfg    *config.Config
	client *backend.HTTPClient
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "m365ctl",
		Short:         "Manage M365 tenants and export dashboard reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	cmd.PersistentFlags().StringVar(&a.backendURL, "backend", "", "Backend base URL (default $BACKEND_BASE_URL)")
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "Per-request timeout (default $BACKEND_TIMEOUT)")
	cmd.PersistentFlags().IntVar(&a.retries, "retries", 0, "Attempts per backend call (default $RETRY_MAX_ATTEMPTS)")

	cmd.AddCommand(newHealthCmd(a))
	cmd.AddCommand(newTenantsCmd(a))
	cmd.AddCommand(newDashboardCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newLegacyCmd(a))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return withCode(exitUsage, err)
	}
	if a.backendURL != "" {
		u := strings.TrimRight(a.backendURL, "/")
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return withCode(exitUsage, fmt.Errorf("invalid --backend %q: must start with http:// or https://", a.backendURL))
		}
		cfg.Backend.BaseURL = u
	}
	if a.timeout > 0 {
		cfg.Backend.Timeout = a.timeout
	}
	if a.retries < 0 {
		return withCode(exitUsage, fmt.Errorf("invalid --retries %d", a.retries))
	}
	if a.retries > 0 {
		cfg.Retry.MaxAttempts = a.retries
		cfg.Health.MaxAttempts = a.retries
	}

	a.cfg = cfg
	a.client = backend.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.Timeout,
		backend.WithRetryPolicy(policy(cfg.Retry)),
		backend.WithHealthPolicy(policy(cfg.Health)),
		backend.WithRateLimit(cfg.Backend.RateLimit),
	)
	return nil
}

// controller wires a dashboard controller over a private in-memory cache.
func (a *app) controller() (*dashboard.Controller, error) {
	mc, err := cache.NewMemoryCache(a.cfg.Cache.MaxEntries)
	if err != nil {
		return nil, withCode(exitFailure, fmt.Errorf("create memory cache: %w", err))
	}
	loader := cache.NewLoader(mc, a.cfg.Cache.TTL)
	agg := aggregate.New(a.client,
		aggregate.WithCache(loader),
		aggregate.WithMaxConcurrency(a.cfg.Dashboard.MaxConcurrency),
	)
	return dashboard.NewController(a.client, agg, dashboard.WithCache(loader)), nil
}

func policy(c config.RetryConfig) retry.Policy {
	return retry.Policy{MaxAttempts: c.MaxAttempts, Delay: c.Delay, Exponential: c.Exponential}
}
