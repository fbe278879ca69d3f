package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bft-labs/casebatch/internal/cliconfig"
	"github.com/bft-labs/casebatch/pkg/casebatch"
)

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every claimable case, then exit",
		Long: `Process every claimable case with --jobs supervised workers and exit once
none is left. Progress is printed to stdout. SIGINT or SIGTERM stops the
workers; cases they held stay claimed until "casebatch clean".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}

	f := cmd.Flags()
	cfg := &a.cfg
	f.IntVarP(&cfg.Jobs, "jobs", "j", cfg.Jobs, "number of concurrent workers")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "cases claimed per batch")
	f.BoolVar(&cfg.Autosave, "autosave", cfg.Autosave, "commit every result immediately instead of once per batch")
	f.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "worker liveness poll interval")
	f.DurationVar(&cfg.ProgressInterval, "progress-interval", cfg.ProgressInterval, "progress line interval")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "maximum wait for workers after a signal")
	f.DurationVar(&cfg.RestartBackoff, "restart-backoff", cfg.RestartBackoff, "initial delay between failed worker replacements")
	f.DurationVar(&cfg.RestartBackoffMax, "restart-backoff-max", cfg.RestartBackoffMax, "maximum delay between failed worker replacements")

	f.StringVar(&cfg.Executor, "executor", cfg.Executor, fmt.Sprintf("executor kind (%s or %s)", cliconfig.ExecutorHTTP, cliconfig.ExecutorCommand))
	f.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "base URL of the case execution service")
	f.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "bearer token for the execution service")
	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout per case")
	f.StringVar(&cfg.Command, "command", cfg.Command, "program run once per case (case JSON on stdin, result JSON on stdout)")
	f.StringArrayVar(&cfg.CommandArgs, "command-arg", cfg.CommandArgs, "argument passed to --command (repeatable)")
	f.DurationVar(&cfg.CommandTimeout, "command-timeout", cfg.CommandTimeout, "timeout per command invocation")
	f.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "maximum executions per second across workers (0 = unlimited)")

	f.StringVar(&cfg.SweepDir, "sweep-dir", cfg.SweepDir, "directory to clear of executor leftovers during the run")
	f.StringVar(&cfg.SweepGlob, "sweep-glob", cfg.SweepGlob, "glob of leftovers under --sweep-dir, e.g. '**/*.pdf'")
	f.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "full re-sweep interval")
	f.DurationVar(&cfg.SweepMinAge, "sweep-min-age", cfg.SweepMinAge, "skip leftovers younger than this")
	return cmd
}

func (a *app) run(parent context.Context) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := cfg
	if logCfg.AuthKey != "" {
		logCfg.AuthKey = "*****"
	}
	zl := a.logger.Logger()
	zl.Info().Interface("config", logCfg).Msg("configuration")

	libCfg := casebatch.Config{
		DBPath:            cfg.DBPath,
		Jobs:              cfg.Jobs,
		BatchSize:         cfg.BatchSize,
		Autosave:          cfg.Autosave,
		PollInterval:      cfg.PollInterval,
		ProgressInterval:  cfg.ProgressInterval,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		RestartBackoff:    cfg.RestartBackoff,
		RestartBackoffMax: cfg.RestartBackoffMax,
		RateLimit:         cfg.RateLimit,
	}
	switch cfg.Executor {
	case cliconfig.ExecutorHTTP:
		libCfg.ServiceURL = cfg.ServiceURL
		libCfg.AuthKey = cfg.AuthKey
		libCfg.HTTPTimeout = cfg.HTTPTimeout
	case cliconfig.ExecutorCommand:
		libCfg.Command = cfg.Command
		libCfg.CommandArgs = cfg.CommandArgs
		libCfg.CommandTimeout = cfg.CommandTimeout
	}

	opts := []casebatch.Option{
		casebatch.WithLogger(a.logger),
		casebatch.WithProgressWriter(os.Stdout),
	}
	if cfg.SweepDir != "" {
		opts = append(opts, casebatch.WithSweeper(casebatch.SweeperConfig{
			Dir:      cfg.SweepDir,
			Pattern:  cfg.SweepGlob,
			Interval: cfg.SweepInterval,
			MinAge:   cfg.SweepMinAge,
		}))
	}

	runner, err := casebatch.New(libCfg, opts...)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			zl.Error().Err(err).Msg("close database")
		}
	}()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	doneCh := make(chan error, 1)
	go func() { doneCh <- runner.Wait(ctx) }()

	select {
	case <-sigCh:
		zl.Info().Msg("received signal, stopping...")
		if err := runner.Stop(); err != nil && !errors.Is(err, casebatch.ErrNotRunning) {
			return fmt.Errorf("stop: %w", err)
		}
		<-doneCh
		return nil

	case err := <-doneCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("run: %w", err)
		}
	}

	counts, err := runner.Counts(context.Background())
	if err != nil {
		return err
	}
	if counts.InProgress > 0 {
		zl.Warn().
			Int64("abandoned", counts.InProgress).
			Msg("some cases were abandoned by failed workers; run 'casebatch clean' to release them")
	}
	return nil
}
