package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-lab/mesh-runner/pkg/logutil"
	"github.com/mesh-lab/mesh-runner/runner"
)

func newTrain() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Launch one training run",
		Run:   trainFunc,
	}
}

func trainFunc(cmd *cobra.Command, args []string) {
	cfg, err := runConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build run configuration (%v)\n", err)
		os.Exit(1)
	}
	cfg.EvalOnly = false
	runOnce(cfg)
}

// runOnce validates the configuration, launches exactly one external
// process, and exits with the external process's exit code.
func runOnce(cfg *runner.Config) {
	lg, logWriter, _, err := logutil.NewWithStderrWriter(cfg.LogLevel, cfg.LogOutputs)
	if err != nil {
		panic(err)
	}
	_ = zap.ReplaceGlobals(lg)

	if err = cfg.ValidateAndSetDefaults(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to validate (%v)\n", err)
		os.Exit(1)
	}
	if err = cfg.Sync(); err != nil {
		lg.Warn("failed to sync config file", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	iv := runner.NewInvoker(lg, logWriter, nil)
	res, err := iv.Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed (%v)\n", err)
		if res.ExitCode != 0 {
			os.Exit(res.ExitCode)
		}
		os.Exit(1)
	}

	fmt.Fprintf(logWriter, "\n%s\n", cfg.Colorize("[light_green]run success[default]"))
	fmt.Fprintf(logWriter, "run log: %s\noutput dir: %s\n", res.LogPath, res.OutputDir)
}
