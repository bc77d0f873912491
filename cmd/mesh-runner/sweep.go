package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-lab/mesh-runner/pkg/logutil"
	"github.com/mesh-lab/mesh-runner/sweep"
)

var (
	sweepStart        float64
	sweepStop         float64
	sweepStep         float64
	continueOnFailure bool
	reportDir         string
)

func newSweep() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run an evaluation sweep over the noise scale factor",
		Run:   sweepFunc,
	}
	pf := cmd.PersistentFlags()
	pf.Float64Var(&sweepStart, "start", sweep.DefaultStart, "first sweep value, inclusive")
	pf.Float64Var(&sweepStop, "stop", sweep.DefaultStop, "last sweep value, inclusive")
	pf.Float64Var(&sweepStep, "step", sweep.DefaultStep, "sweep step")
	pf.BoolVar(&continueOnFailure, "continue-on-failure", false, "'true' to keep sweeping after a failed run")
	pf.StringVar(&reportDir, "report-dir", "", "parent directory for per-value output directories")
	return cmd
}

func sweepFunc(cmd *cobra.Command, args []string) {
	base, err := runConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build run configuration (%v)\n", err)
		os.Exit(1)
	}

	lg, logWriter, _, err := logutil.NewWithStderrWriter(base.LogLevel, base.LogOutputs)
	if err != nil {
		panic(err)
	}
	_ = zap.ReplaceGlobals(lg)

	stopc := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		lg.Warn("received stop signal", zap.String("signal", sig.String()))
		close(stopc)
	}()

	cfg := &sweep.Config{
		Prompt:    prompt,
		Stopc:     stopc,
		Logger:    lg,
		LogWriter: logWriter,

		Base: base,

		Start: sweepStart,
		Stop:  sweepStop,
		Step:  sweepStep,

		ContinueOnFailure: continueOnFailure,
		ReportDir:         reportDir,
	}
	if err = cfg.UpdateFromEnvs(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse environment (%v)\n", err)
		os.Exit(1)
	}
	if err = cfg.ValidateAndSetDefaults(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to validate (%v)\n", err)
		os.Exit(1)
	}
	if err = base.Sync(); err != nil {
		lg.Warn("failed to sync config file", zap.Error(err))
	}

	sw := sweep.New(cfg)
	if err = sw.Apply(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to sweep (%v)\n", err)
		// propagate the last failing run's exit code
		for i := len(sw.Results()) - 1; i >= 0; i-- {
			if code := sw.Results()[i].ExitCode; code != 0 {
				os.Exit(code)
			}
		}
		os.Exit(1)
	}

	fmt.Fprintf(logWriter, "\n%s\n", base.Colorize("[light_green]sweep success[default]"))
	fmt.Fprintf(logWriter, "sweep report dir: %s\nsweep archive: %s\n", cfg.ReportDir, cfg.ReportDirTarGzPath)
}
