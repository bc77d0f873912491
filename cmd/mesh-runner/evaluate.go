package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var noiseFactor string

func newEvaluate() *cobra.Command {
	cmd := &cobra.Command{
		Use:        "evaluate",
		Short:      "Launch one evaluation-only run",
		SuggestFor: []string{"eval"},
		Run:        evaluateFunc,
	}
	cmd.PersistentFlags().StringVar(&noiseFactor, "noise-factor", "", "SMPL parameter noise scale factor in [0, 1]")
	return cmd
}

func evaluateFunc(cmd *cobra.Command, args []string) {
	cfg, err := runConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build run configuration (%v)\n", err)
		os.Exit(1)
	}
	cfg.EvalOnly = true
	if noiseFactor != "" {
		cfg.NoiseFactor = noiseFactor
	}
	runOnce(cfg)
}
