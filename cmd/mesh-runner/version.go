package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-lab/mesh-runner/version"
)

func newVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version())
		},
	}
}
