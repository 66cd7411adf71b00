// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command bindscrape is the CLI driver for the winmd compiler (spec §6.3):
// it reads a bindscrape.yaml, runs the extract -> registry -> emit
// pipeline, and writes the resulting .winmd assembly to disk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	winmd "github.com/bindscrape/winmd"
)

var (
	outputOverride string
	verbose        bool
	dumpModel      bool
)

func newLogger(verbose bool) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Encoding = "console"
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.Sugar()
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [config]",
		Short: "Compile C header declarations into an ECMA-335 .winmd assembly",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := "bindscrape.yaml"
			if len(args) == 1 {
				configPath = args[0]
			}
			log := newLogger(verbose)
			defer log.Sync()
			return winmd.Run(configPath, outputOverride, dumpModel, log)
		},
	}
	cmd.Flags().StringVarP(&outputOverride, "output", "o", "", "override the config's output.file")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "raise the logger to debug level")
	cmd.Flags().BoolVar(&dumpModel, "dump-model", false, "pretty-print the extracted partitions as JSON before emission")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:   "bindscrape",
		Short: "A C-to-ECMA-335-metadata compiler for winmd binding generators",
	}
	root.AddCommand(newGenerateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
