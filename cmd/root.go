// Copyright 2020 Snowfork
// SPDX-License-Identifier: LGPL-3.0-only

package cmd

import (
	stdlog "log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verbose int

var rootCmd = &cobra.Command{
	Use:          "flexible-eth",
	Short:        "Evaluate a flexible confirmation rule over beacon chain history",
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		configureLogging(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(confRuleCmd())
}

func configureLogging(verbosity int) {
	switch verbosity {
	case 0:
		logrus.SetLevel(logrus.ErrorLevel)
	case 1:
		logrus.SetLevel(logrus.WarnLevel)
	case 2:
		logrus.SetLevel(logrus.InfoLevel)
	case 3:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.TraceLevel)
	}
	stdlog.SetOutput(logrus.WithFields(logrus.Fields{"logger": "stdlib"}).WriterLevel(logrus.InfoLevel))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
