// Copyright 2020 Snowfork
// SPDX-License-Identifier: LGPL-3.0-only

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/snowfork/flexible-eth/config"
	"github.com/snowfork/flexible-eth/confrule"
	"github.com/snowfork/flexible-eth/store"
)

var confRuleConfigFile string

func confRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confrule",
		Short: "Run the flexible confirmation rule over consensus metadata found in the caching database",
		Args:  cobra.ExactArgs(0),
		RunE:  runConfRule,
	}

	cmd.Flags().String("db-path", "cache.db", "Caching database path")
	cmd.Flags().Float64Slice("quorum", nil, "Confirmation quorum (repeatable)")
	cmd.Flags().Uint64("min-slot", 0, "Minimum slot to process")
	cmd.Flags().Uint64("max-slot", 0, "Maximum slot to process")
	cmd.Flags().Bool("check-chains", false, "Check prefix-consistency of recorded tip chains")
	cmd.MarkFlagRequired("quorum")
	cmd.MarkFlagRequired("max-slot")

	cmd.Flags().StringVar(&confRuleConfigFile, "config", "", "Path to configuration file")

	return cmd
}

func runConfRule(cmd *cobra.Command, _ []string) error {
	var cfg config.ConfRule
	if err := loadConfig(cmd, confRuleConfigFile, &cfg); err != nil {
		return err
	}
	// viper does not decode float slices from pflag values
	if quorums, err := cmd.Flags().GetFloat64Slice("quorum"); err == nil {
		cfg.Quorums = quorums
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := store.OpenReadOnly(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	driver := confrule.NewDriver(st, cfg.Quorums, os.Stdout)
	if cfg.CheckChains {
		driver = driver.WithChainCheck()
	}

	return driver.Run(cfg.MinSlot, cfg.MaxSlot)
}
