// Copyright 2020 Snowfork
// SPDX-License-Identifier: LGPL-3.0-only

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/snowfork/flexible-eth/api"
	"github.com/snowfork/flexible-eth/config"
	"github.com/snowfork/flexible-eth/store"
	"github.com/snowfork/flexible-eth/syncer"
)

var syncConfigFile string

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize consensus metadata (blocks, votes, ...) from a beacon chain RPC endpoint to the caching database",
		Args:  cobra.ExactArgs(0),
		RunE:  runSync,
	}

	cmd.Flags().String("db-path", "cache.db", "Caching database path")
	cmd.Flags().String("rpc-url", "https://lodestar-mainnet.chainsafe.io", "Beacon chain RPC endpoint URL")
	cmd.Flags().Uint64("min-slot", 0, "Minimum slot to synchronize")
	cmd.Flags().Uint64("max-slot", 0, "Maximum slot to synchronize")
	cmd.Flags().Int64("rl-requests", 10, "Rate limit for the RPC endpoint: requests (numerator)")
	cmd.Flags().Float64("rl-seconds", 1.0, "Rate limit for the RPC endpoint: seconds (denominator)")
	cmd.Flags().Bool("with-chains", false, "Additionally record ancestor-chain roots per block")
	cmd.MarkFlagRequired("max-slot")

	cmd.Flags().StringVar(&syncConfigFile, "config", "", "Path to configuration file")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	var cfg config.Sync
	if err := loadConfig(cmd, syncConfigFile, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	pipeline := syncer.New(
		st,
		api.NewBeaconClient(cfg.RPCURL),
		syncer.NewRateGate(cfg.RateLimitRequests, cfg.RateLimitSeconds),
		cfg.WithChains,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	// Ensure clean termination upon SIGINT, SIGTERM
	eg.Go(func() error {
		notify := make(chan os.Signal, 1)
		signal.Notify(notify, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
			return nil
		case sig := <-notify:
			logrus.WithField("signal", sig.String()).Info("Received signal")
			cancel()
		}

		return nil
	})

	eg.Go(func() error {
		defer cancel()
		return pipeline.Run(ctx, cfg.MinSlot, cfg.MaxSlot)
	})

	return eg.Wait()
}

// loadConfig binds the command's flags (and an optional config file) into
// cfg through viper.
func loadConfig(cmd *cobra.Command, configFile string, cfg any) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	}
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.Unmarshal(cfg)
}
