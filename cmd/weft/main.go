// Command weft is a debug CLI over the repository engine: apply a
// change file to a channel, reconcile a channel onto a directory, or
// list the repository's channels. It exists to exercise the library
// manually while developing it, not as a product surface — real
// front-ends (a porcelain CLI, a daemon, an editor plugin) are
// expected to embed package weft directly rather than shell out to
// this binary.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weftvcs/weft"
	"github.com/weftvcs/weft/internal/change"
	"github.com/weftvcs/weft/internal/collab"
	"github.com/weftvcs/weft/internal/config"
	"github.com/weftvcs/weft/internal/output"
	"github.com/weftvcs/weft/internal/pristine"
	"github.com/weftvcs/weft/internal/telemetry"
)

var repoDir string

func main() {
	root := &cobra.Command{
		Use:   "weft",
		Short: "debug CLI for the weft repository engine",
	}
	root.PersistentFlags().StringVar(&repoDir, "dir", ".", "repository root (reads <dir>/.weft/config.yaml)")

	root.AddCommand(newApplyCmd())
	root.AddCommand(newOutputCmd())
	root.AddCommand(newStatCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "weft:", err)
		os.Exit(1)
	}
}

func openRepo(ctx context.Context) (*weft.Repository, string, error) {
	cfg, err := config.Load(repoDir)
	if err != nil {
		return nil, "", err
	}
	if err := telemetry.Init(ctx, telemetry.Config{Enabled: cfg.TelemetryEnabled}); err != nil {
		return nil, "", fmt.Errorf("telemetry init: %w", err)
	}
	storePath := cfg.StorePath
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(repoDir, storePath)
	}
	repo, err := weft.Open(storePath, pristine.OpenOptions{})
	if err != nil {
		return nil, "", err
	}
	return repo, cfg.DefaultChannel, nil
}

func newApplyCmd() *cobra.Command {
	var channelName string
	cmd := &cobra.Command{
		Use:   "apply <change-file>",
		Short: "apply a change file to a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := change.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read change: %w", err)
			}
			repo, defaultChannel, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()
			if channelName == "" {
				channelName = defaultChannel
			}

			id, err := repo.ApplyChange(ctx, channelName, c)
			if err != nil {
				return fmt.Errorf("apply: %w", err)
			}
			fmt.Printf("applied %s as change %d on %s\n", change.ShortHash(c.Hash()), id, channelName)
			return nil
		},
	}
	cmd.Flags().StringVar(&channelName, "channel", "", "channel to apply to (default: repository's default channel)")
	return cmd
}

func newOutputCmd() *cobra.Command {
	var channelName string
	cmd := &cobra.Command{
		Use:   "output <change-store-dir> <target-dir>",
		Short: "reconcile a channel onto a directory, reading content from a directory of change files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, defaultChannel, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()
			if channelName == "" {
				channelName = defaultChannel
			}

			cs, err := collab.LoadDirChangeStore(args[0])
			if err != nil {
				return fmt.Errorf("load change store: %w", err)
			}
			wc := collab.NewDirWorkingCopy(args[1])
			if err := repo.Output(ctx, channelName, cs, wc, output.Options{}); err != nil {
				return fmt.Errorf("output: %w", err)
			}
			fmt.Printf("materialized %s into %s\n", channelName, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&channelName, "channel", "", "channel to output (default: repository's default channel)")
	return cmd
}

func newStatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "list the repository's channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _, err := openRepo(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Close()

			names, err := repo.ListChannels()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
	return cmd
}
