// SPDX-License-Identifier: MIT
// Copyright (c) 2026 Victor Bush
// Source: github.com/victorbush/ego.nefsedit

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/woozymasta/pathrules"

	nefs "github.com/victorbush/ego.nefsedit"
	"github.com/victorbush/ego.nefsedit/internal/config"
	"github.com/victorbush/ego.nefsedit/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "nefsedit",
	Short:         "Inspect, extract, pack, and edit NeFS game archives",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = &config.Config{}
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		return logging.Setup(cfg.LogLevel, cfg.LogOutputDir)
	},
}

var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List archive items",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var extractCmd = &cobra.Command{
	Use:   "extract <archive> <output-dir>",
	Short: "Extract item content to a directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runExtract,
}

var packCmd = &cobra.Command{
	Use:   "pack <input-dir> <archive>",
	Short: "Pack a directory tree into a new archive",
	Args:  cobra.ExactArgs(2),
	RunE:  runPack,
}

var replaceCmd = &cobra.Command{
	Use:   "replace <archive> <item-path> <file>",
	Short: "Replace one item's data and rewrite the archive",
	Args:  cobra.ExactArgs(3),
	RunE:  runReplace,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs go to both stderr and file)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress per-item progress output")

	packCmd.Flags().StringSlice("compress", nil, "glob patterns of items to compress (repeatable)")
	packCmd.Flags().String("key", "", "AES key as hex (32 or 64 chars) to encrypt item data")
	packCmd.Flags().Uint32("block-size", 0, "transform chunk size in bytes (default 0x10000)")
	extractCmd.Flags().Int("workers", 0, "extraction workers (default GOMAXPROCS)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("compress", packCmd.Flags().Lookup("compress"))
	viper.BindPFlag("key", packCmd.Flags().Lookup("key"))
	viper.BindPFlag("block_size", packCmd.Flags().Lookup("block-size"))
	viper.BindPFlag("workers", extractCmd.Flags().Lookup("workers"))

	rootCmd.AddCommand(listCmd, extractCmd, packCmd, replaceCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "nefsedit"))
		}
		viper.AddConfigPath("/etc/nefsedit")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("NEFSEDIT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func runList(cmd *cobra.Command, args []string) error {
	items, err := nefs.ListItems(args[0])
	if err != nil {
		return err
	}

	for _, it := range items {
		kind := "f"
		if it.IsDirectory() {
			kind = "d"
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %10d %s\n", kind, it.ExtractedSize, it.Name)
	}

	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	a, err := nefs.Open(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	opts := nefs.ExtractOptions{MaxWorkers: cfg.Workers}
	if !cfg.Quiet {
		opts.OnItemDone = func(it *nefs.Item, written int64, outputPath string) {
			slog.Info("extracted", "item", it.Name, "bytes", written, "path", outputPath)
		}
	}

	return a.Extract(signalContext(), args[1], opts)
}

func runPack(cmd *cobra.Command, args []string) error {
	inputs, err := collectInputs(args[0])
	if err != nil {
		return err
	}

	opts, err := writeOptions()
	if err != nil {
		return err
	}

	a, err := nefs.Create(signalContext(), args[1], inputs, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("archive written", "path", args[1], "items", len(a.Items()))
	return nil
}

func runReplace(cmd *cobra.Command, args []string) error {
	a, err := nefs.Open(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := findItemByPath(a, args[1])
	if err != nil {
		return err
	}

	ed, err := nefs.NewEditor(a, nil)
	if err != nil {
		return err
	}

	if err := ed.ReplaceItemDataFromFile(id, args[2]); err != nil {
		return err
	}

	opts, err := writeOptions()
	if err != nil {
		return err
	}

	saved, err := ed.Save(signalContext(), args[0], opts)
	if err != nil {
		return err
	}
	defer saved.Close()

	slog.Info("item replaced", "item", args[1], "archive", args[0])
	return nil
}

// findItemByPath resolves an archive path (case-sensitive) to an item id.
func findItemByPath(a *nefs.Archive, itemPath string) (nefs.ItemID, error) {
	want := nefs.NormalizePath(itemPath)
	for _, it := range a.Items() {
		p, err := a.ItemPath(it.ID)
		if err != nil {
			continue
		}

		if p == want {
			return it.ID, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", nefs.ErrItemNotFound, itemPath)
}

// collectInputs walks a directory tree into pack inputs.
func collectInputs(root string) ([]nefs.Input, error) {
	var inputs []nefs.Input

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		src := path
		inputs = append(inputs, nefs.Input{
			Path:     filepath.ToSlash(rel),
			SizeHint: fi.Size(),
			Open: func() (io.ReadCloser, error) {
				return os.Open(src)
			},
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input directory: %w", err)
	}

	return inputs, nil
}

// writeOptions assembles pack/replace options from config.
func writeOptions() (nefs.WriteOptions, error) {
	opts := nefs.WriteOptions{BlockSize: cfg.BlockSize}

	for _, pattern := range cfg.Compress {
		opts.Compress = append(opts.Compress, pathrules.Rule{
			Action:  pathrules.ActionInclude,
			Pattern: pattern,
		})
	}

	if cfg.KeyHex != "" {
		key, err := hex.DecodeString(cfg.KeyHex)
		if err != nil {
			return opts, fmt.Errorf("decode key: %w", err)
		}

		opts.EncryptionKey = key
	}

	if !cfg.Quiet {
		opts.OnItemDone = func(p nefs.WriteProgress) {
			slog.Info("packed", "item", p.Path, "bytes", p.BytesWritten,
				"done", p.ItemsDone, "total", p.ItemsTotal)
		}
	}

	return opts, nil
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
