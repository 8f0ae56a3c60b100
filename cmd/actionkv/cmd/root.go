/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/actionkv/pkg/config"
	"github.com/ssargent/actionkv/pkg/di"
	"github.com/ssargent/actionkv/pkg/store"
)

type contextKey string

const storeKey contextKey = "store"

// Commands carrying this annotation run without opening the store.
const annotationNoStore = "actionkv/no-store"

// app holds what the root command opens for its subcommands
type app struct {
	container *di.Container
}

// newRootCmd builds the full command tree. The returned app must be closed
// after Execute so the store is flushed even when a command fails.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "actionkv",
		Short: "actionkv - append-only key-value store",
		Long: `actionkv is a log-structured key-value store kept in a single
append-only data file. Every write appends a checksummed frame and an
in-memory index points each key at its latest frame.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default "+config.GetDefaultConfigPath()+" if present)")
	flags.StringP("file", "f", "", "Data file, overrides config and AKV_FILE")
	flags.StringSlice("env-file", []string{".env"}, "dotenv files to load before reading AKV_* variables")

	rootCmd.AddCommand(
		newListKeysCmd(),
		newGetCmd(),
		newInsertCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newStatsCmd(),
		newVerifyCmd(),
		newInitCmd(),
	)

	return rootCmd, a
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	rootCmd, a := newRootCmd()
	err := rootCmd.Execute()
	if cerr := a.close(); cerr != nil && err == nil {
		rootCmd.PrintErrln("Error:", cerr)
		err = cerr
	}
	if err != nil {
		os.Exit(1)
	}
}

// resolveConfig layers the config file, .env files, AKV_* variables and
// the --file flag, in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	path, _ := cmd.Flags().GetString("config")
	if path == "" && config.ConfigExists(config.GetDefaultConfigPath()) {
		path = config.GetDefaultConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	if err := config.ApplyEnv(cfg, envFiles...); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("file") {
		cfg.File, _ = cmd.Flags().GetString("file")
	}

	return cfg, cfg.Validate()
}

func (a *app) open(cmd *cobra.Command, args []string) error {
	if _, skip := cmd.Annotations[annotationNoStore]; skip {
		return nil
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	container, err := di.NewContainer(di.Options{Config: cfg, LogOutput: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	a.container = container

	kv, err := container.Store()
	if err != nil {
		return errors.Wrapf(err, "open %s", cfg.File)
	}

	cmd.SetContext(context.WithValue(cmd.Context(), storeKey, kv))
	return nil
}

func (a *app) close() error {
	if a.container == nil {
		return nil
	}
	err := a.container.Close()
	a.container = nil
	return err
}

func storeFromContext(cmd *cobra.Command) (*store.KVStore, error) {
	kv, ok := cmd.Context().Value(storeKey).(*store.KVStore)
	if !ok {
		return nil, errors.New("store not found in context")
	}
	return kv, nil
}

// printable renders raw bytes for the terminal; invalid UTF-8 is replaced.
func printable(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
