/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/actionkv/pkg/config"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file with default settings. The data file can
be set with --file. An existing file is left alone unless --force is given.

Examples:
  actionkv init
  actionkv init --config ./actionkv.yaml --file ./data/store.akv`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoStore: ""},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			force, _ := cmd.Flags().GetBool("force")

			out := cmd.OutOrStdout()
			if config.ConfigExists(path) && !force {
				fmt.Fprintf(out, "Config already exists at %s. Use --force to overwrite.\n", path)
				return nil
			}

			cfg := config.DefaultConfig()
			if cmd.Flags().Changed("file") {
				cfg.File, _ = cmd.Flags().GetString("file")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return err
			}

			fmt.Fprintf(out, "Wrote config to %s\n", path)
			fmt.Fprintf(out, "Data file: %s\n", cfg.File)
			return nil
		},
	}

	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return initCmd
}
