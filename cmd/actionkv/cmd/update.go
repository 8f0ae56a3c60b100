package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <key> <value>",
		Short: "Update an existing key",
		Long: `Replace the value of a key that already exists. Nothing is written
when the key is missing.

Example:
  actionkv update mykey newvalue`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFromContext(cmd)
			if err != nil {
				return err
			}

			found, err := kv.Update([]byte(args[0]), []byte(args[1]))
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "Key '%s' not found\n", args[0])
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated key '%s'\n", args[0])
			return nil
		},
	}
}
