package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Long: `Append a tombstone for a key. Nothing is written when the key is
missing.

Example:
  actionkv delete mykey`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFromContext(cmd)
			if err != nil {
				return err
			}

			found, err := kv.Delete([]byte(args[0]))
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "Key '%s' not found\n", args[0])
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted key '%s'\n", args[0])
			return nil
		},
	}
}
