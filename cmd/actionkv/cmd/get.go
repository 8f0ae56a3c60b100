package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get the value for a key",
		Long: `Get the latest value stored for a key.

Example:
  actionkv get mykey`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFromContext(cmd)
			if err != nil {
				return err
			}

			value, found, err := kv.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "Key '%s' not found\n", args[0])
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), printable(value))
			return nil
		},
	}
}
