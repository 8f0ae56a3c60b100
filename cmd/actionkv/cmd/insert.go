package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInsertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <key> <value>",
		Short: "Insert a key-value pair",
		Long: `Append a key-value pair, replacing any earlier value for the key.
An empty value deletes the key.

Example:
  actionkv insert mykey myvalue`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFromContext(cmd)
			if err != nil {
				return err
			}

			if err := kv.Insert([]byte(args[0]), []byte(args[1])); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Inserted key '%s'\n", args[0])
			return nil
		},
	}
}
