package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListKeysCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:     "list-keys",
		Aliases: []string{"keys"},
		Short:   "List live keys",
		Long: `List every live key in bytewise order, one per line.

Examples:
  actionkv list-keys
  actionkv list-keys --prefix user:`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFromContext(cmd)
			if err != nil {
				return err
			}

			prefix, _ := cmd.Flags().GetString("prefix")
			keys, err := kv.ListKeysWithPrefix([]byte(prefix))
			if err != nil {
				return err
			}

			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), printable(key))
			}
			return nil
		},
	}

	listCmd.Flags().String("prefix", "", "Only list keys starting with this prefix")
	return listCmd
}
