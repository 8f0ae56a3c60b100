package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/ssargent/actionkv/pkg/store"
)

func newStatsCmd() *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics as JSON",
		Long: `Report frame and key counts, file size, the share of the file taken
by superseded frames and, optionally, a sample of live keys.

Example:
  actionkv stats --samples 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := storeFromContext(cmd)
			if err != nil {
				return err
			}

			samples, _ := cmd.Flags().GetInt("samples")
			prefix, _ := cmd.Flags().GetString("prefix")
			memory, _ := cmd.Flags().GetBool("memory")

			res, err := kv.Explain(cmd.Context(), store.ExplainOptions{
				WithSamples: samples,
				Prefix:      []byte(prefix),
				WithMemory:  memory,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	statsCmd.Flags().Int("samples", 0, "Number of live keys to sample")
	statsCmd.Flags().String("prefix", "", "Only sample keys starting with this prefix")
	statsCmd.Flags().Bool("memory", false, "Include Go heap usage")
	return statsCmd
}
