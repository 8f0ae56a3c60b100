package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ssargent/actionkv/pkg/store"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [file]",
		Short: "Check every frame in a data file",
		Long: `Decode every frame in a data file and check its checksum, without
opening it for writing or touching the index side-file. The file defaults to
the configured data file.

Example:
  actionkv verify ./actionkv.db`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{annotationNoStore: ""},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := resolveConfig(cmd)
				if err != nil {
					return err
				}
				path = cfg.File
			}

			summary, err := store.ScanFile(path, nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:       %s\n", path)
			fmt.Fprintf(out, "Frames:     %d\n", summary.Frames)
			fmt.Fprintf(out, "Tombstones: %d\n", summary.Tombstones)
			fmt.Fprintf(out, "Bytes:      %d (%d valid)\n", summary.Bytes, summary.ValidBytes)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "OK")
			return nil
		},
	}
}
