package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewAssetCmd downloads an access-controlled asset through the cache.
func NewAssetCmd(flags *rootFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "asset <asset-id-or-url>",
		Short: "Download a secure asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, flags, func(ctx context.Context, d *deps) error {
				h, err := d.assets.Resolve(ctx, args[0], d.token)
				if err != nil {
					return err
				}
				defer d.assets.Release(h.ID)
				blob, err := d.assets.Open(h.ID)
				if err != nil {
					return err
				}
				target := output
				if target == "" {
					target = h.Key
				}
				if err := os.WriteFile(target, blob.Data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s, %d bytes)\n", target, blob.ContentType, len(blob.Data))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (defaults to the asset key)")
	return cmd
}
