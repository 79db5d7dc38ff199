package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStorageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Maintain uploaded project images",
	}
	cmd.AddCommand(newStorageSweepCmd())
	return cmd
}

func newStorageSweepCmd() *cobra.Command {
	var (
		dryRun     bool
		jsonOutput bool
		grace      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete project images no project references",
		Long: `Delete images under project-images/projects/ that no project's image_url
points at and that are older than the grace period (sweep.grace).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grace") {
				s.Sweep.Grace = grace
			}
			logger := newLogger(s)
			ctx := context.Background()

			st, err := openStore(ctx, s, nil, false, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			objects, _, err := openObjects(ctx, s, logger)
			if err != nil {
				return err
			}

			res, err := newSweeper(s, objects, st, logger).Run(ctx, dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			verb, n := "deleted", res.Deleted
			if dryRun {
				verb, n = "would delete", len(res.Orphans)
			}
			fmt.Fprintf(out, "scanned %d, kept %d, %s %d\n", res.Scanned, res.Kept, verb, n)
			for _, p := range res.Orphans {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List orphans without deleting them")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().DurationVar(&grace, "grace", 0, "Override sweep.grace")

	return cmd
}
