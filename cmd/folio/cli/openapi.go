package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foliodesk/folio/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI specification",
		Long:  "Print the OpenAPI 3.1 document for the HTTP API, the same one served at /openapi.json.",
		Example: `  folio openapi                 # print to stdout
  folio openapi -o openapi.json # write to file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				s, err := loadSettings()
				if err != nil {
					return err
				}
				baseURL = s.BaseURL()
			}

			data, err := json.MarshalIndent(openapi.Generate(baseURL), "", "  ")
			if err != nil {
				return fmt.Errorf("marshal openapi: %w", err)
			}
			if outputFile != "" {
				if err := os.WriteFile(outputFile, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outputFile)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL to advertise (default: server.public_base_url)")

	return cmd
}
