package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the folio server is up and ready",
		Long:  "Query /healthz and /readyz on the configured server and print each dependency check.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				s, err := loadSettings()
				if err != nil {
					return err
				}
				url = s.BaseURL()
			}
			return runStatus(cmd, url)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server base URL (default: server.public_base_url)")

	return cmd
}

func runStatus(cmd *cobra.Command, base string) error {
	out := cmd.OutOrStdout()
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		fmt.Fprintf(out, "Server is not responding at %s\n", base)
		return nil
	}
	resp.Body.Close()
	fmt.Fprintf(out, "Server is running at %s\n", base)

	resp, err = client.Get(base + "/readyz")
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	defer resp.Body.Close()

	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		return fmt.Errorf("decode readiness: %w", err)
	}
	fmt.Fprintf(out, "  Ready:   %s (%d)\n", ready.Status, resp.StatusCode)
	for name, state := range ready.Checks {
		fmt.Fprintf(out, "  %-8s %s\n", name+":", state)
	}
	return nil
}
