package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statusServerURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long:  `Check whether a PayperAI gateway is reachable and report its health.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServerURL, "server", "http://localhost:8080", "gateway base URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(strings.TrimRight(statusServerURL, "/") + "/healthz")
	if err != nil {
		fmt.Println("Status: unreachable")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Status: unhealthy (%d)\n", resp.StatusCode)
		return nil
	}

	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}
	if err := json.Unmarshal(raw, &health); err != nil {
		return fmt.Errorf("malformed health response: %w", err)
	}

	fmt.Printf("Status: %s\n", health.Status)
	fmt.Printf("Stream clients: %d\n", health.Clients)
	return nil
}
