package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jaakkos/cowork/internal/dashboard"
	"github.com/jaakkos/cowork/internal/policy"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agents, locks, work and documents of a running server",
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "server base URL (default http://localhost:<http_port>)")
	rootCmd.AddCommand(statusCmd)
}

// baseURL resolves --url or the configured local port.
func baseURL() (string, error) {
	if serverURL != "" {
		return serverURL, nil
	}
	cfg, err := loadConfig(log.New(os.Stderr, "", 0))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://localhost:%d", policy.New(cfg).HTTPPort()), nil
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

func getJSON(url string, v any) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("is the server running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func runStatus(cmd *cobra.Command, args []string) error {
	base, err := baseURL()
	if err != nil {
		return err
	}
	var snap dashboard.StateSnapshot
	if err := getJSON(base+"/api/state", &snap); err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderState(snap))
	return nil
}
