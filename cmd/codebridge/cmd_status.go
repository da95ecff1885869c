package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"codebridge/internal/config"
)

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "bridge address (defaults to the configured listen address)")
	rootCmd.AddCommand(statusCmd)
}

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running bridge server",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		addr = config.Load().HTTPAddr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/health")
	if err != nil {
		return fmt.Errorf("bridge not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	out, _ := json.MarshalIndent(health, "", "  ")
	fmt.Println(string(out))
	return nil
}
