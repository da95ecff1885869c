package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codebridge",
	Short: "Bridge server between the web UI and the opencode agent",
	Long: "codebridge relays the opencode event stream to browsers over SSE,\n" +
		"enriches tool events with subagent metadata, and proxies the rest of\n" +
		"the agent API.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
