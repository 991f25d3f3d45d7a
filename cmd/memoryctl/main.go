package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag     string
	timeoutFlag int
	rootCmd     = &cobra.Command{
		Use:           "memoryctl",
		Short:         "CLI client for the event memory REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", envOr("EVENT_MEMORY_API", "http://localhost:8080"), "Memory service base URL")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 120, "Request timeout in seconds")
}

// apiClient is built lazily so flags are parsed first.
func apiClient() *client {
	return newClient(apiFlag, timeoutFlag)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
