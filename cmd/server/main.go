package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avatarctic/offline-cache/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Offline cache front server",
	Long: `Serves a web front-end through an offline cache controller.

Same-origin GET requests are answered cache-first for images and
network-first for everything else, with cached fallbacks when the
upstream origin is unreachable.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, installCmd, namespacesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
