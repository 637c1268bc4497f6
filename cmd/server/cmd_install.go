package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avatarctic/offline-cache/internal/version"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and activate the current cache version",
	Long: `Fetches the precache manifest from the upstream origin into the configured
store, then activates the version and prunes namespaces left by older ones.

Useful as a deploy step so the first visitor does not pay for the install.`,
	RunE: runInstall,
}

func runInstall(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.host.Register(cmd.Context(), version.Version); err != nil {
		return err
	}
	st := a.host.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "active version: %s (%s)\n", st.ActiveVersion, st.ActiveState)
	return nil
}
