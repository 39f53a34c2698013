// Package cmd is the Cobra command tree, mirroring birdnet-go's
// cmd/root.go: a RootCommand constructor that adds the command built
// by each subcommand package's Command() *cobra.Command constructor.
// The root command has no PersistentPreRunE hook.
package cmd

import (
	"github.com/1Optic/cortex-dispatcher/cmd/devstack"
	"github.com/1Optic/cortex-dispatcher/cmd/service"
	"github.com/spf13/cobra"
)

// RootCommand builds the dispatcher's top-level CLI.
func RootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cortex-dispatcher",
		Short: "Concurrent file dispatcher: SFTP/directory intake, catalog, fan-out",
	}

	rootCmd.AddCommand(service.Command(), devstack.Command())

	return rootCmd
}
