package cmd

import (
	"github.com/scafiti/argos/internal/env"
	"github.com/spf13/cobra"
)

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   env.AppName,
		Short: env.AppName + " - forensic JPEG/PNG carving and recovery tool",
	}

	rootCmd.AddCommand(DefineScanCommand())
	rootCmd.AddCommand(DefineRecoverCommand())
	rootCmd.AddCommand(DefineMountCommand())
	rootCmd.AddCommand(DefineFormatsCommand())
	rootCmd.AddCommand(DefineMergeCommand())
	rootCmd.AddCommand(DefinePartitionsCommand())

	return rootCmd.Execute()
}
