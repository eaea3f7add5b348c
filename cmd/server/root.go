package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "chapter-transcriber",
		Short:         "Chaptered transcripts for videos and audio files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (.yaml, .yml or .toml)")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newTranscribeCommand(&configFlag))
	rootCmd.AddCommand(newProfilesCommand(&configFlag))
	return rootCmd
}
