package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wagate",
	Short: "Messaging-network gateway with audio transcription",
	Long: "wagate maintains an authenticated session to a messaging network, " +
		"classifies inbound messages, transcribes audio with confidence scoring, " +
		"and forwards normalized records to a downstream webhook.",
}

// Execute runs the CLI entry point.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
