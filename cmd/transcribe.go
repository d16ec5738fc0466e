package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wagate/pkg/config"
	"wagate/pkg/logger"
	"wagate/pkg/media"
	"wagate/pkg/transcribe"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe one local audio file",
	Long: "Runs a local audio file through the same normalize-and-transcribe " +
		"pipeline the gateway applies to inbound voice notes, printing the result as JSON.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.transcribe")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cwd, err := os.Getwd()
		if err != nil {
			log.Error("Failed to resolve working directory", "error", err)
			return
		}

		file, err := media.ReadLocalFile(cwd, args[0])
		if err != nil {
			log.Error("Failed to read audio file", "error", err)
			os.Exit(1)
		}

		client, err := transcribe.NewClient(cfg, log)
		if err != nil {
			log.Error("Failed to initialize transcription client", "error", err)
			os.Exit(1)
		}

		result, err := client.Transcribe(runCtx, &media.Artifact{
			Data:     file.Data,
			MimeType: file.MimeType,
			FileName: file.FileName,
		})
		if err != nil {
			log.Error("Transcription failed", "error", err)
			os.Exit(1)
		}

		output := map[string]any{"transcription": result}

		if assessor, err := transcribe.NewAssessor(cfg, log); err != nil {
			log.Error("Failed to initialize assessor", "error", err)
		} else if assessor != nil && result.Text != "" {
			assessment, err := assessor.Assess(runCtx, result, result.Tokens)
			if err != nil {
				log.Warn("Pronunciation assessment failed", "error", err)
			} else {
				output["assessment"] = assessment
			}
		}

		encoded, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			log.Error("Failed to encode result", "error", err)
			os.Exit(1)
		}

		fmt.Println(string(encoded))
	},
}

func init() {
	rootCmd.AddCommand(transcribeCmd)
}
