package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wagate/pkg/config"
	"wagate/pkg/gateway"
	"wagate/pkg/logger"
	"wagate/pkg/session"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the gateway",
	Long:  "Connects to the messaging network and runs the full ingestion pipeline until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

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
		log := slog.Default().With("component", "cmd.gateway")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, session.ErrLoggedOut) {
				log.Error("Session is logged out; delete the credential directory and pair again")
				os.Exit(1)
			}
			log.Error("Gateway runtime failed", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}
