package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielohoh/sales-ai-agent/internal/gateway"
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run the Telegram bot",
	Long: `Run the Telegram bot. Plans are sent with Approve and Reject buttons.

The bot token comes from gateways.telegram.token or TELEGRAM_BOT_TOKEN.`,
	RunE: runTelegram,
}

func init() {
	rootCmd.AddCommand(telegramCmd)
}

func runTelegram(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tgCfg, ok := cfg.GetTelegramConfig()
	if !ok {
		return errors.New("telegram gateway is not enabled or token is missing")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var messenger gateway.Messenger
	messenger, err = gateway.NewTelegramGateway(tgCfg.Token, a.service)
	if err != nil {
		return err
	}

	go sweepApprovals(ctx, a.service, time.Minute)
	go func() {
		if err := messenger.Start(); err != nil {
			log.Printf("gateway stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	return messenger.Stop()
}
