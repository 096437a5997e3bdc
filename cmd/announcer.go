/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hintquest/apiserver/config"
	"github.com/hintquest/apiserver/internal/server"
	"github.com/hintquest/apiserver/types"
	"github.com/spf13/cobra"
)

// announcerCmd consumes completion events and records announcements.
var announcerCmd = &cobra.Command{
	Use:   "announcer",
	Short: "Consume completion events from the broker",
	Long: `Subscribes to challenge completion events and records an announcement
for each one. Requires MQ_BACKEND to be set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := server.NewApp(ctx, config.LoadConfig(), logger)
		if err != nil {
			return err
		}
		defer app.Close()
		if app.Broker == nil {
			return errors.New("announcer needs a message broker, set MQ_BACKEND")
		}

		logger.Info("announcer consuming", "channel", types.ChannelCompleted)
		err = app.Broker.Subscribe(ctx, types.ChannelCompleted, app.Announcer.Handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(announcerCmd)
}
