/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vsmm-world/userapi/config"
	"github.com/vsmm-world/userapi/internal/mq"
	"go.uber.org/zap"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect published security events",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print security events from the broker as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("no broker configured: set MQ_BACKEND to " + config.MQRabbitMQ + " or " + config.MQPubSub)
		}
		defer func() { _ = broker.Close() }()

		out := cmd.OutOrStdout()
		log.Info("tailing security events", zap.String("channel", cfg.MQ.SecurityChannel))
		err = broker.Subscribe(ctx, cfg.MQ.SecurityChannel, func(_ context.Context, msg mq.Message) error {
			_, err := fmt.Fprintln(out, string(msg.Data))
			return err
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)
}
