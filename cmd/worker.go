/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/gallery-app/apiserver/internal/mq"
	"github.com/gallery-app/apiserver/internal/services"
	"github.com/gallery-app/apiserver/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd consumes image-cleanup events published when posts are deleted.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Deletes stored images of removed posts",
	Long: `Consumes image-cleanup events from the configured message queue
(MQ_BACKEND=rabbitmq|pubsub) and deletes the named objects. Usage:

	gallery worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("worker requires MQ_BACKEND to be rabbitmq or pubsub")
		}
		defer func() { _ = queue.Close() }()

		objects, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return err
		}

		worker := services.NewCleanupWorker(queue, objects, cfg.MQ.CleanupChannel, logger)
		if err := worker.Run(ctx); err != nil {
			logger.Error("cleanup worker stopped", zap.Error(err))
			return err
		}
		logger.Info("cleanup worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
