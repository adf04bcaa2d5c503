package cmd

import (
	"context"
	"fmt"

	"github.com/taskhive/taskhive/internal/blob"
	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/cascade"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/db"
	httpSrv "github.com/taskhive/taskhive/internal/http"
	"github.com/taskhive/taskhive/internal/logger"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/rabbit"
	"github.com/taskhive/taskhive/internal/repository"

	"github.com/spf13/cobra"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Run the file service (HTTP + cascade consumer)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.New(cfg.Log.Level, "file-service")
		defer func() { _ = log.Sync() }()

		pool, err := db.NewMySQL(cfg.File.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer pool.Close()

		blobs, err := blob.New(cfg.Uploads.Dir)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}

		storeBr := breaker.New("file-mysql", breakerOptions(cfg.Breaker), log)
		files := repository.NewFilesRepository(pool, storeBr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		consumer := rabbit.NewConsumer(
			cfg.Rabbit.URL,
			model.UserEventsExchange,
			model.FileServiceQueue,
			model.UserDeletedKey,
			cfg.Rabbit.RetryDelay,
			log,
		)
		casc := cascade.NewFileCascade(files, blobs, log)
		go consumer.Run(ctx, casc.Handle)

		server := httpSrv.NewFileServer(cfg, files, blobs, log)

		return runServer(server, cfg.File.Addr, log, cancel)
	},
}
