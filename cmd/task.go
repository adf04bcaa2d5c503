package cmd

import (
	"context"
	"fmt"

	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/cache"
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

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Run the task service (HTTP + cascade consumer)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.New(cfg.Log.Level, "task-service")
		defer func() { _ = log.Sync() }()

		pool, err := db.NewMySQL(cfg.Task.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer pool.Close()

		rds, err := db.NewRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = rds.Close() }()

		// Independent breakers per dependency: the store tripping must not
		// take the cache path down with it, and vice versa.
		storeBr := breaker.New("task-mysql", breakerOptions(cfg.Breaker), log)
		cacheBr := breaker.New("task-redis", breakerOptions(cfg.Breaker), log)

		tasks := repository.NewTasksRepository(pool, storeBr)
		taskCache := cache.NewTaskCache(rds, cacheBr, cfg.Cache.TTL, log)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Cascade consumer runs beside the HTTP server; deliveries are
		// handled serially while requests proceed concurrently.
		consumer := rabbit.NewConsumer(
			cfg.Rabbit.URL,
			model.UserEventsExchange,
			model.TaskServiceQueue,
			model.UserDeletedKey,
			cfg.Rabbit.RetryDelay,
			log,
		)
		casc := cascade.NewTaskCascade(taskCache, tasks, log)
		go consumer.Run(ctx, casc.Handle)

		server := httpSrv.NewTaskServer(cfg, tasks, taskCache, log)

		return runServer(server, cfg.Task.Addr, log, cancel)
	},
}
