package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/db"
	httpSrv "github.com/taskhive/taskhive/internal/http"
	"github.com/taskhive/taskhive/internal/logger"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/rabbit"
	"github.com/taskhive/taskhive/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Run the identity service (HTTP + event publisher)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.New(cfg.Log.Level, "identity-service")
		defer func() { _ = log.Sync() }()

		pool, err := db.NewMySQL(cfg.Identity.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer pool.Close()

		storeBr := breaker.New("identity-mysql", breakerOptions(cfg.Breaker), log)
		users := repository.NewUsersRepository(pool, storeBr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Broker connects in the background; the service starts regardless.
		pub := rabbit.NewPublisher(model.UserEventsExchange, log)
		pub.Connect(ctx, cfg.Rabbit.URL, cfg.Rabbit.RetryDelay)

		server := httpSrv.NewIdentityServer(cfg, users, pub, log)

		return runServer(server, cfg.Identity.Addr, log, cancel)
	},
}

// runServer starts the echo server and blocks until a signal or server error,
// then shuts down gracefully.
func runServer(server *httpSrv.Server, addr string, log *zap.Logger, cancel context.CancelFunc) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting http", zap.String("addr", addr))
		errCh <- server.Start(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("signal received, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server exited", zap.Error(err))
		}
	}

	cancel()
	ctx, cancelTo := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTo()
	_ = server.Shutdown(ctx)

	return nil
}
