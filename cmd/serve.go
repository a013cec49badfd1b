package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"githubevents/internal"
	"githubevents/pkg/api"
	"githubevents/pkg/normalize"
	"githubevents/pkg/storage/events"
	"githubevents/webhook"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, logger, err := loadRuntime("server")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := events.Open(storageConfig(cfg))
	if err != nil {
		return err
	}
	defer store.Close()
	if cfg.Storage.AutoMigrate {
		// An unreachable database must not stop the server; /health reports it.
		if err := store.Migrate(); err != nil {
			logger.Warn("storage migration failed", zap.Error(err))
		}
	}

	ruleEngine, err := internal.NewRuleEngine(cfg.Rules, logger.Named("rules"))
	if err != nil {
		return err
	}

	var publisher internal.Publisher
	if ruleEngine.Len() > 0 {
		publisher, err = internal.NewPublisher(cfg.Watermill, internal.NewWatermillLogger(logger.Named("watermill")))
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	metrics := internal.NewMetrics(prometheus.NewRegistry())

	githubHandler, err := webhook.NewGitHubHandler(webhook.GitHubHandlerConfig{
		Normalizer:   normalize.New(normalize.WithLogger(logger.Named("normalize"))),
		Store:        store,
		Notifier:     webhook.NewNotifier(ruleEngine, publisher, metrics, logger.Named("notify")),
		Metrics:      metrics,
		Logger:       logger.Named("webhook"),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Dependencies{
		Config:  cfg,
		Store:   store,
		Webhook: githubHandler,
		Metrics: metrics,
		Limiter: internal.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 0),
		Logger:  logger.Named("http"),
	})

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", addr),
			zap.Int("rules", ruleEngine.Len()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case sig := <-shutdown:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	return nil
}
