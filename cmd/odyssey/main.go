package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-stock/internal/api"
	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) > 0 {
		os.Exit(runCommand(ctx, cfg, logger, args))
	}
	if app.InTestMode() {
		logger.Info("test mode detected, skipping server startup")
		return
	}
	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("serve", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	svcs, err := app.BuildServices(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer svcs.Close()

	var (
		jobClient *jobs.Client
		inspector jobs.QueueInspector
	)
	if svcs.Redis != nil {
		redisOpts := cfg.Redis().Asynq()
		jobClient = jobs.NewClient(redisOpts)
		defer func() { _ = jobClient.Close() }()
		asynqInspector := asynq.NewInspector(redisOpts)
		defer func() { _ = asynqInspector.Close() }()
		inspector = asynqInspector
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		APIHandler: api.NewHandler(svcs.Facade, logger),
		JobHandler: jobs.NewHandler(inspector, jobClient, logger),
		Metrics:    metrics,
		Ready:      svcs.Ready,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("storage", cfg.StorageDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	switch args[0] {
	case "reconcile":
		fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
		jsonOut := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return cli.ExitFailure
		}
		svcs, err := app.BuildServices(ctx, cfg, logger, nil)
		if err != nil {
			logger.Error("build services", slog.Any("error", err))
			return cli.ExitFailure
		}
		defer svcs.Close()
		return cli.ReconcileCommand(ctx, svcs.Stock, cli.ReconcileOptions{JSONOutput: *jsonOut})
	case "jobs":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: odyssey jobs trigger <name> | odyssey jobs stats")
			return cli.ExitFailure
		}
		jc, err := cli.NewJobsCLI(cfg.Redis().Asynq())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return cli.ExitFailure
		}
		defer func() { _ = jc.Close() }()
		switch args[1] {
		case "trigger":
			if len(args) < 3 {
				fmt.Fprintln(os.Stderr, "usage: odyssey jobs trigger <reconcile|overdue|cleanup>")
				return cli.ExitFailure
			}
			info, err := jc.Trigger(ctx, args[2], cfg.IdempotencyTTL)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return cli.ExitFailure
			}
			fmt.Printf("enqueued %s (%s)\n", info.Type, info.ID)
		case "stats":
			stats, err := jc.InspectQueue(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return cli.ExitFailure
			}
			_ = json.NewEncoder(os.Stdout).Encode(stats)
		default:
			fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[1])
			return cli.ExitFailure
		}
		return cli.ExitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want reconcile or jobs)\n", args[0])
		return cli.ExitFailure
	}
}
