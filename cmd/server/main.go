// Сервер баллов: HTTP и gRPC API, обработка команд начисления (kafka) и списания (rabbitmq)
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	app "github.com/glkeru/loyalty/userpoints/internal/app"
	config "github.com/glkeru/loyalty/userpoints/internal/config"
	otel "github.com/glkeru/loyalty/userpoints/observability/otel"
	"go.uber.org/zap"
)

func main() {
	// config
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}

	// log
	var logger *zap.Logger
	if cfg.Production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// tracing
	shutdown, err := otel.InitTracer(ctx, cfg.OtelEndpoint, logger)
	if err != nil {
		logger.Fatal("tracer", zap.Error(err))
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("tracer shutdown", zap.Error(err))
		}
	}()

	application, cleanup, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", zap.Error(err))
		return
	}
	defer cleanup()

	logger.Info("points server is starting",
		zap.String("storage", cfg.Storage),
		zap.String("bus", cfg.BusProvider),
	)
	if err := application.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("points server is stopped")
}
