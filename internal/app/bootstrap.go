package points

import (
	"context"

	grpcapi "github.com/glkeru/loyalty/userpoints/internal/api/grpc"
	rest "github.com/glkeru/loyalty/userpoints/internal/api/rest"
	config "github.com/glkeru/loyalty/userpoints/internal/config"
	db "github.com/glkeru/loyalty/userpoints/internal/db"
	kafka "github.com/glkeru/loyalty/userpoints/internal/external/kafka"
	nats "github.com/glkeru/loyalty/userpoints/internal/external/nats"
	rabbit "github.com/glkeru/loyalty/userpoints/internal/external/rabbitmq"
	interf "github.com/glkeru/loyalty/userpoints/internal/interfaces"
	services "github.com/glkeru/loyalty/userpoints/internal/services"
	workers "github.com/glkeru/loyalty/userpoints/internal/workers"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Bootstrap builds storage, cache, event publisher, the ledger service and every server from cfg.
// The returned cleanup closes what the servers do not close themselves.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	var cleanupFns []func()

	// database
	var accounts interf.AccountStorage
	var history interf.HistoryStorage
	switch cfg.Storage {
	case config.StoragePostgres:
		pdb, err := db.NewPointsDB(ctx, cfg.DSN(), logger)
		if err != nil {
			return nil, nil, err
		}
		cleanupFns = append(cleanupFns, pdb.Close)
		accounts, history = pdb, pdb
	default:
		accounts, history = db.NewAccountTable(), db.NewHistoryTable()
	}

	// cache: без redis сервис работает напрямую с хранилищем
	var cache interf.CacheStorage
	if cfg.CacheURL != "" {
		redis, err := db.NewCacheService(ctx, cfg.CacheURL, cfg.CacheUser, cfg.CachePwd)
		if err != nil {
			logger.Error("cache is disabled", zap.Error(err))
		} else {
			cache = redis
			cleanupFns = append(cleanupFns, func() { _ = redis.Close() })
		}
	}

	// events
	var publisher interf.EventPublisher
	switch cfg.BusProvider {
	case config.BusKafka:
		publisher = kafka.NewEventsWriter(cfg.KafkaAddr())
	case config.BusNats:
		nc, err := nats.NewNatsEvents(cfg.NatsURL)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		publisher = nc
	}
	if publisher != nil {
		cleanupFns = append(cleanupFns, func() {
			if err := publisher.Close(); err != nil {
				logger.Error("publisher close", zap.Error(err))
			}
		})
	}

	// services
	serv := services.NewPointService(logger, accounts, history, cache, publisher)

	// servers
	servers := []Server{
		rest.NewServer(cfg.HTTPAddr(), rest.NewHandler(serv, logger), logger),
	}
	if addr, ok := cfg.GRPCAddr(); ok {
		servers = append(servers, grpcapi.NewServer(addr, serv, logger,
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
		))
	}
	if cfg.BusProvider == config.BusKafka {
		reader := kafka.NewChargesReader(cfg.KafkaAddr())
		servers = append(servers, workers.NewChargeWorker(reader, serv, cfg.ChargesCount, logger))
	}
	if cfg.RabbitURL != "" {
		consumer, err := rabbit.NewRabbitConsumer(cfg.RabbitDSN(), cfg.UsesCount)
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		servers = append(servers, workers.NewUseWorker(consumer, serv, cfg.UsesCount, logger))
	}

	return NewApp(servers, logger), runCleanup(cleanupFns), nil
}

// runCleanup calls cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
