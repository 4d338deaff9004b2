package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/anshul202/derivative-api/internal/domain/repository"
	"github.com/anshul202/derivative-api/internal/engine"
	"github.com/anshul202/derivative-api/internal/handler/api"
	internalrepo "github.com/anshul202/derivative-api/internal/repository"
	"github.com/anshul202/derivative-api/internal/service/fx"
	"github.com/anshul202/derivative-api/internal/service/iex"
	"github.com/anshul202/derivative-api/internal/service/pvwatts"
	"github.com/anshul202/derivative-api/internal/usecase"
	pkgcache "github.com/anshul202/derivative-api/pkg/cache"
	pkgch "github.com/anshul202/derivative-api/pkg/clickhouse"
	"github.com/anshul202/derivative-api/pkg/config"
	pkgkafka "github.com/anshul202/derivative-api/pkg/kafka"
	applogger "github.com/anshul202/derivative-api/pkg/logger"
	"github.com/anshul202/derivative-api/pkg/metrics"
	"github.com/anshul202/derivative-api/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache creates the provider response cache: in-memory by default,
// layered over Redis when configured.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(1000)), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc), nil
}

// ProvideClickHouseClient creates a ClickHouse client, nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvidePriceHistory creates the calibration history repository, nil when
// ClickHouse is disabled.
func ProvidePriceHistory(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.PriceHistory, error) {
	if chClient == nil {
		return nil, nil
	}
	table := cfg.ClickHouse.Database + ".spot_prices"
	hist := internalrepo.NewClickHousePriceHistory(chClient, table)
	if withLog, ok := hist.(interface{ SetLogger(*applogger.Logger) }); ok {
		withLog.SetLogger(l)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hist.Init(ctx); err != nil {
		return nil, fmt.Errorf("price history schema: %w", err)
	}
	return hist, nil
}

// ProvideKafkaProducer creates a Kafka producer, nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideQuotePublisher creates the quote event publisher.
func ProvideQuotePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.QuotePublisher {
	if producer == nil {
		return internalrepo.NoopQuotePublisher{}
	}
	return internalrepo.NewKafkaQuotePublisher(producer, cfg.Kafka.Topic)
}

// ProvideSolarResource creates the PVWatts client.
func ProvideSolarResource(cfg *config.Config, cache pkgcache.Service, l *applogger.Logger) repository.SolarResource {
	opts := []pvwatts.Option{
		pvwatts.WithCache(cache, 24*time.Hour),
		pvwatts.WithLogger(l),
	}
	if cfg.PVWatts.BaseURL != "" {
		opts = append(opts, pvwatts.WithBaseURL(cfg.PVWatts.BaseURL))
	}
	if cfg.PVWatts.Timeout > 0 {
		opts = append(opts, pvwatts.WithTimeout(cfg.PVWatts.Timeout))
	}
	if cfg.PVWatts.SystemKW > 0 {
		opts = append(opts, pvwatts.WithSystem(pvwatts.SystemSpec{
			CapacityKW: cfg.PVWatts.SystemKW,
			ModuleType: cfg.PVWatts.ModuleType,
			Losses:     cfg.PVWatts.Losses,
			ArrayType:  cfg.PVWatts.ArrayType,
			Tilt:       cfg.PVWatts.Tilt,
			Azimuth:    cfg.PVWatts.Azimuth,
		}))
	}
	return pvwatts.New(cfg.PVWatts.APIKey, opts...)
}

// ProvideMarketData creates the IEX spot price client.
func ProvideMarketData(cfg *config.Config, cache pkgcache.Service, m repository.Metrics, l *applogger.Logger) repository.MarketData {
	ttl := cfg.IEX.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	opts := []iex.Option{
		iex.WithCache(cache, ttl),
		iex.WithMetrics(m),
		iex.WithLogger(l),
	}
	if cfg.IEX.BaseURL != "" {
		opts = append(opts, iex.WithBaseURL(cfg.IEX.BaseURL))
	}
	if cfg.IEX.Timeout > 0 {
		opts = append(opts, iex.WithTimeout(cfg.IEX.Timeout))
	}
	if cfg.IEX.FallbackPrice > 0 {
		opts = append(opts, iex.WithFallbackPrice(cfg.IEX.FallbackPrice))
	}
	return iex.New(opts...)
}

// ProvideFXSource creates the configured FX source.
func ProvideFXSource(cfg *config.Config) (repository.FXSource, error) {
	return fx.NewStatic(cfg.FX.USDINR)
}

// ProvideOrchestrator creates the pricing engine with configured limits.
func ProvideOrchestrator(cfg *config.Config) *engine.Orchestrator {
	est := engine.NewEstimator()
	if cfg.Engine.MinObservations > 0 {
		est.MinObservations = cfg.Engine.MinObservations
	}
	sim := engine.NewSimulator()
	if cfg.Engine.MaxPaths > 0 {
		sim.MaxPaths = cfg.Engine.MaxPaths
	}
	if cfg.Engine.MaxSteps > 0 {
		sim.MaxSteps = cfg.Engine.MaxSteps
	}
	if cfg.Engine.Workers > 0 {
		sim.Workers = cfg.Engine.Workers
	}
	return engine.NewOrchestrator(est, sim, engine.NewRiskAnalyzer(sim), engine.NewFuturesPricer())
}

// ProvidePricingService creates the pricing use case.
func ProvidePricingService(
	orc *engine.Orchestrator,
	solar repository.SolarResource,
	market repository.MarketData,
	fxSrc repository.FXSource,
	history repository.PriceHistory,
	publisher repository.QuotePublisher,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.PricingService {
	return usecase.NewPricingService(orc, solar, market, fxSrc, history, publisher, m, usecase.PricingConfig{
		PremiumRate:     cfg.Engine.PremiumRate,
		PriceFloor:      cfg.Engine.PriceFloor,
		MinObservations: cfg.Engine.MinObservations,
	}, l)
}

// ProvideFuturesHandler creates the HTTP handler.
func ProvideFuturesHandler(l *applogger.Logger, pricing *usecase.PricingService) *api.FuturesHandler {
	return api.NewFuturesHandler(l, pricing)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	handler *api.FuturesHandler,
	history repository.PriceHistory,
	publisher repository.QuotePublisher,
	chClient *pkgch.Client,
	l *applogger.Logger,
) *server.App {
	return server.New(cfg, handler, history, publisher, chClient, l)
}
