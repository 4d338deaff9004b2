package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "github.com/anshul202/derivative-api/internal/domain/repository"
	pkgch "github.com/anshul202/derivative-api/pkg/clickhouse"
	"github.com/anshul202/derivative-api/pkg/config"
	xhttp "github.com/anshul202/derivative-api/pkg/http"
	applogger "github.com/anshul202/derivative-api/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	handler    xhttp.Handler
	history    domrepo.PriceHistory
	publisher  domrepo.QuotePublisher
	chClient   *pkgch.Client
	httpServer *xhttp.Server
	l          *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	handler xhttp.Handler,
	history domrepo.PriceHistory,
	publisher domrepo.QuotePublisher,
	chClient *pkgch.Client,
	l *applogger.Logger,
) *App {
	return &App{
		cfg:       cfg,
		handler:   handler,
		history:   history,
		publisher: publisher,
		chClient:  chClient,
		l:         l,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("pricing api started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Bool("clickhouse", a.chClient != nil),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.l.Warn("quote publisher close error", applogger.Error(err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.l.Warn("price history close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
