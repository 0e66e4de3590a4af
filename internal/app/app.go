// Package app wires the collaborators together and owns process lifecycle.
package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatbox-im/chatbox-server/internal/auth"
	"github.com/chatbox-im/chatbox-server/internal/broker"
	"github.com/chatbox-im/chatbox-server/internal/calls"
	"github.com/chatbox-im/chatbox-server/internal/config"
	"github.com/chatbox-im/chatbox-server/internal/delivery"
	"github.com/chatbox-im/chatbox-server/internal/gateway"
	"github.com/chatbox-im/chatbox-server/internal/log"
	"github.com/chatbox-im/chatbox-server/internal/registry"
	"github.com/chatbox-im/chatbox-server/internal/store"
	"github.com/chatbox-im/chatbox-server/internal/store/sqlite"
	transporthttp "github.com/chatbox-im/chatbox-server/internal/transport/http"
)

// App wires together the routing core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	gateway         *gateway.Gateway
	broker          broker.Broker
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	reg := registry.New()
	deliver := delivery.New(reg, st, log.For(logger, "delivery"))
	callManager := calls.NewManager(deliver, log.For(logger, "calls"))

	var brk broker.Broker = broker.Noop{}
	if cfg.NATSURL != "" {
		nb, err := broker.ConnectNATS(cfg.NATSURL, log.For(logger, "broker"))
		if err != nil {
			logger.Warn().Err(err).Str("nats_url", cfg.NATSURL).
				Msg("broker unavailable, room events will not be published")
		} else {
			brk = nb
			logger.Info().Str("nats_url", cfg.NATSURL).Msg("broker connected")
		}
	}

	gw := gateway.New(gateway.Deps{
		Registry:  reg,
		Delivery:  deliver,
		Auth:      authService,
		Store:     st,
		Calls:     callManager,
		Broker:    brk,
		Logger:    log.For(logger, "gateway"),
		AIWorkers: cfg.AIWorkers,
	})

	server := transporthttp.NewServer(gw, authService, st, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		gateway:         gw,
		broker:          brk,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup stops the assistant workers and closes external resources.
func (a *App) cleanup() {
	a.gateway.Close()
	a.broker.Close()

	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}
