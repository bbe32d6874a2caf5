// Package app wires the store, feed, services and transport together.
package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/auth"
	"github.com/vendalink/salechat-server/internal/chat"
	"github.com/vendalink/salechat-server/internal/config"
	"github.com/vendalink/salechat-server/internal/feed"
	"github.com/vendalink/salechat-server/internal/feed/bus"
	natsfeed "github.com/vendalink/salechat-server/internal/feed/nats"
	"github.com/vendalink/salechat-server/internal/service/messaging"
	"github.com/vendalink/salechat-server/internal/service/notify"
	"github.com/vendalink/salechat-server/internal/store"
	"github.com/vendalink/salechat-server/internal/store/sqlite"
	transporthttp "github.com/vendalink/salechat-server/internal/transport/http"
)

// closableFeed is satisfied by both feed drivers.
type closableFeed interface {
	feed.Feed
	Close() error
}

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	feed            closableFeed
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

	f, err := newFeed(cfg, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init feed: %w", err)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	tracker := chat.NewTracker(st, f, cfg.ReadDelay, logger)
	notifService := notify.New(st, f, logger)
	msgService := messaging.New(st, f, notifService, tracker, logger)

	server := transporthttp.NewServer(msgService, notifService, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		feed:            f,
		store:           st,
		log:             logger,
	}, nil
}

func newFeed(cfg *config.Config, logger *zerolog.Logger) (closableFeed, error) {
	switch cfg.FeedDriver {
	case config.FeedDriverNATS:
		f, err := natsfeed.New(cfg.NATSURL, cfg.NATSStream, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("url", cfg.NATSURL).Str("stream", cfg.NATSStream).Msg("nats feed connected")
		return f, nil
	case config.FeedDriverMemory, "":
		return bus.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown feed driver %q", cfg.FeedDriver)
	}
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

// cleanup closes the feed, database and other resources.
func (a *App) cleanup() {
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close feed")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
