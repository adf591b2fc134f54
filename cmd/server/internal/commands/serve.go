package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/nosferatu/internal/config"
	"github.com/wolfeidau/nosferatu/internal/dispatch"
	httpmw "github.com/wolfeidau/nosferatu/internal/http"
	"github.com/wolfeidau/nosferatu/internal/i18n"
	"github.com/wolfeidau/nosferatu/internal/logger"
	"github.com/wolfeidau/nosferatu/internal/store"
	memorystore "github.com/wolfeidau/nosferatu/internal/store/memory"
	postgresstore "github.com/wolfeidau/nosferatu/internal/store/postgres"
	"github.com/wolfeidau/nosferatu/internal/telemetry"
	"github.com/wolfeidau/nosferatu/internal/web"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
)

type ServeCmd struct {
	// App server
	BindHost string `help:"app server bind address" default:"0.0.0.0" env:"SERVER_BIND_HOST"`
	BindPort uint16 `help:"app server port" default:"3000" env:"SERVER_BIND_PORT"`

	// Public asset server
	PublicHost string `help:"public asset server bind address" default:"0.0.0.0" env:"PUBLIC_BIND_HOST"`
	PublicPort uint16 `help:"public asset server port" default:"9002" env:"PUBLIC_BIND_PORT"`
	PublicDir  string `help:"directory served under /public" default:"public" env:"PUBLIC_DIR"`

	MaxConns        int           `help:"maximum simultaneous connections per listener, 0 for no limit" default:"1024" env:"SERVER_MAX_CONNECTIONS"`
	ShutdownTimeout time.Duration `help:"time allowed for in-flight requests and queued tasks on shutdown" default:"10s" env:"SERVER_SHUTDOWN_TIMEOUT"`

	CORSOrigins   []string `help:"allowed CORS origins" default:"http://localhost:9001,http://10.2.40.53:9001" env:"CORS_ORIGINS"`
	Language      string   `help:"default language for translations" default:"en" env:"DEFAULT_LANGUAGE"`
	QueueCapacity int      `help:"task queue capacity" default:"32" env:"TASK_QUEUE_CAPACITY"`

	Tracing          bool    `help:"enable tracing" default:"false" env:"TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces sampled" default:"1.0" env:"TRACE_SAMPLE_RATIO"`

	StoreType string        `help:"store type (memory or postgres)" default:"postgres" env:"STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
}

type PostgresFlags struct {
	URL string `help:"PostgreSQL connection URL" env:"DATABASE_URL"`

	// Connection Pool Configuration, durations in seconds
	ConnectTimeout int32 `help:"connect timeout in seconds" default:"10" env:"POSTGRES_CONNECT_TIMEOUT"`
	IdleTimeout    int32 `help:"maximum connection idle time in seconds" default:"1800" env:"POSTGRES_IDLE_TIMEOUT"`
	MaxLifetime    int32 `help:"maximum connection lifetime in seconds" default:"3600" env:"POSTGRES_MAX_LIFETIME"`
	MinConnections int32 `help:"minimum number of connections in pool" default:"5" env:"POSTGRES_MIN_CONNECTIONS"`
	MaxConnections int32 `help:"maximum number of connections in pool" default:"20" env:"POSTGRES_MAX_CONNECTIONS"`
}

func (p *PostgresFlags) validate() error {
	if p.URL == "" {
		return errors.New("PostgreSQL connection URL is required (--postgres-url or DATABASE_URL)")
	}
	if p.MinConnections > p.MaxConnections {
		return fmt.Errorf("min connections (%d) exceeds max connections (%d)", p.MinConnections, p.MaxConnections)
	}
	return nil
}

// Validate is called by kong once flags and environment are parsed.
func (c *ServeCmd) Validate() error {
	if _, err := web.ParseNetworkAddr(c.BindHost, c.BindPort); err != nil {
		return err
	}
	if _, err := web.ParseNetworkAddr(c.PublicHost, c.PublicPort); err != nil {
		return err
	}
	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("invalid language %q: %w", c.Language, err)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("task queue capacity must be at least 1, got %d", c.QueueCapacity)
	}
	if c.StoreType == "postgres" {
		if err := c.Postgres.validate(); err != nil {
			return fmt.Errorf("failed to validate postgres flags: %w", err)
		}
	}
	return nil
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Float64("sample_ratio", c.TraceSampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "nosferatu", globals.Version, c.TraceSampleRatio)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	appAddr, err := web.ParseNetworkAddr(c.BindHost, c.BindPort)
	if err != nil {
		return err
	}
	publicAddr, err := web.ParseNetworkAddr(c.PublicHost, c.PublicPort)
	if err != nil {
		return err
	}

	runs, app, closeStore, err := c.createStore(ctx, log, globals.Version)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := app.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	translations, err := c.loadTranslations(log)
	if err != nil {
		return err
	}

	tasks, rx := dispatch.NewQueue(c.QueueCapacity)
	dispatchCtx, cancelDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDispatch()

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		if err := dispatch.NewDispatcher(rx, runs, log).Run(dispatchCtx); err != nil {
			log.Error().Err(err).Msg("Dispatcher stopped, queued tasks will be rejected")
		}
	}()

	pages, err := web.NewRenderer()
	if err != nil {
		return err
	}

	state := &httpmw.State{
		Config:       app,
		Tasks:        tasks,
		Translations: translations,
	}
	appHandler, err := web.NewPipeline(log, state, pages)
	if err != nil {
		return err
	}
	publicHandler := logger.Requests(log)(web.NewPublicHandler(os.DirFS(c.PublicDir)))

	appServer := configureHTTPServer(appAddr.String(), appHandler)
	publicServer := configureHTTPServer(publicAddr.String(), publicHandler)

	appListener, err := web.Listen(ctx, appAddr, c.MaxConns)
	if err != nil {
		return err
	}
	publicListener, err := web.Listen(ctx, publicAddr, c.MaxConns)
	if err != nil {
		_ = appListener.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", publicAddr.String()).Str("dir", c.PublicDir).Msg("Starting public asset server")
		return serve(publicServer, publicListener)
	})
	g.Go(func() error {
		log.Info().Str("addr", appAddr.String()).Msg("Starting app server")
		return serve(appServer, appListener)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), c.ShutdownTimeout)
		defer cancel()

		return errors.Join(appServer.Shutdown(shutdownCtx), publicServer.Shutdown(shutdownCtx))
	})

	err = g.Wait()

	// no handler can enqueue any more, let the dispatcher drain what is left
	tasks.Close()
	select {
	case <-dispatcherDone:
	case <-time.After(c.ShutdownTimeout):
		log.Warn().Int("pending", tasks.Len()).Msg("Dispatcher did not drain in time")
		cancelDispatch()
		<-dispatcherDone
	}

	log.Info().Msg("Server stopped")
	return err
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
	}
	return nil
}

// createStore builds the task run store and the shared configuration. The
// returned func releases the store's resources.
func (c *ServeCmd) createStore(ctx context.Context, log zerolog.Logger, version string) (store.TaskRunStore, *config.App, func(), error) {
	app := &config.App{
		Version:     version,
		StoreType:   c.StoreType,
		Language:    c.Language,
		CORSOrigins: c.CORSOrigins,
	}

	switch c.StoreType {
	case "postgres":
		if err := c.Postgres.validate(); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}

		settings := &config.PoolSettings{
			URL:            config.SanitizeDBURL(c.Postgres.URL),
			ConnectTimeout: c.Postgres.ConnectTimeout,
			IdleTimeout:    c.Postgres.IdleTimeout,
			MaxLifetime:    c.Postgres.MaxLifetime,
			MinConnections: c.Postgres.MinConnections,
			MaxConnections: c.Postgres.MaxConnections,
		}

		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.Postgres.URL,
			MaxConns:        c.Postgres.MaxConnections,
			MinConns:        c.Postgres.MinConnections,
			MaxConnLifetime: c.Postgres.MaxLifetime,
			MaxConnIdleTime: c.Postgres.IdleTimeout,
			ConnectTimeout:  c.Postgres.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("unable to connect to postgres at %s: %w", settings.URL, err)
		}

		if err := postgresstore.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}

		app.Postgres = settings
		app.Pool = pool

		log.Info().
			Str("url", settings.URL).
			Int32("min_connections", settings.MinConnections).
			Int32("max_connections", settings.MaxConnections).
			Msg("Using PostgreSQL task run store")

		return postgresstore.NewTaskRunStore(pool), app, pool.Close, nil

	default:
		log.Info().Msg("Using in-memory task run store")
		return memorystore.NewTaskRunStore(), app, func() {}, nil
	}
}

// loadTranslations populates the translation store before any listener
// starts. The default language must be present in the bundle.
func (c *ServeCmd) loadTranslations(log zerolog.Logger) (*i18n.Store, error) {
	translations := i18n.NewStore(log)
	if err := i18n.LoadYAML(translations, i18n.Baseline()); err != nil {
		return nil, fmt.Errorf("failed to load translations: %w", err)
	}

	if _, ok := translations.Bundle(c.Language); !ok {
		return nil, fmt.Errorf("no translations for language %q, available: %v", c.Language, translations.Languages())
	}
	translations.SetLanguage(c.Language)

	log.Info().Strs("languages", translations.Languages()).Str("default", c.Language).Msg("Translations loaded")

	return translations, nil
}
