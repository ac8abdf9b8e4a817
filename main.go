package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"recipebox/auth"
	"recipebox/config"
	"recipebox/db"
	"recipebox/middleware"
	"recipebox/mq"
	"recipebox/ratelim"
	"recipebox/rdx"
	"recipebox/recipes"
	"recipebox/routes"
	"recipebox/search"
)

var (
	envFile string
	cfg     *config.Config
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "recipebox",
		Short:         "Recipe sharing API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(envFile); err != nil {
				return err
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				log.Warn("unknown log level, using info", "level", cfg.LogLevel)
				level = log.InfoLevel
			}
			log.SetLevel(level)
			log.SetReportTimestamp(true)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.AddCommand(newServeCmd(), newMigrateCmd(), newEventsCmd())
	return cmd
}

func openStore(ctx context.Context) (db.Store, error) {
	return db.Open(ctx, db.Options{
		Type:           cfg.DBType,
		DSN:            cfg.DBURI,
		Database:       cfg.DBName,
		ConnectTimeout: 10 * time.Second,
	})
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables, collections and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("database is up to date", "type", cfg.DBType)
			return store.Close()
		},
	}
}

// newEventsCmd prints the events other instances publish.
func newEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Follow domain events published on Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.RedisURL == "" {
				return errors.New("REDIS_URL must be set")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			client, err := rdx.Connect(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()
			return mq.Listen(ctx, client, func(e mq.Event) {
				log.Info("event", "type", e.EntityType, "method", e.Method, "id", e.EntityID, "user", e.UserID)
			})
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		emitter     mq.Emitter = mq.Nop
		sessionOpts []auth.SessionOption
	)
	if cfg.RedisURL != "" {
		client, err := rdx.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		emitter = mq.NewRedisEmitter(client)
		sessionOpts = append(sessionOpts, auth.WithRevocationCache(rdx.NewDenylist(client)))
	} else {
		log.Info("REDIS_URL not set; revocation cache and events disabled")
	}
	sessionOpts = append(sessionOpts, auth.WithEmitter(emitter))

	sessions, err := auth.NewSessions(store, auth.SessionConfig{
		Secret:     []byte(cfg.SecretKey),
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, sessionOpts...)
	if err != nil {
		return err
	}
	creds := auth.NewCredentials(store, sessions, auth.NopVerifier{}, auth.WithUserEmitter(emitter))

	limiter := ratelim.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	sweepDone := make(chan struct{})
	go limiter.Run(sweepDone, time.Minute)

	router := routes.NewRouter(routes.Deps{
		Auth:      auth.NewHandler(creds, sessions),
		Recipes:   recipes.NewHandler(recipes.NewCatalog(store, emitter)),
		Search:    search.NewHandler(search.NewEngine(store)),
		Validator: sessions,
		Limiter:   limiter,
	})

	// CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)
	handler := middleware.Logging(middleware.SecurityHeaders(corsHandler))

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(func() { close(sweepDone) })

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Port, "db", cfg.DBType)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received; shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped cleanly")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
