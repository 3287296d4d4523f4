// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/openfm/internal/api/connect"
	"github.com/osa030/openfm/internal/api/rest"
	"github.com/osa030/openfm/internal/api/ws"
	"github.com/osa030/openfm/internal/app/catalog"
	"github.com/osa030/openfm/internal/app/notification"
	"github.com/osa030/openfm/internal/app/playback"
	"github.com/osa030/openfm/internal/app/state"
	"github.com/osa030/openfm/internal/domain/library"
	"github.com/osa030/openfm/internal/infra/clock"
	"github.com/osa030/openfm/internal/infra/config"
	"github.com/osa030/openfm/internal/infra/content"
	"github.com/osa030/openfm/internal/infra/logger"
	"github.com/osa030/openfm/internal/infra/metrics"
	"github.com/osa030/openfm/internal/infra/natsbus"
	"github.com/osa030/openfm/internal/infra/prefs"
	"github.com/osa030/openfm/internal/infra/spotify"
)

var (
	app        = kingpin.New("openfm-server", "openfm mood player server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-providers command
	listProvidersCmd = app.Command("list-providers", "List configured library providers and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output:     "stdout",
		Level:      "info",
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == listProvidersCmd.FullCommand() {
		printProviders(cfg)
		return
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	defer executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	realClock := clock.New()
	m := metrics.New()

	// State store, seeded with the configured root and then saved preferences
	store := state.New()
	store.SetLibrary(library.Library{}, cfg.Library.Root)

	prefStore, err := prefs.New(cfg.Preferences)
	if err != nil {
		return fmt.Errorf("failed to create preferences store: %w", err)
	}
	persister := prefs.NewPersister(store, prefStore, realClock, prefs.DefaultSaveDelay)
	restoreCtx, cancelRestore := context.WithTimeout(ctx, 5*time.Second)
	persister.Restore(restoreCtx)
	cancelRestore()
	persister.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := persister.Close(closeCtx); err != nil {
			zlog.Error().Msgf("Failed to save preferences: %v", err)
		}
	}()

	// Library providers and content
	deps := catalog.Deps{Prober: catalog.BeepProber{}}
	resolver := &content.Router{
		Files:   &content.FileResolver{Root: cfg.Content.Root},
		Buckets: map[string]content.Resolver{},
	}
	if cfg.Content.Minio.Enabled() {
		bucket, err := content.NewBucket(content.MinioConfig{
			Endpoint:  cfg.Content.Minio.Endpoint,
			AccessKey: cfg.Content.Minio.AccessKey,
			SecretKey: cfg.Content.Minio.SecretKey,
			Bucket:    cfg.Content.Minio.Bucket,
			Region:    cfg.Content.Minio.Region,
			UseSSL:    cfg.Content.Minio.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to create minio bucket: %w", err)
		}
		deps.Bucket = bucket
		resolver.Buckets[bucket.Name()] = bucket
	}
	if cfg.SpotifyConfigured() {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		deps.Spotify = spotifyClient
	}

	cat, err := catalog.NewCatalogFromConfig(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create library catalog: %w", err)
	}

	// Playback controller
	ctl := playback.NewController(store, playback.Config{
		QueuePreview:    cfg.Playback.QueuePreview,
		LoadTimeout:     cfg.Playback.LoadTimeout(),
		ProgressTick:    cfg.Playback.ProgressTick(),
		CrossfadeTick:   cfg.Playback.CrossfadeTick(),
		PreviousRestart: cfg.Playback.PreviousRestart(),
	},
		playback.WithClock(realClock),
		playback.WithLibrarySource(cat),
		playback.WithObserver(m),
	)
	defer ctl.Close()

	// Push hub, optionally mirrored to NATS
	hubOpts := []notification.Option{notification.WithObserver(m)}
	if cfg.NATS.URL != "" {
		pub, err := natsbus.Connect(cfg.NATS)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer pub.Close()
		hubOpts = append(hubOpts, notification.WithPublisher(pub))
	}
	hub := notification.NewHub(store, hubOpts...)

	// Initial library scan. A failed scan leaves an empty library; the
	// engine still serves and a later rescan can recover.
	if err := ctl.Start(ctx); err != nil {
		zlog.Error().Msgf("Initial library scan failed: %v", err)
	}

	// Auto-rescan on library changes (local directory provider only)
	if watcher := startWatcher(ctx, cfg, store, ctl, realClock); watcher != nil {
		defer watcher.Close()
	}

	// HTTP router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(rest.RequestLogger)
	router.Use(middleware.Recoverer)
	router.Use(m.Middleware)

	rest.New(ctl,
		rest.WithControlToken(cfg.Server.ControlToken),
		rest.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		rest.WithContent(resolver),
	).Routes(router)

	router.Method(http.MethodGet, "/ws", ws.New(ctl, hub,
		ws.WithControlToken(cfg.Server.ControlToken),
		ws.WithCheckOrigin(func(r *http.Request) bool {
			return rest.OriginAllowed(cfg.Server.AllowedOrigins, r)
		}),
	))
	router.Method(http.MethodGet, "/metrics", m.Handler())

	playerPath, playerHandler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(ctl, hub),
		connect.WithInterceptors(apiconnect.NewControlTokenInterceptor(cfg.Server.ControlToken)),
	)
	router.Mount(strings.TrimSuffix(playerPath, "/"), playerHandler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", listener.Addr())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Execute startup hook if configured (after server is listening)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	select {
	case <-ctx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the hub first to terminate WebSocket connections and streams
	hub.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// startWatcher watches the library root when the local mode is served from
// a directory. The rescan itself honours the runtime autoRescan setting.
func startWatcher(ctx context.Context, cfg *config.Config, store *state.Store, ctl *playback.Controller, c clock.Clock) *catalog.Watcher {
	local, ok := cfg.Library.Providers[string(state.ModeLocal)]
	if !cfg.Library.AutoRescan || !ok || local.Type != "dir" {
		return nil
	}
	root := store.LibraryRoot()
	if root == "" {
		zlog.Info().Msg("Library root not configured, auto-rescan disabled")
		return nil
	}

	w, err := catalog.NewWatcher(root, cfg.Library.Debounce(), c, func() {
		if !store.Settings().AutoRescan || store.State().Mode != state.ModeLocal {
			return
		}
		if err := ctl.Dispatch(context.Background(), playback.ReloadLibrary{}); err != nil {
			zlog.Warn().Msgf("Library rescan failed: %v", err)
		}
	})
	if err != nil {
		zlog.Warn().Msgf("Failed to watch library, auto-rescan disabled: %v", err)
		return nil
	}
	go w.Run(ctx)
	return w
}

// printProviders prints the configured library providers.
func printProviders(cfg *config.Config) {
	fmt.Println("Library Providers:")
	modes := make([]string, 0, len(cfg.Library.Providers))
	for mode := range cfg.Library.Providers {
		modes = append(modes, mode)
	}
	slices.Sort(modes)
	for _, mode := range modes {
		p := cfg.Library.Providers[mode]
		fmt.Printf("  %-10s - %s %v\n", mode, p.Type, p.Settings)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
