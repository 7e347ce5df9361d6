package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sessionlens/sessionlens/internal/adapters/indexcache"
	"github.com/sessionlens/sessionlens/internal/config"
	"github.com/sessionlens/sessionlens/internal/hub"
	"github.com/sessionlens/sessionlens/internal/rpc/handler"
	"github.com/sessionlens/sessionlens/internal/rpc/handler/methods"
	httpapi "github.com/sessionlens/sessionlens/internal/server/http"
	"github.com/sessionlens/sessionlens/internal/server/websocket"
	"github.com/sessionlens/sessionlens/internal/watcher"
)

var (
	servePort int
	serveHost string
)

// serveCmd starts the engine: the change watcher, the JSON-RPC/WebSocket
// transport, and the read-only HTTP API. HTTP binds host:port and the
// WebSocket transport binds host:port+1.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session index and event access engine",
	Long: `serve loads configuration, discovers Claude project sessions under
~/.claude/projects (or the configured discovery home), and starts:

  - a file watcher that incrementally indexes session/sub-agent JSONL files
  - a JSON-RPC API over WebSocket for query and watch/unwatch operations
  - a read-only HTTP API mirroring the same queries for polling clients

It runs until interrupted with Ctrl+C.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "bind port (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind host (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}

	logLevel := slog.LevelInfo
	zerologLevel := zerolog.InfoLevel
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
		zerologLevel = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(zerologLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.Kitchen,
	}))

	home := cfg.Discovery.Home
	if home == "" {
		home, err = os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
	}

	eventHub := hub.New()
	if err := eventHub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	mgr := watcher.NewManager(home, eventHub)
	if cfg.IndexCache.Enabled {
		cache, err := indexcache.Open(cfg.IndexCache.Path)
		if err != nil {
			return fmt.Errorf("failed to open index cache: %w", err)
		}
		defer cache.Close()
		mgr = mgr.WithCache(cache)
		logger.Info("index cache enabled", "path", cfg.IndexCache.Path)
	}

	registry := handler.NewRegistry()
	svc := methods.New(home, cfg.Limits, mgr)
	svc.RegisterMethods(registry)
	dispatcher := handler.NewDispatcher(registry)
	logger.Info("registered JSON-RPC methods", "count", len(registry.Methods()))

	var wsServer *websocket.Server
	commandHandler := func(clientID string, msg []byte) {
		respBytes, err := dispatcher.HandleMessage(context.Background(), msg)
		if err != nil {
			log.Error().Err(err).Str("client_id", clientID).Msg("failed to handle message")
			return
		}
		if respBytes == nil {
			return
		}
		if client := wsServer.GetClient(clientID); client != nil {
			client.Send(respBytes)
		}
	}
	wsServer = websocket.NewServer(cfg.Server.Host, cfg.Server.Port+1, commandHandler, eventHub)
	if err := wsServer.Start(); err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}

	httpServer := httpapi.New(cfg.Server.Host, cfg.Server.Port, home, cfg.Limits, mgr)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	logger.Info("sessionenginedctl running",
		"http_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"ws_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1),
		"home", home,
	)
	fmt.Printf("sessionenginedctl listening: http://%s:%d  ws://%s:%d\n",
		cfg.Server.Host, cfg.Server.Port, cfg.Server.Host, cfg.Server.Port+1)
	fmt.Println("Press Ctrl+C to stop...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("error stopping HTTP server", "error", err)
	}
	if err := wsServer.Stop(ctx); err != nil {
		logger.Error("error stopping WebSocket server", "error", err)
	}
	if err := eventHub.Stop(); err != nil {
		logger.Error("error stopping event hub", "error", err)
	}

	fmt.Println("sessionenginedctl stopped")
	return nil
}
