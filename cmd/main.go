// Command cmd runs the model gateway: an OpenAI-compatible HTTP front
// that routes completion requests to tiered upstream backends with
// retries, fallback, and degraded-mode answers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/relaydesk/model-gateway/internal/config"
	"github.com/relaydesk/model-gateway/internal/gateway"
	"github.com/relaydesk/model-gateway/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	host := flag.String("host", "", "listen host (overrides config)")
	port := flag.Int("port", 0, "listen port (overrides config)")
	flag.Parse()

	// .env first so config.Load sees its variables as environment overrides.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	setupLogging(cfg)
	logStartup(cfg)

	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway init failed")
	}
	defer gw.Close()

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     gw.Handler(),
		ReadTimeout: config.DefaultServerReadTimeout,
		// Write timeout must outlive long streaming responses.
		WriteTimeout: config.DefaultServerWriteTimeout,
		IdleTimeout:  config.DefaultServerIdleTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown incomplete")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("model gateway listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("model gateway stopped")
}

// setupLogging configures the global zerolog logger. Console format is the
// default on a terminal, JSON everywhere else; LOG_FORMAT forces either.
func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if format == "" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "console"
		} else {
			format = "json"
		}
	}
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// logStartup reports the effective backend wiring with credentials masked.
func logStartup(cfg *config.Config) {
	names := make([]string, 0, len(cfg.Backends))
	for name := range cfg.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b := cfg.Backends[name]
		if b.BaseURL == "" {
			log.Warn().Str("backend", name).Str("mode", b.Mode).
				Msg("backend has no base URL; requests routed to it will fail")
			continue
		}
		log.Info().
			Str("backend", name).
			Str("mode", b.Mode).
			Str("base_url", b.BaseURL).
			Str("api_key", utils.MaskKey(b.APIKey)).
			Msg("backend configured")
	}

	if strings.TrimSpace(cfg.GatewayKey) == "" {
		log.Warn().Msg("GATEWAY_KEY not set; inbound requests are unauthenticated")
	}
}
