// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeeDigitalWorks/zapaudit/pkg/debug"
	"github.com/LeeDigitalWorks/zapaudit/pkg/identity"
	"github.com/LeeDigitalWorks/zapaudit/pkg/logger"
	"github.com/LeeDigitalWorks/zapaudit/pkg/meter"
	"github.com/LeeDigitalWorks/zapaudit/pkg/notify"
	"github.com/LeeDigitalWorks/zapaudit/pkg/publisher"
	"github.com/LeeDigitalWorks/zapaudit/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServeOpts holds all configuration for the metering proxy.
type ServeOpts struct {
	ListenAddr      string
	DebugAddr       string
	BackendURL      string
	IOTimeout       time.Duration // Idle read/write deadline on client connections
	ShutdownTimeout time.Duration // Bounds server drain plus pipeline drain

	Meter     meter.Config
	Notify    notify.Config
	Publisher publisher.Config
	Identity  identity.Config
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metering proxy",
	Long: `Start a reverse proxy in front of an object storage backend.
Every proxied request is turned into an audit event and handed to the
configured notification publisher.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd.Flags())
	viper.BindPFlags(serveCmd.Flags())
}

func addServeFlags(f *pflag.FlagSet) {
	// Network
	f.String("listen_addr", ":8080", "Address the proxy listens on (host:port)")
	f.String("debug_addr", ":8090", "Debug/metrics HTTP address (host:port)")
	f.String("backend_url", "", "Object storage backend URL (e.g., http://127.0.0.1:8000). Required.")
	f.Duration("io_timeout", 5*time.Minute, "Idle read/write timeout on client connections (0 = none)")
	f.Duration("shutdown_timeout", 30*time.Second, "Time allowed to drain requests and queued events on shutdown")

	// Metering
	f.String("metadata_headers", "", "Comma separated request headers copied into event metadata")
	f.String("reseller_prefix", "AUTH_", "Account prefix stripped to form the resource id")
	f.String("ignore_projects", "", "Comma separated project ids or names whose requests are not metered")

	// Delivery
	f.Bool("nonblocking_notify", false, "Queue events for a background sender instead of publishing inline")
	f.Int("send_queue_size", 1000, "Background queue capacity")
	f.Duration("send_timeout", 10*time.Second, "Timeout for one background publish attempt")
	f.String("publisher_id", "zapaudit", "Publisher id carried in notifications")

	// Transport
	f.String("driver", "log", fmt.Sprintf("Notification driver %v", publisher.Drivers()))
	f.String("url", "", "Transport address: Kafka brokers, Redis address, or ClickHouse DSN")
	f.String("topic", "notifications", "Kafka topic")
	f.String("control_exchange", "swift", "Redis channel prefix")

	// Identity
	f.String("auth_url", "", "Keystone URL used to resolve ignored project names")
}

func runServe(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("zapaudit", false)
	opts := loadServeOpts(cmd)
	applyLogLevel(NewFlagLoader(cmd).String("log_level"))

	debug.SetNotReady()
	ctx := cmd.Context()

	if opts.BackendURL == "" {
		logger.Fatal().Msg("--backend_url is required. Set via flag, config, or ZAPAUDIT_BACKEND_URL env var.")
	}
	backend, err := url.Parse(opts.BackendURL)
	if err != nil || backend.Scheme == "" || backend.Host == "" {
		logger.Fatal().Err(err).Str("backend_url", opts.BackendURL).Msg("invalid backend URL")
	}

	ignore, err := loadIgnoreSet(ctx, opts.Meter.IgnoreProjects, opts.Identity)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build project ignore list")
	}

	pub, err := publisher.New(ctx, opts.Publisher)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", opts.Publisher.Driver).Msg("failed to create notification publisher")
	}

	pipeline := notify.NewPipeline(pub, opts.Notify)
	if err := pipeline.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start event sender")
	}
	debug.RegisterHandlerFunc("/debug/pipeline", pipelineStatsHandler(pipeline))
	debug.AddReadyCheck("event_sender", pipeline.SenderAlive)

	handler := meter.Middleware(opts.Meter, ignore, pipeline)(newBackendProxy(backend))

	debugServer := startHTTPServer(debug.GetMux(), opts.DebugAddr, 0)
	httpServer := startHTTPServer(handler, opts.ListenAddr, opts.IOTimeout)

	logger.Info().
		Str("listen_addr", opts.ListenAddr).
		Str("backend_url", backend.Redacted()).
		Str("driver", pub.Name()).
		Bool("nonblocking_notify", opts.Notify.NonblockingNotify).
		Int("ignored_projects", len(ignore)).
		Msg("metering proxy started")

	debug.SetReady()

	waitForShutdown()

	debug.SetNotReady()
	logger.Info().Msg("shutting down metering proxy")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("proxy shutdown incomplete")
	}
	if err := pipeline.Stop(shutdownCtx); err != nil {
		stats := pipeline.Stats()
		logger.Warn().Err(err).
			Uint64("dropped", stats.Dropped).
			Msg("event sender did not drain before shutdown deadline")
	}
	if err := pub.Close(); err != nil {
		logger.Warn().Err(err).Str("driver", pub.Name()).Msg("failed to close publisher")
	}
	debugServer.Shutdown(shutdownCtx)
}

func loadServeOpts(cmd *cobra.Command) ServeOpts {
	f := NewFlagLoader(cmd)

	opts := ServeOpts{
		ListenAddr:      f.String("listen_addr"),
		DebugAddr:       f.String("debug_addr"),
		BackendURL:      f.String("backend_url"),
		IOTimeout:       f.Duration("io_timeout"),
		ShutdownTimeout: f.Duration("shutdown_timeout"),
		Meter:           meter.DefaultConfig(),
		Notify:          notify.DefaultConfig(),
		Publisher:       publisher.DefaultConfig(),
	}

	// Sections in the config file give the full per-package settings. Flat
	// flags and ZAPAUDIT_* variables override the common ones.
	unmarshalSection("meter", &opts.Meter)
	unmarshalSection("notify", &opts.Notify)
	unmarshalSection("publisher", &opts.Publisher)
	unmarshalSection("identity", &opts.Identity)

	if f.IsSet("metadata_headers") {
		opts.Meter.MetadataHeaders = f.List("metadata_headers")
	}
	if f.IsSet("reseller_prefix") {
		opts.Meter.ResellerPrefix = f.String("reseller_prefix")
	}
	if f.IsSet("ignore_projects") {
		opts.Meter.IgnoreProjects = f.List("ignore_projects")
	}

	if f.IsSet("nonblocking_notify") {
		opts.Notify.NonblockingNotify = f.Bool("nonblocking_notify")
	}
	if f.IsSet("send_queue_size") {
		opts.Notify.SendQueueSize = f.Int("send_queue_size")
	}
	if f.IsSet("send_timeout") {
		opts.Notify.SendTimeout = f.Duration("send_timeout")
	}
	if f.IsSet("publisher_id") {
		opts.Notify.PublisherID = f.String("publisher_id")
	}

	if f.IsSet("driver") {
		opts.Publisher.Driver = f.String("driver")
	}
	if f.IsSet("url") {
		opts.Publisher.URL = f.String("url")
	}
	if f.IsSet("topic") {
		opts.Publisher.Topic = f.String("topic")
	}
	if f.IsSet("control_exchange") {
		opts.Publisher.ControlExchange = f.String("control_exchange")
	}

	if f.IsSet("auth_url") {
		opts.Identity.AuthURL = f.String("auth_url")
	}

	opts.Meter.Validate()
	opts.Notify.Validate()
	opts.Publisher.Validate()
	opts.Identity.Validate()
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	return opts
}

// loadIgnoreSet resolves the ignore list. Names are resolved through Keystone
// when an identity service is configured; without one, entries are taken as
// literal project ids. A nil list means "not configured" and falls back to
// meter.DefaultIgnoreProjects when Keystone is available.
func loadIgnoreSet(ctx context.Context, entries []string, cfg identity.Config) (meter.IgnoreSet, error) {
	if !cfg.Enabled() {
		return meter.BuildIgnoreSet(ctx, entries, nil)
	}

	resolver, err := identity.NewKeystoneResolver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = meter.DefaultIgnoreProjects
	}
	return meter.BuildIgnoreSet(ctx, entries, resolver)
}

// newBackendProxy forwards requests to the storage backend.
func newBackendProxy(target *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.Canceled) {
			logger.Debug().Str("path", r.URL.Path).Msg("client went away during proxied request")
		} else {
			logger.Warn().Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("backend request failed")
		}
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy
}

func pipelineStatsHandler(p *notify.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.Stats())
	}
}

func startHTTPServer(handler http.Handler, addr string, timeout time.Duration) *http.Server {
	listener, err := utils.NewListener(addr, timeout)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("failed to create HTTP listener")
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info().Str("http_addr", listener.Addr().String()).Msg("Starting HTTP server")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	return httpServer
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan
}
