// Command smtpd runs the server-side SMTP session engine described in
// SPEC_FULL.md: one listener per configured address/mode, each handed off
// to internal/smtpd's Engine.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/infodancer/smtpd/internal/auth"
	"github.com/infodancer/smtpd/internal/collab"
	"github.com/infodancer/smtpd/internal/config"
	dnsresolver "github.com/infodancer/smtpd/internal/dns"
	"github.com/infodancer/smtpd/internal/metrics"
	"github.com/infodancer/smtpd/internal/mfa"
	"github.com/infodancer/smtpd/internal/queue"
	"github.com/infodancer/smtpd/internal/smtpd"
)

func main() {
	flags := config.ParseFlags()

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	var tlsConfig *tls.Config
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading TLS certificate: %v\n", err)
			os.Exit(1)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   cfg.TLS.MinTLSVersion(),
		}
		logger.Info("TLS configured", slog.String("cert", cfg.TLS.CertFile), slog.String("min_version", cfg.TLS.MinVersion))
	}

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	resolver := dnsresolver.NewResolver()
	defer resolver.Close()

	policy := mfa.NewPolicy(cfg.Mfa.AllowList, cfg.Mfa.DenyList, cfg.Mfa.DataLineEnabled)

	spool, err := queue.New(cfg.Spool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening spool: %v\n", err)
		os.Exit(1)
	}

	var authCollab collab.Auth
	if cfg.Auth.PasswdFile != "" {
		authAgent, err := auth.Open(cfg.Auth.PasswdFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening auth backend: %v\n", err)
			os.Exit(1)
		}
		defer authAgent.Close()
		authCollab = authAgent
	}

	engine := smtpd.NewEngine(resolver, policy, spool, authCollab, collector, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("metrics server error", slog.String("error", err.Error()))
			}
		}()
		logger.Info("metrics server started", slog.String("address", cfg.Metrics.Address))
	}

	logger.Info("starting smtpd", slog.String("hostname", cfg.Hostname), slog.Int("listeners", len(cfg.Listeners)))

	var wg sync.WaitGroup
	for _, l := range cfg.Listeners {
		l := l
		lnCfg, err := listenerConfig(cfg, l, tlsConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error configuring listener %s: %v\n", l.Address, err)
			os.Exit(1)
		}

		ln, err := net.Listen("tcp", l.Address)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error listening on %s: %v\n", l.Address, err)
			os.Exit(1)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("listening", slog.String("address", l.Address), slog.String("mode", string(l.Mode)))
			if err := engine.Serve(ctx, ln, lnCfg); err != nil {
				logger.Error("listener error", slog.String("address", l.Address), slog.String("error", err.Error()))
			}
		}()
	}

	wg.Wait()
	logger.Info("smtpd stopped")
}

// listenerConfig translates the TOML-facing config.ListenerConfig into the
// engine-facing smtpd.ListenerConfig for one listener.
func listenerConfig(cfg config.Config, l config.ListenerConfig, tlsConfig *tls.Config) (smtpd.ListenerConfig, error) {
	limits := smtpd.Limits{
		MaxMail:        cfg.Limits.MaxMail,
		MaxRcpt:        cfg.Limits.MaxRcpt,
		KickThreshold:  cfg.Limits.KickThreshold,
		MaxLineLength:  cfg.Limits.MaxLineLength,
		MaxMessageSize: cfg.Limits.MaxMessageSize,
		IdleTimeout:    int64(cfg.Timeouts.IdleTimeout().Seconds()),
	}

	var mode smtpd.ListenerMode
	switch l.Mode {
	case config.ModeSMTP:
		mode = smtpd.ModeSMTP
	case config.ModeSubmission:
		mode = smtpd.ModeSubmission
	case config.ModeSMTPS:
		mode = smtpd.ModeSMTPS
		if tlsConfig == nil {
			return smtpd.ListenerConfig{}, fmt.Errorf("smtps listener requires tls configuration")
		}
	default:
		return smtpd.ListenerConfig{}, fmt.Errorf("unknown listener mode %q", l.Mode)
	}

	return smtpd.ListenerConfig{
		Mode:            mode,
		TLSConfig:       tlsConfig,
		AllowSTARTTLS:   tlsConfig != nil && mode != smtpd.ModeSMTPS,
		RequireSTARTTLS: mode == smtpd.ModeSubmission,
		AllowAUTH:       mode == smtpd.ModeSubmission || l.RequireAuth,
		RequireAUTH:     l.RequireAuth,
		Hostname:        cfg.Hostname,
		Limits:          limits,
	}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
