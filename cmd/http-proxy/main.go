package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/safareli/http-proxy/internal/buildinfo"
	"github.com/safareli/http-proxy/internal/profiler"
	"github.com/safareli/http-proxy/internal/proxycore"
	"github.com/safareli/http-proxy/pkg/approval"
	"github.com/safareli/http-proxy/pkg/config"
	"github.com/safareli/http-proxy/pkg/http/middleware"
	"github.com/safareli/http-proxy/pkg/mediator"
	"github.com/safareli/http-proxy/pkg/observability"
	"github.com/safareli/http-proxy/pkg/observability/log"
	"github.com/safareli/http-proxy/pkg/observability/metrics"
	"github.com/safareli/http-proxy/pkg/openapiindex"
	"github.com/safareli/http-proxy/pkg/policystore"
)

var (
	rootCmd = &cobra.Command{
		Use:     "http-proxy",
		Short:   "TLS-intercepting approval proxy",
		Long:    `A TLS-terminating forward proxy that detects fake credentials, mediates each request through an approval transport, and rewrites fakes with real secrets before forwarding.`,
		Version: buildinfo.String(),
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy's HTTP and HTTPS listeners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SetGlobalNormalizationFunc(wordSepNormalizeFunc)
	rootCmd.SetVersionTemplate("{{.Short}}\n{{.Version}}\n")

	serveCmd.Flags().String("config", "proxy-config.json", "path to the persisted config document")
	serveCmd.Flags().String("listen-http", ":80", "plaintext listener address")
	serveCmd.Flags().String("listen-https", ":443", "TLS listener address")
	serveCmd.Flags().String("cert-dir", "", "directory of per-host leaf cert/key pairs")
	serveCmd.Flags().String("control-addr", "127.0.0.1:9090", "loopback admin address for /healthz,/metrics")
	serveCmd.Flags().Duration("approval-timeout", 4*time.Minute, "bound on ApprovalTransport.Request")
	serveCmd.Flags().String("log-file", "", "path to log file (default: stderr)")
	serveCmd.Flags().String("log-format", "text", `"text" or "json" log/slog handler`)
	serveCmd.Flags().String("log-level", "info", "debug|info|warn|error")
	serveCmd.Flags().String("upstream-scheme", "https", "scheme used to reach the upstream origin")

	for _, name := range []string{
		"config", "listen-http", "listen-https", "cert-dir", "control-addr",
		"approval-timeout", "log-file", "log-format", "log-level", "upstream-scheme",
	} {
		_ = viper.BindPFlag(name, serveCmd.Flags().Lookup(name))
	}

	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	viper.SetEnvPrefix("proxy")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func wordSepNormalizeFunc(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func main() {
	ctx, stop := signalContext()
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	logWriter, closeLog, err := openLogWriter(viper.GetString("log-file"))
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()

	var slogHandler slog.Handler
	handlerOpts := &slog.HandlerOptions{Level: slogLevel(viper.GetString("log-level"))}
	if viper.GetString("log-format") == "json" {
		slogHandler = slog.NewJSONHandler(logWriter, handlerOpts)
	} else {
		slogHandler = slog.NewTextHandler(logWriter, handlerOpts)
	}
	registry := prometheus.NewRegistry()
	exporters := observability.NewExporters(
		log.NewSlogLogger(slog.New(slogHandler), log.ParseLevel(viper.GetString("log-level"))),
		metrics.NewPrometheusMetrics(registry),
	)
	logger := exporters.Logger(ctx)
	metricsSink := exporters.Metrics(ctx)

	configPath := viper.GetString("config")
	cfgStore := config.New(configPath)
	hosts, err := cfgStore.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	logger.Info("loaded config", log.String("path", configPath), log.Int("hosts", len(hosts)))

	store := policystore.New(hosts, cfgStore)
	openAPIIndex := openapiindex.New("http-proxy-openapi")

	approvalTimeout := viper.GetDuration("approval-timeout")
	transport := approval.NewCLITransport(os.Stdin, os.Stderr, approvalTimeout)

	med := &mediator.Mediator{
		PolicyStore:       store,
		OpenAPIIndex:      openAPIIndex,
		ApprovalTransport: transport,
		Logger:            logger,
		Metrics:           metricsSink,
	}

	srv := &proxycore.Server{
		Mediator: med,
		Upstream: proxycore.NewUpstreamClient("http-proxy/"+buildinfo.Version, 255*time.Second),
		Scheme:   viper.GetString("upstream-scheme"),
		Logger:   logger,
		Metrics:  metricsSink,
		Profiler: profiler.New(slog.New(slogHandler), profiler.IsProfilingEnabled()),
	}
	handler := middleware.WithRequestConfig(srv)

	group, groupCtx := newServerGroup(ctx)

	httpAddr := viper.GetString("listen-http")
	group.add("http listener", func(ctx context.Context) error {
		return runPlainListener(ctx, httpAddr, handler, logger, "http listener")
	})

	certDir := viper.GetString("cert-dir")
	httpsAddr := viper.GetString("listen-https")
	if certDir != "" {
		group.add("https listener", func(ctx context.Context) error {
			return runHTTPSListener(ctx, httpsAddr, certDir, handler, logger)
		})
	} else {
		logger.Warn("no --cert-dir configured; TLS listener disabled")
	}

	controlAddr := viper.GetString("control-addr")
	group.add("control plane", func(ctx context.Context) error {
		return runPlainListener(ctx, controlAddr, proxycore.NewControlPlane(registry), logger, "control plane")
	})

	return group.wait(groupCtx)
}

func runPlainListener(ctx context.Context, addr string, handler http.Handler, logger log.Logger, name string) error {
	httpSrv := &http.Server{Addr: addr, Handler: handler, IdleTimeout: 255 * time.Second}
	return runListener(ctx, name, addr, logger, httpSrv, httpSrv.ListenAndServe)
}

func runHTTPSListener(ctx context.Context, addr, certDir string, handler http.Handler, logger log.Logger) error {
	certStore := proxycore.NewCertStore(certDir)
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		IdleTimeout: 255 * time.Second,
		TLSConfig:   &tls.Config{GetCertificate: certStore.GetCertificate},
	}
	return runListener(ctx, "https listener", addr, logger, httpSrv, func() error {
		return httpSrv.ListenAndServeTLS("", "")
	})
}

func runListener(ctx context.Context, name, addr string, logger log.Logger, httpSrv *http.Server, serve func() error) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", log.String("listener", name), log.String("addr", addr))
		if err := serve(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openLogWriter(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func slogLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
