package main

import (
	"context"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hanpama/apqgate/internal/apq"
	"github.com/hanpama/apqgate/internal/cache"
	"github.com/hanpama/apqgate/internal/codec"
	eventbus "github.com/hanpama/apqgate/internal/eventbus"
	"github.com/hanpama/apqgate/internal/executor"
	"github.com/hanpama/apqgate/internal/metrics"
	"github.com/hanpama/apqgate/internal/otel"
	"github.com/hanpama/apqgate/internal/server"
	"github.com/hanpama/apqgate/internal/upstream"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := newConf(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(conf.GetBool("log.dev"))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, conf, logger)
		},
	}
	fs := cmd.Flags()
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("path", "/graphql", "GraphQL endpoint path")
	fs.Duration("timeout", 10*time.Second, "Per-request timeout")
	fs.Bool("pretty", false, "Pretty-print JSON responses")
	fs.String("max-body", "1MiB", "Largest accepted request body")
	fs.StringSlice("cors", nil, "Allowed CORS origins; * allows any")
	fs.StringSlice("forward-header", nil, "HTTP header passed on to the upstream. Repeatable")

	fs.Bool("apq.enabled", true, "Accept automatic persisted queries")
	fs.String("apq.max-query-size", "", "Largest query accepted for registration, e.g. 64KiB; empty is unbounded")
	fs.Duration("apq.ttl", 0, "Lifetime hint for registered queries; 0 uses the cache default")

	fs.String("cache.backend", cache.BackendMemory, "Persisted query store: memory or badger")
	fs.String("cache.size", "64MiB", "Memory cache budget")
	fs.Duration("cache.ttl", 0, "Default entry lifetime; 0 keeps entries until evicted")
	fs.String("cache.dir", "", "Badger directory; empty runs badger in memory")
	fs.String("cache.manifest", "", "Operation manifest preloaded into the cache at startup")

	fs.StringSlice("upstream.url", nil, "Upstream GraphQL endpoint. Repeatable; empty serves the demo schema")
	fs.Duration("upstream.timeout", 10*time.Second, "Upstream request timeout")
	fs.Int("upstream.retries", 2, "Retries for failed upstream queries; mutations are never retried")

	fs.String("otel.endpoint", "", "OTLP collector endpoint")
	fs.String("otel.service", "apqgate", "OpenTelemetry service name")
	fs.String("metrics.path", "/metrics", "Prometheus endpoint path; empty disables metrics")
	addLoggingFlags(fs)
	return cmd
}

func serve(ctx context.Context, conf *viper.Viper, logger *zap.Logger) error {
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)

	shutdown, err := otel.Setup(ctx, bus, conf.GetString("otel.endpoint"), conf.GetString("otel.service"))
	if err != nil {
		return errors.Wrap(err, "otel setup")
	}
	defer func() { _ = shutdown(context.Background()) }()

	mux, cleanup, err := buildMux(ctx, conf, logger, bus, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{Addr: conf.GetString("addr"), Handler: mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("GraphQL server listening", zap.String("addr", srv.Addr), zap.String("path", conf.GetString("path")))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(sctx)
}

// buildMux wires the cache, resolver, executor and handler described by conf.
// cleanup releases the cache and upstream transport.
func buildMux(ctx context.Context, conf *viper.Viper, logger *zap.Logger, bus *eventbus.Bus,
	reg prometheus.Registerer, gatherer prometheus.Gatherer) (mux *http.ServeMux, cleanup func(), err error) {
	var closers []func() error
	cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				logger.Warn("close", zap.Error(cerr))
			}
		}
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	exec, closeExec, err := buildExecutor(conf, logger)
	if err != nil {
		return nil, nil, err
	}
	if closeExec != nil {
		closers = append(closers, closeExec)
	}

	maxBody, err := humanize.ParseBytes(conf.GetString("max-body"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid max-body")
	}
	sopts := []server.Option{
		server.WithTimeout(conf.GetDuration("timeout")),
		server.WithMaxBodyBytes(int64(maxBody)),
		server.WithLogger(logger.Named("server")),
	}
	if conf.GetBool("pretty") {
		sopts = append(sopts, server.WithPretty())
	}
	if origins := conf.GetStringSlice("cors"); len(origins) > 0 {
		sopts = append(sopts, server.WithCORS(origins...))
	}
	if hdrs := conf.GetStringSlice("forward-header"); len(hdrs) > 0 {
		sopts = append(sopts, server.WithForwardHeaders(hdrs...))
	}

	if conf.GetBool("apq.enabled") {
		store, err := cache.Open(cache.Config{
			Backend: conf.GetString("cache.backend"),
			MaxSize: conf.GetString("cache.size"),
			TTL:     conf.GetDuration("cache.ttl"),
			Dir:     conf.GetString("cache.dir"),
		}, logger.Named("cache"))
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, store.Close)

		maxQuery, err := parseQuerySize(conf.GetString("apq.max-query-size"))
		if err != nil {
			return nil, nil, err
		}
		copts := apq.CacheOptions{TTL: conf.GetDuration("apq.ttl")}
		if path := conf.GetString("cache.manifest"); path != "" {
			m, err := cache.LoadManifest(path)
			if err != nil {
				return nil, nil, err
			}
			n, err := cache.Preload(ctx, store, m, copts)
			if err != nil {
				return nil, nil, err
			}
			logger.Info("manifest preloaded", zap.String("path", path), zap.Int("operations", n))
		}
		resolver, err := apq.NewResolver(store,
			apq.WithDecoder(codec.JSON{}),
			apq.WithMaxQuerySize(maxQuery),
			apq.WithTTL(copts.TTL),
			apq.WithLogger(logger.Named("apq")),
		)
		if err != nil {
			return nil, nil, err
		}
		sopts = append(sopts, server.WithAPQ(resolver))
	}

	h, err := server.New(exec, sopts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "server init")
	}
	mux = http.NewServeMux()
	mux.Handle(conf.GetString("path"), h)

	if path := conf.GetString("metrics.path"); path != "" {
		_, stop, err := metrics.Register(reg, bus)
		if err != nil {
			return nil, nil, errors.Wrap(err, "metrics")
		}
		closers = append(closers, func() error { stop(); return nil })
		mux.Handle(path, metrics.Handler(gatherer))
	}
	return mux, cleanup, nil
}

func buildExecutor(conf *viper.Viper, logger *zap.Logger) (executor.Executor, func() error, error) {
	urls := conf.GetStringSlice("upstream.url")
	if len(urls) == 0 {
		logger.Info("no upstream configured, serving the demo schema")
		demo, err := executor.NewDemo()
		return demo, nil, err
	}
	provider, err := upstream.NewStaticEndpoints(urls...)
	if err != nil {
		return nil, nil, err
	}
	tr := upstream.New(
		upstream.WithProvider(provider),
		upstream.WithTimeout(conf.GetDuration("upstream.timeout")),
		upstream.WithRetryMax(conf.GetInt("upstream.retries")),
		upstream.WithLogger(logger.Named("upstream")),
	)
	return tr, tr.Close, nil
}

// parseQuerySize reads a byte size such as "64KiB". Empty or "unbounded"
// disables the limit.
func parseQuerySize(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unbounded") {
		return apq.Unbounded, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid apq.max-query-size %q", s)
	}
	if n > math.MaxInt {
		return 0, errors.Errorf("invalid apq.max-query-size %q: too large", s)
	}
	return int(n), nil
}
