package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Iron-Ham/baton/internal/config"
	"github.com/Iron-Ham/baton/internal/logging"
	"github.com/Iron-Ham/baton/internal/sink"
)

// newTracerProvider exports spans as JSON to w. Shutdown flushes them.
func newTracerProvider(w io.Writer, pretty bool) (*sdktrace.TracerProvider, error) {
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exp, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}

// serveMetrics exposes reg on addr in the background. It returns the bound
// address and a function that shuts the server down.
func serveMetrics(addr, path string, reg *prometheus.Registry, logger *logging.Logger) (string, func(), error) {
	if path == "" {
		path = "/metrics"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err.Error())
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return ln.Addr().String(), shutdown, nil
}

// openSinks connects every enabled sink and forwards matching hub events
// to it. On error the sinks opened so far are closed.
func openSinks(ctx context.Context, cfg config.SinksConfig, bus sink.Subscriber) ([]sink.Sink, error) {
	type spec struct {
		name    string
		enabled bool
		pattern string
		open    func() (sink.Sink, error)
	}
	specs := []spec{
		{"redis", cfg.Redis.Enabled, cfg.Redis.Pattern, func() (sink.Sink, error) {
			return sink.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Channel)
		}},
		{"nats", cfg.NATS.Enabled, cfg.NATS.Pattern, func() (sink.Sink, error) {
			return sink.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject)
		}},
		{"kafka", cfg.Kafka.Enabled, cfg.Kafka.Pattern, func() (sink.Sink, error) {
			return sink.DialKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		}},
	}

	var opened []sink.Sink
	for _, s := range specs {
		if !s.enabled {
			continue
		}
		snk, err := s.open()
		if err != nil {
			closeSinks(opened, nil)
			return nil, fmt.Errorf("failed to open %s sink: %w", s.name, err)
		}
		opened = append(opened, snk)
		if _, err := sink.Forward(bus, snk, sink.ForwardOptions{Pattern: s.pattern}); err != nil {
			closeSinks(opened, nil)
			return nil, fmt.Errorf("failed to forward events to %s sink: %w", s.name, err)
		}
	}
	return opened, nil
}

func closeSinks(sinks []sink.Sink, logger *logging.Logger) {
	for _, s := range sinks {
		if err := s.Close(); err != nil && logger != nil {
			logger.Warn("failed to close event sink", "error", err.Error())
		}
	}
}
