package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/usagecast/usagecast/api/status"
	"github.com/usagecast/usagecast/config"
	"github.com/usagecast/usagecast/core/events"
	coremetrics "github.com/usagecast/usagecast/core/metrics"
	"github.com/usagecast/usagecast/core/model"
	"github.com/usagecast/usagecast/core/notify"
	"github.com/usagecast/usagecast/core/template"
	"github.com/usagecast/usagecast/infra/logger"
	"github.com/usagecast/usagecast/infra/metrics"
	"github.com/usagecast/usagecast/infra/mqtt"
	"github.com/usagecast/usagecast/infra/store"
	"github.com/usagecast/usagecast/infra/webhook"
	"github.com/usagecast/usagecast/internal/eventbus"
)

// Service wires the stores, transports, publishers and servers together.
type Service struct {
	Bus     *eventbus.Bus
	Manager *mqtt.Manager
	MQTT    *notify.MQTTPublisher
	Webhook *notify.WebhookPublisher

	cfg    config.Config
	sink   coremetrics.MetricsSink
	sqlite *store.SQLite
	influx *metrics.InfluxSink
	log    logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	svc := &Service{cfg: *cfg, log: logg}

	type configStore interface {
		notify.ResourceStore
		notify.MQTTConfigStore
		notify.WebhookConfigStore
		mqtt.ServerSource
	}
	var st configStore
	switch {
	case cfg.Store.SQLitePath != "":
		db, err := store.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		svc.sqlite = db
		st = db
	case cfg.Store.File != "":
		mem, err := store.LoadFile(cfg.Store.File)
		if err != nil {
			return nil, fmt.Errorf("load store file: %w", err)
		}
		st = mem
	default:
		logg.Warnf("no store configured, starting with an empty in-memory store")
		st = store.NewMemory()
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		if is, ok := sink.(*metrics.InfluxSink); ok {
			svc.influx = is
		}
		sinks = append(sinks, sink)
	}
	var sink coremetrics.MetricsSink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}
	svc.sink = sink

	svc.Bus = eventbus.New()
	monitor := mqtt.NewMonitor(sink)
	svc.Manager = mqtt.NewManager(st, monitor, logger.New("mqtt"))

	renderer := template.NewRenderer()
	sender := webhook.NewSender(logger.New("webhook"))

	svc.MQTT = notify.NewMQTTPublisher(
		svc.Bus, st, st, svc.Manager, renderer,
		notify.MQTTRetryPolicy{
			MaxRetries:    cfg.MQTT.MaxRetries,
			RetryDelay:    time.Duration(cfg.MQTT.RetryDelayMs) * time.Millisecond,
			SweepInterval: time.Duration(cfg.MQTT.SweepIntervalMs) * time.Millisecond,
		},
		logger.New("mqtt-publisher"),
	)
	svc.Webhook = notify.NewWebhookPublisher(
		svc.Bus, st, st, sender, renderer,
		time.Duration(cfg.Webhook.SweepIntervalMs)*time.Millisecond,
		logger.New("webhook-publisher"),
	)
	return svc, nil
}

// Run starts the publishers, the metrics collector and the HTTP servers, then
// blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.MQTT.Start(ctx)
	s.Webhook.Start(ctx)
	metrics.StartEventCollector(ctx, s.Bus, s.sink)

	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	mux := status.NewMux(s.Manager, s.Manager, s.Webhook, s.cfg.API.Token)
	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
	}()
	s.log.Infof("admin api listening on %s", s.cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// EmitUsageStarted publishes a synthetic usage event, used by the cli.
func (s *Service) EmitUsageStarted(resourceID int, username string) {
	s.Bus.Publish(events.UsageStartedEvent{
		ResourceID: resourceID,
		StartTime:  time.Now(),
		User:       model.User{ID: 0, Username: username},
	})
}

// Close releases resources held by the service. The connection manager
// shutdown is awaited so in-flight disconnects finish before exit.
func (s *Service) Close() error {
	s.MQTT.Stop()
	s.Webhook.Stop()
	closed := s.Manager.Shutdown()
	s.log.Infof("closed %d mqtt connections", closed)
	s.Bus.Close()
	if s.influx != nil {
		s.influx.Close()
	}
	if s.sqlite != nil {
		return s.sqlite.Close()
	}
	return nil
}
