// Package injector builds the runtime object graph with google/wire.
package injector

import (
	"net/http"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zeusync/substrate/internal/config"
	"github.com/zeusync/substrate/internal/core/events/bus"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/internal/core/observability/metrics"
	"github.com/zeusync/substrate/internal/core/visibility"
	"github.com/zeusync/substrate/internal/core/world"
	"github.com/zeusync/substrate/internal/server"
)

// App is everything cmd/server needs to run.
type App struct {
	Config *config.Config
	Logger *log.Logger
	Bus    bus.EventBus
	Level  *visibility.GridLevel
	World  *world.World
	Hub    *server.Hub
	Server *server.Server
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideLevel,
	ProvideBus,
	ProvideWorld,
	ProvideHub,
	ProvideRegistry,
	ProvideMetricsHandler,
	ProvideServer,
)

func ProvideLogger(cfg *config.Config) (*log.Logger, func()) {
	logger := log.New(cfg.Logging.LogConfig())
	return logger, logger.Sync
}

func ProvideLevel(cfg *config.Config) (*visibility.GridLevel, error) {
	return visibility.NewGridLevel(cfg.Level)
}

func ProvideBus(logger log.Log) bus.EventBus {
	b := bus.New()
	b.AddObserver(bus.LogObserver{Logger: logger.With(log.String("component", "bus"))})
	return b
}

func ProvideWorld(cfg *config.Config, level *visibility.GridLevel, logger log.Log, b bus.EventBus) (*world.World, error) {
	return world.New(cfg.World, level, world.WithLogger(logger), world.WithBus(b))
}

// ProvideHub builds the replication hub and attaches it to w.
func ProvideHub(cfg *config.Config, w *world.World, level *visibility.GridLevel, logger log.Log) *server.Hub {
	hub := server.NewHub(w, level, cfg.Server.SendBuffer, logger)
	w.SetReplicator(hub)
	return hub
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetricsHandler(reg *prometheus.Registry, w *world.World) (http.Handler, error) {
	if err := metrics.Register(reg, w); err != nil {
		return nil, err
	}
	return metrics.Handler(reg), nil
}

func ProvideServer(cfg *config.Config, hub *server.Hub, h http.Handler, logger log.Log) *server.Server {
	return server.New(cfg.Server, hub, h, logger)
}
