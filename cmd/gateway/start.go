package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/knowable-run/chain-metrics-gateway/internal/api"
	"github.com/knowable-run/chain-metrics-gateway/internal/cache"
	"github.com/knowable-run/chain-metrics-gateway/internal/chain"
	"github.com/knowable-run/chain-metrics-gateway/internal/config"
	"github.com/knowable-run/chain-metrics-gateway/internal/location"
	"github.com/knowable-run/chain-metrics-gateway/internal/store"
	"github.com/knowable-run/chain-metrics-gateway/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Warm-up geolocates every peer sequentially, which can take a while on
// first start.
const startTimeout = 5 * time.Minute

func start(cfg *config.Config, log *zap.Logger) error {
	app := fx.New(appOptions(cfg, log), fx.StartTimeout(startTimeout))
	app.Run()
	return app.Err()
}

// appOptions wires the gateway. Every constructor is listed here so tests can
// start the same graph.
func appOptions(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			newStore,
			newHTTPClient,
			upstream.NewWithClient,
			newChainClient,
			newLocator,
			newLocationSource,
			api.NewSources,
			newScheduler,
			api.NewDispatcher,
			newHandler,
		),
		fx.Invoke(registerServer),
	)
}

func newStore(lc fx.Lifecycle, cfg *config.Config) (store.Store, error) {
	codec, err := store.CodecByName(cfg.Compression)
	if err != nil {
		return nil, err
	}
	s, err := store.NewFileStore(cfg.Cache, codec)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(s.Close))
	return s, nil
}

func newHTTPClient(cfg *config.Config, log *zap.Logger) *http.Client {
	return upstream.NewHTTPClient(upstream.Options{
		Timeout:  cfg.UpstreamTimeout(),
		RetryMax: cfg.Upstream.RetryMax,
		Logger:   log,
	})
}

func newChainClient(lc fx.Lifecycle, cfg *config.Config, c *http.Client, log *zap.Logger) (chain.Querier, error) {
	client, err := chain.NewClient(cfg, c, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(client.Close))
	return client, nil
}

func newLocator(cfg *config.Config, c *upstream.Client) location.Locator {
	return location.NewIPAPIClient(cfg.Geolocation.URL, c, cfg.Geolocation.CacheSize, cfg.GeoCacheTTL())
}

func newLocationSource(cfg *config.Config, c *upstream.Client, geo location.Locator, log *zap.Logger) api.LocationSource {
	return location.NewAggregator(c, cfg.RPC, cfg.AddressBookURL, geo, log)
}

func newScheduler(sources *api.Sources, log *zap.Logger) (*cache.Scheduler, error) {
	sched := cache.NewScheduler(log)
	if err := sources.Register(sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func newHandler(d *api.Dispatcher, sched *cache.Scheduler) http.Handler {
	return api.NewServer(d, sched)
}

// registerServer warms the cache before the listener opens, then starts the
// refresh loop.
func registerServer(lc fx.Lifecycle, cfg *config.Config, sched *cache.Scheduler, handler http.Handler, log *zap.Logger) {
	log = log.Named("server")
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sched.WarmUp(ctx); err != nil {
				log.Warn("Cache warm-up incomplete, failed keys will be retried on the next refresh", zap.Error(err))
			}

			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Server stopped", zap.Error(err))
				}
			}()
			log.Info("Server started", zap.String("address", srv.Addr))

			sched.Start(cfg.RefreshInterval())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := sched.Stop(ctx); err != nil {
				log.Warn("Refresh loop did not stop in time", zap.Error(err))
			}
			return srv.Shutdown(ctx)
		},
	})
}
