// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fasthttp/router"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/royalcat/hgeoroute/engine"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/locator"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const MaxBodySize = 8 * 1000 * 1000 // 8MB

// Engine is the set of operations the handlers serve.
type Engine interface {
	ListPoints(ctx context.Context) (geomodel.PointList, error)
	SearchBound(ctx context.Context, b orb.Bound) (geomodel.PointList, error)
	FindRoute(ctx context.Context, start, end string, expand bool) (engine.Route, error)
	ShortestPath(ctx context.Context, ids []string, start, end string) (geomodel.Route, error)
	Cluster(ctx context.Context, ids []string, k int, seed int64) ([][]string, error)
	Tour(ctx context.Context, ids []string, start string) (geomodel.Route, error)
	Nearest(ctx context.Context, lat, lng float64) (locator.Match, bool, error)
	Stats(ctx context.Context) (engine.Stats, error)
}

type Config struct {
	Address string
	// RouteTimeout bounds a single route search.
	RouteTimeout time.Duration
}

// Run serves until ctx is done. Telemetry must be set up before, the
// instruments are taken from the global meter provider.
func Run(ctx context.Context, cfg Config, e Engine) error {
	log := slog.Default().With("component", "server")

	s, err := newServer(e, cfg.RouteTimeout, log)
	if err != nil {
		return fmt.Errorf("failed to initialize otel metrics: %w", err)
	}

	server := &fasthttp.Server{
		ReadTimeout:        5 * time.Second,
		MaxRequestBodySize: MaxBodySize,
		Handler:            s.handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", "address", cfg.Address)
		if err := server.ListenAndServe(cfg.Address); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}

type server struct {
	engine       Engine
	routeTimeout time.Duration
	metrics      *metrics
	log          *slog.Logger
}

func newServer(e Engine, routeTimeout time.Duration, log *slog.Logger) (*server, error) {
	m, err := newMetrics()
	if err != nil {
		return nil, err
	}
	if routeTimeout <= 0 {
		routeTimeout = 10 * time.Second
	}
	return &server{engine: e, routeTimeout: routeTimeout, metrics: m, log: log}, nil
}

func (s *server) handler() fasthttp.RequestHandler {
	r := router.New()
	r.GET("/points", s.instrument("points", s.ListPointsHandler))
	r.POST("/points/search", s.instrument("points_search", s.SearchHandler))
	r.GET("/route/{start}/{end}", s.instrument("route", s.RouteHandler))
	r.POST("/route/dijkstra", s.instrument("dijkstra", s.DijkstraHandler))
	r.POST("/route/kmeans", s.instrument("kmeans", s.KMeansHandler))
	r.POST("/route/tsp", s.instrument("tsp", s.TourHandler))
	r.GET("/nearest/{lat}/{lng}", s.instrument("nearest", s.NearestHandler))
	r.GET("/stats", s.instrument("stats", s.StatsHandler))
	r.Handle(http.MethodGet, "/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	return r.Handler
}
