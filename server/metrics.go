package server

import (
	"time"

	"github.com/royalcat/hgeoroute/router"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/royalcat/hgeoroute/server")

type metrics struct {
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	routeLookups metric.Int64Counter
	expansions   metric.Int64Histogram
	routeErrors  metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	var (
		m   metrics
		err error
	)
	m.requests, err = meter.Int64Counter("http_request_total")
	if err != nil {
		return nil, err
	}
	m.duration, err = meter.Float64Histogram("http_request_duration", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	m.routeLookups, err = meter.Int64Counter("route_lookup_total",
		metric.WithDescription("answered route queries by the tier that answered"))
	if err != nil {
		return nil, err
	}
	m.expansions, err = meter.Int64Histogram("route_search_expansions",
		metric.WithExplicitBucketBoundaries(1, 10, 100, 1_000, 10_000, 100_000, 1_000_000))
	if err != nil {
		return nil, err
	}
	m.routeErrors, err = meter.Int64Counter("route_error_total")
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *server) instrument(name string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
	handler := attribute.String("handler", name)
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		h(ctx)
		status := attribute.Int("status", ctx.Response.StatusCode())
		s.metrics.requests.Add(ctx, 1, metric.WithAttributes(handler, status))
		s.metrics.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(handler))
	}
}

func (s *server) recordRoute(ctx *fasthttp.RequestCtx, source router.Source, expansions int) {
	s.metrics.routeLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
	if source == router.SourceSearch {
		s.metrics.expansions.Record(ctx, int64(expansions))
	}
}

func (s *server) recordRouteError(ctx *fasthttp.RequestCtx, kind string, expansions int) {
	s.metrics.routeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	if expansions > 0 {
		s.metrics.expansions.Record(ctx, int64(expansions))
	}
}
