package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/royalcat/hgeoroute/engine"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/router"
	"github.com/valyala/fasthttp"
)

type boundRequest struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

type pointsRequest struct {
	Points []string `json:"points"`
	Start  string   `json:"start"`
	End    string   `json:"end"`
	K      int      `json:"k"`
	Seed   int64    `json:"seed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusInternalServerError)
		ctx.Response.SetBodyString("failed to marshal response")
		return
	}
	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBody(body)
}

// writeError maps engine errors to statuses. An exhausted search is not a
// server failure and gets its own status.
func (s *server) writeError(ctx *fasthttp.RequestCtx, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, router.ErrNoPath):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, router.ErrBudgetExceeded):
		status = http.StatusServiceUnavailable
	default:
		s.log.ErrorContext(ctx, "request failed", "path", string(ctx.Path()), "error", err)
	}
	writeJSON(ctx, status, errorResponse{Error: err.Error()})
}

func (s *server) ListPointsHandler(ctx *fasthttp.RequestCtx) {
	points, err := s.engine.ListPoints(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, http.StatusOK, points)
}

func (s *server) SearchHandler(ctx *fasthttp.RequestCtx) {
	var req boundRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		ctx.Response.SetBodyString("failed to parse request: " + err.Error())
		return
	}

	points, err := s.engine.SearchBound(ctx, geo.NewBound(req.MinLat, req.MaxLat, req.MinLng, req.MaxLng))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, http.StatusOK, points)
}

func (s *server) RouteHandler(ctx *fasthttp.RequestCtx) {
	start := ctx.UserValue("start").(string)
	end := ctx.UserValue("end").(string)
	expand := ctx.QueryArgs().GetBool("expand")

	searchCtx, cancel := context.WithTimeout(ctx, s.routeTimeout)
	defer cancel()

	r, err := s.engine.FindRoute(searchCtx, start, end, expand)
	if err != nil {
		switch {
		case errors.Is(err, router.ErrNoPath):
			s.recordRouteError(ctx, "no_path", r.Expansions)
		case errors.Is(err, router.ErrBudgetExceeded):
			s.recordRouteError(ctx, "budget", r.Expansions)
		}
		s.writeError(ctx, err)
		return
	}

	s.recordRoute(ctx, r.Source, r.Expansions)
	writeJSON(ctx, http.StatusOK, r)
}

func (s *server) decodePoints(ctx *fasthttp.RequestCtx) (pointsRequest, bool) {
	var req pointsRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		ctx.Response.SetBodyString("failed to parse request: " + err.Error())
		return req, false
	}
	return req, true
}

func (s *server) DijkstraHandler(ctx *fasthttp.RequestCtx) {
	req, ok := s.decodePoints(ctx)
	if !ok {
		return
	}
	r, err := s.engine.ShortestPath(ctx, req.Points, req.Start, req.End)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, http.StatusOK, r)
}

func (s *server) KMeansHandler(ctx *fasthttp.RequestCtx) {
	req, ok := s.decodePoints(ctx)
	if !ok {
		return
	}
	clusters, err := s.engine.Cluster(ctx, req.Points, req.K, req.Seed)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, http.StatusOK, struct {
		Clusters [][]string `json:"clusters"`
	}{clusters})
}

func (s *server) TourHandler(ctx *fasthttp.RequestCtx) {
	req, ok := s.decodePoints(ctx)
	if !ok {
		return
	}
	r, err := s.engine.Tour(ctx, req.Points, req.Start)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, http.StatusOK, r)
}

func (s *server) NearestHandler(ctx *fasthttp.RequestCtx) {
	lat, err := strconv.ParseFloat(ctx.UserValue("lat").(string), 64)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return
	}
	lng, err := strconv.ParseFloat(ctx.UserValue("lng").(string), 64)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return
	}

	m, ok, err := s.engine.Nearest(ctx, lat, lng)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	if !ok {
		ctx.Response.SetStatusCode(http.StatusNoContent)
		return
	}
	writeJSON(ctx, http.StatusOK, m)
}

func (s *server) StatsHandler(ctx *fasthttp.RequestCtx) {
	st, err := s.engine.Stats(ctx)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, http.StatusOK, st)
}
