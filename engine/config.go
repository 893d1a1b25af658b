package engine

import (
	"log/slog"

	"github.com/royalcat/hgeoroute/hierarchy"
	"github.com/royalcat/hgeoroute/locator"
	"github.com/royalcat/hgeoroute/lookup"
	"github.com/royalcat/hgeoroute/precompute"
	"github.com/royalcat/hgeoroute/quadkey"
	"github.com/royalcat/hgeoroute/router"
)

type Config struct {
	Hierarchy  hierarchy.Config
	Precompute precompute.Config
	// Query picks the cells a bounding box search looks at.
	Query quadkey.QueryOptions
	// KMeansIterations caps every clustering call.
	KMeansIterations int

	Tables  *lookup.Tables
	Router  []router.Option
	Locator []locator.Option
	Logger  *slog.Logger
}

func ConfigDefault() Config {
	return Config{
		Hierarchy:        hierarchy.ConfigDefault(),
		Precompute:       precompute.ConfigDefault(),
		Query:            quadkey.QueryOptions{Strategy: quadkey.StrategySample},
		KMeansIterations: 100,
	}
}
