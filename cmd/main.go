package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/royalcat/hgeoroute/dataset"
	"github.com/royalcat/hgeoroute/engine"
	"github.com/royalcat/hgeoroute/geo"
	"github.com/royalcat/hgeoroute/geomodel"
	"github.com/royalcat/hgeoroute/internal/stats"
	"github.com/royalcat/hgeoroute/internal/telemetry"
	"github.com/royalcat/hgeoroute/lookup"
	"github.com/royalcat/hgeoroute/quadkey"
	"github.com/royalcat/hgeoroute/router"
	"github.com/royalcat/hgeoroute/server"
	"github.com/royalcat/hgeoroute/store"

	_ "net/http/pprof"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/urfave/cli/v3"
	_ "go.uber.org/automaxprocs"
)

const appName = "hgeoroute"

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	dbFlag := &cli.StringFlag{
		Name:      "db",
		Aliases:   []string{"d"},
		Value:     envOr("HGEOROUTE_DB", "hgeoroute.db"),
		TakesFile: true,
	}
	otlpFlag := &cli.StringFlag{
		Name:  "otlp-endpoint",
		Value: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	verboseFlag := &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
	}

	app := &cli.App{
		Name:        appName,
		Description: "Hierarchical geographic router over a city dataset",
		Flags:       []cli.Flag{dbFlag, otlpFlag, verboseFlag},
		Commands: []*cli.Command{
			{
				Name:    "build",
				Aliases: []string{"b"},
				Usage:   "rebuilds the hierarchy from a dataset, dropping the previous build",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:      "input",
						Aliases:   []string{"i"},
						Usage:     "csv, csv.zst or osm.pbf dataset",
						Required:  true,
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "tables",
						Usage:     "yaml with continent and trade bloc tables",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:  "country",
						Usage: "country of osm place nodes without a country tag",
					},
					&cli.IntFlag{
						Name:        "threads",
						Aliases:     []string{"t"},
						DefaultText: "max",
					},
					&cli.StringFlag{
						Name:      "stats-report",
						Usage:     "write a resource use report of the build to this file",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name: "pprof.listen",
					},
					&cli.BoolFlag{
						Name: "pprof.profile",
					},
				},
				Action: build,
			},
			{
				Name:  "serve",
				Usage: "serves the http api",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: envOr("HGEOROUTE_LISTEN", ":8080"),
					},
					&cli.DurationFlag{
						Name:  "route-timeout",
						Value: 10 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "admissible",
						Usage: "use the admissible heuristic instead of the tier penalty",
					},
					&cli.IntFlag{
						Name:  "route-cache-size",
						Usage: "routes kept in memory, 0 keeps all of them",
						Value: 100_000,
					},
				},
				Action: serve,
			},
			{
				Name:      "route",
				Usage:     "finds a route between two point ids",
				ArgsUsage: "<start> <end>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "expand", Usage: "include the path points"},
					&cli.BoolFlag{Name: "admissible"},
				},
				Action: route,
			},
			{
				Name:      "search",
				Usage:     "lists the points inside a bounding box",
				ArgsUsage: "<min_lat> <max_lat> <min_lng> <max_lng>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "cover", Usage: "enumerate every cell of the box"},
				},
				Action: search,
			},
			{
				Name:  "clear-cache",
				Usage: "drops every persisted route",
				Action: func(ctx *cli.Context) error {
					s, closeAll, err := setup(ctx)
					if err != nil {
						return err
					}
					defer closeAll()
					return s.ClearRouteCache(ctx.Context)
				},
			},
			{
				Name:   "stats",
				Usage:  "prints row counts of the current build",
				Action: printStats,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup installs logging and telemetry and opens the store.
func setup(ctx *cli.Context) (*store.Store, func(), error) {
	level := slog.LevelInfo
	if ctx.Bool("verbose") {
		level = slog.LevelDebug
	}
	client, err := telemetry.Setup(ctx.Context, telemetry.Config{
		AppName:   appName,
		Endpoint:  ctx.String("otlp-endpoint"),
		Namespace: appName,
		LogLevel:  level,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup telemetry: %w", err)
	}

	s, err := store.Open(ctx.Context, ctx.String("db"), slog.Default())
	if err != nil {
		client.Shutdown(context.Background())
		return nil, nil, err
	}

	return s, func() {
		if err := s.Close(); err != nil {
			slog.Error("closing store", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Shutdown(shutdownCtx)
	}, nil
}

func engineConfig(ctx *cli.Context) engine.Config {
	cfg := engine.ConfigDefault()
	if ctx.Bool("admissible") {
		cfg.Router = append(cfg.Router, router.WithHeuristic(router.HeuristicAdmissible))
	}
	if ctx.IsSet("route-cache-size") {
		size := max(ctx.Int("route-cache-size"), 0)
		cfg.Router = append(cfg.Router, router.WithRouteCacheSize(uint64(size)))
	}
	return cfg
}

func build(ctx *cli.Context) error {
	log := slog.Default()

	threads := ctx.Int("threads")
	if threads == 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	if pprofListen := ctx.String("pprof.listen"); pprofListen != "" {
		go func() {
			log.Info("Starting pprof server")
			if err := http.ListenAndServe(pprofListen, nil); err != nil {
				log.Error("Error starting pprof server", "error", err)
			}
		}()
	}
	if ctx.Bool("pprof.profile") {
		f, err := os.OpenFile("profile.cpu.pprof", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("error creating pprof file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("error starting pprof: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	s, closeAll, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeAll()
	log = slog.Default().With("threads", threads)

	collector, err := stats.NewCollector(time.Second)
	if err != nil {
		return err
	}
	collector.Start()

	input := ctx.String("input")
	var records []geomodel.Record
	if strings.HasSuffix(input, ".pbf") {
		osmCfg := dataset.OSMConfigDefault()
		osmCfg.Threads = threads
		osmCfg.Country = ctx.String("country")
		osmCfg.Progress = true
		records, err = dataset.OpenOSM(ctx.Context, input, osmCfg)
	} else {
		records, err = dataset.OpenCSV(input)
	}
	if err != nil {
		collector.Stop()
		return fmt.Errorf("read dataset: %w", err)
	}
	log.Info("dataset read", "input", input, "records", len(records))

	cfg := engineConfig(ctx)
	cfg.Hierarchy.Threads = threads
	cfg.Hierarchy.Progress = true
	cfg.Precompute.Threads = threads
	cfg.Precompute.Progress = true
	if path := ctx.String("tables"); path != "" {
		if cfg.Tables, err = lookup.LoadFile(path); err != nil {
			collector.Stop()
			return err
		}
	}

	e, err := engine.New(ctx.Context, s, cfg)
	if err != nil {
		collector.Stop()
		return err
	}
	res, err := e.Rebuild(ctx.Context, records)
	report := collector.Stop()
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	log.Info("build complete", "build_id", res.BuildID, "points", res.Points, "pairs", res.Pairs, "resources", report)

	if path := ctx.String("stats-report"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to write stats file: %w", err)
		}
		defer f.Close()
		if _, err := report.WriteTo(f); err != nil {
			return fmt.Errorf("failed to write stats file: %w", err)
		}
	}
	return nil
}

func serve(ctx *cli.Context) error {
	s, closeAll, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	slog.Info("Loading engine", "db", ctx.String("db"))
	e, err := engine.New(ctx.Context, s, engineConfig(ctx))
	if err != nil {
		return err
	}

	return server.Run(ctx.Context, server.Config{
		Address:      ctx.String("listen"),
		RouteTimeout: ctx.Duration("route-timeout"),
	}, e)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func route(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("expected <start> <end>, got %d arguments", ctx.NArg())
	}
	s, closeAll, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	e, err := engine.New(ctx.Context, s, engineConfig(ctx))
	if err != nil {
		return err
	}
	r, err := e.FindRoute(ctx.Context, ctx.Args().Get(0), ctx.Args().Get(1), ctx.Bool("expand"))
	if err != nil {
		return err
	}
	return printJSON(r)
}

func search(ctx *cli.Context) error {
	if ctx.NArg() != 4 {
		return fmt.Errorf("expected <min_lat> <max_lat> <min_lng> <max_lng>, got %d arguments", ctx.NArg())
	}
	var box [4]float64
	for i := range box {
		v, err := strconv.ParseFloat(ctx.Args().Get(i), 64)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i+1, err)
		}
		box[i] = v
	}

	s, closeAll, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	cfg := engineConfig(ctx)
	if ctx.Bool("cover") {
		cfg.Query.Strategy = quadkey.StrategyCover
	}
	e, err := engine.New(ctx.Context, s, cfg)
	if err != nil {
		return err
	}
	points, err := e.SearchBound(ctx.Context, geo.NewBound(box[0], box[1], box[2], box[3]))
	if err != nil {
		return err
	}
	return printJSON(points)
}

func printStats(ctx *cli.Context) error {
	s, closeAll, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	e, err := engine.New(ctx.Context, s, engineConfig(ctx))
	if err != nil {
		return err
	}
	st, err := e.Stats(ctx.Context)
	if err != nil {
		return err
	}
	return printJSON(st)
}
