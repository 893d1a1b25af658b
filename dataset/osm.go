package dataset

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/cheggaaa/pb/v3/termutil"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/royalcat/hgeoroute/geomodel"
)

type OSMConfig struct {
	// Places lists the accepted values of the place tag.
	Places []string
	// Country is used for nodes that carry no country tag. Nodes without
	// either are skipped.
	Country  string
	Threads  int
	Progress bool
	// Size of the input in bytes, only used by the progress bar.
	Size int64
}

func OSMConfigDefault() OSMConfig {
	return OSMConfig{
		Places:  []string{"city", "town"},
		Threads: runtime.GOMAXPROCS(0),
	}
}

// ReadOSM scans an OSM PBF stream for named place nodes. Ways and relations
// are skipped.
func ReadOSM(ctx context.Context, r io.Reader, cfg OSMConfig) ([]geomodel.Record, error) {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}

	scanner := osmpbf.New(ctx, r, cfg.Threads)
	defer scanner.Close()
	scanner.SkipWays = true
	scanner.SkipRelations = true

	var bar *pb.ProgressBar
	if cfg.Progress && cfg.Size > 0 {
		bar = pb.Start64(cfg.Size)
		bar.Set("prefix", "reading places")
		bar.Set(pb.Bytes, true)
		bar.SetRefreshRate(time.Second)
		if w, err := termutil.TerminalWidth(); w == 0 || err != nil {
			bar.SetTemplateString(`{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}` + "\n")
		}
	}

	var records []geomodel.Record
	for scanner.Scan() {
		if bar != nil {
			bar.SetCurrent(scanner.FullyScannedBytes())
		}
		node, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if rec, ok := placeRecord(node, cfg); ok {
			records = append(records, rec)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan osm: %w", err)
	}
	return records, nil
}

func placeRecord(node *osm.Node, cfg OSMConfig) (geomodel.Record, bool) {
	if !slices.Contains(cfg.Places, node.Tags.Find("place")) {
		return geomodel.Record{}, false
	}
	name := node.Tags.Find("name:en")
	if name == "" {
		name = node.Tags.Find("name")
	}
	if name == "" {
		return geomodel.Record{}, false
	}

	country := cfg.Country
	for _, k := range []string{"is_in:country", "addr:country"} {
		if v := node.Tags.Find(k); v != "" {
			country = v
			break
		}
	}
	if country == "" {
		return geomodel.Record{}, false
	}

	return geomodel.Record{
		ID:      "node/" + strconv.FormatInt(int64(node.ID), 10),
		Name:    name,
		Country: country,
		Lat:     node.Lat,
		Lng:     node.Lon,
	}, true
}
