package dataset

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/royalcat/hgeoroute/geomodel"
	"golang.org/x/exp/mmap"
)

// OpenCSV reads a CSV dataset from disk. Files ending in .zst are
// decompressed on the fly.
func OpenCSV(path string) ([]geomodel.Record, error) {
	r, closer, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	records, err := ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// OpenOSM reads place nodes from an OSM PBF extract on disk.
func OpenOSM(ctx context.Context, path string, cfg OSMConfig) ([]geomodel.Record, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can`t open file: %w", err)
	}
	defer m.Close()

	if cfg.Size == 0 {
		cfg.Size = int64(m.Len())
	}
	return ReadOSM(ctx, io.NewSectionReader(m, 0, int64(m.Len())), cfg)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func openReader(name string) (io.Reader, io.Closer, error) {
	m, err := mmap.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("can`t open file: %w", err)
	}
	file := io.NewSectionReader(m, 0, int64(m.Len()))

	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(file)
		if err != nil {
			m.Close()
			return nil, nil, fmt.Errorf("can`t create zstd reader: %w", err)
		}
		return dec, closerFunc(func() error {
			dec.Close()
			return m.Close()
		}), nil
	}

	return file, m, nil
}
