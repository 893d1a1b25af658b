package locator

import "log/slog"

type options struct {
	searchRadius float64
	nodeSize     int
	logger       *slog.Logger
}

type Option interface {
	apply(*options)
}

type searchRadius float64

func (r searchRadius) apply(o *options) {
	o.searchRadius = float64(r)
}

// WithSearchRadius sets the first radius tried, in degrees. It doubles until a
// point is found. Default: 0.1
func WithSearchRadius(radius float64) Option {
	return searchRadius(radius)
}

type nodeSize int

func (n nodeSize) apply(o *options) {
	o.nodeSize = int(n)
}

// Default: 64
func WithNodeSize(n int) Option {
	return nodeSize(n)
}

type logger struct{ *slog.Logger }

func (l logger) apply(o *options) {
	o.logger = l.Logger
}

func WithLogger(l *slog.Logger) Option {
	return logger{l}
}

func loadOptions(opts ...Option) options {
	o := options{
		searchRadius: defaultSearchRadius,
		nodeSize:     64,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.searchRadius <= 0 {
		o.searchRadius = defaultSearchRadius
	}
	return o
}
