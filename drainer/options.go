package drainer

import "github.com/rs/zerolog"

// DefaultMaxPages bounds how many pages one phase may follow before the
// listing is considered broken.
const DefaultMaxPages = 100000

// Option configures a Drainer.
type Option func(*Drainer)

// WithConcurrency sets how many deletes of one page may run at once.
// Values below 1 mean sequential.
func WithConcurrency(n int) Option {
	return func(d *Drainer) {
		if n < 1 {
			n = 1
		}
		d.concurrency = n
	}
}

// WithMaxPages overrides DefaultMaxPages.
func WithMaxPages(n int) Option {
	return func(d *Drainer) {
		if n > 0 {
			d.maxPages = n
		}
	}
}

// WithPageSize sets the MaxKeys hint passed to each listing call.
// Zero leaves the choice to the backend.
func WithPageSize(n int) Option {
	return func(d *Drainer) {
		if n >= 0 {
			d.pageSize = n
		}
	}
}

// WithPrefix limits the drain to keys under prefix.
func WithPrefix(prefix string) Option {
	return func(d *Drainer) {
		d.prefix = prefix
	}
}

// WithLogger sets the logger used for progress and failure reporting.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Drainer) {
		d.log = log
	}
}
