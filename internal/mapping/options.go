package mapping

import (
	"time"

	"github.com/creasty/defaults"
)

// Options controls how objects and collections talk to their backend.
type Options struct {
	// Timeout bounds every individual backend call.
	Timeout time.Duration `default:"30s"`

	// Scope is the depth of collection searches. Subtree by default.
	Scope Scope `default:"2"`

	// Registry resolves child entry types for Object.Children.
	Registry *Registry
}

// Option configures Options.
type Option func(*Options)

// WithTimeout sets the per-call backend timeout. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// WithScope sets the collection search scope.
func WithScope(s Scope) Option {
	return func(o *Options) {
		o.Scope = s
	}
}

// WithRegistry sets the registry used to resolve child entry types.
func WithRegistry(r *Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// NewOptions returns defaulted options with opts applied.
func NewOptions(opts ...Option) Options {
	o := Options{}
	if err := defaults.Set(&o); err != nil {
		// Only reachable with malformed struct tags.
		panic(err)
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
