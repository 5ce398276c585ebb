package observer

import (
	"log/slog"

	"github.com/cfahlgren1/observers/pkg/store"
)

// Option configures an Observer.
type Option func(*options)

type options struct {
	store      store.Store
	clientName string
	tags       []string
	properties map[string]any
	defaults   any
	logger     *slog.Logger
	strict     bool
}

// WithStore sets the store records are handed to. Without one the observer
// opens the local SQLite store.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithClientName overrides the client name, which also names the record
// table ("<client>_records"). OpenAI-compatible routers such as LiteLLM use
// it to keep their records apart.
func WithClientName(name string) Option {
	return func(o *options) { o.clientName = name }
}

// WithTags stamps tags on every record.
func WithTags(tags ...string) Option {
	return func(o *options) { o.tags = append(o.tags, tags...) }
}

// WithProperties stamps properties on every record.
func WithProperties(props map[string]any) Option {
	return func(o *options) {
		if o.properties == nil {
			o.properties = make(map[string]any, len(props))
		}
		for k, v := range props {
			o.properties[k] = v
		}
	}
}

// WithDefaults fills zero fields of every request from defaults, which must
// be a value (or pointer to a value) of the observer's request type.
func WithDefaults(defaults any) Option {
	return func(o *options) { o.defaults = defaults }
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStrictStore makes store failures part of the error returned to the
// caller instead of only being logged.
func WithStrictStore() Option {
	return func(o *options) { o.strict = true }
}
