package collection

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/HerbHall/omicsview/internal/query"
)

// DefaultPageSize is used when Config.PageSize is not set.
const DefaultPageSize = 10

// Sentinel errors returned by view commands.
var (
	ErrUnknownFilter      = errors.New("unknown filter")
	ErrInvalidFilterValue = errors.New("invalid filter value")
	ErrClosed             = errors.New("collection view closed")
	ErrStarted            = errors.New("collection view already started")
)

// Choice is one selectable value of a filter.
type Choice struct {
	Label string `mapstructure:"label"`
	Value string `mapstructure:"value"`
}

// FilterDef declares a filter the view accepts. Setting a filter to its
// Default removes it from the request.
type FilterDef struct {
	Label   string   `mapstructure:"label"`
	Key     string   `mapstructure:"key"`
	Default string   `mapstructure:"default"`
	Choices []Choice `mapstructure:"choices"`
}

// allows reports whether value is acceptable for the filter. Filters without
// declared choices accept anything.
func (f FilterDef) allows(value string) bool {
	if len(f.Choices) == 0 || value == f.Default {
		return true
	}
	for _, c := range f.Choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

// Config is everything a view needs to know about the collection it shows.
type Config struct {
	// Name labels the view in logs and metrics. Defaults to Endpoint.
	Name     string `mapstructure:"name"`
	Endpoint string `mapstructure:"endpoint"`
	// Topic is the push topic that triggers a silent refresh. Empty disables it.
	Topic         string            `mapstructure:"topic"`
	PageSize      int               `mapstructure:"page_size"`
	Sort          query.Sort        `mapstructure:"sort"`
	Filters       []FilterDef       `mapstructure:"filters"`
	ExtraParams   map[string]string `mapstructure:"extra_params"`
	QuietInterval time.Duration     `mapstructure:"quiet_interval"`
}

func (c *Config) applyDefaults() {
	if c.PageSize < 1 {
		c.PageSize = DefaultPageSize
	}
	if c.Name == "" {
		c.Name = c.Endpoint
	}
}

// Validate checks the filter declarations.
func (c Config) Validate() error {
	if c.PageSize < 0 {
		return fmt.Errorf("%w: got %d", query.ErrInvalidPageSize, c.PageSize)
	}
	seen := make(map[string]bool, len(c.Filters))
	for _, f := range c.Filters {
		switch {
		case f.Key == "":
			return fmt.Errorf("filter %q: key is required", f.Label)
		case query.Reserved(f.Key):
			return fmt.Errorf("filter %q: key %q is reserved", f.Label, f.Key)
		case seen[f.Key]:
			return fmt.Errorf("filter %q: duplicate key %q", f.Label, f.Key)
		}
		seen[f.Key] = true
	}
	for _, k := range slices.Sorted(maps.Keys(c.ExtraParams)) {
		switch {
		case k == "":
			return errors.New("extra param: key is required")
		case query.Reserved(k):
			return fmt.Errorf("extra param %q: key is reserved", k)
		case seen[k]:
			return fmt.Errorf("extra param %q: collides with a filter", k)
		}
	}
	return nil
}

// filter returns the declaration for key.
func (c Config) filter(key string) (FilterDef, bool) {
	for _, f := range c.Filters {
		if f.Key == key {
			return f, true
		}
	}
	return FilterDef{}, false
}

// initialDescriptor is page 1 with the configured sort and extra params.
func (c Config) initialDescriptor() query.RequestDescriptor {
	d, _ := query.New(1, c.PageSize)
	d = d.WithSort(c.Sort.Field, c.Sort.Ascending)
	for k, v := range c.ExtraParams {
		d = d.WithExtraParam(k, v)
	}
	return d
}
