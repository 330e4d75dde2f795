// Package query defines the request descriptor that fully determines one page
// request against a remote collection, and the page it resolves to.
package query

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Query parameter names understood by the collection endpoints.
const (
	ParamPage     = "page"
	ParamPageSize = "page_size"
	ParamOrdering = "ordering"
	ParamSearch   = "search"
)

// Sentinel errors returned when building or parsing descriptors.
var (
	ErrInvalidPage     = errors.New("page must be >= 1")
	ErrInvalidPageSize = errors.New("page size must be > 0")
)

// reserved holds the parameter names that never become filters or extras.
var reserved = map[string]bool{
	ParamPage:     true,
	ParamPageSize: true,
	ParamOrdering: true,
	ParamSearch:   true,
}

// Reserved reports whether key is one of the paging, ordering or search
// parameters.
func Reserved(key string) bool { return reserved[key] }

// Sort is a server sort key plus direction.
type Sort struct {
	Field     string `mapstructure:"field"`
	Ascending bool   `mapstructure:"ascending"`
}

// Ordering returns the server ordering value: "field" ascending, "-field"
// descending, empty when no field is set.
func (s Sort) Ordering() string {
	if s.Field == "" {
		return ""
	}
	if s.Ascending {
		return s.Field
	}
	return "-" + s.Field
}

// ParseOrdering is the inverse of Sort.Ordering.
func ParseOrdering(s string) Sort {
	s = strings.TrimSpace(s)
	if s == "" {
		return Sort{}
	}
	if field, ok := strings.CutPrefix(s, "-"); ok {
		return Sort{Field: field}
	}
	return Sort{Field: strings.TrimPrefix(s, "+"), Ascending: true}
}

// RequestDescriptor is an immutable value describing one page request.
// Every With* method returns a modified copy; the receiver is never changed.
type RequestDescriptor struct {
	page       int
	pageSize   int
	sort       Sort
	searchText string
	filters    map[string]string
	extra      map[string]string
}

// New returns a descriptor for the given page and page size with no sort,
// search, filters or extra parameters.
func New(page, pageSize int) (RequestDescriptor, error) {
	if page < 1 {
		return RequestDescriptor{}, fmt.Errorf("%w: got %d", ErrInvalidPage, page)
	}
	if pageSize < 1 {
		return RequestDescriptor{}, fmt.Errorf("%w: got %d", ErrInvalidPageSize, pageSize)
	}
	return RequestDescriptor{page: page, pageSize: pageSize}, nil
}

func (d RequestDescriptor) Page() int           { return d.page }
func (d RequestDescriptor) PageSize() int       { return d.pageSize }
func (d RequestDescriptor) Sort() Sort          { return d.sort }
func (d RequestDescriptor) SortField() string   { return d.sort.Field }
func (d RequestDescriptor) SortAscending() bool { return d.sort.Ascending }
func (d RequestDescriptor) SearchText() string  { return d.searchText }

// Filters returns a copy of the effective filter set.
func (d RequestDescriptor) Filters() map[string]string {
	return maps.Clone(d.filters)
}

// Filter returns the value of a single filter.
func (d RequestDescriptor) Filter(key string) (string, bool) {
	v, ok := d.filters[key]
	return v, ok
}

// ExtraParams returns a copy of the view-specific extra parameters.
func (d RequestDescriptor) ExtraParams() map[string]string {
	return maps.Clone(d.extra)
}

// WithPage returns a copy targeting page n. Values below 1 become 1.
func (d RequestDescriptor) WithPage(n int) RequestDescriptor {
	if n < 1 {
		n = 1
	}
	d.page = n
	return d
}

// WithPageSize returns a copy with the given page size. Values below 1 are ignored.
func (d RequestDescriptor) WithPageSize(n int) RequestDescriptor {
	if n > 0 {
		d.pageSize = n
	}
	return d
}

// WithSort returns a copy sorted by field.
func (d RequestDescriptor) WithSort(field string, ascending bool) RequestDescriptor {
	d.sort = Sort{Field: field, Ascending: ascending}
	return d
}

// WithSearch returns a copy with the given free-text search.
func (d RequestDescriptor) WithSearch(text string) RequestDescriptor {
	d.searchText = text
	return d
}

// WithFilter returns a copy with key set to value. An empty value removes the filter.
func (d RequestDescriptor) WithFilter(key, value string) RequestDescriptor {
	if value == "" {
		return d.WithoutFilter(key)
	}
	d.filters = maps.Clone(d.filters)
	if d.filters == nil {
		d.filters = make(map[string]string)
	}
	d.filters[key] = value
	return d
}

// WithoutFilter returns a copy with key removed from the filter set.
func (d RequestDescriptor) WithoutFilter(key string) RequestDescriptor {
	if _, ok := d.filters[key]; !ok {
		return d
	}
	d.filters = maps.Clone(d.filters)
	delete(d.filters, key)
	return d
}

// WithExtraParam returns a copy carrying an extra view-specific parameter.
func (d RequestDescriptor) WithExtraParam(key, value string) RequestDescriptor {
	d.extra = maps.Clone(d.extra)
	if d.extra == nil {
		d.extra = make(map[string]string)
	}
	d.extra[key] = value
	return d
}

// Equal reports whether two descriptors are interchangeable.
func (d RequestDescriptor) Equal(o RequestDescriptor) bool {
	return d.page == o.page &&
		d.pageSize == o.pageSize &&
		d.sort == o.sort &&
		d.searchText == o.searchText &&
		maps.Equal(d.filters, o.filters) &&
		maps.Equal(d.extra, o.extra)
}

// Values encodes the descriptor as query parameters.
func (d RequestDescriptor) Values() url.Values {
	q := url.Values{}
	q.Set(ParamPage, strconv.Itoa(d.page))
	q.Set(ParamPageSize, strconv.Itoa(d.pageSize))
	if o := d.sort.Ordering(); o != "" {
		q.Set(ParamOrdering, o)
	}
	if d.searchText != "" {
		q.Set(ParamSearch, d.searchText)
	}
	for _, k := range slices.Sorted(maps.Keys(d.filters)) {
		q.Set(k, d.filters[k])
	}
	for _, k := range slices.Sorted(maps.Keys(d.extra)) {
		if _, isFilter := d.filters[k]; reserved[k] || isFilter {
			continue
		}
		q.Set(k, d.extra[k])
	}
	return q
}

// String returns the encoded query string.
func (d RequestDescriptor) String() string {
	return d.Values().Encode()
}

// Parse rebuilds a descriptor from query parameters. Keys listed in
// filterKeys become filters; any other non-reserved key becomes an extra
// parameter. A missing page defaults to 1 and a missing page_size to
// defaultPageSize.
func Parse(v url.Values, defaultPageSize int, filterKeys ...string) (RequestDescriptor, error) {
	page, err := intParam(v, ParamPage, 1)
	if err != nil {
		return RequestDescriptor{}, err
	}
	size, err := intParam(v, ParamPageSize, defaultPageSize)
	if err != nil {
		return RequestDescriptor{}, err
	}
	d, err := New(page, size)
	if err != nil {
		return RequestDescriptor{}, err
	}

	s := ParseOrdering(v.Get(ParamOrdering))
	d = d.WithSort(s.Field, s.Ascending).WithSearch(v.Get(ParamSearch))

	isFilter := make(map[string]bool, len(filterKeys))
	for _, k := range filterKeys {
		isFilter[k] = true
	}
	for k := range v {
		if reserved[k] {
			continue
		}
		if isFilter[k] {
			d = d.WithFilter(k, v.Get(k))
		} else {
			d = d.WithExtraParam(k, v.Get(k))
		}
	}
	return d, nil
}

func intParam(v url.Values, key string, def int) (int, error) {
	s := v.Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, s, err)
	}
	return n, nil
}

// FormatValue renders a filter or extra parameter value the way the server
// expects it in a query string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
