package server

import (
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"github.com/HerbHall/omicsview/internal/query"
)

// Field declares how one attribute of a row is ordered and filtered. A nil
// Compare makes the field unsortable; a nil Match makes it unfilterable.
type Field[T any] struct {
	Compare func(a, b T) int
	Match   func(row T, value string) bool
}

// Schema describes a served collection.
type Schema[T any] struct {
	Path  string
	Topic string
	// Fields are keyed by the ordering and filter parameter name.
	Fields map[string]Field[T]
	// Scopes restrict rows by extra parameters such as biomarker_pk.
	Scopes          map[string]func(row T, value string) bool
	Search          func(row T, text string) bool
	DefaultPageSize int
}

// Collection serves rows with server-side paging, ordering, search and
// filters. Unknown ordering fields and parameters are ignored.
type Collection[T any] struct {
	schema Schema[T]

	mu   sync.RWMutex
	rows []T
}

// NewCollection returns a collection serving rows.
func NewCollection[T any](schema Schema[T], rows []T) *Collection[T] {
	if schema.DefaultPageSize < 1 {
		schema.DefaultPageSize = 10
	}
	return &Collection[T]{schema: schema, rows: slices.Clone(rows)}
}

// Path returns the endpoint path.
func (c *Collection[T]) Path() string { return c.schema.Path }

// Topic returns the push topic announcing changes.
func (c *Collection[T]) Topic() string { return c.schema.Topic }

// Len returns the number of rows.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

// Replace swaps the served rows.
func (c *Collection[T]) Replace(rows []T) {
	c.mu.Lock()
	c.rows = slices.Clone(rows)
	c.mu.Unlock()
}

// Truncate keeps the first n rows.
func (c *Collection[T]) Truncate(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= 0 && n < len(c.rows) {
		c.rows = slices.Clone(c.rows[:n])
	}
}

func (c *Collection[T]) filterKeys() []string {
	keys := make([]string, 0, len(c.schema.Fields))
	for _, k := range slices.Sorted(maps.Keys(c.schema.Fields)) {
		if c.schema.Fields[k].Match != nil {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *Collection[T]) keep(row T, d query.RequestDescriptor) bool {
	if text := d.SearchText(); text != "" && c.schema.Search != nil && !c.schema.Search(row, text) {
		return false
	}
	for k, v := range d.Filters() {
		if f := c.schema.Fields[k]; f.Match != nil && !f.Match(row, v) {
			return false
		}
	}
	for k, v := range d.ExtraParams() {
		if scope, ok := c.schema.Scopes[k]; ok && !scope(row, v) {
			return false
		}
	}
	return true
}

// List resolves d against the current rows. A page past the end is empty
// but still carries the total count, so clients can step back.
func (c *Collection[T]) List(d query.RequestDescriptor) query.Page[T] {
	c.mu.RLock()
	rows := slices.Clone(c.rows)
	c.mu.RUnlock()

	rows = slices.DeleteFunc(rows, func(r T) bool { return !c.keep(r, d) })
	if f, ok := c.schema.Fields[d.SortField()]; ok && f.Compare != nil {
		asc := d.SortAscending()
		slices.SortStableFunc(rows, func(a, b T) int {
			if asc {
				return f.Compare(a, b)
			}
			return f.Compare(b, a)
		})
	}

	total := len(rows)
	start := min((d.Page()-1)*d.PageSize(), total)
	end := min(start+d.PageSize(), total)
	return query.Page[T]{Items: slices.Clone(rows[start:end]), TotalCount: total}
}

type listResponse[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// ServeHTTP answers a list request in the paginated envelope.
func (c *Collection[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d, err := query.Parse(r.URL.Query(), c.schema.DefaultPageSize, c.filterKeys()...)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	page := c.List(d)
	resp := listResponse[T]{Count: page.TotalCount, Results: page.Items}
	if resp.Results == nil {
		resp.Results = []T{}
	}
	if d.Page() < page.PageCount(d.PageSize()) {
		resp.Next = pageLink(r, d.Page()+1)
	}
	if d.Page() > 1 {
		resp.Previous = pageLink(r, d.Page()-1)
	}
	writeJSON(w, http.StatusOK, resp)
}

func pageLink(r *http.Request, page int) *string {
	u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}
	if r.TLS != nil {
		u.Scheme = "https"
	}
	q := r.URL.Query()
	q.Set(query.ParamPage, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	s := u.String()
	return &s
}
