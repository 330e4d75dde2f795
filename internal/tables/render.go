package tables

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/HerbHall/omicsview/internal/collection"
)

// Render writes the state of a view as an aligned text table followed by a
// status line.
func Render[T any](w io.Writer, def Definition[T], s collection.State[T]) error {
	bw := &errWriter{w: w}

	title := def.Title
	if title == "" {
		title = def.Name
	}
	bw.printf("%s\n", title)
	if line := describe(def, s); line != "" {
		bw.printf("%s\n", line)
	}

	switch {
	case !s.Resolved && s.Loading:
		bw.printf("Loading...\n")
		return bw.err
	case s.Empty:
		bw.printf("No results\n")
	default:
		tw := tabwriter.NewWriter(bw, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(headerCells(def, s), "\t"))
		for _, item := range s.Page.Items {
			cells := def.Row(item)
			for i := range cells {
				cells[i] = sanitize(cells[i])
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil && bw.err == nil {
			bw.err = err
		}
	}

	status := fmt.Sprintf("Page %d of %d (%d total)", s.Descriptor.Page(), max(s.PageCount, 1), s.Page.TotalCount)
	if s.Loading {
		status += " loading..."
	}
	bw.printf("%s\n", status)
	if s.Err != nil {
		bw.printf("error: %v\n", s.Err)
	}
	for _, c := range def.Controls {
		bw.printf("[%s] %s\n", c.Command, c.Label)
	}
	return bw.err
}

// headerCells marks the sorted column with ^ (ascending) or v (descending).
func headerCells[T any](def Definition[T], s collection.State[T]) []string {
	out := make([]string, len(def.Headers))
	for i, h := range def.Headers {
		out[i] = h.Name
		if h.SortKey != "" && h.SortKey == s.Descriptor.SortField() {
			if s.Descriptor.SortAscending() {
				out[i] += " ^"
			} else {
				out[i] += " v"
			}
		}
	}
	return out
}

// describe summarises the active search and filters.
func describe[T any](def Definition[T], s collection.State[T]) string {
	var parts []string
	if q := s.Descriptor.SearchText(); q != "" {
		parts = append(parts, fmt.Sprintf("search=%q", q))
	}
	filters := s.Descriptor.Filters()
	for _, k := range slices.Sorted(maps.Keys(filters)) {
		label := k
		for _, f := range def.Config.Filters {
			if f.Key == k && f.Label != "" {
				label = strings.ToLower(f.Label)
			}
		}
		parts = append(parts, fmt.Sprintf("%s=%s", label, filters[k]))
	}
	return strings.Join(parts, " ")
}

// sanitize keeps cell text on one line so tab alignment holds.
func sanitize(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(e, format, args...)
}
