package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/omicsview/internal/config"
	"github.com/HerbHall/omicsview/internal/tables"
)

type fakeTable struct {
	calls     []string
	page      int
	pageCount int
	sortable  map[string]bool
	err       error
}

func newFakeTable() *fakeTable {
	return &fakeTable{page: 1, pageCount: 3, sortable: map[string]bool{"identifier": true}}
}

func (f *fakeTable) record(format string, args ...any) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeTable) SetPage(n int) error { return f.record("page %d", n) }
func (f *fakeTable) SetSort(field string, asc bool) error { return f.record("sort %s %t", field, asc) }
func (f *fakeTable) SetFilter(key, value string) error { return f.record("filter %s=%q", key, value) }
func (f *fakeTable) SetSearchText(text string) { _ = f.record("search %q", text) }
func (f *fakeTable) ClearSearch() error { return f.record("clear") }
func (f *fakeTable) Refresh() error { return f.record("refresh") }
func (f *fakeTable) OnExternalUpdateSignal(topic string) { _ = f.record("signal %s", topic) }
func (f *fakeTable) Name() string { return "fake" }
func (f *fakeTable) Sortable(field string) bool { return f.sortable[field] }
func (f *fakeTable) Position() (int, int) { return f.page, f.pageCount }
func (f *fakeTable) Render(io.Writer) error { return nil }
func (f *fakeTable) Subscribe(func()) func() { return func() {} }
func (f *fakeTable) Start(context.Context) error { return nil }
func (f *fakeTable) Close() {}

type fakePanel struct {
	genes  []string
	scores []int
}

func (p *fakePanel) SetGene(id string) error {
	p.genes = append(p.genes, id)
	return nil
}

func (p *fakePanel) SetMinCombinedScore(n int) error {
	if n < 1 || n > 1000 {
		return errors.New("out of range")
	}
	p.scores = append(p.scores, n)
	return nil
}

func newREPL() (*repl, *fakeTable, *fakePanel, *bytes.Buffer) {
	t, p, out := newFakeTable(), &fakePanel{}, &bytes.Buffer{}
	return &repl{table: t, panel: p, out: out}, t, p, out
}

func TestREPL_Commands(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"page 2", "page 2"},
		{"sort identifier", "sort identifier true"},
		{"SORT identifier DESC", "sort identifier false"},
		{"filter type MRNA", `filter type="MRNA"`},
		{"filter type", `filter type=""`},
		{"filter name tumor protein", `filter name="tumor protein"`},
		{"search  brca 1 ", `search "brca 1"`},
		{"search", `search ""`},
		{"clear", "clear"},
		{"refresh", "refresh"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r, tbl, _, _ := newREPL()
			require.NoError(t, r.exec(tt.line))
			assert.Equal(t, []string{tt.want}, tbl.calls)
		})
	}
}

func TestREPL_PageSteppingIsBounded(t *testing.T) {
	r, tbl, _, _ := newREPL()

	require.NoError(t, r.exec("prev"))
	assert.Empty(t, tbl.calls, "prev on first page is a no-op")

	require.NoError(t, r.exec("next"))
	assert.Equal(t, []string{"page 2"}, tbl.calls)

	tbl.calls = nil
	tbl.page = 3
	require.NoError(t, r.exec("next"))
	assert.Empty(t, tbl.calls, "next on last page is a no-op")

	require.NoError(t, r.exec("prev"))
	assert.Equal(t, []string{"page 2"}, tbl.calls)
}

func TestREPL_Errors(t *testing.T) {
	tests := []struct {
		line    string
		wantErr string
	}{
		{"page", "usage: page N"},
		{"page two", "page:"},
		{"sort", "usage: sort"},
		{"sort name", `cannot sort by "name"`},
		{"sort identifier sideways", "asc or desc"},
		{"filter", "usage: filter"},
		{"network", "usage: network GENE"},
		{"score high", "score:"},
		{"frobnicate", `unknown command "frobnicate"`},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r, tbl, _, _ := newREPL()
			err := r.exec(tt.line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, tbl.calls)
		})
	}
}

func TestREPL_TableErrorsPropagate(t *testing.T) {
	r, tbl, _, _ := newREPL()
	tbl.err = errors.New("view is closed")

	err := r.exec("refresh")
	assert.EqualError(t, err, "view is closed")
}

func TestREPL_Network(t *testing.T) {
	r, _, p, _ := newREPL()

	require.NoError(t, r.exec("network BRCA1"))
	require.NoError(t, r.exec("score 700"))
	assert.Error(t, r.exec("score 0"))

	assert.Equal(t, []string{"BRCA1"}, p.genes)
	assert.Equal(t, []int{700}, p.scores)

	r.panel = nil
	assert.ErrorContains(t, r.exec("network TP53"), "not available")
}

func TestREPL_HelpAndQuit(t *testing.T) {
	r, _, _, out := newREPL()

	require.NoError(t, r.exec("help"))
	assert.Contains(t, out.String(), "sort FIELD [asc|desc]")

	for _, line := range []string{"quit", "exit", "q"} {
		assert.ErrorIs(t, r.exec(line), errQuit, line)
	}
	assert.NoError(t, r.exec("   "))
}

func TestREPL_RunStopsAtQuit(t *testing.T) {
	r, tbl, _, out := newREPL()

	in := strings.NewReader("page 2\nbogus\nquit\npage 3\n")
	require.NoError(t, r.run(context.Background(), in))

	assert.Equal(t, []string{"page 2"}, tbl.calls)
	assert.Contains(t, out.String(), `error: unknown command "bogus"`)
}

func TestREPL_RunStopsAtEndOfInput(t *testing.T) {
	r, tbl, _, _ := newREPL()

	require.NoError(t, r.run(context.Background(), strings.NewReader("refresh\n")))
	assert.Equal(t, []string{"refresh"}, tbl.calls)
}

func TestREPL_RunStopsWhenContextDone(t *testing.T) {
	r, _, _, _ := newREPL()
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, r.run(ctx, pr))
}

func TestOpenTable(t *testing.T) {
	app := &config.App{
		Server: config.ServerConfig{BaseURL: "http://localhost:8000"},
		View:   config.ViewConfig{PageSize: 10},
	}
	for _, name := range tables.Names {
		t.Run(name, func(t *testing.T) {
			tbl, err := openTable(name, 1, app, nil)
			require.NoError(t, err)
			defer tbl.Close()
			assert.Equal(t, name, tbl.Name())

			page, _ := tbl.Position()
			assert.Equal(t, 1, page)
		})
	}

	_, err := openTable("genes", 1, app, nil)
	assert.ErrorContains(t, err, `unknown table "genes"`)
}
