package network

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"
	"text/tabwriter"

	"github.com/HerbHall/omicsview/pkg/models"
)

// TextRenderer prints a graph summary: node and edge counts, then the
// highest scoring genes with their edge color from the style table.
type TextRenderer struct {
	mu  sync.Mutex
	w   io.Writer
	top int
}

// Compile-time interface check.
var _ Renderer = (*TextRenderer)(nil)

// NewTextRenderer writes to w, listing at most top genes.
func NewTextRenderer(w io.Writer, top int) *TextRenderer {
	if top < 1 {
		top = 10
	}
	return &TextRenderer{w: w, top: top}
}

// Render implements Renderer.
func (r *TextRenderer) Render(g models.GeneNetwork, styles StyleTable) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "%d genes, %d associations\n", len(g.Nodes), len(g.Edges))
	if len(g.Nodes) == 0 {
		return
	}

	degree := make(map[string]int, len(g.Nodes))
	groups := make(map[string]string, len(g.Nodes))
	for _, e := range g.Edges {
		degree[e.Data.Source]++
		degree[e.Data.Target]++
		if e.Data.Group != "" {
			groups[e.Data.Target] = e.Data.Group
		}
	}

	nodes := slices.Clone(g.Nodes)
	slices.SortStableFunc(nodes, func(a, b models.GraphNode) int {
		return cmp.Compare(b.Data.Score, a.Data.Score)
	})
	if len(nodes) > r.top {
		nodes = nodes[:r.top]
	}

	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GENE\tSCORE\tLINKS\tCOLOR")
	for _, n := range nodes {
		color := ""
		if style, ok := styles.Lookup(fmt.Sprintf("edge[group=%q]", groups[n.Data.ID])); ok {
			color = style["line-color"]
		}
		name := n.Data.Name
		if n.Data.Query {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%.4g\t%d\t%s\n", name, n.Data.Score, degree[n.Data.ID], color)
	}
	_ = tw.Flush()
}
