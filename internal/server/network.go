package server

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"

	"github.com/HerbHall/omicsview/pkg/models"
)

var edgeGroups = []string{"coexp", "coloc", "gi", "path", "pi", "predict", "spd"}

// maxNodeScore is the node score of the strongest possible association.
const maxNodeScore = 0.006769776522008331

// NetworkHandler serves gene association graphs built deterministically
// from a gene universe: the same gene and threshold always yield the same
// graph, and raising the threshold only removes associations.
type NetworkHandler struct {
	genes []string
}

// NewNetworkHandler returns a handler drawing neighbours from genes.
func NewNetworkHandler(genes []string) *NetworkHandler {
	return &NetworkHandler{genes: genes}
}

func combinedScore(a, b string) int {
	if a > b {
		a, b = b, a
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(a + "|" + b))
	return int(h.Sum32()%1000) + 1
}

// Graph builds the network of gene at the given minimum combined score.
func (n *NetworkHandler) Graph(gene string, minScore int) models.GeneNetwork {
	g := models.GeneNetwork{
		Nodes: []models.GraphNode{{Data: models.NodeData{ID: gene, Name: gene, Score: maxNodeScore, Query: true}}},
		Edges: []models.GraphEdge{},
	}
	for _, other := range n.genes {
		if strings.EqualFold(other, gene) {
			continue
		}
		score := combinedScore(gene, other)
		if score < minScore {
			continue
		}
		weight := float64(score) / 1000
		g.Nodes = append(g.Nodes, models.GraphNode{Data: models.NodeData{
			ID: other, Name: other, Score: weight * maxNodeScore,
		}})
		g.Edges = append(g.Edges, models.GraphEdge{Data: models.EdgeData{
			ID:     fmt.Sprintf("%s-%s", gene, other),
			Source: gene,
			Target: other,
			Weight: weight,
			Group:  edgeGroups[score%len(edgeGroups)],
		}})
	}
	return g
}

// ServeHTTP answers {"data": graph}.
func (n *NetworkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gene := strings.TrimSpace(q.Get("gene_id"))
	if gene == "" {
		badRequest(w, r, "gene_id is required")
		return
	}
	minScore := 500
	if s := q.Get("min_combined_score"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 1000 {
			badRequest(w, r, fmt.Sprintf("min_combined_score must be an integer within [1, 1000], got %q", s))
			return
		}
		minScore = v
	}
	writeJSON(w, http.StatusOK, map[string]models.GeneNetwork{"data": n.Graph(gene, minScore)})
}
