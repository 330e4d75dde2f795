package models

// GeneNetwork is the gene association graph returned by the network
// endpoint, already shaped as renderer elements.
type GeneNetwork struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphNode is a gene in the association network.
type GraphNode struct {
	Data NodeData `json:"data"`
}

// NodeData holds the attributes the style table selects on.
type NodeData struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Query bool    `json:"query,omitempty"`
	Attr  bool    `json:"attr,omitempty"`
}

// GraphEdge is an association between two genes.
type GraphEdge struct {
	Data EdgeData `json:"data"`
}

// EdgeData holds the association attributes.
type EdgeData struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
	Group  string  `json:"group,omitempty"`
}
