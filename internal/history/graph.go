package history

import (
	"github.com/starford/othala/internal/models"
)

const snippetLen = 80

// GraphNode is one block in the exported lineage graph.
type GraphNode struct {
	ID      string        `json:"id"`
	Family  string        `json:"family"`
	Op      models.OpKind `json:"op"`
	State   models.State  `json:"state"`
	Snippet string        `json:"snippet"`
}

// GraphLink is a directed lineage edge from parent to child.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph flattens a provenance tree into unique nodes and parent-to-child
// links for visualization.
func Graph(root *models.ProvenanceNode) ([]GraphNode, []GraphLink) {
	var nodes []GraphNode
	var links []GraphLink
	seenNode := make(map[string]bool)
	seenLink := make(map[string]bool)

	var visit func(n *models.ProvenanceNode)
	visit = func(n *models.ProvenanceNode) {
		if !seenNode[n.Block.ID] {
			seenNode[n.Block.ID] = true
			nodes = append(nodes, GraphNode{
				ID:      n.Block.ID,
				Family:  n.Block.FamilyID,
				Op:      n.Block.Op,
				State:   n.Block.State,
				Snippet: snippet(n.Block.Content),
			})
		}
		for _, p := range n.Parents {
			key := p.Block.ID + ">" + n.Block.ID
			if !seenLink[key] {
				seenLink[key] = true
				links = append(links, GraphLink{Source: p.Block.ID, Target: n.Block.ID})
			}
			visit(p)
		}
	}
	visit(root)
	return nodes, links
}

func snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= snippetLen {
		return s
	}
	return string(runes[:snippetLen]) + "..."
}
