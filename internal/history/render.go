// Package history renders block lineages, family timelines, and documents
// for humans, and exports a nodes/links graph view. Pure formatting over
// store state; no mutation, no external calls.
package history

import (
	"fmt"
	"strings"

	"github.com/starford/othala/internal/models"
)

const (
	lineWidth  = 100
	indentStep = 5
	wrapExtra  = 4
)

// Timeline renders one display line per block in the given order, used for
// family histories.
func Timeline(blocks []*models.Block) string {
	lines := make([]string, len(blocks))
	for i, b := range blocks {
		lines[i] = b.String()
	}
	return strings.Join(lines, "\n")
}

// Tree renders a provenance tree: the block first, each parent generation
// beneath it indented and prefixed with an up-arrow connector. Consecutive
// duplicate lines collapse and long lines wrap at a fixed width.
func Tree(root *models.ProvenanceNode) string {
	var lines []string
	walk(root, 0, &lines)
	return strings.Join(wrap(collapse(lines)), "\n")
}

func walk(node *models.ProvenanceNode, depth int, lines *[]string) {
	prefix := ""
	if depth > 0 {
		prefix = strings.Repeat(" ", depth*indentStep) + "↑__ "
	}
	*lines = append(*lines, prefix+node.Block.String())
	for _, p := range node.Parents {
		walk(p, depth+1, lines)
	}
}

// Document renders the document header followed by one line per referenced
// block.
func Document(d *models.Document, blocks []*models.Block) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== KBD %s ===", d.ID)
	for _, b := range blocks {
		fmt.Fprintf(&sb, "\n[%s] %s", b.ID, b.Content)
	}
	return sb.String()
}

// collapse drops lines identical to their predecessor.
func collapse(lines []string) []string {
	out := make([]string, 0, len(lines))
	for i, l := range lines {
		if i > 0 && lines[i-1] == l {
			continue
		}
		out = append(out, l)
	}
	return out
}

// wrap splits lines longer than lineWidth; continuations carry the line's
// indent plus a small extra. Once the indent leaves too little room the
// remainder of the rendering is cut with an ellipsis line.
func wrap(lines []string) []string {
	var out []string
	for _, row := range lines {
		indent := leadingSpaces(row)
		if indent+wrapExtra >= lineWidth-20 {
			out = append(out, "[...]")
			break
		}
		cont := []rune(strings.Repeat(" ", indent+wrapExtra))
		runes := []rune(row)
		for len(runes) > lineWidth {
			out = append(out, string(runes[:lineWidth]))
			runes = append(append([]rune{}, cont...), runes[lineWidth:]...)
		}
		out = append(out, string(runes))
	}
	return out
}

func leadingSpaces(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' {
			break
		}
		n++
	}
	return n
}
