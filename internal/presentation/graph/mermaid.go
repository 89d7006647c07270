package graph

import (
	"fmt"
	"strings"

	flow "github.com/aretw0/threadgraph/pkg/graph"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces a Mermaid flowchart for a compiled graph.
// The sentinels are drawn as circles, nodes as rectangles, unconditional
// edges as solid arrows and router destinations as dotted arrows.
// Overlay styles (visited/current) are applied if provided.
func GenerateMermaid(g *flow.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	fmt.Fprintf(&sb, "    %s((\"start\"))\n", sanitizeMermaidID(flow.Start))
	for _, name := range g.Nodes() {
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", sanitizeMermaidID(name), escapeLabel(name))
	}
	fmt.Fprintf(&sb, "    %s((\"end\"))\n", sanitizeMermaidID(flow.End))

	for _, e := range g.Edges() {
		fmt.Fprintf(&sb, "    %s --> %s\n", sanitizeMermaidID(e.From), sanitizeMermaidID(e.To))
	}
	for _, b := range g.Branches() {
		for _, dest := range b.Destinations {
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", sanitizeMermaidID(b.From), escapeLabel(dest), sanitizeMermaidID(dest))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	switch id {
	case flow.Start:
		return "START"
	case flow.End:
		return "END"
	}
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_", "\"", "")
	return r.Replace(id)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
