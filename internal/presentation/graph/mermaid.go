package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
)

// NodeKind selects the shape of an account in the diagram.
type NodeKind string

const (
	KindWallet NodeKind = "wallet" // externally owned
	KindEntry  NodeKind = "entry"  // code that accepts value
	KindHolder NodeKind = "holder" // code without accept
)

// Node is an account in the topology.
type Node struct {
	ID      string
	Label   string
	Address domain.Address
	Kind    NodeKind
}

// Edge is a reference one account holds to another.
type Edge struct {
	From, To   string
	Label      string
	Capability domain.Capability
}

// Topology is the deployed relay as a graph.
type Topology struct {
	Nodes []Node
	Edges []Edge
}

// Overlay colours edges by the outcome of the last operation along them,
// keyed by edge label.
type Overlay struct {
	Outcomes map[string]domain.Outcome
}

// GenerateMermaid produces a Mermaid flowchart of the topology.
// Shapes:
// - Wallet: ([Stadium])
// - Entry: [[Subroutine]]
// - Holder: [Rectangle]
// Receiving references are solid arrows, opaque ones dotted.
func GenerateMermaid(t Topology, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, n := range t.Nodes {
		opener, closer := "[", "]"
		switch n.Kind {
		case KindWallet:
			opener, closer = "([", "])"
		case KindEntry:
			opener, closer = "[[", "]]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s <br/> %s\"%s\n", sanitizeMermaidID(n.ID), opener, n.Label, n.Address.Short(), closer)
	}

	for _, e := range t.Edges {
		label := strings.ReplaceAll(e.Label, "\"", "'")
		arrow := fmt.Sprintf("-- \"%s\" -->", label)
		if e.Capability == domain.CapabilityOpaque {
			arrow = fmt.Sprintf("-. \"%s (opaque)\" .->", label)
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.From), arrow, sanitizeMermaidID(e.To))
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		for i, e := range t.Edges {
			outcome, ok := overlay.Outcomes[e.Label]
			if !ok {
				continue
			}
			switch {
			case outcome == domain.OutcomeCommitted:
				fmt.Fprintf(&sb, "    linkStyle %d stroke:#16a34a,stroke-width:3px;\n", i)
			case outcome.Reverted():
				fmt.Fprintf(&sb, "    linkStyle %d stroke:#dc2626,stroke-width:3px;\n", i)
			}
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
