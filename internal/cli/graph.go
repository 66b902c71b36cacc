package cli

import (
	"fmt"
	"io"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/presentation/graph"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/harness"
)

// Topology describes the deployed relay for diagramming.
func Topology(r *relay.Relay) graph.Topology {
	c := r.Custodian()
	return graph.Topology{
		Nodes: []graph.Node{
			{ID: "funding", Label: "funding source", Address: r.Wallet().Address(), Kind: graph.KindWallet},
			{ID: "custodian", Label: "custodian", Address: c.Address(), Kind: graph.KindEntry},
			{ID: "receiver", Label: "receiver", Address: c.Receiver().Address(), Kind: graph.KindEntry},
			{ID: "owner", Label: "owner", Address: c.Owner().Address(), Kind: graph.KindHolder},
		},
		Edges: []graph.Edge{
			{From: "funding", To: "custodian", Label: "fund", Capability: c.Ref().Capability()},
			{From: "custodian", To: "receiver", Label: string(harness.KindForward), Capability: c.Receiver().Capability()},
			{From: "custodian", To: "owner", Label: string(harness.KindPromoted), Capability: c.Owner().Capability()},
		},
	}
}

// Graph writes the Mermaid diagram of r. With a report, edges are coloured by
// the outcomes it recorded; an overdraw runs along the forward edge.
func Graph(w io.Writer, r *relay.Relay, report *harness.Report) error {
	var overlay *graph.Overlay
	if report != nil {
		overlay = &graph.Overlay{Outcomes: map[string]domain.Outcome{}}
		for _, s := range report.Steps {
			switch {
			case s.Step == harness.StepFund:
				overlay.Outcomes["fund"] = s.Outcome
			case s.Scenario == harness.KindForward || s.Scenario == harness.KindPromoted:
				overlay.Outcomes[string(s.Scenario)] = s.Outcome
			}
		}
	}
	_, err := fmt.Fprint(w, graph.GenerateMermaid(Topology(r), overlay))
	return err
}
