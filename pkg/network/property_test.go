package network

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildChain creates a reservoir feeding a chain of n junctions.
func buildChain(n int) *Network {
	net := New("chain")
	for i := 0; i < n; i++ {
		node := &Node{ID: fmt.Sprintf("J%d", i), Elevation: 100}
		node.Demands = append(node.Demands, Demand{Base: 0.1, Pattern: -1})
		net.AddJunction(node)
	}
	net.AddTank(&Node{ID: "R", Elevation: 200}, &Tank{H0: 200, Hmin: 200, Hmax: 200, VolCurve: -1})
	r, _ := net.NodeIndex("R")
	net.AddLink(&Link{ID: "L0", N1: r, N2: 0, Type: Pipe, Diam: 1, Length: 100, Roughness: 100, InitStatus: Open})
	for i := 1; i < n; i++ {
		net.AddLink(&Link{ID: fmt.Sprintf("L%d", i), N1: i - 1, N2: i, Type: Pipe, Diam: 1, Length: 100, Roughness: 100, InitStatus: Open})
	}
	return net
}

// TestRenumberInvariants verifies that any sequence of deletions leaves
// every stored index valid and every ID lookup consistent.
func TestRenumberInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("deletion keeps all back-references valid", prop.ForAll(
		func(size int, deletions []int) bool {
			net := buildChain(size)
			for _, d := range deletions {
				if len(net.Nodes) == 0 {
					break
				}
				net.DeleteNode(d % len(net.Nodes))
			}
			return invariantsHold(net)
		},
		gen.IntRange(2, 8),
		gen.SliceOfN(4, gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}

func invariantsHold(net *Network) bool {
	for _, l := range net.Links {
		if l.N1 < 0 || l.N1 >= len(net.Nodes) || l.N2 < 0 || l.N2 >= len(net.Nodes) {
			return false
		}
	}
	for ti, tk := range net.Tanks {
		if tk.Node < 0 || tk.Node >= len(net.Nodes) {
			return false
		}
		if net.Nodes[tk.Node].Tank != ti {
			return false
		}
	}
	for i, node := range net.Nodes {
		if got, ok := net.NodeIndex(node.ID); !ok || got != i {
			return false
		}
		if i < net.Njunctions && node.Type != Junction {
			return false
		}
		if i >= net.Njunctions && node.Type == Junction {
			return false
		}
	}
	for _, c := range net.Controls {
		if c.Link < 0 || c.Link >= len(net.Links) {
			return false
		}
		if c.Node >= len(net.Nodes) {
			return false
		}
	}
	for _, r := range net.Rules {
		for _, p := range r.Premises {
			switch p.Object {
			case RuleNode:
				if p.Index < 0 || p.Index >= len(net.Nodes) {
					return false
				}
			case RuleLink:
				if p.Index < 0 || p.Index >= len(net.Links) {
					return false
				}
			}
		}
		for _, a := range append(append([]RuleAction{}, r.Then...), r.Else...) {
			if a.Link < 0 || a.Link >= len(net.Links) {
				return false
			}
		}
	}
	return true
}
