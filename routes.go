package qnet

// routes.go discovers the entanglement path of a topology and the swap plan that goes with it

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The general approach is to convert the topology into the graph representation used by
// gonum, which has built-in path discovery algorithms.  The graph is not the graph of
// channels.  Its vertices are the topology's nodes, and there is an edge between two nodes
// when some pair source places one half of its pair on each of them (directly on a memory
// port, or through a channel to an input port).  An edge is therefore one elementary link.
// Weighting each edge by 1, a shortest path between the nodes of the two endpoints uses the
// fewest links, and every interior node of that path has to join the link on its left with
// the link on its right by a swap.

// holderLink records, for one edge of the holder graph, which endpoints hold the two halves
type holderLink struct {
	source *PairSource
	ends   map[string]Endpoint // node name -> endpoint holding that node's half
}

func linkKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// buildHolderGraph returns the holder graph of a topology, together with the
// elementary link that each edge stands for
func buildHolderGraph(topo *Topology) (graph.Graph, map[string]*holderLink, error) {
	hg := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for _, node := range topo.nodeOrder {
		hg.AddNode(simple.Node(node.Number))
	}

	links := make(map[string]*holderLink)
	for _, ps := range topo.sources {
		epA, okA := ps.Holder(0)
		epB, okB := ps.Holder(1)
		if !okA || !okB {
			return nil, nil, fmt.Errorf("%w: pair source %s has a dangling half", ErrConstruction, ps.Name)
		}
		if epA.Node == epB.Node {
			return nil, nil, fmt.Errorf("%w: pair source %s places both halves on node %s",
				ErrConstruction, ps.Name, epA.Node)
		}
		key := linkKey(epA.Node, epB.Node)
		if prev, present := links[key]; present {
			return nil, nil, fmt.Errorf("%w: pair sources %s and %s both link %s and %s",
				ErrConstruction, prev.source.Name, ps.Name, epA.Node, epB.Node)
		}
		links[key] = &holderLink{source: ps, ends: map[string]Endpoint{epA.Node: epA, epB.Node: epB}}

		from := simple.Node(topo.nodes[epA.Node].Number)
		to := simple.Node(topo.nodes[epB.Node].Number)
		hg.SetWeightedEdge(simple.WeightedEdge{F: from, T: to, W: 1.0})
	}
	return hg, links, nil
}

// a swapPath is the entanglement path between a topology's endpoints
type swapPath struct {
	plan    []SwapStep    // one swap per interior node
	names   []string      // nodes on the path, endpoint to endpoint
	sources []*PairSource // pair source of each link on the path
}

// discoverSwapPlan finds the shortest entanglement path between the topology's endpoints
// and the swap every interior node of it performs
func discoverSwapPlan(topo *Topology) (*swapPath, error) {
	hg, links, err := buildHolderGraph(topo)
	if err != nil {
		return nil, err
	}

	srcNode := topo.nodes[topo.endA.Node]
	dstNode := topo.nodes[topo.endB.Node]

	// let graph/path.DijkstraFrom compute the tree rooted at the first endpoint's node
	spTree := path.DijkstraFrom(simple.Node(srcNode.Number), hg)
	nodeSeq, _ := spTree.To(int64(dstNode.Number))
	if len(nodeSeq) < 2 {
		return nil, fmt.Errorf("%w: no entanglement path from %s to %s", ErrConstruction,
			topo.endA, topo.endB)
	}

	idToName := make(map[int64]string)
	for _, node := range topo.nodeOrder {
		idToName[int64(node.Number)] = node.Name
	}
	names := make([]string, len(nodeSeq))
	for idx, gn := range nodeSeq {
		names[idx] = idToName[gn.ID()]
	}

	// the links at either end must put their halves exactly on the endpoints
	first := links[linkKey(names[0], names[1])]
	last := links[linkKey(names[len(names)-2], names[len(names)-1])]
	if first.ends[names[0]] != topo.endA {
		return nil, fmt.Errorf("%w: endpoint %s receives no half of pair source %s", ErrConstruction,
			topo.endA, first.source.Name)
	}
	if last.ends[names[len(names)-1]] != topo.endB {
		return nil, fmt.Errorf("%w: endpoint %s receives no half of pair source %s", ErrConstruction,
			topo.endB, last.source.Name)
	}

	sp := &swapPath{plan: make([]SwapStep, 0, len(names)-2), names: names}
	for idx := 1; idx < len(names); idx++ {
		sp.sources = append(sp.sources, links[linkKey(names[idx-1], names[idx])].source)
	}
	for idx := 1; idx < len(names)-1; idx++ {
		here := names[idx]
		left := links[linkKey(names[idx-1], here)]
		right := links[linkKey(here, names[idx+1])]
		sp.plan = append(sp.plan, SwapStep{Node: here, Left: left.ends[here], Right: right.ends[here]})
	}
	return sp, nil
}

// PathSuccessProb is the probability that every half needed on the entanglement path
// is delivered, the product of the transmission probabilities of the channels the
// path's pair sources transmit on.  It is the expected end-to-end success rate.
func (topo *Topology) PathSuccessProb() float64 {
	p := 1.0
	for _, ps := range topo.pathSources {
		for _, port := range ps.Halves {
			if port.Type == PortOut && port.Channel != nil {
				p *= port.Channel.TransmitProb()
			}
		}
	}
	return p
}

// Hops is the number of elementary links on the entanglement path
func (topo *Topology) Hops() int {
	return len(topo.pathSources)
}

// ShowPath returns a string that lists the names of the nodes on the topology's entanglement path
func (topo *Topology) ShowPath() string {
	return strings.Join(topo.path, ",")
}
