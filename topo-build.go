package qnet

// topo-build.go holds the parameterized topology factories.  Every call constructs
// new objects, so the driver calls a factory once per shot.

import (
	"fmt"
)

// TopoKind selects a topology factory
type TopoKind string

const (
	KindChain    TopoKind = "chain"
	KindStar     TopoKind = "star"
	KindTwoHop   TopoKind = "two-hop"
	KindMidpoint TopoKind = "midpoint"
	KindCustom   TopoKind = "custom"
)

// TopoKinds lists the recognized topology kinds
var TopoKinds []TopoKind = []TopoKind{KindChain, KindStar, KindTwoHop, KindMidpoint, KindCustom}

// TopoParams carries what the factories need.  Fields a kind does not use are ignored.
type TopoParams struct {
	// number of repeaters on a chain; the chain has Repeaters+1 hops
	Repeaters int

	// number of clients on a star, and the two of them to entangle
	Clients    int
	SwitchPair [2]int

	// length of every channel, meters
	LengthM float64

	// loss model of every channel
	Loss LossModel

	// description of a custom topology
	Desc *TopoDesc

	// per-channel overrides, applied after construction
	Overrides []ChannelParam
}

// BuildTopology builds a fresh, finalized topology of the given kind
func BuildTopology(kind TopoKind, params TopoParams) (*Topology, error) {
	var topo *Topology
	var err error

	switch kind {
	case KindChain:
		topo, err = BuildChain(params.Repeaters+1, params.LengthM, params.Loss)
	case KindStar:
		topo, err = BuildStarPair(params.Clients, params.SwitchPair[0], params.SwitchPair[1],
			params.LengthM, params.Loss)
	case KindTwoHop:
		topo, err = BuildTwoHop(params.LengthM, params.Loss)
	case KindMidpoint:
		topo, err = BuildMidpoint(params.LengthM, params.Loss)
	case KindCustom:
		if params.Desc == nil {
			return nil, fmt.Errorf("%w: custom topology without a description", ErrConstruction)
		}
		topo, err = params.Desc.Build()
	default:
		return nil, fmt.Errorf("%w: unknown topology kind %q", ErrConstruction, kind)
	}
	if err != nil {
		return nil, err
	}

	if len(params.Overrides) > 0 {
		if err := ApplyChannelParams(topo, params.Overrides); err != nil {
			return nil, err
		}
	}
	return topo, nil
}

// BuildChain builds a repeater chain of nHops links: Alice, repeaters R0 .. R(nHops-2), Bob.
// Every node but Bob generates a pair, keeps one half in memory and sends the other to its
// right neighbor.  Each repeater swaps the half it received from the left with the half it kept.
func BuildChain(nHops int, linkLengthM float64, lm LossModel) (*Topology, error) {
	if nHops < 1 {
		return nil, fmt.Errorf("%w: chain needs at least one hop, got %d", ErrDomain, nHops)
	}
	topo := CreateTopology(fmt.Sprintf("chain-%d", nHops), KindChain)

	names := make([]string, 0, nHops+1)
	names = append(names, "Alice")
	for idx := 0; idx < nHops-1; idx++ {
		names = append(names, fmt.Sprintf("R%d", idx))
	}
	names = append(names, "Bob")

	errs := []error{}
	for idx, name := range names {
		node, err := topo.AddNode(name)
		if err != nil {
			return nil, err
		}
		switch {
		case idx == 0:
			errs = append(errs, node.AddPorts(PortMem, "mem"))
			errs = append(errs, node.AddPorts(PortOut, "qout_right"))
		case idx == nHops:
			errs = append(errs, node.AddPorts(PortIn, "qin"))
		default:
			errs = append(errs, node.AddPorts(PortIn, "qin_left"))
			errs = append(errs, node.AddPorts(PortMem, "mem_right"))
			errs = append(errs, node.AddPorts(PortOut, "qout_right"))
		}
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}

	for idx := 0; idx < nHops; idx++ {
		here, there := names[idx], names[idx+1]
		inPort := "qin_left"
		if idx+1 == nHops {
			inPort = "qin"
		}
		chName := fmt.Sprintf("chan_%s_%s", chainTag(here), chainTag(there))
		_, err := topo.Connect(chName, Endpoint{Node: here, Port: "qout_right"},
			Endpoint{Node: there, Port: inPort}, linkLengthM, lm)
		if err != nil {
			return nil, err
		}

		memPort := "mem_right"
		if idx == 0 {
			memPort = "mem"
		}
		if err := topo.AddPairSource("src_"+chainTag(here), here, memPort, "qout_right"); err != nil {
			return nil, err
		}
	}

	if err := topo.SetEndpoints(Endpoint{Node: "Alice", Port: "mem"}, Endpoint{Node: "Bob", Port: "qin"}); err != nil {
		return nil, err
	}
	if err := topo.Finalize(); err != nil {
		return nil, err
	}
	return topo, nil
}

// chainTag gives the lower case form used in chain channel and source names
func chainTag(name string) string {
	switch name {
	case "Alice":
		return "alice"
	case "Bob":
		return "bob"
	}
	return "r" + name[1:]
}

// BuildStar builds a quantum switch with nClients clients, entangling C0 with C1
func BuildStar(nClients int, linkLengthM float64, lm LossModel) (*Topology, error) {
	return BuildStarPair(nClients, 0, 1, linkLengthM, lm)
}

// BuildStarPair builds a quantum switch with nClients clients C0 .. C(nClients-1).
// For every client the switch generates a pair, keeps one half and sends the other
// over the switch-to-client channel.  The client-to-switch channels are wired but carry
// nothing.  The switch swaps the halves it kept for clients a and b.
func BuildStarPair(nClients, a, b int, linkLengthM float64, lm LossModel) (*Topology, error) {
	if nClients < 2 {
		return nil, fmt.Errorf("%w: star needs at least two clients, got %d", ErrDomain, nClients)
	}
	if a == b || a < 0 || b < 0 || a >= nClients || b >= nClients {
		return nil, fmt.Errorf("%w: switch pair (%d,%d) with %d clients", ErrDomain, a, b, nClients)
	}
	topo := CreateTopology(fmt.Sprintf("star-%d", nClients), KindStar)

	sw, err := topo.AddNode("Switch")
	if err != nil {
		return nil, err
	}
	errs := []error{}
	for idx := 0; idx < nClients; idx++ {
		errs = append(errs, sw.AddPorts(PortIn, fmt.Sprintf("qin_from_c%d", idx)))
		errs = append(errs, sw.AddPorts(PortOut, fmt.Sprintf("qout_to_c%d", idx)))
		errs = append(errs, sw.AddPorts(PortMem, fmt.Sprintf("mem_c%d", idx)))
	}
	for idx := 0; idx < nClients; idx++ {
		client, err := topo.AddNode(fmt.Sprintf("C%d", idx))
		if err != nil {
			return nil, err
		}
		errs = append(errs, client.AddPorts(PortIn, "qin"))
		errs = append(errs, client.AddPorts(PortOut, "qout"))
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}

	for idx := 0; idx < nClients; idx++ {
		client := fmt.Sprintf("C%d", idx)
		_, err := topo.Connect(fmt.Sprintf("chan_s2c%d", idx), Endpoint{Node: "Switch", Port: fmt.Sprintf("qout_to_c%d", idx)},
			Endpoint{Node: client, Port: "qin"}, linkLengthM, lm)
		if err != nil {
			return nil, err
		}
		_, err = topo.Connect(fmt.Sprintf("chan_c%d2s", idx), Endpoint{Node: client, Port: "qout"},
			Endpoint{Node: "Switch", Port: fmt.Sprintf("qin_from_c%d", idx)}, linkLengthM, lm)
		if err != nil {
			return nil, err
		}
		err = topo.AddPairSource(fmt.Sprintf("src_c%d", idx), "Switch",
			fmt.Sprintf("mem_c%d", idx), fmt.Sprintf("qout_to_c%d", idx))
		if err != nil {
			return nil, err
		}
	}

	err = topo.SetEndpoints(Endpoint{Node: fmt.Sprintf("C%d", a), Port: "qin"},
		Endpoint{Node: fmt.Sprintf("C%d", b), Port: "qin"})
	if err != nil {
		return nil, err
	}
	if err := topo.Finalize(); err != nil {
		return nil, err
	}
	return topo, nil
}

// BuildTwoHop builds Alice, Middle and Bob with two sources.  Source1 sends its halves to
// Alice and Middle, Source2 to Middle and Bob, each half over a channel of the given length.
// Middle swaps.
func BuildTwoHop(linkLengthM float64, lm LossModel) (*Topology, error) {
	topo := CreateTopology("two-hop", KindTwoHop)

	nodePorts := []struct {
		name  string
		ptype PortType
		ports []string
	}{
		{"Alice", PortIn, []string{"qin"}},
		{"Middle", PortIn, []string{"qin1", "qin2"}},
		{"Bob", PortIn, []string{"qin"}},
		{"Source1", PortOut, []string{"qout_1", "qout_2"}},
		{"Source2", PortOut, []string{"qout_1", "qout_2"}},
	}
	for _, np := range nodePorts {
		node, err := topo.AddNode(np.name)
		if err != nil {
			return nil, err
		}
		if err := node.AddPorts(np.ptype, np.ports...); err != nil {
			return nil, err
		}
	}

	channels := []struct {
		name    string
		out, in Endpoint
	}{
		{"chan_Alice_Middle_1", Endpoint{"Source1", "qout_1"}, Endpoint{"Alice", "qin"}},
		{"chan_Alice_Middle_2", Endpoint{"Source1", "qout_2"}, Endpoint{"Middle", "qin1"}},
		{"chan_Middle_Bob_1", Endpoint{"Source2", "qout_1"}, Endpoint{"Middle", "qin2"}},
		{"chan_Middle_Bob_2", Endpoint{"Source2", "qout_2"}, Endpoint{"Bob", "qin"}},
	}
	for _, ch := range channels {
		if _, err := topo.Connect(ch.name, ch.out, ch.in, linkLengthM, lm); err != nil {
			return nil, err
		}
	}

	if err := topo.AddPairSource("src_1", "Source1", "qout_1", "qout_2"); err != nil {
		return nil, err
	}
	if err := topo.AddPairSource("src_2", "Source2", "qout_1", "qout_2"); err != nil {
		return nil, err
	}
	if err := topo.SetEndpoints(Endpoint{"Alice", "qin"}, Endpoint{"Bob", "qin"}); err != nil {
		return nil, err
	}
	if err := topo.Finalize(); err != nil {
		return nil, err
	}
	return topo, nil
}

// BuildMidpoint builds a single source between Alice and Bob, sending one half to each
// over a channel of the given length.  With zero length it is the plain Bell pair.
func BuildMidpoint(linkLengthM float64, lm LossModel) (*Topology, error) {
	topo := CreateTopology("midpoint", KindMidpoint)

	src, err := topo.AddNode("Source")
	if err != nil {
		return nil, err
	}
	if err := src.AddPorts(PortOut, "qout_A", "qout_B"); err != nil {
		return nil, err
	}
	for _, name := range []string{"Alice", "Bob"} {
		node, err := topo.AddNode(name)
		if err != nil {
			return nil, err
		}
		if err := node.AddPorts(PortIn, "qin"); err != nil {
			return nil, err
		}
	}

	if _, err := topo.Connect("chan_A", Endpoint{"Source", "qout_A"}, Endpoint{"Alice", "qin"}, linkLengthM, lm); err != nil {
		return nil, err
	}
	if _, err := topo.Connect("chan_B", Endpoint{"Source", "qout_B"}, Endpoint{"Bob", "qin"}, linkLengthM, lm); err != nil {
		return nil, err
	}
	if err := topo.AddPairSource("src", "Source", "qout_A", "qout_B"); err != nil {
		return nil, err
	}
	if err := topo.SetEndpoints(Endpoint{"Alice", "qin"}, Endpoint{"Bob", "qin"}); err != nil {
		return nil, err
	}
	if err := topo.Finalize(); err != nil {
		return nil, err
	}
	return topo, nil
}
