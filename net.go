package qnet

// net.go contains code and data structures supporting the run-time
// representation of a quantum network: nodes with typed ports, channels
// joining an out port to an in port, and the pair sources that say which
// node generates entangled pairs and where each half goes.  A Topology is
// built fresh for every shot, so nothing in it is shared between shots.

import (
	"fmt"
	"sort"

	"golang.org/x/exp/slices"
)

// PortType distinguishes the roles a port plays on its node
type PortType int

const (
	// PortIn receives qubits from the channel bound to it
	PortIn PortType = iota

	// PortOut transmits (at most one qubit per shot) into the channel bound to it
	PortOut

	// PortMem holds a half that the node generated and keeps for itself
	PortMem
)

var ptToStr map[PortType]string = map[PortType]string{PortIn: "in", PortOut: "out", PortMem: "mem"}

func (pt PortType) String() string {
	str, present := ptToStr[pt]
	if !present {
		return fmt.Sprintf("PortType(%d)", int(pt))
	}
	return str
}

// portTypeFromStr is the inverse of PortType.String
func portTypeFromStr(str string) (PortType, error) {
	for pt, name := range ptToStr {
		if name == str {
			return pt, nil
		}
	}
	return PortIn, fmt.Errorf("%w: unknown port type %q", ErrConstruction, str)
}

// A Port is a directional endpoint on a Node
type Port struct {
	Name    string
	Type    PortType
	Node    *Node
	Channel *Channel // bound channel; nil when unbound and always nil for PortMem
}

// Endpoint returns the (node, port) name pair of the port
func (pt *Port) Endpoint() Endpoint {
	return Endpoint{Node: pt.Node.Name, Port: pt.Name}
}

// A Node is a named entity with a fixed set of ports
type Node struct {
	Name   string
	Number int
	ports  map[string]*Port
	order  []string
}

// createNode is a constructor
func createNode(name string, number int) *Node {
	return &Node{Name: name, Number: number, ports: make(map[string]*Port), order: []string{}}
}

// AddPorts adds ports of the given type.  A duplicated port name is a construction error.
func (n *Node) AddPorts(ptype PortType, names ...string) error {
	for _, name := range names {
		if len(name) == 0 {
			return fmt.Errorf("%w: empty port name on node %s", ErrConstruction, n.Name)
		}
		_, present := n.ports[name]
		if present {
			return fmt.Errorf("%w: port %s already on node %s", ErrConstruction, name, n.Name)
		}
		n.ports[name] = &Port{Name: name, Type: ptype, Node: n}
		n.order = append(n.order, name)
	}
	return nil
}

// Port returns the named port, or nil
func (n *Node) Port(name string) *Port {
	return n.ports[name]
}

// Ports returns the node's ports in the order they were added
func (n *Node) Ports() []*Port {
	pl := make([]*Port, 0, len(n.order))
	for _, name := range n.order {
		pl = append(pl, n.ports[name])
	}
	return pl
}

// A Channel carries qubits from one out port to one in port
type Channel struct {
	Name    string
	Number  int
	LengthM float64
	Loss    LossModel
	Src     *Port
	Dst     *Port
}

// TransmitProb is the probability that a qubit sent into the channel is delivered
func (ch *Channel) TransmitProb() float64 {
	return ch.Loss.TransmitProb(ch.LengthM)
}

// Delay is the propagation delay across the channel, in seconds
func (ch *Channel) Delay() float64 {
	return PropagationDelay(ch.LengthM)
}

// A PairSource generates one entangled pair per shot at Node, and places
// each half on one of the node's ports: a PortMem port keeps it, a PortOut port
// transmits it
type PairSource struct {
	Name   string
	Node   *Node
	Halves [2]*Port
}

// Holder returns the endpoint that ends up holding half i when it is delivered,
// and false if that half has nowhere to go
func (ps *PairSource) Holder(i int) (Endpoint, bool) {
	port := ps.Halves[i]
	if port.Type == PortMem {
		return port.Endpoint(), true
	}
	if port.Channel == nil {
		return Endpoint{}, false
	}
	return port.Channel.Dst.Endpoint(), true
}

// A SwapStep names a node and the two endpoints on it whose qubits are
// joined by a Bell-state measurement
type SwapStep struct {
	Node  string   `json:"node" yaml:"node"`
	Left  Endpoint `json:"left" yaml:"left"`
	Right Endpoint `json:"right" yaml:"right"`
}

// A Topology is the assembled graph of nodes, channels and pair sources for one shot
type Topology struct {
	Name string
	Kind TopoKind

	nodes      map[string]*Node
	nodeOrder  []*Node
	channels   []*Channel
	chanByName map[string]*Channel
	sources    []*PairSource

	endA, endB Endpoint

	plan        []SwapStep
	path        []string
	pathSources []*PairSource
	finalized   bool
}

// CreateTopology is a constructor
func CreateTopology(name string, kind TopoKind) *Topology {
	topo := new(Topology)
	topo.Name = name
	topo.Kind = kind
	topo.nodes = make(map[string]*Node)
	topo.nodeOrder = []*Node{}
	topo.channels = []*Channel{}
	topo.chanByName = make(map[string]*Channel)
	topo.sources = []*PairSource{}
	return topo
}

// AddNode creates a node with the given name.  Node names are unique within a topology.
func (topo *Topology) AddNode(name string) (*Node, error) {
	if len(name) == 0 {
		return nil, fmt.Errorf("%w: empty node name", ErrConstruction)
	}
	_, present := topo.nodes[name]
	if present {
		return nil, fmt.Errorf("%w: node %s already in topology %s", ErrConstruction, name, topo.Name)
	}
	node := createNode(name, len(topo.nodeOrder)+1)
	topo.nodes[name] = node
	topo.nodeOrder = append(topo.nodeOrder, node)
	topo.finalized = false
	return node, nil
}

// Node returns the named node, or nil
func (topo *Topology) Node(name string) *Node {
	return topo.nodes[name]
}

// Nodes returns the nodes in the order they were added
func (topo *Topology) Nodes() []*Node {
	return slices.Clone(topo.nodeOrder)
}

// lookupPort finds a port through its endpoint name
func (topo *Topology) lookupPort(ep Endpoint) (*Port, error) {
	node := topo.nodes[ep.Node]
	if node == nil {
		return nil, fmt.Errorf("%w: unknown node %s", ErrConstruction, ep.Node)
	}
	port := node.Port(ep.Port)
	if port == nil {
		return nil, fmt.Errorf("%w: unknown port %s", ErrConstruction, ep)
	}
	return port, nil
}

// Connect creates a channel from port out to port in.  Either port already being bound,
// or a port of the wrong direction, is a construction error.
func (topo *Topology) Connect(name string, out, in Endpoint, lengthM float64, lm LossModel) (*Channel, error) {
	if len(name) == 0 {
		return nil, fmt.Errorf("%w: empty channel name", ErrConstruction)
	}
	_, present := topo.chanByName[name]
	if present {
		return nil, fmt.Errorf("%w: channel %s already in topology %s", ErrConstruction, name, topo.Name)
	}
	if lengthM < 0.0 {
		return nil, fmt.Errorf("%w: channel %s length %g m", ErrDomain, name, lengthM)
	}
	if err := lm.Validate(); err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}

	src, err := topo.lookupPort(out)
	if err != nil {
		return nil, err
	}
	dst, err := topo.lookupPort(in)
	if err != nil {
		return nil, err
	}
	if src.Type != PortOut {
		return nil, fmt.Errorf("%w: channel %s source %s is a %s port", ErrConstruction, name, out, src.Type)
	}
	if dst.Type != PortIn {
		return nil, fmt.Errorf("%w: channel %s destination %s is a %s port", ErrConstruction, name, in, dst.Type)
	}
	if src.Channel != nil {
		return nil, fmt.Errorf("%w: port %s already bound to %s", ErrConstruction, out, src.Channel.Name)
	}
	if dst.Channel != nil {
		return nil, fmt.Errorf("%w: port %s already bound to %s", ErrConstruction, in, dst.Channel.Name)
	}

	ch := &Channel{Name: name, Number: len(topo.channels) + 1, LengthM: lengthM, Loss: lm, Src: src, Dst: dst}
	src.Channel = ch
	dst.Channel = ch
	topo.channels = append(topo.channels, ch)
	topo.chanByName[name] = ch
	topo.finalized = false
	return ch, nil
}

// Channel returns the named channel, or nil
func (topo *Topology) Channel(name string) *Channel {
	return topo.chanByName[name]
}

// Channels returns the channels in construction order, which is the order
// in which their loss draws are taken
func (topo *Topology) Channels() []*Channel {
	return slices.Clone(topo.channels)
}

// AddPairSource declares that node generates one pair per shot, putting its halves on the two named ports
func (topo *Topology) AddPairSource(name, node, halfA, halfB string) error {
	for _, ps := range topo.sources {
		if ps.Name == name {
			return fmt.Errorf("%w: pair source %s already in topology %s", ErrConstruction, name, topo.Name)
		}
	}
	if halfA == halfB {
		return fmt.Errorf("%w: pair source %s puts both halves on port %s", ErrConstruction, name, halfA)
	}

	ps := &PairSource{Name: name}
	for i, portName := range []string{halfA, halfB} {
		port, err := topo.lookupPort(Endpoint{Node: node, Port: portName})
		if err != nil {
			return err
		}
		if port.Type == PortIn {
			return fmt.Errorf("%w: pair source %s places a half on input port %s", ErrConstruction, name, port.Endpoint())
		}
		for _, other := range topo.sources {
			if other.Halves[0] == port || other.Halves[1] == port {
				return fmt.Errorf("%w: port %s used by pair sources %s and %s", ErrConstruction,
					port.Endpoint(), other.Name, name)
			}
		}
		ps.Halves[i] = port
	}
	ps.Node = topo.nodes[node]
	topo.sources = append(topo.sources, ps)
	topo.finalized = false
	return nil
}

// Sources returns the pair sources in the order they were added, which is generation order
func (topo *Topology) Sources() []*PairSource {
	return slices.Clone(topo.sources)
}

// SetEndpoints names the two endpoints between which an end-to-end pair is wanted
func (topo *Topology) SetEndpoints(a, b Endpoint) error {
	for _, ep := range []Endpoint{a, b} {
		port, err := topo.lookupPort(ep)
		if err != nil {
			return err
		}
		if port.Type == PortOut {
			return fmt.Errorf("%w: endpoint %s is an output port", ErrConstruction, ep)
		}
	}
	if a.Node == b.Node {
		return fmt.Errorf("%w: both endpoints on node %s", ErrConstruction, a.Node)
	}
	topo.endA, topo.endB = a, b
	topo.finalized = false
	return nil
}

// Endpoints returns the end-to-end endpoints
func (topo *Topology) Endpoints() (Endpoint, Endpoint) {
	return topo.endA, topo.endB
}

// Validate checks the invariants a topology must satisfy before a shot runs:
// every port a pair source transmits on is bound to a channel, and the endpoints are set.
// All violations found are reported together.
func (topo *Topology) Validate() error {
	errs := []error{}
	if len(topo.endA.Node) == 0 || len(topo.endB.Node) == 0 {
		errs = append(errs, fmt.Errorf("%w: topology %s has no endpoints", ErrConstruction, topo.Name))
	}
	if len(topo.sources) == 0 {
		errs = append(errs, fmt.Errorf("%w: topology %s has no pair sources", ErrConstruction, topo.Name))
	}
	for _, ps := range topo.sources {
		for i := range ps.Halves {
			if _, ok := ps.Holder(i); !ok {
				errs = append(errs, fmt.Errorf("%w: pair source %s transmits on dangling port %s",
					ErrConstruction, ps.Name, ps.Halves[i].Endpoint()))
			}
		}
	}
	return ReportErrs(errs)
}

// Finalize validates the topology and computes its swap plan.  A topology
// must be finalized before a shot can run on it.
func (topo *Topology) Finalize() error {
	if err := topo.Validate(); err != nil {
		return err
	}
	sp, err := discoverSwapPlan(topo)
	if err != nil {
		return err
	}
	topo.plan = sp.plan
	topo.path = sp.names
	topo.pathSources = sp.sources
	topo.finalized = true
	return nil
}

// Finalized reports whether Finalize has succeeded since the last change
func (topo *Topology) Finalized() bool {
	return topo.finalized
}

// SwapPlan returns the swaps that join the links on the entanglement path into one end-to-end pair
func (topo *Topology) SwapPlan() []SwapStep {
	return slices.Clone(topo.plan)
}

// Path returns the names of the nodes on the entanglement path, endpoint to endpoint
func (topo *Topology) Path() []string {
	return slices.Clone(topo.path)
}

// NodeNames returns the sorted names of the topology's nodes
func (topo *Topology) NodeNames() []string {
	names := make([]string, 0, len(topo.nodes))
	for name := range topo.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
