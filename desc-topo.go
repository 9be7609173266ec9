package qnet

// desc-topo.go holds the serializable description of a topology.  A TopoDesc can be
// written to and read from yaml or json, produced from a runtime Topology by Transform,
// and turned back into a fresh runtime Topology by Build.  Custom topologies are
// loaded this way.

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

// A PortDesc describes one port of a node
type PortDesc struct {
	Name string `json:"name" yaml:"name"`

	// "in", "out", or "mem"
	Type string `json:"type" yaml:"type"`
}

// A NodeDesc describes a node and its ports
type NodeDesc struct {
	Name  string     `json:"name" yaml:"name"`
	Ports []PortDesc `json:"ports" yaml:"ports"`
}

// A ChannelDesc describes a channel from an out port to an in port
type ChannelDesc struct {
	Name    string    `json:"name" yaml:"name"`
	Src     Endpoint  `json:"src" yaml:"src"`
	Dst     Endpoint  `json:"dst" yaml:"dst"`
	LengthM float64   `json:"lengthm" yaml:"lengthm"`
	Loss    LossModel `json:"loss" yaml:"loss"`
}

// A PairSourceDesc describes a pair source: the generating node and the two
// ports receiving the halves
type PairSourceDesc struct {
	Name  string `json:"name" yaml:"name"`
	Node  string `json:"node" yaml:"node"`
	HalfA string `json:"halfa" yaml:"halfa"`
	HalfB string `json:"halfb" yaml:"halfb"`
}

// A TopoDesc describes a whole topology
type TopoDesc struct {
	Name     string           `json:"name" yaml:"name"`
	Kind     TopoKind         `json:"kind" yaml:"kind"`
	Nodes    []NodeDesc       `json:"nodes" yaml:"nodes"`
	Channels []ChannelDesc    `json:"channels" yaml:"channels"`
	Sources  []PairSourceDesc `json:"sources" yaml:"sources"`
	EndA     Endpoint         `json:"enda" yaml:"enda"`
	EndB     Endpoint         `json:"endb" yaml:"endb"`
}

// CreateTopoDesc is a constructor
func CreateTopoDesc(name string) *TopoDesc {
	td := new(TopoDesc)
	td.Name = name
	td.Kind = KindCustom
	td.Nodes = make([]NodeDesc, 0)
	td.Channels = make([]ChannelDesc, 0)
	td.Sources = make([]PairSourceDesc, 0)
	return td
}

// AddNode adds a node description with the given ports.  Port types are "in", "out", or "mem".
func (td *TopoDesc) AddNode(name string, ports ...PortDesc) {
	td.Nodes = append(td.Nodes, NodeDesc{Name: name, Ports: slices.Clone(ports)})
}

// AddChannel adds a channel description
func (td *TopoDesc) AddChannel(name string, src, dst Endpoint, lengthM float64, lm LossModel) {
	td.Channels = append(td.Channels, ChannelDesc{Name: name, Src: src, Dst: dst, LengthM: lengthM, Loss: lm})
}

// AddSource adds a pair source description
func (td *TopoDesc) AddSource(name, node, halfA, halfB string) {
	td.Sources = append(td.Sources, PairSourceDesc{Name: name, Node: node, HalfA: halfA, HalfB: halfB})
}

// Transform produces the description of a runtime topology
func (topo *Topology) Transform() TopoDesc {
	td := CreateTopoDesc(topo.Name)
	td.Kind = topo.Kind
	for _, node := range topo.nodeOrder {
		pds := []PortDesc{}
		for _, port := range node.Ports() {
			pds = append(pds, PortDesc{Name: port.Name, Type: port.Type.String()})
		}
		td.AddNode(node.Name, pds...)
	}
	for _, ch := range topo.channels {
		td.AddChannel(ch.Name, ch.Src.Endpoint(), ch.Dst.Endpoint(), ch.LengthM, ch.Loss)
	}
	for _, ps := range topo.sources {
		td.AddSource(ps.Name, ps.Node.Name, ps.Halves[0].Name, ps.Halves[1].Name)
	}
	td.EndA, td.EndB = topo.endA, topo.endB
	return *td
}

// Build constructs a fresh, finalized runtime topology from the description.
// Every problem found while adding nodes and ports is reported together.
func (td *TopoDesc) Build() (*Topology, error) {
	kind := td.Kind
	if len(kind) == 0 {
		kind = KindCustom
	}
	topo := CreateTopology(td.Name, kind)

	errs := []error{}
	for _, nd := range td.Nodes {
		node, err := topo.AddNode(nd.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, pd := range nd.Ports {
			ptype, err := portTypeFromStr(strings.ToLower(pd.Type))
			if err != nil {
				errs = append(errs, fmt.Errorf("node %s port %s: %w", nd.Name, pd.Name, err))
				continue
			}
			errs = append(errs, node.AddPorts(ptype, pd.Name))
		}
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}

	for _, cd := range td.Channels {
		if _, err := topo.Connect(cd.Name, cd.Src, cd.Dst, cd.LengthM, cd.Loss); err != nil {
			return nil, err
		}
	}
	for _, sd := range td.Sources {
		if err := topo.AddPairSource(sd.Name, sd.Node, sd.HalfA, sd.HalfB); err != nil {
			return nil, err
		}
	}
	if err := topo.SetEndpoints(td.EndA, td.EndB); err != nil {
		return nil, err
	}
	if err := topo.Finalize(); err != nil {
		return nil, err
	}
	return topo, nil
}

// WriteToFile stores the TopoDesc to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (td *TopoDesc) WriteToFile(filename string) error {
	return writeSerialized(filename, *td)
}

// ReadTopoDesc deserializes a byte slice holding a representation of a TopoDesc.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.
func ReadTopoDesc(filename string, useYAML bool, dict []byte) (*TopoDesc, error) {
	example := TopoDesc{}
	if err := readSerialized(filename, useYAML, dict, &example); err != nil {
		return nil, err
	}
	return &example, nil
}

// A ChannelParam describes a run-time modification of channel parameters.
//   - Attribute selects the channels: "*" for all of them, "name%%xxyy" for the channel named
//     xxyy, or "node%%xxyy" for every channel with an end on node xxyy
//   - Param is one of "length" (meters), "lossdb" (dB per km), or "ploss" (initial loss probability)
//   - Value is the string-encoded value
type ChannelParam struct {
	Attribute string `json:"attribute" yaml:"attribute"`
	Param     string `json:"param" yaml:"param"`
	Value     string `json:"value" yaml:"value"`
}

// ChannelParamNames lists the channel parameters that can be set
var ChannelParamNames []string = []string{"length", "lossdb", "ploss"}

// CreateChannelParam is a constructor.  It returns an error if the attribute or param is not recognized.
func CreateChannelParam(attribute, param, value string) (*ChannelParam, error) {
	if err := ValidateChannelParam(attribute, param); err != nil {
		return nil, err
	}
	return &ChannelParam{Attribute: attribute, Param: param, Value: value}, nil
}

// ValidateChannelParam returns an error if the attribute and param don't make sense
func ValidateChannelParam(attribute, param string) error {
	if !slices.Contains(ChannelParamNames, param) {
		return fmt.Errorf("%w: channel parameter %q is not recognized", ErrDomain, param)
	}
	if attribute == "*" {
		return nil
	}
	for _, prefix := range []string{"name%%", "node%%"} {
		if strings.HasPrefix(attribute, prefix) && len(attribute) > len(prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: channel parameter attribute %q is not recognized", ErrDomain, attribute)
}
