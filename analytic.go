package qnet

import (
	"fmt"
	"math"
)

// ChainEstimate is the closed-form approximation of a long repeater chain.  Nothing
// in it is simulated: it follows from the loss model and fidelity composition alone.
type ChainEstimate struct {
	NumNodes          int     `json:"num_nodes" yaml:"num_nodes"`
	TotalLinks        int     `json:"total_links" yaml:"total_links"`
	NetworkDiameter   int     `json:"network_diameter" yaml:"network_diameter"`
	LinkLengthM       float64 `json:"link_length_m" yaml:"link_length_m"`
	TotalLengthM      float64 `json:"total_length_m" yaml:"total_length_m"`
	LinkAttenuationDB float64 `json:"link_attenuation_db" yaml:"link_attenuation_db"`

	// probability that one link delivers, and that every link does
	LinkTransmitProb float64 `json:"link_transmit_prob" yaml:"link_transmit_prob"`
	EndToEndProb     float64 `json:"end_to_end_prob" yaml:"end_to_end_prob"`

	// seconds
	LinkDelay  float64 `json:"link_delay" yaml:"link_delay"`
	TotalDelay float64 `json:"total_delay" yaml:"total_delay"`

	LinkFidelity      float64 `json:"link_fidelity" yaml:"link_fidelity"`
	EstimatedFidelity float64 `json:"estimated_fidelity" yaml:"estimated_fidelity"`

	// entanglement purification rounds needed, ceil(log2 NumNodes)
	PurificationRounds int `json:"purification_rounds" yaml:"purification_rounds"`
}

// DefaultLinkFidelity is the fidelity given to each link of an estimated chain
const DefaultLinkFidelity = 0.98

// EstimateChain approximates a chain of numNodes nodes joined by links of the given length.
// Each link is taken to start at fidelity linkFidelity (DefaultLinkFidelity when 0), so the
// chain ends at linkFidelity^(numNodes-1) after its swaps.
func EstimateChain(numNodes int, linkLengthM float64, lm LossModel, linkFidelity float64) (ChainEstimate, error) {
	if numNodes < 2 {
		return ChainEstimate{}, fmt.Errorf("%w: chain needs at least 2 nodes, got %d", ErrDomain, numNodes)
	}
	if linkLengthM < 0.0 || math.IsNaN(linkLengthM) {
		return ChainEstimate{}, fmt.Errorf("%w: link length %g m", ErrDomain, linkLengthM)
	}
	if err := lm.Validate(); err != nil {
		return ChainEstimate{}, err
	}
	if linkFidelity == 0.0 {
		linkFidelity = DefaultLinkFidelity
	}
	if linkFidelity < 0.0 || linkFidelity > 1.0 {
		return ChainEstimate{}, fmt.Errorf("%w: link fidelity %g", ErrDomain, linkFidelity)
	}

	links := numNodes - 1
	ce := ChainEstimate{NumNodes: numNodes, TotalLinks: links, NetworkDiameter: links,
		LinkLengthM: linkLengthM, TotalLengthM: float64(links) * linkLengthM, LinkFidelity: linkFidelity}

	ce.LinkAttenuationDB = lm.LossDBPerKm*linkLengthM/1000.0 + lm.InitialLossDB()
	ce.LinkTransmitProb = lm.TransmitProb(linkLengthM)
	ce.EndToEndProb = math.Pow(ce.LinkTransmitProb, float64(links))
	ce.LinkDelay = PropagationDelay(linkLengthM)
	ce.TotalDelay = PropagationDelay(ce.TotalLengthM)

	fs := make([]float64, links)
	for idx := range fs {
		fs[idx] = linkFidelity
	}
	ce.EstimatedFidelity = ComposeChain(fs...)
	ce.PurificationRounds = int(math.Ceil(math.Log2(float64(numNodes))))
	return ce, nil
}
