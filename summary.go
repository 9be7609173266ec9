package qnet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the shots of one configuration point
type Summary struct {
	Label     string   `json:"label" yaml:"label"`
	Kind      TopoKind `json:"kind" yaml:"kind"`
	LengthM   float64  `json:"length_m" yaml:"length_m"`
	Repeaters int      `json:"repeaters" yaml:"repeaters"`
	Hops      int      `json:"hops" yaml:"hops"`

	SuccessCount int     `json:"success_count" yaml:"success_count"`
	TotalShots   int     `json:"total_shots" yaml:"total_shots"`
	SuccessRate  float64 `json:"success_rate" yaml:"success_rate"`

	// probability that every half on the entanglement path is delivered
	ExpectedRate float64 `json:"expected_rate" yaml:"expected_rate"`

	// over delivered shots only; zero when there are none
	MeanFidelity float64 `json:"mean_fidelity" yaml:"mean_fidelity"`
	StdFidelity  float64 `json:"std_fidelity" yaml:"std_fidelity"`

	// one entry per delivered shot, in shot order
	Fidelities []float64 `json:"fidelities" yaml:"fidelities"`

	// outcome of every shot, in shot order
	Outcomes []Outcome `json:"outcomes" yaml:"outcomes"`

	// lost shots by the channel that lost a qubit first
	LostBy map[string]int `json:"lost_by,omitempty" yaml:"lost_by,omitempty"`
}

// An Aggregator consumes shot results in shot order
type Aggregator struct {
	total      int
	outcomes   []Outcome
	fidelities []float64
	lostBy     map[string]int
}

// NewAggregator is a constructor
func NewAggregator() *Aggregator {
	return &Aggregator{outcomes: make([]Outcome, 0), fidelities: make([]float64, 0), lostBy: make(map[string]int)}
}

// Add counts a shot.  A lost shot counts toward the total and never toward the fidelities.
func (agg *Aggregator) Add(sr ShotResult) {
	agg.total += 1
	agg.outcomes = append(agg.outcomes, sr.Outcome)
	if sr.Delivered() {
		agg.fidelities = append(agg.fidelities, sr.Fidelity)
		return
	}
	if len(sr.LostChannels) > 0 {
		agg.lostBy[sr.LostChannels[0]] += 1
	}
}

// Summary returns the statistics of the shots added so far
func (agg *Aggregator) Summary() Summary {
	s := Summary{SuccessCount: len(agg.fidelities), TotalShots: agg.total}
	s.Fidelities = make([]float64, len(agg.fidelities))
	copy(s.Fidelities, agg.fidelities)
	s.Outcomes = make([]Outcome, len(agg.outcomes))
	copy(s.Outcomes, agg.outcomes)

	if agg.total > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(agg.total)
	}
	switch len(agg.fidelities) {
	case 0:
	case 1:
		s.MeanFidelity = agg.fidelities[0]
	default:
		s.MeanFidelity, s.StdFidelity = stat.MeanStdDev(agg.fidelities, nil)
		if math.IsNaN(s.StdFidelity) {
			s.StdFidelity = 0.0
		}
	}
	if len(agg.lostBy) > 0 {
		s.LostBy = make(map[string]int, len(agg.lostBy))
		for name, n := range agg.lostBy {
			s.LostBy[name] = n
		}
	}
	return s
}

// RunningSuccessRate gives the success rate over the first i+1 shots, for every shot i
func (s Summary) RunningSuccessRate() []float64 {
	rates := make([]float64, len(s.Outcomes))
	delivered := 0
	for idx, oc := range s.Outcomes {
		if oc == Delivered {
			delivered += 1
		}
		rates[idx] = float64(delivered) / float64(idx+1)
	}
	return rates
}

// String gives a one line report of the point
func (s Summary) String() string {
	return fmt.Sprintf("%s: %d/%d delivered (%.4f, expected %.4f), mean fidelity %.4f",
		s.Label, s.SuccessCount, s.TotalShots, s.SuccessRate, s.ExpectedRate, s.MeanFidelity)
}
