package qnet

// loss.go holds the model of photon loss on a fiber channel.  A channel
// either delivers a qubit untouched or loses it; the probability of delivery
// falls off exponentially with length, at a rate given in dB per km, after a
// length-independent initial loss.

import (
	"fmt"
	"math"
)

// FiberLightSpeed is the speed of light in fiber, m/s
const FiberLightSpeed = 2e8

// Outcome of a transmission, or of a shot
type Outcome int

const (
	Delivered Outcome = iota
	Lost
)

var outcomeToStr map[Outcome]string = map[Outcome]string{Delivered: "delivered", Lost: "lost"}

func (oc Outcome) String() string {
	str, present := outcomeToStr[oc]
	if !present {
		return fmt.Sprintf("Outcome(%d)", int(oc))
	}
	return str
}

// MarshalText lets outcomes appear by name in yaml and json output
func (oc Outcome) MarshalText() ([]byte, error) {
	str, present := outcomeToStr[oc]
	if !present {
		return nil, fmt.Errorf("unknown outcome %d", int(oc))
	}
	return []byte(str), nil
}

// UnmarshalText is the inverse of MarshalText
func (oc *Outcome) UnmarshalText(text []byte) error {
	for code, str := range outcomeToStr {
		if str == string(text) {
			*oc = code
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", string(text))
}

// A LossModel describes loss on a fiber
type LossModel struct {
	// attenuation, dB per km of fiber
	LossDBPerKm float64 `json:"lossdbperkm" yaml:"lossdbperkm"`

	// probability that a photon is lost regardless of the fiber length
	InitialLossProb float64 `json:"initiallossprob" yaml:"initiallossprob"`
}

// Validate returns an error if the model parameters are outside their domain
func (lm LossModel) Validate() error {
	if lm.LossDBPerKm < 0.0 || math.IsNaN(lm.LossDBPerKm) || math.IsInf(lm.LossDBPerKm, 0) {
		return fmt.Errorf("%w: loss coefficient %g dB/km", ErrDomain, lm.LossDBPerKm)
	}
	if lm.InitialLossProb < 0.0 || lm.InitialLossProb > 1.0 || math.IsNaN(lm.InitialLossProb) {
		return fmt.Errorf("%w: initial loss probability %g", ErrDomain, lm.InitialLossProb)
	}
	return nil
}

// InitialLossDB expresses the initial loss probability as an attenuation in dB
func (lm LossModel) InitialLossDB() float64 {
	return -10.0 * math.Log10(1.0-lm.InitialLossProb)
}

// TransmitProb returns the probability that a qubit sent into a fiber of the given
// length (meters) reaches the far end.  A zero length with zero initial loss gives exactly 1.
func (lm LossModel) TransmitProb(lengthM float64) float64 {
	attenuation := lm.LossDBPerKm * lengthM / 1000.0
	p := (1.0 - lm.InitialLossProb) * math.Pow(10.0, -attenuation/10.0)
	return math.Max(0.0, math.Min(1.0, p))
}

// Transmit decides the fate of one qubit sent into a fiber of the given length,
// using the single uniform sample u01 drawn for it
func (lm LossModel) Transmit(u01, lengthM float64) Outcome {
	if u01 < lm.TransmitProb(lengthM) {
		return Delivered
	}
	return Lost
}

// PropagationDelay gives the time (seconds) light needs to cross a fiber of the given length
func PropagationDelay(lengthM float64) float64 {
	return roundFloat(lengthM/FiberLightSpeed, rdigits)
}

var rdigits uint = 15

// round computed simulation time to avoid non-sensical comparisons
// induced by rounding error
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
