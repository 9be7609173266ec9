package qnet

// rng.go provides the random streams that decide channel losses.  Every shot
// draws from a stream of its own.  When the experiment carries a seed the
// stream is a PCG generator seeded with (seed, shot index), so a shot can be
// reproduced in isolation and shots may run on different workers.  Without a
// seed each shot gets its own rngstream stream.

import (
	"fmt"
	"math/rand/v2"

	"github.com/iti/rngstream"
)

// U01Source yields uniform samples on [0,1)
type U01Source interface {
	RandU01() float64
}

// pcgStream adapts a seeded PCG generator to U01Source
type pcgStream struct {
	rnd *rand.Rand
}

func (ps *pcgStream) RandU01() float64 {
	return ps.rnd.Float64()
}

// ShotStream returns the stream for shot shotIdx of an experiment seeded with seed.
// Equal arguments give equal streams; different shot indices give independent ones.
func ShotStream(seed uint64, shotIdx int) U01Source {
	return &pcgStream{rnd: rand.New(rand.NewPCG(seed, uint64(shotIdx)))}
}

// NewNamedStream returns an rngstream stream for shot shotIdx of the experiment named expName.
// rngstream advances a package-wide seed on each creation, so these streams
// must be created from a single goroutine.
func NewNamedStream(expName string, shotIdx int) U01Source {
	return rngstream.New(fmt.Sprintf("%s/shot-%d", expName, shotIdx))
}

// streamFactory hands out the stream for each shot of a run
type streamFactory func(shotIdx int) U01Source

// newStreamFactory selects seeded or unseeded streams
func newStreamFactory(expName string, seed *int64) streamFactory {
	if seed != nil {
		s := uint64(*seed)
		return func(shotIdx int) U01Source { return ShotStream(s, shotIdx) }
	}
	return func(shotIdx int) U01Source { return NewNamedStream(expName, shotIdx) }
}
