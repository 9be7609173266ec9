package qnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorOutcomes(t *testing.T) {
	agg := NewAggregator()
	for idx, oc := range []Outcome{Lost, Delivered, Delivered, Lost} {
		sr := ShotResult{Index: idx, Outcome: oc}
		if oc == Delivered {
			sr.Fidelity = 0.9
		} else {
			sr.LostChannels = []string{"chan_A"}
		}
		agg.Add(sr)
	}
	s := agg.Summary()
	assert.Equal(t, []Outcome{Lost, Delivered, Delivered, Lost}, s.Outcomes)
	assert.Equal(t, []float64{0.0, 0.5, 2.0 / 3.0, 0.5}, s.RunningSuccessRate())
	assert.Equal(t, 0.5, s.SuccessRate)
	assert.Equal(t, map[string]int{"chan_A": 2}, s.LostBy)

	// the summary does not share the aggregator's storage
	agg.Add(ShotResult{Index: 4, Outcome: Delivered, Fidelity: 1.0})
	assert.Len(t, s.Outcomes, 4)
	require.Len(t, agg.Summary().Outcomes, 5)
}

func TestRunningSuccessRateEmpty(t *testing.T) {
	assert.Empty(t, NewAggregator().Summary().RunningSuccessRate())
}
