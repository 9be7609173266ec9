package qnet

import (
	"math"
	"testing"

	"github.com/iti/evt/vrtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func TestShotMidpointDelivered(t *testing.T) {
	topo, err := BuildMidpoint(10000.0, fiber)
	require.NoError(t, err)

	sr, err := RunShot(3, topo, &seqStream{vals: []float64{0.0}})
	require.NoError(t, err)

	assert.Equal(t, 3, sr.Index)
	assert.True(t, sr.Delivered())
	assert.Equal(t, 1.0, sr.Fidelity)
	assert.Empty(t, sr.Reason)
	assert.Empty(t, sr.LostChannels)
	assert.Equal(t, 0, sr.Swaps)
	assert.InDelta(t, PropagationDelay(10000.0), sr.CompletedAt, 1e-9)

	require.Len(t, sr.Deliveries, 2)
	assert.Equal(t, Endpoint{"Alice", "qin"}, sr.Deliveries[0].Endpoint)
	assert.Equal(t, Endpoint{"Bob", "qin"}, sr.Deliveries[1].Endpoint)
}

func TestShotMidpointLost(t *testing.T) {
	topo, err := BuildMidpoint(50000.0, fiber)
	require.NoError(t, err)

	// chan_A draws first and passes, chan_B fails its 0.1 transmission probability
	sr, err := RunShot(0, topo, &seqStream{vals: []float64{0.0, 0.99}})
	require.NoError(t, err)

	assert.False(t, sr.Delivered())
	assert.Equal(t, Lost, sr.Outcome)
	assert.Equal(t, 0.0, sr.Fidelity)
	assert.Equal(t, []string{"chan_B"}, sr.LostChannels)
	assert.Contains(t, sr.Reason, "Bob.qin")
	require.Len(t, sr.Deliveries, 1)
	assert.Equal(t, Endpoint{"Alice", "qin"}, sr.Deliveries[0].Endpoint)
}

func TestShotChain(t *testing.T) {
	t.Run("every link delivered", func(t *testing.T) {
		topo, err := BuildChain(3, 1000.0, fiber)
		require.NoError(t, err)

		sr, err := RunShot(0, topo, &seqStream{vals: []float64{0.0}})
		require.NoError(t, err)
		assert.True(t, sr.Delivered())
		assert.Equal(t, 2, sr.Swaps)
		assert.Equal(t, 1.0, sr.Fidelity)

		// swapped halves are released, only the end-to-end pair remains
		require.Len(t, sr.Deliveries, 2)
		assert.Equal(t, Endpoint{"Alice", "mem"}, sr.Deliveries[0].Endpoint)
		assert.Equal(t, Endpoint{"Bob", "qin"}, sr.Deliveries[1].Endpoint)
	})

	t.Run("lost link makes the swap incomplete", func(t *testing.T) {
		topo, err := BuildChain(2, 50000.0, fiber)
		require.NoError(t, err)

		sr, err := RunShot(0, topo, &seqStream{vals: []float64{0.99, 0.0}})
		require.NoError(t, err)
		assert.Equal(t, Lost, sr.Outcome)
		assert.Contains(t, sr.Reason, "swap at R0")
		assert.Equal(t, []string{"chan_alice_r0"}, sr.LostChannels)
		assert.Equal(t, 0, sr.Swaps)
	})

	t.Run("one draw per channel in channel order", func(t *testing.T) {
		topo, err := BuildChain(4, 50000.0, fiber)
		require.NoError(t, err)

		stream := &seqStream{vals: []float64{0.0, 0.99, 0.0, 0.99}}
		sr, err := RunShot(0, topo, stream)
		require.NoError(t, err)
		assert.Equal(t, 4, stream.next)
		assert.Equal(t, []string{"chan_r0_r1", "chan_r2_bob"}, sr.LostChannels)
	})
}

func TestShotSwapOrder(t *testing.T) {
	t.Run("two-hop composes source fidelities", func(t *testing.T) {
		topo, err := BuildTwoHop(0.0, fiber)
		require.NoError(t, err)
		sr, err := RunShot(0, topo, &seqStream{vals: []float64{0.5}}, WithSourceFidelity(0.9))
		require.NoError(t, err)
		assert.True(t, sr.Delivered())
		assert.InDelta(t, 0.81, sr.Fidelity, 1e-12)
	})

	t.Run("order does not change the fidelity", func(t *testing.T) {
		for _, order := range [][]int{nil, {0, 1, 2}, {2, 0, 1}, {1, 2, 0}, {2, 1, 0}} {
			topo, err := BuildChain(4, 0.0, fiber)
			require.NoError(t, err)
			sr, err := RunShot(0, topo, &seqStream{vals: []float64{0.5}},
				WithSourceFidelity(0.9), WithSwapOrder(order))
			require.NoError(t, err)
			assert.True(t, sr.Delivered(), "order %v", order)
			assert.Equal(t, 3, sr.Swaps)
			assert.InDelta(t, 0.6561, sr.Fidelity, 1e-12, "order %v", order)
		}
	})

	t.Run("order must be a permutation of the plan", func(t *testing.T) {
		topo, err := BuildChain(4, 0.0, fiber)
		require.NoError(t, err)
		for _, order := range [][]int{{0, 1}, {0, 0, 1}, {0, 1, 3}, {-1, 0, 1}} {
			_, err := RunShot(0, topo, &seqStream{vals: []float64{0.5}}, WithSwapOrder(order))
			assert.ErrorIs(t, err, ErrDomain, "order %v", order)
		}
	})
}

func TestShotTopologyReuse(t *testing.T) {
	topo, err := BuildMidpoint(50000.0, fiber)
	require.NoError(t, err)

	lost, err := RunShot(0, topo, &seqStream{vals: []float64{0.99}})
	require.NoError(t, err)
	assert.Equal(t, Lost, lost.Outcome)

	// qubit state lives in the shot, not in the topology
	delivered, err := RunShot(1, topo, &seqStream{vals: []float64{0.0}})
	require.NoError(t, err)
	assert.True(t, delivered.Delivered())
}

func TestShotRequiresStream(t *testing.T) {
	topo, err := BuildMidpoint(0.0, fiber)
	require.NoError(t, err)
	_, err = RunShot(0, topo, nil)
	assert.ErrorIs(t, err, ErrConstruction)
}

func TestShotTrace(t *testing.T) {
	topo, err := BuildChain(2, 1000.0, fiber)
	require.NoError(t, err)
	tm := CreateTraceManager("trace", true)
	tp := tm.RegisterTopology("chain", topo)
	assert.Equal(t, TracePoint{Index: 0, Label: "chain", IDBase: 0}, tp)

	_, err = RunShot(7, topo, &seqStream{vals: []float64{0.0}}, WithTrace(tm, tp))
	require.NoError(t, err)

	assert.Equal(t, 1, tm.Len())
	// 2 generates, 2 sends, 2 delivers, 1 swap, 1 result
	assert.Len(t, tm.ShotRecords(0, 7), 8)
	assert.Empty(t, tm.ShotRecords(1, 7))
	assert.Equal(t, NameType{Name: "R0", Type: "node"}, tm.NameByID[2])
	assert.Equal(t, NameType{Name: "chan_alice_r0", Type: "channel"}, tm.NameByID[4])

	idle := CreateTraceManager("idle", false)
	assert.Equal(t, TracePoint{Label: "chain"}, idle.RegisterTopology("chain", topo))
	_, err = RunShot(0, topo, &seqStream{vals: []float64{0.0}}, WithTrace(idle, TracePoint{}))
	require.NoError(t, err)
	assert.Equal(t, 0, idle.Len())
	assert.NoError(t, idle.WriteToFile("never-written.yaml"))
}

func TestShotTraceSeparatesPoints(t *testing.T) {
	direct, err := BuildChain(1, 1000.0, fiber)
	require.NoError(t, err)
	relayed, err := BuildChain(3, 1000.0, fiber)
	require.NoError(t, err)

	tm := CreateTraceManager("two points", true)
	first := tm.RegisterTopology("direct", direct)
	second := tm.RegisterTopology("relayed", relayed)
	assert.Equal(t, 0, first.IDBase)
	assert.Equal(t, len(direct.NodeNames())+len(direct.Channels()), second.IDBase)

	for _, shot := range []struct {
		topo *Topology
		tp   TracePoint
	}{{direct, first}, {relayed, second}} {
		_, err = RunShot(0, shot.topo, &seqStream{vals: []float64{0.0}}, WithTrace(tm, shot.tp))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, tm.Len())
	assert.Len(t, tm.Points, 2)
	// 1 generate, 1 send, 1 deliver, 1 result
	assert.Len(t, tm.ShotRecords(0, 0), 4)
	// 3 generates, 3 sends, 3 delivers, 2 swaps, 1 result
	assert.Len(t, tm.ShotRecords(1, 0), 12)

	// ids of the two points never collide
	assert.Equal(t, NameType{Name: "chan_alice_bob", Type: "channel"}, tm.NameByID[3])
	assert.Equal(t, NameType{Name: "R1", Type: "node"}, tm.NameByID[second.IDBase+3])
	assert.Equal(t, len(direct.NodeNames())+len(direct.Channels())+len(relayed.NodeNames())+len(relayed.Channels()),
		len(tm.NameByID))

	// every record names an object of its own point
	for point, tp := range []TracePoint{first, second} {
		for _, rec := range tm.ShotRecords(point, 0) {
			var st ShotTrace
			require.NoError(t, yaml.Unmarshal([]byte(rec.TraceStr), &st))
			assert.Equal(t, point, st.Point)
			if st.ObjID == 0 {
				continue
			}
			assert.Greater(t, st.ObjID, tp.IDBase)
			assert.Contains(t, tm.NameByID, st.ObjID)
			if point == 0 {
				assert.LessOrEqual(t, st.ObjID, second.IDBase)
			}
		}
	}
}

func TestShotPhaseString(t *testing.T) {
	assert.Equal(t, "awaiting-delivery", PhaseAwaitingDelivery.String())
	assert.Equal(t, "terminal", PhaseTerminal.String())
	assert.Equal(t, "ShotPhase(42)", ShotPhase(42).String())
}

func TestShotHorizon(t *testing.T) {
	// 10000 km per side, without loss
	topo, err := BuildMidpoint(2e7, LossModel{})
	require.NoError(t, err)

	maxDelay := 0.0
	for _, ch := range topo.Channels() {
		maxDelay = math.Max(maxDelay, ch.Delay())
	}
	horizon := shotHorizon(topo)
	assert.Greater(t, horizon, maxDelay)
	assert.Greater(t, vrtime.SecondsToTicks(horizon), vrtime.SecondsToTicks(maxDelay))

	sr, err := RunShot(0, topo, &seqStream{vals: []float64{0.5}})
	require.NoError(t, err)
	assert.True(t, sr.Delivered())
	// virtual time advances in whole microsecond ticks
	assert.InDelta(t, maxDelay, sr.CompletedAt, 1e-6)
}

func TestShotsRunConcurrently(t *testing.T) {
	topo, err := BuildChain(3, 0.0, fiber)
	require.NoError(t, err)

	results := make([]ShotResult, 64)
	g := new(errgroup.Group)
	for idx := range results {
		g.Go(func() error {
			shotTopo, err := BuildChain(3, 0.0, fiber)
			if err != nil {
				return err
			}
			sr, err := RunShot(idx, shotTopo, &seqStream{vals: []float64{0.5}}, WithSourceFidelity(0.9))
			results[idx] = sr
			return err
		})
	}
	require.NoError(t, g.Wait())

	serial, err := RunShot(0, topo, &seqStream{vals: []float64{0.5}}, WithSourceFidelity(0.9))
	require.NoError(t, err)
	for idx, sr := range results {
		assert.Equal(t, idx, sr.Index)
		assert.True(t, sr.Delivered())
		assert.Equal(t, serial.Fidelity, sr.Fidelity)
		assert.Equal(t, serial.Swaps, sr.Swaps)
	}
}
