package qnet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformBuild(t *testing.T) {
	for _, kind := range []TopoKind{KindChain, KindStar, KindTwoHop, KindMidpoint} {
		t.Run(string(kind), func(t *testing.T) {
			orig, err := BuildTopology(kind, TopoParams{Repeaters: 3, Clients: 3, SwitchPair: [2]int{2, 0},
				LengthM: 1500.0, Loss: LossModel{LossDBPerKm: 0.2, InitialLossProb: 0.05}})
			require.NoError(t, err)

			td := orig.Transform()
			rebuilt, err := td.Build()
			require.NoError(t, err)

			assert.Equal(t, orig.SwapPlan(), rebuilt.SwapPlan())
			assert.Equal(t, orig.Path(), rebuilt.Path())
			assert.Equal(t, orig.NodeNames(), rebuilt.NodeNames())
			assert.Equal(t, len(orig.Channels()), len(rebuilt.Channels()))
			assert.InDelta(t, orig.PathSuccessProb(), rebuilt.PathSuccessProb(), 1e-15)
			assert.Equal(t, td, rebuilt.Transform())
		})
	}
}

func TestTopoDescFiles(t *testing.T) {
	orig, err := BuildChain(3, 2500.0, fiber)
	require.NoError(t, err)
	td := orig.Transform()

	dir := t.TempDir()
	for _, name := range []string{"chain.yaml", "chain.json"} {
		filename := filepath.Join(dir, name)
		require.NoError(t, td.WriteToFile(filename))

		back, err := ReadTopoDesc(filename, UseYAMLExt(filename), []byte{})
		require.NoError(t, err)
		assert.Equal(t, td, *back)
	}

	assert.Error(t, td.WriteToFile(filepath.Join(dir, "chain.txt")))
}

func TestTopoDescByHand(t *testing.T) {
	td := CreateTopoDesc("relay")
	td.AddNode("Alice", PortDesc{Name: "mem", Type: "mem"}, PortDesc{Name: "qout", Type: "out"})
	td.AddNode("Relay", PortDesc{Name: "qin", Type: "in"}, PortDesc{Name: "mem", Type: "mem"},
		PortDesc{Name: "qout", Type: "OUT"})
	td.AddNode("Bob", PortDesc{Name: "qin", Type: "in"})
	td.AddChannel("a2r", Endpoint{"Alice", "qout"}, Endpoint{"Relay", "qin"}, 1000.0, fiber)
	td.AddChannel("r2b", Endpoint{"Relay", "qout"}, Endpoint{"Bob", "qin"}, 3000.0, fiber)
	td.AddSource("src_a", "Alice", "mem", "qout")
	td.AddSource("src_r", "Relay", "mem", "qout")
	td.EndA = Endpoint{"Alice", "mem"}
	td.EndB = Endpoint{"Bob", "qin"}

	topo, err := td.Build()
	require.NoError(t, err)
	assert.Equal(t, KindCustom, topo.Kind)
	assert.Equal(t, []SwapStep{{Node: "Relay", Left: Endpoint{"Relay", "qin"}, Right: Endpoint{"Relay", "mem"}}},
		topo.SwapPlan())

	sr, err := RunShot(0, topo, &seqStream{vals: []float64{0.0}})
	require.NoError(t, err)
	assert.True(t, sr.Delivered())

	bad := CreateTopoDesc("bad")
	bad.AddNode("Alice", PortDesc{Name: "q", Type: "quantum"}, PortDesc{Name: "q", Type: "in"})
	bad.AddNode("Alice")
	_, err = bad.Build()
	assert.ErrorIs(t, err, ErrConstruction)
}

func TestChannelParamValidation(t *testing.T) {
	for _, attr := range []string{"*", "name%%chan_A", "node%%Alice"} {
		cp, err := CreateChannelParam(attr, "length", "10")
		require.NoError(t, err, attr)
		assert.Equal(t, attr, cp.Attribute)
	}
	for _, attr := range []string{"", "chan_A", "name%%", "group%%x"} {
		assert.ErrorIs(t, ValidateChannelParam(attr, "length"), ErrDomain, attr)
	}
	assert.ErrorIs(t, ValidateChannelParam("*", "delay"), ErrDomain)
}
