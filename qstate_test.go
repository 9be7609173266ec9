package qnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePair(t *testing.T) {
	reg := NewPairRegistry(0.0)
	qa, qb := reg.CreatePair(Endpoint{Node: "Source"})

	assert.NotEqual(t, qa.ID(), qb.ID())
	assert.Equal(t, QubitHeld, qa.Status())
	assert.Same(t, qb, qa.Partner())
	assert.Same(t, qa, qb.Partner())
	assert.Equal(t, 2, reg.Qubits())

	f, err := reg.Fidelity(qa, qb)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)
}

func TestSourceFidelity(t *testing.T) {
	reg := NewPairRegistry(0.95)
	qa, qb := reg.CreatePair(Endpoint{Node: "Source"})
	f, err := reg.Fidelity(qa, qb)
	require.NoError(t, err)
	assert.Equal(t, 0.95, f)
}

func TestFidelityErrors(t *testing.T) {
	t.Run("qubit in transit", func(t *testing.T) {
		reg := NewPairRegistry(1.0)
		qa, qb := reg.CreatePair(Endpoint{Node: "Source"})
		qb.send()
		_, err := reg.Fidelity(qa, qb)
		assert.ErrorIs(t, err, ErrNotDelivered)
	})

	t.Run("qubit lost", func(t *testing.T) {
		reg := NewPairRegistry(1.0)
		qa, qb := reg.CreatePair(Endpoint{Node: "Source"})
		qb.send()
		qb.destroy()
		assert.Equal(t, QubitLost, qb.Status())
		_, err := reg.Fidelity(qa, qb)
		assert.ErrorIs(t, err, ErrNotDelivered)
	})

	t.Run("qubit from another shot", func(t *testing.T) {
		reg := NewPairRegistry(1.0)
		other := NewPairRegistry(1.0)
		qa, qb := other.CreatePair(Endpoint{Node: "Source"})
		_, err := reg.Fidelity(qa, qb)
		assert.ErrorIs(t, err, ErrNotDelivered)
	})

	t.Run("ends of different pairs", func(t *testing.T) {
		reg := NewPairRegistry(1.0)
		qa, _ := reg.CreatePair(Endpoint{Node: "S1"})
		qc, _ := reg.CreatePair(Endpoint{Node: "S2"})
		_, err := reg.Fidelity(qa, qc)
		assert.ErrorIs(t, err, ErrNotEntangled)
	})
}

func TestApplyNoise(t *testing.T) {
	reg := NewPairRegistry(1.0)
	qa, qb := reg.CreatePair(Endpoint{Node: "Source"})
	require.NoError(t, qa.ApplyNoise(0.9))
	require.NoError(t, qb.ApplyNoise(0.5))

	f, err := reg.Fidelity(qa, qb)
	require.NoError(t, err)
	assert.InDelta(t, 0.45, f, 1e-12)

	assert.ErrorIs(t, qa.ApplyNoise(1.5), ErrDomain)
	assert.ErrorIs(t, qa.ApplyNoise(-0.1), ErrDomain)
}

// twoLinks creates Alice-Middle and Middle-Bob pairs, all halves delivered
func twoLinks(reg *PairRegistry) (alice, midL, midR, bob *Qubit) {
	alice, midL = reg.CreatePair(Endpoint{Node: "S1"})
	midR, bob = reg.CreatePair(Endpoint{Node: "S2"})
	alice.deliver(Endpoint{Node: "Alice", Port: "qin"})
	midL.deliver(Endpoint{Node: "Middle", Port: "qin1"})
	midR.deliver(Endpoint{Node: "Middle", Port: "qin2"})
	bob.deliver(Endpoint{Node: "Bob", Port: "qin"})
	return
}

func TestSwap(t *testing.T) {
	t.Run("composes fidelities of delivered pairs", func(t *testing.T) {
		reg := NewPairRegistry(1.0)
		alice, midL, midR, bob := twoLinks(reg)
		require.NoError(t, alice.ApplyNoise(0.9))
		require.NoError(t, bob.ApplyNoise(0.8))

		farL, farR, err := reg.Swap(midL, midR)
		require.NoError(t, err)
		assert.Same(t, alice, farL)
		assert.Same(t, bob, farR)
		assert.Equal(t, QubitMeasured, midL.Status())
		assert.Equal(t, QubitMeasured, midR.Status())
		assert.Nil(t, midL.Partner())
		assert.Same(t, bob, alice.Partner())

		f, err := reg.Fidelity(alice, bob)
		require.NoError(t, err)
		assert.InDelta(t, 0.72, f, 1e-12)

		_, err = reg.Fidelity(midL, alice)
		assert.ErrorIs(t, err, ErrNotDelivered)
	})

	t.Run("lost input makes the swap incomplete", func(t *testing.T) {
		reg := NewPairRegistry(1.0)
		_, midL, midR, bob := twoLinks(reg)
		bob.destroy()

		_, _, err := reg.Swap(midL, midR)
		assert.ErrorIs(t, err, ErrIncompleteSwap)
		assert.Equal(t, QubitHeld, midL.Status())
	})

	t.Run("missing input makes the swap incomplete", func(t *testing.T) {
		reg := NewPairRegistry(1.0)
		_, midL, _, _ := twoLinks(reg)
		_, _, err := reg.Swap(midL, nil)
		assert.ErrorIs(t, err, ErrIncompleteSwap)
	})

	t.Run("halves on different nodes", func(t *testing.T) {
		reg := NewPairRegistry(1.0)
		alice, _, midR, _ := twoLinks(reg)
		_, _, err := reg.Swap(alice, midR)
		assert.ErrorIs(t, err, ErrIncompleteSwap)
	})

	t.Run("both halves of one pair", func(t *testing.T) {
		reg := NewPairRegistry(1.0)
		qa, qb := reg.CreatePair(Endpoint{Node: "Middle"})
		_, _, err := reg.Swap(qa, qb)
		assert.ErrorIs(t, err, ErrNotEntangled)
	})
}
