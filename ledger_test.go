package qnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryLedger(t *testing.T) {
	reg := NewPairRegistry(1.0)
	qa, qb := reg.CreatePair(Endpoint{Node: "Source"})
	alice := Endpoint{"Alice", "qin"}
	bob := Endpoint{"Bob", "qin"}

	dl := NewDeliveryLedger()
	require.NoError(t, dl.Record(bob, qb))
	require.NoError(t, dl.Record(alice, qa))
	assert.Equal(t, 2, dl.Len())

	q, ok := dl.Lookup(alice)
	assert.True(t, ok)
	assert.Same(t, qa, q)
	_, ok = dl.Lookup(Endpoint{"Carol", "qin"})
	assert.False(t, ok)

	assert.ErrorIs(t, dl.Record(alice, qb), ErrConstruction)
	assert.ErrorIs(t, dl.Record(Endpoint{"Carol", "qin"}, nil), ErrConstruction)

	dels := dl.Arrived()
	require.Len(t, dels, 2)
	assert.Equal(t, bob, dels[0].Endpoint)
	assert.Equal(t, qb.ID(), dels[0].Qubit)

	sortDeliveries(dels)
	assert.Equal(t, alice, dels[0].Endpoint)

	q, ok = dl.Release(bob)
	assert.True(t, ok)
	assert.Same(t, qb, q)
	_, ok = dl.Release(bob)
	assert.False(t, ok)
	assert.Equal(t, 1, dl.Len())
	assert.Equal(t, []Delivery{{Endpoint: alice, Qubit: qa.ID()}}, dl.Arrived())
}
