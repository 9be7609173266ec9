package qnet

import (
	"fmt"
	"sort"
)

// A DeliveryLedger records, for one shot, the qubit held at each (node, port).
// It is filled by the resolution pass that follows transmission and read by
// composition.  Each shot owns its ledger.
type DeliveryLedger struct {
	slots map[Endpoint]*Qubit
	order []Endpoint
}

// NewDeliveryLedger is a constructor
func NewDeliveryLedger() *DeliveryLedger {
	return &DeliveryLedger{slots: make(map[Endpoint]*Qubit), order: []Endpoint{}}
}

// Record places q at endpoint ep.  A port holds at most one qubit per shot.
func (dl *DeliveryLedger) Record(ep Endpoint, q *Qubit) error {
	if q == nil {
		return fmt.Errorf("%w: nil qubit recorded at %s", ErrConstruction, ep)
	}
	if _, present := dl.slots[ep]; present {
		return fmt.Errorf("%w: second qubit arriving at %s", ErrConstruction, ep)
	}
	dl.slots[ep] = q
	dl.order = append(dl.order, ep)
	return nil
}

// Lookup returns the qubit held at ep, if any
func (dl *DeliveryLedger) Lookup(ep Endpoint) (*Qubit, bool) {
	q, present := dl.slots[ep]
	return q, present
}

// Release removes and returns the qubit held at ep; composition releases
// the qubits it measures
func (dl *DeliveryLedger) Release(ep Endpoint) (*Qubit, bool) {
	q, present := dl.slots[ep]
	if !present {
		return nil, false
	}
	delete(dl.slots, ep)
	for idx, oep := range dl.order {
		if oep == ep {
			dl.order = append(dl.order[:idx], dl.order[idx+1:]...)
			break
		}
	}
	return q, true
}

// Arrived returns the deliveries still recorded, in the order they were recorded
func (dl *DeliveryLedger) Arrived() []Delivery {
	dels := make([]Delivery, 0, len(dl.order))
	for _, ep := range dl.order {
		dels = append(dels, Delivery{Endpoint: ep, Qubit: dl.slots[ep].ID()})
	}
	return dels
}

// Len is the number of occupied endpoints
func (dl *DeliveryLedger) Len() int {
	return len(dl.slots)
}

// A Delivery says which qubit ended up at which endpoint
type Delivery struct {
	Endpoint Endpoint `json:"endpoint" yaml:"endpoint"`
	Qubit    int      `json:"qubit" yaml:"qubit"`
}

// sortDeliveries orders deliveries by node then port
func sortDeliveries(dels []Delivery) {
	sort.Slice(dels, func(i, j int) bool {
		if dels[i].Endpoint.Node != dels[j].Endpoint.Node {
			return dels[i].Endpoint.Node < dels[j].Endpoint.Node
		}
		return dels[i].Endpoint.Port < dels[j].Endpoint.Port
	})
}
