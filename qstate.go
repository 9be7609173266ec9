package qnet

// qstate.go holds the representation of qubits and of the entangled pairs
// they belong to.  Rather than carry a density matrix, a pair carries one
// scalar, its fidelity against the |Phi+> Bell state.  A fresh pair starts
// at the source fidelity (1.0 unless configured otherwise), the fidelity changes
// only through an explicit noise call or through swap composition, and a channel
// either delivers a qubit untouched or destroys it.

import (
	"fmt"
	"math"
)

// QubitStatus describes where a qubit is in its (one-shot) life
type QubitStatus int

const (
	QubitHeld      QubitStatus = iota // owned by an endpoint, generated there or delivered there
	QubitInTransit                    // handed to a channel, outcome not yet resolved
	QubitLost                         // destroyed by a channel
	QubitMeasured                     // consumed by a Bell-state measurement
)

var qsToStr map[QubitStatus]string = map[QubitStatus]string{QubitHeld: "held", QubitInTransit: "in-transit",
	QubitLost: "lost", QubitMeasured: "measured"}

func (qs QubitStatus) String() string {
	str, present := qsToStr[qs]
	if !present {
		return fmt.Sprintf("QubitStatus(%d)", int(qs))
	}
	return str
}

// An Endpoint names a port on a node.  Qubits are held at endpoints.
type Endpoint struct {
	Node string `json:"node" yaml:"node"`
	Port string `json:"port" yaml:"port"`
}

func (ep Endpoint) String() string {
	return ep.Node + "." + ep.Port
}

// Qubit is an opaque handle on one half of an entangled pair
type Qubit struct {
	id     int
	status QubitStatus
	holder Endpoint
	pair   *pairState
	reg    *PairRegistry
}

// ID returns the qubit identifier, unique within its shot
func (q *Qubit) ID() int { return q.id }

// Status reports whether the qubit is held, in transit, lost or measured
func (q *Qubit) Status() QubitStatus { return q.status }

// Holder returns the endpoint that owns the qubit.  Meaningful only while Held.
func (q *Qubit) Holder() Endpoint { return q.holder }

// Partner returns the qubit at the other end of this qubit's pair, or nil
// once the qubit has been measured
func (q *Qubit) Partner() *Qubit {
	if q.pair == nil {
		return nil
	}
	if q.pair.ends[0] == q {
		return q.pair.ends[1]
	}
	return q.pair.ends[0]
}

// ApplyNoise multiplies the fidelity of the qubit's pair by f, which must lie in [0,1].
// It is the hook for explicitly modeled noise sources; loss channels never call it.
func (q *Qubit) ApplyNoise(f float64) error {
	if f < 0.0 || f > 1.0 || math.IsNaN(f) {
		return fmt.Errorf("%w: noise fidelity %g outside [0,1]", ErrDomain, f)
	}
	if q.pair == nil {
		return fmt.Errorf("%w: qubit %d has no pair", ErrNotEntangled, q.id)
	}
	q.pair.fidelity *= f
	return nil
}

// send marks the qubit as handed to a channel
func (q *Qubit) send() {
	q.status = QubitInTransit
}

// deliver transfers ownership of the qubit to the endpoint
func (q *Qubit) deliver(ep Endpoint) {
	q.status = QubitHeld
	q.holder = ep
}

// destroy records that a channel lost the qubit
func (q *Qubit) destroy() {
	q.status = QubitLost
	q.holder = Endpoint{}
}

// a pairState is the state shared by the two ends of an entangled pair
type pairState struct {
	id       int
	fidelity float64
	ends     [2]*Qubit
}

// delivered is true when both ends of the pair are held by endpoints
func (ps *pairState) delivered() bool {
	return ps.ends[0].status == QubitHeld && ps.ends[1].status == QubitHeld
}

// PairRegistry creates and tracks the qubits of one shot.  It is never shared
// between shots.
type PairRegistry struct {
	srcFidelity float64
	nxtQubit    int
	nxtPair     int
	qubits      []*Qubit
}

// NewPairRegistry is a constructor.  srcFidelity is the fidelity given to
// freshly created pairs; zero selects a perfect source (1.0).
func NewPairRegistry(srcFidelity float64) *PairRegistry {
	if srcFidelity <= 0.0 || srcFidelity > 1.0 {
		srcFidelity = 1.0
	}
	return &PairRegistry{srcFidelity: srcFidelity, qubits: make([]*Qubit, 0)}
}

// CreatePair returns two fresh qubits, both held at the endpoint of the
// generating node, forming a pair with the registry's source fidelity
func (reg *PairRegistry) CreatePair(holder Endpoint) (*Qubit, *Qubit) {
	reg.nxtPair += 1
	ps := &pairState{id: reg.nxtPair, fidelity: reg.srcFidelity}
	qa := reg.newQubit(holder, ps)
	qb := reg.newQubit(holder, ps)
	ps.ends = [2]*Qubit{qa, qb}
	return qa, qb
}

func (reg *PairRegistry) newQubit(holder Endpoint, ps *pairState) *Qubit {
	reg.nxtQubit += 1
	q := &Qubit{id: reg.nxtQubit, status: QubitHeld, holder: holder, pair: ps, reg: reg}
	reg.qubits = append(reg.qubits, q)
	return q
}

// Qubits returns the number of qubits created in the shot
func (reg *PairRegistry) Qubits() int {
	return len(reg.qubits)
}

// Fidelity returns the fidelity against |Phi+> of the pair whose two ends are a and b.
// Both must have been delivered in this registry's shot.
func (reg *PairRegistry) Fidelity(a, b *Qubit) (float64, error) {
	for _, q := range []*Qubit{a, b} {
		if q == nil || q.reg != reg {
			return 0.0, fmt.Errorf("%w: qubit does not belong to this shot", ErrNotDelivered)
		}
		if q.status != QubitHeld {
			return 0.0, fmt.Errorf("%w: qubit %d is %s", ErrNotDelivered, q.id, q.status)
		}
	}
	if a == b || a.pair == nil || a.pair != b.pair {
		return 0.0, fmt.Errorf("%w: qubits %d and %d", ErrNotEntangled, a.id, b.id)
	}
	return math.Max(0.0, math.Min(1.0, a.pair.fidelity)), nil
}

// Swap performs a Bell-state measurement on left and right, two qubits held at the
// same node that belong to different pairs.  Both qubits are consumed and the far ends
// of their pairs become one pair whose fidelity is the composition of the inputs.
// The far ends are returned in (left, right) order.  If either input pair was not
// fully delivered the swap does not execute and ErrIncompleteSwap is returned.
func (reg *PairRegistry) Swap(left, right *Qubit) (*Qubit, *Qubit, error) {
	if left == nil || right == nil {
		return nil, nil, fmt.Errorf("%w: missing input qubit", ErrIncompleteSwap)
	}
	if left.reg != reg || right.reg != reg {
		return nil, nil, fmt.Errorf("%w: qubit does not belong to this shot", ErrIncompleteSwap)
	}
	if left.pair == nil || right.pair == nil || !left.pair.delivered() || !right.pair.delivered() {
		return nil, nil, fmt.Errorf("%w: qubits %d and %d", ErrIncompleteSwap, left.id, right.id)
	}
	if left.pair == right.pair {
		return nil, nil, fmt.Errorf("%w: qubits %d and %d are one pair", ErrNotEntangled, left.id, right.id)
	}
	if left.holder.Node != right.holder.Node {
		return nil, nil, fmt.Errorf("%w: qubits %d and %d held at %s and %s", ErrIncompleteSwap,
			left.id, right.id, left.holder.Node, right.holder.Node)
	}

	farLeft := left.Partner()
	farRight := right.Partner()

	reg.nxtPair += 1
	ps := &pairState{id: reg.nxtPair,
		fidelity: ComposeFidelity(left.pair.fidelity, right.pair.fidelity),
		ends:     [2]*Qubit{farLeft, farRight}}
	farLeft.pair = ps
	farRight.pair = ps

	for _, q := range []*Qubit{left, right} {
		q.status = QubitMeasured
		q.pair = nil
	}
	return farLeft, farRight, nil
}
