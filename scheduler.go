package qnet

// scheduler.go runs one shot on a topology.  The phases of a shot are strictly
// ordered: every pair source generates, every channel carrying a qubit takes its loss
// draw, one resolution pass fills the delivery ledger, the swap plan executes, and
// the end-to-end pair (if any) is read out.  The phases are sequenced by an
// evtm.EventManager, each handler scheduling the next, so virtual time runs from
// generation at t=0 to resolution at the largest propagation delay among the
// channels used.  Ports have no handlers.

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// ShotPhase is the state of a shot in progress
type ShotPhase int

const (
	PhaseIdle ShotPhase = iota
	PhaseGenerating
	PhaseTransmitting
	PhaseAwaitingDelivery
	PhaseResolved
	PhaseComposing
	PhaseTerminal
)

var spToStr map[ShotPhase]string = map[ShotPhase]string{PhaseIdle: "idle", PhaseGenerating: "generating",
	PhaseTransmitting: "transmitting", PhaseAwaitingDelivery: "awaiting-delivery", PhaseResolved: "resolved",
	PhaseComposing: "composing", PhaseTerminal: "terminal"}

func (sp ShotPhase) String() string {
	str, present := spToStr[sp]
	if !present {
		return fmt.Sprintf("ShotPhase(%d)", int(sp))
	}
	return str
}

// ShotResult is the record of one shot.  It is not modified once returned.
type ShotResult struct {
	Index    int     `json:"index" yaml:"index"`
	Outcome  Outcome `json:"outcome" yaml:"outcome"`
	Fidelity float64 `json:"fidelity" yaml:"fidelity"` // meaningful only when Delivered

	// why the shot was lost, empty when Delivered
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// qubits held at the end of the shot, by node and port
	Deliveries []Delivery `json:"deliveries" yaml:"deliveries"`

	// channels whose draw lost the qubit, in draw order
	LostChannels []string `json:"lostchannels,omitempty" yaml:"lostchannels,omitempty"`

	// number of swaps executed
	Swaps int `json:"swaps" yaml:"swaps"`

	// virtual time (seconds) at which the shot terminated
	CompletedAt float64 `json:"completedat" yaml:"completedat"`
}

// Delivered is true when the shot produced an end-to-end pair
func (sr ShotResult) Delivered() bool {
	return sr.Outcome == Delivered
}

type shotConfig struct {
	trace       *TraceManager
	tracePoint  TracePoint
	metrics     *Metrics
	srcFidelity float64
	swapOrder   []int
}

// ShotOption modifies how RunShot executes
type ShotOption func(*shotConfig)

// WithTrace records the steps of the shot in tm, under the point tp returned when
// the shot's topology was registered
func WithTrace(tm *TraceManager, tp TracePoint) ShotOption {
	return func(sc *shotConfig) {
		sc.trace = tm
		sc.tracePoint = tp
	}
}

// WithShotMetrics counts the shot's channel draws in m
func WithShotMetrics(m *Metrics) ShotOption {
	return func(sc *shotConfig) { sc.metrics = m }
}

// WithSourceFidelity sets the fidelity of freshly generated pairs
func WithSourceFidelity(f float64) ShotOption {
	return func(sc *shotConfig) { sc.srcFidelity = f }
}

// WithSwapOrder executes the swap plan in the given order, a permutation of the plan's indices
func WithSwapOrder(order []int) ShotOption {
	return func(sc *shotConfig) { sc.swapOrder = order }
}

// a transit is a qubit handed to a channel
type transit struct {
	ch      *Channel
	q       *Qubit
	outcome Outcome
}

// shotRun carries the state of one shot through its event handlers
type shotRun struct {
	idx    int
	topo   *Topology
	rng    U01Source
	cfg    shotConfig
	reg    *PairRegistry
	ledger *DeliveryLedger
	phase  ShotPhase

	transits []*transit // in channel order once transmitted
	byChan   map[*Channel]*transit
	lost     []string

	result ShotResult
	err    error
}

// RunShot executes one shot on a finalized topology, drawing channel losses from rng.
// Losses and incomplete swaps give a Lost result; an error is returned only when the
// topology or options are unusable.
func RunShot(idx int, topo *Topology, rng U01Source, opts ...ShotOption) (ShotResult, error) {
	if topo == nil || !topo.Finalized() {
		return ShotResult{}, fmt.Errorf("%w: shot %d on a topology that is not finalized", ErrConstruction, idx)
	}
	if rng == nil {
		return ShotResult{}, fmt.Errorf("%w: shot %d has no random stream", ErrConstruction, idx)
	}

	sc := shotConfig{srcFidelity: 1.0}
	for _, opt := range opts {
		opt(&sc)
	}
	if err := checkSwapOrder(sc.swapOrder, len(topo.plan)); err != nil {
		return ShotResult{}, err
	}

	run := &shotRun{idx: idx, topo: topo, rng: rng, cfg: sc, phase: PhaseIdle,
		reg: NewPairRegistry(sc.srcFidelity), ledger: NewDeliveryLedger(),
		byChan: make(map[*Channel]*transit)}
	run.result.Index = idx

	// evtm numbers its entries from package state, so event managers run one at a time
	evtMu.Lock()
	evtMgr := evtm.New()
	evtMgr.Schedule(run, nil, shotGenerate, vrtime.SecondsToTime(0.0))
	evtMgr.Run(shotHorizon(topo))
	evtMu.Unlock()

	if run.err != nil {
		return ShotResult{}, run.err
	}
	if run.phase != PhaseTerminal {
		return ShotResult{}, fmt.Errorf("%w: shot %d stopped in phase %s", ErrConstruction, idx, run.phase)
	}
	return run.result, nil
}

var evtMu sync.Mutex

// shotHorizonMargin is added to the longest channel delay to bound the virtual time of a shot
const shotHorizonMargin = 1.0

// shotHorizon is the virtual time (seconds) by which every event of a shot on topo has
// executed.  It must stay small enough to be represented in vrtime ticks.
func shotHorizon(topo *Topology) float64 {
	maxDelay := 0.0
	for _, ch := range topo.channels {
		maxDelay = math.Max(maxDelay, ch.Delay())
	}
	return maxDelay + shotHorizonMargin
}

func checkSwapOrder(order []int, n int) error {
	if order == nil {
		return nil
	}
	if len(order) != n {
		return fmt.Errorf("%w: swap order has %d entries for %d swaps", ErrDomain, len(order), n)
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return fmt.Errorf("%w: swap order %v is not a permutation", ErrDomain, order)
		}
		seen[idx] = true
	}
	return nil
}

func (run *shotRun) trace(evtMgr *evtm.EventManager, objID int, op, detail string) {
	AddShotTrace(run.cfg.trace, evtMgr.CurrentTime(), run.cfg.tracePoint, run.idx, run.phase, objID, op, detail)
}

// shotGenerate creates one pair per source.  A half placed on a memory port is recorded
// in the ledger at once; a half placed on an out port goes into transit, or is dropped
// when the port is unbound.
func shotGenerate(evtMgr *evtm.EventManager, context any, data any) any {
	run := context.(*shotRun)
	run.phase = PhaseGenerating

	for _, ps := range run.topo.sources {
		qa, qb := run.reg.CreatePair(Endpoint{Node: ps.Node.Name})
		run.trace(evtMgr, ps.Node.Number, "generate", fmt.Sprintf("%s pair (%d,%d)", ps.Name, qa.ID(), qb.ID()))

		for i, q := range []*Qubit{qa, qb} {
			port := ps.Halves[i]
			switch {
			case port.Type == PortMem:
				q.deliver(port.Endpoint())
				if err := run.ledger.Record(port.Endpoint(), q); err != nil {
					run.err = err
					return nil
				}
			case port.Channel == nil:
				q.destroy()
				run.trace(evtMgr, ps.Node.Number, "drop", "unbound port "+port.Endpoint().String())
			default:
				if _, present := run.byChan[port.Channel]; present {
					run.err = fmt.Errorf("%w: channel %s carries two qubits", ErrConstruction, port.Channel.Name)
					return nil
				}
				q.send()
				run.byChan[port.Channel] = &transit{ch: port.Channel, q: q}
			}
		}
	}
	evtMgr.Schedule(run, nil, shotTransmit, vrtime.SecondsToTime(0.0))
	return nil
}

// shotTransmit takes one loss draw for every channel carrying a qubit, in channel
// construction order, and schedules resolution after the longest propagation delay
func shotTransmit(evtMgr *evtm.EventManager, context any, data any) any {
	run := context.(*shotRun)
	run.phase = PhaseTransmitting

	maxDelay := 0.0
	for _, ch := range run.topo.channels {
		tr, present := run.byChan[ch]
		if !present {
			continue
		}
		tr.outcome = ch.Loss.Transmit(run.rng.RandU01(), ch.LengthM)
		run.transits = append(run.transits, tr)
		run.cfg.metrics.countTransmission(run.topo.Kind, tr.outcome)
		run.trace(evtMgr, channelObjID(run.topo, ch), "send", fmt.Sprintf("qubit %d %s", tr.q.ID(), tr.outcome))
		maxDelay = math.Max(maxDelay, ch.Delay())
	}

	run.phase = PhaseAwaitingDelivery
	evtMgr.Schedule(run, nil, shotResolve, vrtime.SecondsToTime(maxDelay))
	return nil
}

// shotResolve is the resolution pass: delivered qubits are recorded at the channel's
// destination port, lost ones destroyed
func shotResolve(evtMgr *evtm.EventManager, context any, data any) any {
	run := context.(*shotRun)

	for _, tr := range run.transits {
		if tr.outcome == Lost {
			tr.q.destroy()
			run.lost = append(run.lost, tr.ch.Name)
			run.trace(evtMgr, channelObjID(run.topo, tr.ch), "lose", fmt.Sprintf("qubit %d", tr.q.ID()))
			continue
		}
		dst := tr.ch.Dst.Endpoint()
		tr.q.deliver(dst)
		if err := run.ledger.Record(dst, tr.q); err != nil {
			run.err = err
			return nil
		}
		run.trace(evtMgr, tr.ch.Dst.Node.Number, "deliver", fmt.Sprintf("qubit %d at %s", tr.q.ID(), dst))
	}
	run.phase = PhaseResolved
	evtMgr.Schedule(run, nil, shotCompose, vrtime.SecondsToTime(0.0))
	return nil
}

// shotCompose executes the swap plan against the ledger and reads out the end-to-end pair
func shotCompose(evtMgr *evtm.EventManager, context any, data any) any {
	run := context.(*shotRun)
	run.phase = PhaseComposing

	order := run.cfg.swapOrder
	if order == nil {
		order = make([]int, len(run.topo.plan))
		for idx := range order {
			order[idx] = idx
		}
	}

	for _, stepIdx := range order {
		step := run.topo.plan[stepIdx]
		left, _ := run.ledger.Lookup(step.Left)
		right, _ := run.ledger.Lookup(step.Right)
		_, _, err := run.reg.Swap(left, right)
		if err != nil {
			if errors.Is(err, ErrIncompleteSwap) {
				run.finishLost(evtMgr, fmt.Sprintf("swap at %s: %v", step.Node, err))
				return nil
			}
			run.err = fmt.Errorf("shot %d swap at %s: %w", run.idx, step.Node, err)
			return nil
		}
		run.ledger.Release(step.Left)
		run.ledger.Release(step.Right)
		run.result.Swaps += 1
		run.trace(evtMgr, run.topo.nodes[step.Node].Number, "swap", fmt.Sprintf("%s with %s", step.Left, step.Right))
	}

	endA, endB := run.topo.Endpoints()
	qa, okA := run.ledger.Lookup(endA)
	qb, okB := run.ledger.Lookup(endB)
	if !okA || !okB {
		missing := endA
		if okA {
			missing = endB
		}
		run.finishLost(evtMgr, fmt.Sprintf("nothing delivered at %s", missing))
		return nil
	}
	f, err := run.reg.Fidelity(qa, qb)
	if err != nil {
		run.err = fmt.Errorf("shot %d: %w", run.idx, err)
		return nil
	}
	run.result.Outcome = Delivered
	run.result.Fidelity = f
	evtMgr.Schedule(run, nil, shotTerminate, vrtime.SecondsToTime(0.0))
	return nil
}

// finishLost marks the shot lost and moves it to termination
func (run *shotRun) finishLost(evtMgr *evtm.EventManager, reason string) {
	run.result.Outcome = Lost
	run.result.Fidelity = 0.0
	run.result.Reason = reason
	evtMgr.Schedule(run, nil, shotTerminate, vrtime.SecondsToTime(0.0))
}

// shotTerminate seals the result
func shotTerminate(evtMgr *evtm.EventManager, context any, data any) any {
	run := context.(*shotRun)
	run.phase = PhaseTerminal

	dels := run.ledger.Arrived()
	sortDeliveries(dels)
	run.result.Deliveries = dels
	run.result.LostChannels = run.lost
	run.result.CompletedAt = evtMgr.CurrentSeconds()
	run.trace(evtMgr, 0, "result", fmt.Sprintf("%s %g", run.result.Outcome, run.result.Fidelity))
	return nil
}
