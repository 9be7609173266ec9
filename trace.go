package qnet

import (
	"strconv"
	"sync"

	"github.com/iti/evt/vrtime"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// TraceInst is one stored trace record
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// A TracePoint places the shots of one configuration point in a trace: its index
// among the registered points, and the offset added to its node and channel numbers
// to form object ids that are unique across the whole trace
type TracePoint struct {
	Index  int    `json:"index" yaml:"index"`
	Label  string `json:"label" yaml:"label"`
	IDBase int    `json:"idbase" yaml:"idbase"`
}

// TraceManager gathers information about the topologies of an experiment and the shots
// run on them.  Shots may run on several workers at once, so its methods lock.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// registered points, in registration order
	Points []TracePoint `json:"points" yaml:"points"`

	// trace records, indexed by point and then by shot
	Traces map[int]map[int][]TraceInst `json:"traces" yaml:"traces"`

	nxtID int
	mu    sync.Mutex
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Points = make([]TracePoint, 0)
	tm.Traces = make(map[int]map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a trace record under the point and shot index
func (tm *TraceManager) AddTrace(point, shotIdx int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	byShot, present := tm.Traces[point]
	if !present {
		byShot = make(map[int][]TraceInst)
		tm.Traces[point] = byShot
	}
	byShot[shotIdx] = append(byShot[shotIdx], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file.
// Registering an id again replaces its entry.
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.Active() {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// RegisterTopology opens a new point in the trace and enters the topology's nodes
// and channels in the name dictionary, in an id range of their own.  Within the range
// nodes take their numbers, channels follow on after the last node.
func (tm *TraceManager) RegisterTopology(label string, topo *Topology) TracePoint {
	if !tm.Active() {
		return TracePoint{Label: label}
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tp := TracePoint{Index: len(tm.Points), Label: label, IDBase: tm.nxtID}
	tm.Points = append(tm.Points, tp)
	for _, node := range topo.nodeOrder {
		tm.NameByID[tp.IDBase+node.Number] = NameType{Name: node.Name, Type: "node"}
	}
	for _, ch := range topo.channels {
		tm.NameByID[tp.IDBase+channelObjID(topo, ch)] = NameType{Name: ch.Name, Type: "channel"}
	}
	tm.nxtID += len(topo.nodeOrder) + len(topo.channels)
	return tp
}

func channelObjID(topo *Topology, ch *Channel) int {
	return len(topo.nodeOrder) + ch.Number
}

// Len returns the number of (point, shot) combinations with trace records
func (tm *TraceManager) Len() int {
	if tm == nil {
		return 0
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	n := 0
	for _, byShot := range tm.Traces {
		n += len(byShot)
	}
	return n
}

// ShotRecords returns a copy of the records of one shot of one point
func (tm *TraceManager) ShotRecords(point, shotIdx int) []TraceInst {
	if tm == nil {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return slices.Clone(tm.Traces[point][shotIdx])
}

// WriteToFile stores the TraceManager to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// Nothing is written when the manager is not in use.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.Active() {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return writeSerialized(filename, tm)
}

// ShotTrace saves information about one step of a shot, for post-run analysis
type ShotTrace struct {
	Time     float64 `yaml:"time"`     // time in float64
	Ticks    int64   `yaml:"ticks"`    // ticks variable of time
	Priority int64   `yaml:"priority"` // priority field of time-stamp
	Point    int     `yaml:"point"`
	Shot     int     `yaml:"shot"`
	ObjID    int     `yaml:"objid"` // node or channel, 0 for the shot as a whole
	Phase    string  `yaml:"phase"`
	Op       string  `yaml:"op"` // "generate", "send", "deliver", "lose", "swap", "result"
	Detail   string  `yaml:"detail"`
}

// Serialize renders the record as yaml
func (str *ShotTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*str)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddShotTrace creates a record of the trace using its calling arguments, and stores it.
// objID is numbered within the point's topology and is shifted into the point's id range.
func AddShotTrace(tm *TraceManager, vrt vrtime.Time, tp TracePoint, shotIdx int, phase ShotPhase, objID int,
	op, detail string) {
	if !tm.Active() {
		return
	}
	str := new(ShotTrace)
	str.Time = vrt.Seconds()
	str.Ticks = vrt.Ticks()
	str.Priority = vrt.Pri()
	str.Point = tp.Index
	str.Shot = shotIdx
	if objID > 0 {
		str.ObjID = tp.IDBase + objID
	}
	str.Phase = phase.String()
	str.Op = op
	str.Detail = detail

	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.AddTrace(tp.Index, shotIdx, TraceInst{TraceTime: traceTime, TraceType: "shot", TraceStr: str.Serialize()})
}
