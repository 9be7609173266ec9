package qnet

// driver.go repeats shots over configuration points.  A point's topology is built
// once up front, so construction errors surface before any shot runs, and then
// once more for every shot.  Shots run on up to Workers goroutines; each has its own
// random stream, chosen by shot index, and the results are aggregated in shot order,
// so a seeded point gives the same summary whatever the number of workers.

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PointCfg describes one configuration point
type PointCfg struct {
	Name           string
	Kind           TopoKind
	Params         TopoParams
	Shots          int
	SourceFidelity float64
	Seed           *int64
	Workers        int
}

// Label names the point by what was swept
func (pc PointCfg) Label() string {
	if pc.Kind == KindChain {
		return fmt.Sprintf("%s L=%gm repeaters=%d", pc.Kind, pc.Params.LengthM, pc.Params.Repeaters)
	}
	return fmt.Sprintf("%s L=%gm", pc.Kind, pc.Params.LengthM)
}

type runConfig struct {
	trace   *TraceManager
	metrics *Metrics
}

// RunOption modifies how RunPoint and RunSweep execute
type RunOption func(*runConfig)

// WithRunTrace records every shot in tm
func WithRunTrace(tm *TraceManager) RunOption {
	return func(rc *runConfig) { rc.trace = tm }
}

// WithMetrics counts shots and transmissions in m
func WithMetrics(m *Metrics) RunOption {
	return func(rc *runConfig) { rc.metrics = m }
}

// RunPoint runs the shots of one configuration point and summarizes them.  Cancelling
// ctx stops the dispatch of further shots and RunPoint returns the context's error.
func RunPoint(ctx context.Context, pc PointCfg, opts ...RunOption) (Summary, error) {
	if pc.Shots <= 0 {
		return Summary{}, fmt.Errorf("%w: shots must be positive, got %d", ErrDomain, pc.Shots)
	}
	if pc.SourceFidelity < 0.0 || pc.SourceFidelity > 1.0 {
		return Summary{}, fmt.Errorf("%w: source fidelity %g", ErrDomain, pc.SourceFidelity)
	}
	rc := runConfig{}
	for _, opt := range opts {
		opt(&rc)
	}

	layout, err := BuildTopology(pc.Kind, pc.Params)
	if err != nil {
		return Summary{}, err
	}
	tracePoint := rc.trace.RegisterTopology(pc.Label(), layout)

	// rngstream streams draw on shared state when created, so every stream
	// is created here, in shot order, before any shot is dispatched
	factory := newStreamFactory(pc.Name, pc.Seed)
	streams := make([]U01Source, pc.Shots)
	for idx := range streams {
		streams[idx] = factory(idx)
	}

	shotOpts := []ShotOption{WithTrace(rc.trace, tracePoint), WithShotMetrics(rc.metrics)}
	if pc.SourceFidelity > 0.0 {
		shotOpts = append(shotOpts, WithSourceFidelity(pc.SourceFidelity))
	}

	workers := pc.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]ShotResult, pc.Shots)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx := 0; idx < pc.Shots; idx++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			topo, err := BuildTopology(pc.Kind, pc.Params)
			if err != nil {
				return err
			}
			sr, err := RunShot(idx, topo, streams[idx], shotOpts...)
			if err != nil {
				return err
			}
			results[idx] = sr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	logger := Logger()
	agg := NewAggregator()
	for _, sr := range results {
		agg.Add(sr)
		rc.metrics.RecordShot(pc.Kind, sr)
		logger.Debug("shot", "point", pc.Label(), "index", sr.Index, "outcome", sr.Outcome.String(),
			"fidelity", sr.Fidelity, "reason", sr.Reason)
	}
	rc.metrics.recordPoint()

	s := agg.Summary()
	s.Label = pc.Label()
	s.Kind = pc.Kind
	s.LengthM = pc.Params.LengthM
	s.Repeaters = pc.Params.Repeaters
	s.Hops = layout.Hops()
	s.ExpectedRate = layout.PathSuccessProb()

	logger.Info("point complete", "point", s.Label, "delivered", s.SuccessCount, "shots", s.TotalShots,
		"rate", s.SuccessRate, "expected", s.ExpectedRate, "mean_fidelity", s.MeanFidelity)
	return s, nil
}

// SweepResult holds the summaries of every point of an experiment
type SweepResult struct {
	RunID  string    `json:"run_id" yaml:"run_id"`
	Name   string    `json:"name" yaml:"name"`
	Config ExpCfg    `json:"config" yaml:"config"`
	Points []Summary `json:"points" yaml:"points"`
}

// RunSweep validates the configuration and runs every point it describes, in order
func RunSweep(ctx context.Context, cfg *ExpCfg, opts ...RunOption) (*SweepResult, error) {
	points, err := cfg.Points()
	if err != nil {
		return nil, err
	}

	sr := &SweepResult{RunID: uuid.NewString(), Name: cfg.Name, Config: *cfg, Points: make([]Summary, 0, len(points))}
	Logger().Info("sweep start", "run_id", sr.RunID, "name", cfg.Name, "topology", string(cfg.Topology),
		"points", len(points), "shots", cfg.Shots)

	for _, pc := range points {
		s, err := RunPoint(ctx, pc, opts...)
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", pc.Label(), err)
		}
		sr.Points = append(sr.Points, s)
	}
	return sr, nil
}

// WriteToFile stores the SweepResult to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (sr *SweepResult) WriteToFile(filename string) error {
	return writeSerialized(filename, *sr)
}

// ReadSweepResult deserializes a SweepResult from dict, or from the named file when dict is empty
func ReadSweepResult(filename string, useYAML bool, dict []byte) (*SweepResult, error) {
	example := SweepResult{}
	if err := readSerialized(filename, useYAML, dict, &example); err != nil {
		return nil, err
	}
	return &example, nil
}
