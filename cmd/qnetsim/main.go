// qnetsim runs an entanglement distribution experiment for each entry in the cartesian
// product of link lengths and repeater counts, and outputs a CSV line of success
// counts and fidelities for each combination.  With --analytic-nodes it instead
// prints the closed-form estimate of a long chain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/template"

	"github.com/iti/qnet"
	flag "github.com/spf13/pflag"
)

var (
	cfgFile   = flag.String("config", "", "Experiment configuration file (yaml or json); flags given explicitly override it.")
	name      = flag.String("name", "qnet", "Experiment name.")
	topology  = flag.String("topology", "chain", "Topology kind: chain, star, two-hop, midpoint, or custom.")
	topoFile  = flag.String("topo-file", "", "Description file of a custom topology.")
	shots     = flag.Int("shots", 100, "Shots per configuration point.")
	lengths   = flag.Float64Slice("lengths", []float64{0.0}, "Link lengths to sweep, meters.")
	lossDB    = flag.Float64("loss-db-per-km", 0.2, "Fiber attenuation, dB per km.")
	pInit     = flag.Float64("initial-loss-prob", 0.0, "Length-independent loss probability of every channel.")
	repeaters = flag.IntSlice("repeaters", []int{0}, "Repeater counts to sweep (chain only).")
	clients   = flag.Int("clients", 2, "Number of switch clients (star only).")
	pair      = flag.IntSlice("switch-pair", []int{0, 1}, "The two clients to entangle (star only).")
	srcFid    = flag.Float64("source-fidelity", 1.0, "Fidelity of freshly generated pairs.")
	seed      = flag.Int64("seed", 0, "Random seed; without it every shot draws from its own unseeded stream.")
	workers   = flag.Int("workers", 0, "Shots run concurrently; 0 means one per CPU.")
	chParams  = flag.StringArray("channel-param", nil, "Channel override attribute:param:value, e.g. name%%chan_A:length:1000.")

	outFile     = flag.String("out", "", "Write the sweep result to this yaml or json file.")
	traceFile   = flag.String("trace", "", "Write a per-shot trace to this yaml or json file.")
	metricsFile = flag.String("metrics-file", "", "Write metrics in Prometheus text format to this file.")
	topoOut     = flag.String("dump-topo", "", "Write the description of the first point's topology to this yaml or json file.")
	analytic    = flag.Int("analytic-nodes", 0, "Print the analytical estimate of a chain with this many nodes, and exit.")
	linkFid     = flag.Float64("link-fidelity", qnet.DefaultLinkFidelity, "Link fidelity of the analytical estimate.")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, or error.")
)

const (
	header   = "Topology, LengthM, Repeaters, Hops, Shots, Delivered, SuccessRate, ExpectedRate, MeanFidelity, StdFidelity"
	lineTmpl = "{{.Kind}}, {{.LengthM}}, {{.Repeaters}}, {{.Hops}}, {{.TotalShots}}, {{.SuccessCount}}, {{printf \"%.4f\" .SuccessRate}}, {{printf \"%.4f\" .ExpectedRate}}, {{printf \"%.6f\" .MeanFidelity}}, {{printf \"%.6f\" .StdFidelity}}\n"

	estHeader = "Nodes, Links, LinkLengthM, LinkAttenuationDB, LinkTransmitProb, EndToEndProb, LinkDelayUs, TotalDelayMs, EstimatedFidelity, PurificationRounds"
	estTmpl   = "{{.NumNodes}}, {{.TotalLinks}}, {{.LinkLengthM}}, {{printf \"%.2f\" .LinkAttenuationDB}}, {{printf \"%.4f\" .LinkTransmitProb}}, {{printf \"%.6e\" .EndToEndProb}}, {{printf \"%.2f\" (us .LinkDelay)}}, {{printf \"%.2f\" (ms .TotalDelay)}}, {{printf \"%.6e\" .EstimatedFidelity}}, {{.PurificationRounds}}\n"
)

func main() {
	flag.Parse()
	qnet.SetLogger(qnet.NewLogger(os.Stderr, *logLevel))
	logger := qnet.Logger()

	cfg, err := buildConfig()
	if err != nil {
		fail("configuration", err)
	}

	if *analytic > 0 {
		if err := estimate(cfg); err != nil {
			fail("analytical estimate", err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		fail("configuration", err)
	}
	if _, err := qnet.CheckOutputFiles([]string{*outFile, *traceFile, *metricsFile, *topoOut}); err != nil {
		fail("output files", err)
	}
	if *topoOut != "" {
		if err := dumpTopology(cfg, *topoOut); err != nil {
			fail("topology description", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tm := qnet.CreateTraceManager(cfg.Name, *traceFile != "")
	metrics := qnet.NewMetrics()

	result, err := qnet.RunSweep(ctx, cfg, qnet.WithRunTrace(tm), qnet.WithMetrics(metrics))
	if err != nil {
		fail("sweep", err)
	}

	fmt.Println(header)
	tmpl := template.Must(template.New("line").Parse(lineTmpl))
	for _, s := range result.Points {
		if err := tmpl.Execute(os.Stdout, s); err != nil {
			fail("output", err)
		}
	}

	if *outFile != "" {
		if err := result.WriteToFile(*outFile); err != nil {
			fail("sweep result", err)
		}
	}
	if err := tm.WriteToFile(*traceFile); err != nil {
		fail("trace", err)
	}
	if *metricsFile != "" {
		if err := metrics.WriteToTextfile(*metricsFile); err != nil {
			fail("metrics", err)
		}
	}
	logger.Info("done", "run_id", result.RunID, "points", len(result.Points))
}

// buildConfig starts from the configuration file, if any, or from the defaults, and
// applies the flags given on the command line
func buildConfig() (*qnet.ExpCfg, error) {
	cfg := qnet.CreateExpCfg(*name)
	if *cfgFile != "" {
		var err error
		cfg, err = qnet.ReadExpCfg(*cfgFile, qnet.UseYAMLExt(*cfgFile), []byte{})
		if err != nil {
			return nil, err
		}
	}

	set := func(flagName string, apply func()) {
		if *cfgFile == "" || flag.CommandLine.Changed(flagName) {
			apply()
		}
	}
	set("name", func() { cfg.Name = *name })
	set("topology", func() { cfg.Topology = qnet.TopoKind(*topology) })
	set("topo-file", func() { cfg.TopoFile = *topoFile })
	set("shots", func() { cfg.Shots = *shots })
	set("lengths", func() { cfg.LengthsM = *lengths })
	set("loss-db-per-km", func() { cfg.LossDBPerKm = *lossDB })
	set("initial-loss-prob", func() { cfg.InitialLossProb = *pInit })
	set("repeaters", func() { cfg.Repeaters = *repeaters })
	set("clients", func() { cfg.Clients = *clients })
	set("switch-pair", func() { cfg.SwitchPair = *pair })
	set("source-fidelity", func() { cfg.SourceFidelity = *srcFid })
	set("workers", func() { cfg.Workers = *workers })
	if flag.CommandLine.Changed("seed") {
		s := *seed
		cfg.Seed = &s
	}

	for _, cp := range *chParams {
		parts := strings.SplitN(cp, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: channel parameter %q is not attribute:param:value", qnet.ErrDomain, cp)
		}
		if err := cfg.AddChannelParam(parts[0], parts[1], parts[2]); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// estimate prints the analytical estimate of a chain with the configured link length and loss
func estimate(cfg *qnet.ExpCfg) error {
	funcs := template.FuncMap{
		"us": func(s float64) float64 { return s * 1e6 },
		"ms": func(s float64) float64 { return s * 1e3 },
	}
	tmpl := template.Must(template.New("estimate").Funcs(funcs).Parse(estTmpl))

	fmt.Println(estHeader)
	for _, lengthM := range cfg.LengthsM {
		ce, err := qnet.EstimateChain(*analytic, lengthM, cfg.LossModel(), *linkFid)
		if err != nil {
			return err
		}
		if err := tmpl.Execute(os.Stdout, ce); err != nil {
			return err
		}
	}
	return nil
}

// dumpTopology writes the description of the topology of the configuration's first point
func dumpTopology(cfg *qnet.ExpCfg, filename string) error {
	points, err := cfg.Points()
	if err != nil {
		return err
	}
	topo, err := qnet.BuildTopology(points[0].Kind, points[0].Params)
	if err != nil {
		return err
	}
	td := topo.Transform()
	return td.WriteToFile(filename)
}

func fail(what string, err error) {
	qnet.Logger().Error(what+" failed", "error", err)
	os.Exit(1)
}
