// Package cli implements the sitesim command-line entry point: a root
// command that loads a signature and parameter set, runs the CTMC kernel to
// its configured limit, and writes the resulting observable report, plus the
// `serve` subcommand defined in serve.go.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sitesim/reactor/internal/config"
	"github.com/sitesim/reactor/internal/domain/alarm"
	"github.com/sitesim/reactor/internal/domain/mixture"
	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/internal/domain/monitor"
	"github.com/sitesim/reactor/internal/domain/paramfile"
	"github.com/sitesim/reactor/internal/domain/reactor"
	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/internal/domain/simulator"
	"github.com/sitesim/reactor/internal/domain/snapshot"
	"github.com/sitesim/reactor/internal/infrastructure/monitoring/logging"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootCommandExtras holds constructors for subcommands registered by other
// files in this package (e.g. serve.go's `serve`), so NewRootCommand can
// attach them without those files needing to reach back into root.go.
var rootCommandExtras []func() *cobra.Command

// RunOptions holds the flags of the sitesim root command, matching the CLI
// surface of the reference simulator: signature, parameters, report,
// mixture and seed.
type RunOptions struct {
	SignaturePath  string
	ParametersPath string
	ReportPath     string
	MixturePath    string
	Seed           uint64
	DBDSN          string
	Extra          []string
	ConfigPath     string
}

// NewRootCommand builds the sitesim root command.
func NewRootCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:     "sitesim",
		Short:   "sitesim runs a stochastic site-graph reaction-network simulation",
		Long:    "sitesim reads a signature (contact map) and a parameter set, runs a\nGillespie-style continuous-time Markov chain simulation over the site\ngraph it describes, and reports observable trajectories.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts)
		},
		SilenceUsage: true,
	}

	// Local (not persistent) flags: these govern the one-shot run behavior of
	// the root command only, so registering a `serve` subcommand alongside it
	// doesn't inherit or require them.
	pf := cmd.Flags()
	pf.StringVarP(&opts.SignaturePath, "signature", "s", "", "contact-map signature file (required)")
	pf.StringVarP(&opts.ParametersPath, "parameters", "p", "", "parameter file overriding config defaults")
	pf.StringVarP(&opts.ReportPath, "report", "r", "report.csv", "observable report output path")
	// Reserved for a future snapshot reader; only the writer (see
	// writeFinalSnapshot) is implemented today, so this path is accepted but
	// not yet consumed.
	pf.StringVarP(&opts.MixturePath, "mixture", "m", "", "initial mixture/snapshot file")
	pf.Uint64Var(&opts.Seed, "seed", 1, "PRNG seed (expanded internally into a two-word seed)")
	pf.StringVarP(&opts.DBDSN, "db", "d", "", "optional Postgres DSN to persist the run")
	pf.StringArrayVarP(&opts.Extra, "extra", "X", nil, "extra key=value overrides, repeatable")
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "service config file path")

	_ = cmd.MarkFlagRequired("signature")

	for _, extra := range rootCommandExtras {
		cmd.AddCommand(extra())
	}

	return cmd
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// runSimulation wires the signature/parameter/mixture inputs into a kernel
// run and writes an observable report on completion.
func runSimulation(cmd *cobra.Command, opts *RunOptions) error {
	logger, err := newCLILogger()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	cfg, err := loadRunConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("config init: %w", err)
	}

	var pf *paramfile.File
	if opts.ParametersPath != "" {
		pfFile, err := os.Open(opts.ParametersPath)
		if err != nil {
			return fmt.Errorf("opening parameter file: %w", err)
		}
		pf, err = paramfile.Parse(pfFile)
		pfFile.Close()
		if err != nil {
			return fmt.Errorf("parsing parameter file: %w", err)
		}
	}

	sigText, err := os.ReadFile(opts.SignaturePath)
	if err != nil {
		return fmt.Errorf("opening signature file: %w", err)
	}
	sigExpr := string(sigText)
	if pf != nil && len(pf.SignatureExprs) > 0 {
		sigExpr += " " + strings.Join(pf.SignatureExprs, " ")
	}

	sig, err := signature.ParseString(sigExpr)
	if err != nil {
		return fmt.Errorf("parsing signature: %w", err)
	}

	params := parametersFromConfig(cfg.Simulation)
	if pf != nil {
		mergeParametersFromFile(&params, pf)
	}
	applyExtraOverrides(&params, opts.Extra)

	seed := opts.Seed
	if pf != nil && pf.Seed != 0 && !cmd.Flags().Changed("seed") {
		seed = pf.Seed
	}

	kin := sig.DeriveKinetics(params)
	ctx := molecule.ReactivityContext{Kinetics: kin, Canonicalizer: molecule.NewDefaultCanonicalizer()}

	var inflowRate, outflowRate map[chem.AgentType]float64
	if pf != nil {
		inflowRate = flowRateMap(pf.Inflows)
		outflowRate = flowRateMap(pf.Outflows)
	}
	mx := mixture.New(sig, ctx, inflowRate, outflowRate)
	mixture.SeedFromSignature(mx, sig, ctx)

	rx := reactor.New(sig, ctx)
	sim := simulator.New(sig, mx, rx, seed, seed^0x9e3779b97f4a7c15)

	mon := monitor.New(0)
	registerDefaultObservables(mon, mx)
	al := alarm.New()
	if pf != nil {
		registerDirectiveObservables(logger, mon, mx, pf.Observables)
		registerDirectiveAlarms(logger, al, mon, pf.Alarms)
	}

	limitKind := cfg.Simulation.SimLimitKind
	limit := cfg.Simulation.SimLimit
	if pf != nil && pf.SimLimitKind != "" {
		limit = pf.SimLimit
		limitKind = pf.SimLimitKind
	}
	if limit <= 0 {
		limit = 1000
	}

	logger.Info("starting run",
		logging.String("signature", opts.SignaturePath),
		logging.Int("seed", int(seed)),
		logging.SimTime(limit),
	)

	for (limitKind == "event" && float64(sim.EventCount()) < limit) ||
		(limitKind != "event" && sim.SimTime() < limit) {
		if err := sim.Step(); err != nil {
			break
		}
		mon.Sample(mx, sim.SimTime())
		if fired, name := al.Trigger(mon); fired {
			logger.Warn("alarm triggered", logging.String("condition", name), logging.SimTime(sim.SimTime()))
			break
		}
	}

	logger.Info("run finished",
		logging.EventNo(sim.EventCount()),
		logging.SimTime(sim.SimTime()),
	)

	reportPath := opts.ReportPath
	if pf != nil && pf.Report.ReportFn != "" && !cmd.Flags().Changed("report") {
		reportPath = pf.Report.ReportFn
	}
	if err := writeReport(reportPath, mon); err != nil {
		return err
	}

	snapPath := reportPath + ".snapshot"
	if pf != nil && pf.Report.SnapRoot != "" {
		snapPath = filepath.Join(pf.Report.SnapRoot, "final.snapshot")
	}
	return writeFinalSnapshot(snapPath, mx, sim.SimTime())
}

// mergeParametersFromFile overrides base with every %par directive present
// in pf, leaving fields base already carries (from config defaults) alone
// when the parameter file never mentioned them.
func mergeParametersFromFile(base *signature.Parameters, pf *paramfile.File) {
	set := func(name string, assign func()) {
		if _, ok := pf.Par[name]; ok {
			assign()
		}
	}
	set("Volume", func() { base.Volume = pf.Parameters.Volume })
	set("Temperature", func() { base.Temperature = pf.Parameters.Temperature })
	set("ReferenceVolume", func() { base.ReferenceVolume = pf.Parameters.ReferenceVolume })
	set("ReferenceTemp", func() { base.ReferenceTemp = pf.Parameters.ReferenceTemp })
	set("Kd_weak", func() { base.KdWeak = pf.Parameters.KdWeak })
	set("Kd_medium", func() { base.KdMedium = pf.Parameters.KdMedium })
	set("Kd_strong", func() { base.KdStrong = pf.Parameters.KdStrong })
	set("k_on", func() { base.KOn = pf.Parameters.KOn })
	set("ResizeVolume", func() { base.ResizeVolume = pf.Parameters.ResizeVolume })
	set("RescaleTemp", func() { base.RescaleTemp = pf.Parameters.RescaleTemp })
	set("RingClosureFactor", func() { base.RingClosureFactor = pf.Parameters.RingClosureFactor })
}

// flowRateMap turns a parameter file's repeatable inflow/outflow directives
// into the per-atom-type rate map mixture.New expects. A later directive for
// the same atom type overwrites an earlier one, matching the %par directive
// list's own "last one wins" handling of repeated names.
func flowRateMap(flows []paramfile.Flow) map[chem.AgentType]float64 {
	if len(flows) == 0 {
		return nil
	}
	rates := make(map[chem.AgentType]float64, len(flows))
	for _, fl := range flows {
		rates[chem.AgentType(fl.AtomType)] = fl.Rate
	}
	return rates
}

// registerDirectiveObservables resolves each %obs: directive's exact-molecule
// ("!"), bond-type ("b"), free-site ("s") and size-distribution ("p size")
// kinds into a registered monitor.Observable. Pattern-matching kinds ("?",
// "mb", "ms", "p maxsize") need a subgraph-embedding oracle this build does not carry
// (see monitor package doc); they are logged and skipped rather than
// rejected, so a parameter file written for the reference implementation
// still runs to completion.
func registerDirectiveObservables(logger logging.Logger, mon *monitor.Monitor, mx *mixture.Mixture, dirs []paramfile.ObservableDirective) {
	for _, d := range dirs {
		var obs monitor.Observable
		obs.Name = d.Name

		switch d.Kind {
		case "!":
			expr := strings.TrimSpace(d.Expr)
			sp, ok := mx.FindByCanonical(expr)
			if !ok {
				// the named species may not exist at t=0; register a
				// zero-valued placeholder keyed by the raw expression so a
				// downstream %stp can still reference the name.
				obs.Kind = monitor.KindMoleculeCount
				obs.Canonical = expr
			} else {
				obs.Kind = monitor.KindMoleculeCount
				obs.Canonical = sp.Canonical()
			}
		case "b":
			obs.Kind = monitor.KindBondCount
		case "s":
			obs.Kind = monitor.KindFreeSiteCount
		case "p size":
			obs.Kind = monitor.KindSizeDistribution
			obs.SizeMin, obs.SizeMax = d.SizeMin, d.SizeMax
		default:
			logger.Warn("skipping unsupported observable kind",
				logging.String("name", d.Name), logging.String("kind", d.Kind))
			continue
		}

		if err := mon.Register(obs); err != nil {
			logger.Warn("observable registration failed",
				logging.String("name", d.Name), logging.Err(err))
		}
	}
}

func registerDirectiveAlarms(logger logging.Logger, al *alarm.Alarm, mon *monitor.Monitor, dirs []paramfile.AlarmDirective) {
	for _, d := range dirs {
		cond := alarm.Condition{Name: d.Observable, Observ: d.Observable, Index: d.Index, Threshold: d.Threshold}
		if err := al.Register(mon, cond); err != nil {
			logger.Warn("alarm registration failed", logging.String("name", d.Observable), logging.Err(err))
		}
	}
}

// writeFinalSnapshot writes a restart-capable snapshot of mx's current
// species population to path, creating any parent directory the report's
// configured snap_root names.
func writeFinalSnapshot(path string, mx *mixture.Mixture, simTime float64) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	return snapshot.Write(f, mx, snapshot.Header{UUID: uuid.New().String(), T0: simTime})
}

func newCLILogger() (logging.Logger, error) {
	return logging.NewLogger(logging.LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

func loadRunConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg, nil
}

func parametersFromConfig(sc config.SimulationConfig) signature.Parameters {
	return signature.Parameters{
		Volume:            sc.Volume,
		Temperature:       sc.Temperature,
		ReferenceVolume:   sc.ReferenceVolume,
		ReferenceTemp:     sc.ReferenceTemp,
		KdWeak:            sc.KdWeak,
		KdMedium:          sc.KdMedium,
		KdStrong:          sc.KdStrong,
		KOn:               sc.KOn,
		ResizeVolume:      sc.ResizeVolume,
		RescaleTemp:       sc.RescaleTemp,
		RingClosureFactor: sc.RingClosureFactor,
	}
}

// applyExtraOverrides applies -X/--extra key=value pairs on top of the
// config-derived Parameters, for the handful of numeric knobs a one-off run
// commonly needs to tweak without editing a file.
func applyExtraOverrides(p *signature.Parameters, extra []string) {
	for _, kv := range extra {
		key, valStr, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		var val float64
		if _, err := fmt.Sscanf(valStr, "%g", &val); err != nil {
			continue
		}
		switch key {
		case "volume":
			p.Volume = val
		case "temperature":
			p.Temperature = val
		case "k_on":
			p.KOn = val
		case "kd_weak":
			p.KdWeak = val
		case "kd_medium":
			p.KdMedium = val
		case "kd_strong":
			p.KdStrong = val
		}
	}
}

// registerDefaultObservables registers one molecule-count observable per
// species present at t=0, the minimal report every run produces without a
// user-supplied %obs directive list.
func registerDefaultObservables(mon *monitor.Monitor, mx *mixture.Mixture) {
	for i, m := range mx.Species() {
		_ = mon.Register(monitor.Observable{
			Name:      fmt.Sprintf("species_%d", i),
			Kind:      monitor.KindMoleculeCount,
			Canonical: m.Canonical(),
		})
	}
}

// writeReport writes every registered observable's sampled trajectory as a
// CSV file: one row per sample stamp, one column per observable.
func writeReport(path string, mon *monitor.Monitor) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()

	obs := mon.Observables()
	fmt.Fprint(f, "time")
	for _, o := range obs {
		fmt.Fprintf(f, ",%s", o.Name)
	}
	fmt.Fprintln(f)

	stamps := mon.Stamps()
	for i, t := range stamps {
		fmt.Fprintf(f, "%g", t)
		for _, o := range obs {
			series, ok := mon.Series(o.Name)
			if !ok || i >= len(series.Points) {
				fmt.Fprint(f, ",")
				continue
			}
			fmt.Fprintf(f, ",%g", series.Points[i])
		}
		fmt.Fprintln(f)
	}
	return nil
}
