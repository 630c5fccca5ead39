// Package monitor implements time-series observables over a running Mixture:
// named quantities recomputed every time the Simulator samples
// them and appended to an in-memory series, the way a long trajectory is
// watched without halting it. An observable is one of:
//
//   - molecule count  — population of the single species with a given
//     canonical form
//   - bond-type count — total number of bonds of a given type across the
//     whole mixture
//   - free-site count — total number of free instances of a given site type
//     across the whole mixture
//   - size distribution — population broken out by complex size, over a
//     caller-given [min,max] range
//
// Pattern-embedding observables (arbitrary site-graph patterns matched against
// every complex) and per-maximer observables are not implemented: they need a
// subgraph-embedding counter the kernel does not otherwise require, and no
// SPEC_FULL.md operation currently depends on them.
package monitor

import (
	"sort"

	"github.com/sitesim/reactor/internal/domain/mixture"
	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/pkg/errors"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// Kind identifies which of the four observable families a Observable belongs
// to; Monitor.Sample switches on it to decide what to append to the Series.
type Kind int

const (
	KindMoleculeCount Kind = iota
	KindBondCount
	KindFreeSiteCount
	KindSizeDistribution
)

// Observable is one named quantity the Monitor tracks across samples.
type Observable struct {
	Name string
	Kind Kind

	// Canonical is the target molecule's canonical form, used by
	// KindMoleculeCount.
	Canonical string

	// BondType/SiteType are the targets for KindBondCount/KindFreeSiteCount.
	BondType chem.BondType
	SiteType chem.SiteType

	// SizeMin/SizeMax bound the range reported by KindSizeDistribution.
	SizeMin, SizeMax int
}

// Series holds the recorded values of one Observable, one point appended per
// Monitor.Sample call. For KindSizeDistribution, Bins holds one slice of
// per-size counts per sample, indexed by size-SizeMin; every other kind
// appends a single scalar per sample to Points.
type Series struct {
	Obs    Observable
	Points []float64   // non-size-distribution kinds: one value per sample
	Bins   [][]float64 // size-distribution kind: one []float64 per sample
}

// Monitor owns a registry of Observables and their accumulated Series, plus
// the simulation-time or event-count stamp of each sample.
type Monitor struct {
	observables []Observable
	series      map[string]*Series
	stamps      []float64 // sim time (or event count) at each sample index
	memory      int       // 0 means unbounded; otherwise oldest points are dropped
}

// New returns an empty Monitor. memory caps how many samples each Series
// retains (spec kamon.py's "memory" directive); 0 means unbounded.
func New(memory int) *Monitor {
	return &Monitor{series: make(map[string]*Series), memory: memory}
}

// Register adds an Observable to track, starting with an empty Series. It
// returns a config error if the name is already registered or the kind's
// required fields look unset.
func (m *Monitor) Register(obs Observable) error {
	if _, exists := m.series[obs.Name]; exists {
		return errors.ConfigError(errors.CodeInvalidObservable, "duplicate observable name: "+obs.Name)
	}
	if obs.Kind == KindSizeDistribution && obs.SizeMax < obs.SizeMin {
		return errors.ConfigError(errors.CodeInvalidObservable, "observable "+obs.Name+": size range max < min")
	}
	m.observables = append(m.observables, obs)
	m.series[obs.Name] = &Series{Obs: obs}
	return nil
}

// Observables returns the registered observables in registration order.
func (m *Monitor) Observables() []Observable { return m.observables }

// Series returns the recorded series for a registered observable name.
func (m *Monitor) Series(name string) (*Series, bool) {
	s, ok := m.series[name]
	return s, ok
}

// Sample recomputes every registered observable against mx and appends one
// point to each Series, stamped with t (simulation time or event count,
// whichever the caller's run uses as its x-axis).
func (m *Monitor) Sample(mx *mixture.Mixture, t float64) {
	m.stamps = append(m.stamps, t)
	if m.memory > 0 && len(m.stamps) > m.memory {
		m.stamps = m.stamps[1:]
	}

	for _, obs := range m.observables {
		s := m.series[obs.Name]
		switch obs.Kind {
		case KindMoleculeCount:
			value := 0.0
			if sp, ok := mx.FindByCanonical(obs.Canonical); ok {
				value = float64(sp.Count())
			}
			appendScalar(s, value, m.memory)
		case KindBondCount:
			value := 0.0
			for _, sp := range mx.Species() {
				value += float64(sp.BondTypeCount(obs.BondType) * sp.Count())
			}
			appendScalar(s, value, m.memory)
		case KindFreeSiteCount:
			if h, ok := mx.SiteHeap(obs.SiteType); ok {
				appendScalar(s, h.Root(), m.memory)
			} else {
				appendScalar(s, 0, m.memory)
			}
		case KindSizeDistribution:
			width := obs.SizeMax - obs.SizeMin + 1
			bin := make([]float64, width)
			for _, sp := range mx.Species() {
				sz := sp.Size()
				if sz >= obs.SizeMin && sz <= obs.SizeMax {
					bin[sz-obs.SizeMin] += float64(sp.Count())
				}
			}
			s.Bins = append(s.Bins, bin)
			if m.memory > 0 && len(s.Bins) > m.memory {
				s.Bins = s.Bins[1:]
			}
		}
	}
}

func appendScalar(s *Series, v float64, memory int) {
	s.Points = append(s.Points, v)
	if memory > 0 && len(s.Points) > memory {
		s.Points = s.Points[1:]
	}
}

// Stamps returns the sample timeline (simulation time or event count at each
// sampled index), in sample order.
func (m *Monitor) Stamps() []float64 { return m.stamps }

// TopSizes returns the sizes of the n largest complexes currently present in
// mx, one entry per distinct molecule instance position (a size-k species
// with count>1 still contributes one entry per occupied heap leaf, mirroring
// how an individual complex's size is reported regardless of its population).
func TopSizes(mx *mixture.Mixture, n int) []int {
	species := append([]*molecule.Molecule(nil), mx.Species()...)
	sort.Slice(species, func(i, j int) bool { return species[i].Size() > species[j].Size() })
	if n > len(species) {
		n = len(species)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = species[i].Size()
	}
	return out
}
