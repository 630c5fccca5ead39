// Package mixture implements the Mixture aggregate: the full population of
// distinct species currently present in a simulation, together with the
// propensity heaps and aggregate activity totals the Simulator draws from
// every step. A Mixture owns no reaction chemistry of its
// own — Molecule computes its own per-instance binding/unbinding weights, and
// the Reactor decides how a reaction mutates a species — the Mixture's job is
// strictly bookkeeping: keep one propensity-heap leaf per species per channel
// in lockstep with the species list, and keep the aggregate totals the
// Simulator reads in sync with those heaps.
package mixture

import (
	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/internal/domain/propensity"
	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// Mixture holds every species currently present, indexed for O(1) lookup by
// pointer and by canonical form, plus one propensity heap per reaction
// channel that needs weighted species sampling.
type Mixture struct {
	sig *signature.Signature
	ctx molecule.ReactivityContext

	complexes     []*molecule.Molecule
	index         map[*molecule.Molecule]int
	canonicalIdx  map[string]*molecule.Molecule
	atomCanonical map[chem.AgentType]*molecule.Molecule

	// bindingHeaps/unbindingHeaps hold one heap per bond type for the
	// unimolecular-binding (ub) and bond-dissociation (bd) channels; leaf i
	// is complexes[i].Binding(bt)*complexes[i].Count() (resp. Unbinding).
	bindingHeaps   map[chem.BondType]*propensity.Heap
	unbindingHeaps map[chem.BondType]*propensity.Heap

	// siteHeaps holds one heap per site type that participates in some bond
	// type, used both to draw the first instance of a bimolecular-binding
	// event and to read totalFreeSites[st] (the heap's root) when computing
	// the bimolecular aggregate.
	siteHeaps map[chem.SiteType]*propensity.Heap

	// biActivity[bt] is the aggregate bimolecular-binding activity for bond
	// type bt, maintained incrementally by NegativeUpdate/PositiveUpdate
	// rather than derived from a heap root, since the formula is pairwise
	// across species rather than a simple per-species weight.
	biActivity map[chem.BondType]float64

	inflowRate  map[chem.AgentType]float64
	outflowRate map[chem.AgentType]float64

	unimolecularBinding float64
	bondDissociation    float64
	bimolecularBinding  float64
	totalInflow         float64
	totalOutflow        float64
	totalActivity       float64
}

// New returns an empty Mixture over sig, with one heap pre-allocated per
// bond type and per bond-participating site type. inflowRate/outflowRate
// give the per-atom-type zeroth/first-order rate constants for the inflow
// and outflow channels (these are run-configured, not derived from Kd);
// either map may be nil.
func New(sig *signature.Signature, ctx molecule.ReactivityContext, inflowRate, outflowRate map[chem.AgentType]float64) *Mixture {
	mx := &Mixture{
		sig:           sig,
		ctx:           ctx,
		index:         make(map[*molecule.Molecule]int),
		canonicalIdx:  make(map[string]*molecule.Molecule),
		atomCanonical: make(map[chem.AgentType]*molecule.Molecule),

		bindingHeaps:   make(map[chem.BondType]*propensity.Heap),
		unbindingHeaps: make(map[chem.BondType]*propensity.Heap),
		siteHeaps:      make(map[chem.SiteType]*propensity.Heap),

		biActivity: make(map[chem.BondType]float64),

		inflowRate:  cloneRateMap(inflowRate),
		outflowRate: cloneRateMap(outflowRate),
	}
	for _, bt := range sig.BondTypes() {
		mx.bindingHeaps[bt] = propensity.NewHeap(8)
		mx.unbindingHeaps[bt] = propensity.NewHeap(8)
		mx.biActivity[bt] = 0
	}
	for _, st := range sig.SiteTypes() {
		mx.siteHeaps[st] = propensity.NewHeap(8)
	}
	return mx
}

func cloneRateMap(in map[chem.AgentType]float64) map[chem.AgentType]float64 {
	out := make(map[chem.AgentType]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Signature returns the signature this mixture was built against.
func (mx *Mixture) Signature() *signature.Signature { return mx.sig }

// Context returns the reactivity context (kinetics + canonicalizer) every
// species registered with this mixture was refreshed against.
func (mx *Mixture) Context() molecule.ReactivityContext { return mx.ctx }

// Species returns every distinct species currently present, in their stable
// heap-leaf-index order. The returned slice must not be mutated.
func (mx *Mixture) Species() []*molecule.Molecule { return mx.complexes }

// SpeciesAt returns the species at heap-leaf index i.
func (mx *Mixture) SpeciesAt(i int) *molecule.Molecule { return mx.complexes[i] }

// IndexOf returns m's current heap-leaf index.
func (mx *Mixture) IndexOf(m *molecule.Molecule) (int, bool) {
	i, ok := mx.index[m]
	return i, ok
}

// FindByCanonical returns the species already present with the given
// canonical form, used to decide whether a freshly produced molecule
// consolidates into an existing species or becomes a new one.
func (mx *Mixture) FindByCanonical(canonical string) (*molecule.Molecule, bool) {
	m, ok := mx.canonicalIdx[canonical]
	return m, ok
}

// AtomSpecies returns the size-1 species of the given agent type, if any
// instance is currently present. The outflow channel resolves through this.
func (mx *Mixture) AtomSpecies(at chem.AgentType) (*molecule.Molecule, bool) {
	m, ok := mx.atomCanonical[at]
	return m, ok
}

// BindingHeap, UnbindingHeap, and SiteHeap expose the per-channel propensity
// heaps the Simulator draws species instances from during selectReaction.
func (mx *Mixture) BindingHeap(bt chem.BondType) (*propensity.Heap, bool) {
	h, ok := mx.bindingHeaps[bt]
	return h, ok
}

func (mx *Mixture) UnbindingHeap(bt chem.BondType) (*propensity.Heap, bool) {
	h, ok := mx.unbindingHeaps[bt]
	return h, ok
}

func (mx *Mixture) SiteHeap(st chem.SiteType) (*propensity.Heap, bool) {
	h, ok := mx.siteHeaps[st]
	return h, ok
}

// InflowRate and OutflowRate expose the configured per-atom-type rates.
func (mx *Mixture) InflowRate(at chem.AgentType) (float64, bool) {
	r, ok := mx.inflowRate[at]
	return r, ok
}

func (mx *Mixture) OutflowRate(at chem.AgentType) (float64, bool) {
	r, ok := mx.outflowRate[at]
	return r, ok
}

// InflowAgentTypes returns the agent types with a configured inflow rate, in
// no particular order.
func (mx *Mixture) InflowAgentTypes() []chem.AgentType {
	out := make([]chem.AgentType, 0, len(mx.inflowRate))
	for at := range mx.inflowRate {
		out = append(out, at)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Species-list maintenance — Add/Remove/ChangeCount keep every heap's leaf
// index in lockstep with mx.complexes, per the swap-with-last convention
// shared with Molecule's own free-site and bond lists.
// ─────────────────────────────────────────────────────────────────────────────

// AddSpecies registers a brand-new species with an initial population count,
// inserting one leaf into every channel heap. m must already have had
// Refresh called (its Canonical, Binding, Unbinding and FreeSite values must
// be current) and must not already be registered.
func (mx *Mixture) AddSpecies(m *molecule.Molecule, count int) {
	m.SetCount(count)
	idx := len(mx.complexes)
	mx.complexes = append(mx.complexes, m)
	mx.index[m] = idx
	mx.canonicalIdx[m.Canonical()] = m
	if m.Size() == 1 {
		for at := range m.Composition() {
			mx.atomCanonical[at] = m
		}
	}

	cnt := float64(count)
	for _, bt := range mx.sig.BondTypes() {
		mx.bindingHeaps[bt].Insert(m.Binding(bt) * cnt)
		mx.unbindingHeaps[bt].Insert(m.Unbinding(bt) * cnt)
	}
	for _, st := range mx.sig.SiteTypes() {
		mx.siteHeaps[st].Insert(float64(m.FreeSite(st)) * cnt)
	}
}

// SeedFromSignature populates mx with one monomer species per agent type
// declared with a non-nil, positive `@amount` in sig, mirroring the
// reference driver's startup behavior when no snapshot file is supplied. It
// is a no-op for agent types with no declared initial amount.
func SeedFromSignature(mx *Mixture, sig *signature.Signature, ctx molecule.ReactivityContext) {
	for _, at := range sig.AgentTypes() {
		amount, ok := sig.InitAmount(at)
		if !ok || amount == nil || *amount <= 0 {
			continue
		}
		m := molecule.NewMonomer(sig, at)
		m.Refresh(ctx)
		mx.AddSpecies(m, *amount)
	}
	mx.UpdateOverallActivities()
}

// RemoveSpecies deletes m from the species list and every channel heap via
// swap-with-last, re-pointing the index entry of whichever species used to
// occupy the last slot.
func (mx *Mixture) RemoveSpecies(m *molecule.Molecule) {
	idx, ok := mx.index[m]
	if !ok {
		return
	}
	last := len(mx.complexes) - 1
	lastSpecies := mx.complexes[last]

	for _, bt := range mx.sig.BondTypes() {
		mx.bindingHeaps[bt].Delete(idx)
		mx.unbindingHeaps[bt].Delete(idx)
	}
	for _, st := range mx.sig.SiteTypes() {
		mx.siteHeaps[st].Delete(idx)
	}

	mx.complexes[idx] = lastSpecies
	mx.complexes = mx.complexes[:last]
	if lastSpecies != m {
		mx.index[lastSpecies] = idx
	}
	delete(mx.index, m)

	if mx.canonicalIdx[m.Canonical()] == m {
		delete(mx.canonicalIdx, m.Canonical())
	}
	if m.Size() == 1 {
		for at := range m.Composition() {
			if mx.atomCanonical[at] == m {
				delete(mx.atomCanonical, at)
			}
		}
	}
}

// ChangeCount adjusts m's population by delta and resyncs every heap leaf
// that depends on count. It does not remove a species whose count reaches
// zero; callers decide that (see ConsumeSpecies).
func (mx *Mixture) ChangeCount(m *molecule.Molecule, delta int) {
	m.SetCount(m.Count() + delta)
	mx.syncHeaps(m)
}

func (mx *Mixture) syncHeaps(m *molecule.Molecule) {
	idx, ok := mx.index[m]
	if !ok {
		return
	}
	cnt := float64(m.Count())
	for _, bt := range mx.sig.BondTypes() {
		mx.bindingHeaps[bt].Modify(idx, m.Binding(bt)*cnt)
		mx.unbindingHeaps[bt].Modify(idx, m.Unbinding(bt)*cnt)
	}
	for _, st := range mx.sig.SiteTypes() {
		mx.siteHeaps[st].Modify(idx, float64(m.FreeSite(st))*cnt)
	}
}
