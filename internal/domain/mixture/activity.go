package mixture

import (
	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// ─────────────────────────────────────────────────────────────────────────────
// The propensity-maintenance pipeline: every reaction execution
// must call these in exactly this order around its structural mutation:
//
//	NegativeUpdate(reactant)      // while heaps still hold the OLD state
//	ChangeCount(reactant, -1)     // or ConsumeSpecies, which does both
//	< Reactor mutates/clones the molecule(s) >
//	UpdateMixture(product, +1)    // registers/merges + ChangeCount(+1) + PositiveUpdate
//	UpdateOverallActivities()     // recomputes the five Simulator-facing totals
//
// Reordering this breaks the bimolecular aggregate: bimolecularContribution
// reads totalFreeSites[st] straight off a site heap's root, so it must run
// while that root still reflects whichever side of the mutation is current.
// ─────────────────────────────────────────────────────────────────────────────

// NegativeUpdate subtracts m's current contribution to the bimolecular-
// binding aggregate for every bond type, before anything about m changes.
func (mx *Mixture) NegativeUpdate(m *molecule.Molecule) {
	for _, bt := range mx.sig.BondTypes() {
		mx.biActivity[bt] -= mx.bimolecularContribution(bt, m)
	}
}

// PositiveUpdate adds m's current contribution to the bimolecular-binding
// aggregate for every bond type, after m's free-site counts and count have
// reached their post-mutation values.
func (mx *Mixture) PositiveUpdate(m *molecule.Molecule) {
	for _, bt := range mx.sig.BondTypes() {
		mx.biActivity[bt] += mx.bimolecularContribution(bt, m)
	}
}

// bimolecularContribution computes one species' contribution to the
// aggregate bimolecular-binding activity for bond type bt = (st1, st2):
//
//	a(m) = freeSite[st1](m)*freeSite[st2](m)*(count(m)-1)
//	     + freeSite[st1](m)*(totalFreeSites[st2] - freeSite[st2](m)*count(m))
//
// plus the symmetric term with st1 and st2 swapped when st1 != st2. The
// first term counts pairings between two different instances of m itself;
// the second counts pairings between an instance of m and an instance of
// any other species, using the site heap's root as totalFreeSites[st2] (the
// heap already carries every species' contribution, m's included, which is
// why it is subtracted back out via freeSite[st2](m)*count(m)).
func (mx *Mixture) bimolecularContribution(bt chem.BondType, m *molecule.Molecule) float64 {
	st1, st2 := bt.First, bt.Second
	fs1 := float64(m.FreeSite(st1))
	fs2 := float64(m.FreeSite(st2))
	if fs1 == 0 && fs2 == 0 {
		return 0
	}
	cnt := float64(m.Count())

	a := fs1*fs2*(cnt-1) + fs1*(mx.siteHeaps[st2].Root()-fs2*cnt)
	if st1 != st2 {
		a += fs2*fs1*(cnt-1) + fs2*(mx.siteHeaps[st1].Root()-fs1*cnt)
	}
	return a * mx.ctx.Kinetics.KOnInter
}

// ConsumeSpecies runs the negative half of the pipeline for a reactant being
// removed delta instances at a time: NegativeUpdate while the heaps still
// hold m's old contribution, then ChangeCount(-delta), removing the species
// outright once its count reaches zero.
func (mx *Mixture) ConsumeSpecies(m *molecule.Molecule, delta int) {
	mx.NegativeUpdate(m)
	mx.ChangeCount(m, -delta)
	if m.Count() == 0 {
		mx.RemoveSpecies(m)
	}
}

// UpdateMixture runs the positive half of the pipeline for a produced
// molecule: it consolidates m into an already-present species with the same
// canonical form if one exists (incrementing that species' count instead of
// registering m as a new leaf), or registers m as a brand-new species
// otherwise, then runs ChangeCount(+delta) and PositiveUpdate. It returns
// the species of record — m itself, or whichever existing species m was
// merged into — which is what the Reactor must track as the reaction's
// actual product going forward.
func (mx *Mixture) UpdateMixture(m *molecule.Molecule, delta int) *molecule.Molecule {
	if existing, ok := mx.canonicalIdx[m.Canonical()]; ok && existing != m {
		mx.ChangeCount(existing, delta)
		mx.PositiveUpdate(existing)
		return existing
	}
	if _, already := mx.index[m]; already {
		mx.ChangeCount(m, delta)
		mx.PositiveUpdate(m)
		return m
	}
	mx.AddSpecies(m, delta)
	mx.PositiveUpdate(m)
	return m
}

// UpdateOverallActivities recomputes the five Simulator-facing totals from
// the current heaps and aggregate maps. This is the final step of every
// reaction's propensity-maintenance pipeline and must run after every
// NegativeUpdate/ChangeCount/PositiveUpdate sequence has settled.
func (mx *Mixture) UpdateOverallActivities() {
	mx.unimolecularBinding = 0
	mx.bondDissociation = 0
	for _, bt := range mx.sig.BondTypes() {
		mx.unimolecularBinding += mx.bindingHeaps[bt].Root()
		mx.bondDissociation += mx.unbindingHeaps[bt].Root()
	}

	mx.bimolecularBinding = 0
	for _, bt := range mx.sig.BondTypes() {
		mx.bimolecularBinding += mx.biActivity[bt]
	}

	mx.totalInflow = 0
	for _, at := range mx.sig.AgentTypes() {
		mx.totalInflow += mx.inflowRate[at]
	}

	mx.totalOutflow = 0
	for _, at := range mx.sig.AgentTypes() {
		rate, ok := mx.outflowRate[at]
		if !ok {
			continue
		}
		if sp, ok := mx.atomCanonical[at]; ok {
			mx.totalOutflow += rate * float64(sp.Count())
		}
	}

	mx.totalActivity = mx.unimolecularBinding + mx.bondDissociation +
		mx.bimolecularBinding + mx.totalInflow + mx.totalOutflow
}

// BiActivity returns the current bimolecular-binding aggregate for a single
// bond type, the per-stratum value the Simulator's bb band iterates over
// during instance selection.
func (mx *Mixture) BiActivity(bt chem.BondType) float64 { return mx.biActivity[bt] }

// UnimolecularBinding, BondDissociation, BimolecularBinding, TotalInflow,
// TotalOutflow and TotalActivity expose the five totals UpdateOverallActivities
// maintains; the Simulator's advanceTime and selectReaction read these
// directly rather than recomputing them.
func (mx *Mixture) UnimolecularBinding() float64 { return mx.unimolecularBinding }
func (mx *Mixture) BondDissociation() float64    { return mx.bondDissociation }
func (mx *Mixture) BimolecularBinding() float64   { return mx.bimolecularBinding }
func (mx *Mixture) TotalInflow() float64          { return mx.totalInflow }
func (mx *Mixture) TotalOutflow() float64         { return mx.totalOutflow }
func (mx *Mixture) TotalActivity() float64        { return mx.totalActivity }
