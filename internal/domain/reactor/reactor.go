// Package reactor implements the channel-level reaction execution step (spec
// §4.5): given a species, the port(s) a selected reaction acts on, and (for
// the bimolecular channel) a second species/port, it performs the structural
// mutation and drives the Mixture's propensity-maintenance pipeline around
// it in the mandated order. The Simulator decides *which* reaction fires;
// the Reactor decides *how* the mixture changes as a result.
package reactor

import (
	"github.com/sitesim/reactor/internal/domain/mixture"
	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/pkg/errors"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// Reactor holds the run-constant collaborators every channel needs: the
// signature (for building fresh monomers on inflow) and the reactivity
// context (kinetics + canonicalizer) every structural mutation refreshes
// against.
type Reactor struct {
	sig *signature.Signature
	ctx molecule.ReactivityContext
}

// New returns a Reactor bound to a signature and reactivity context.
func New(sig *signature.Signature, ctx molecule.ReactivityContext) *Reactor {
	return &Reactor{sig: sig, ctx: ctx}
}

// mutationTarget applies the clone-vs-mutate-in-place policy: a species with
// more than one instance must be cloned before its
// structure is touched, since the shared Molecule value still represents
// every other instance; a species down to its last instance may be mutated
// directly, since nothing else aliases it. In both cases the caller must
// still remove the species' old registration from the mixture (via
// ConsumeSpecies) before mutating, since the mutation changes canonical form.
func mutationTarget(species *molecule.Molecule) *molecule.Molecule {
	if species.Count() > 1 {
		return species.Clone()
	}
	return species
}

// Bind executes the unimolecular-binding (ub) channel: forms a bond between
// two already-free ports within the same molecule instance of species.
func (r *Reactor) Bind(mx *mixture.Mixture, species *molecule.Molecule, p1, p2 chem.Port) (*molecule.Molecule, error) {
	working := mutationTarget(species)
	mx.ConsumeSpecies(species, 1)

	if err := working.FormBondIntra(r.ctx, p1, p2); err != nil {
		return nil, err
	}

	result := mx.UpdateMixture(working, 1)
	mx.UpdateOverallActivities()
	return result, nil
}

// Dissociate executes the bond-dissociation (bd) channel: breaks the bond
// between p1 and p2. If that disconnects the graph, two new species are
// registered and both are returned; otherwise the second return is nil.
func (r *Reactor) Dissociate(mx *mixture.Mixture, species *molecule.Molecule, p1, p2 chem.Port) (*molecule.Molecule, *molecule.Molecule, error) {
	working := mutationTarget(species)
	mx.ConsumeSpecies(species, 1)

	frag1, frag2, err := working.Dissociate(r.ctx, p1, p2)
	if err != nil {
		return nil, nil, err
	}

	result1 := mx.UpdateMixture(frag1, 1)
	var result2 *molecule.Molecule
	if frag2 != nil {
		result2 = mx.UpdateMixture(frag2, 1)
	}
	mx.UpdateOverallActivities()
	return result1, result2, nil
}

// Merge executes the bimolecular-binding (bb) channel: consumes one instance
// of speciesA and one instance of speciesB (which may be the same species,
// provided its count is at least 2 — the Simulator's instance-selection
// logic is responsible for never drawing the same physical instance twice)
// and grafts them into a single new species.
func (r *Reactor) Merge(mx *mixture.Mixture, speciesA *molecule.Molecule, portA chem.Port, speciesB *molecule.Molecule, portB chem.Port) (*molecule.Molecule, error) {
	workingA := mutationTarget(speciesA)
	mx.ConsumeSpecies(speciesA, 1)

	// speciesB's count must be read only after consuming speciesA's instance:
	// when speciesA == speciesB, the ConsumeSpecies call above already
	// reflects the first of the two instances being drawn out.
	workingB := mutationTarget(speciesB)
	mx.ConsumeSpecies(speciesB, 1)

	if err := workingA.Graft(r.ctx, workingB, portA, portB); err != nil {
		return nil, err
	}

	result := mx.UpdateMixture(workingA, 1)
	mx.UpdateOverallActivities()
	return result, nil
}

// Inflow executes the zeroth-order inflow channel: introduces one fresh
// monomer of the given agent type.
func (r *Reactor) Inflow(mx *mixture.Mixture, agentType chem.AgentType) *molecule.Molecule {
	m := molecule.NewMonomer(r.sig, agentType)
	m.Refresh(r.ctx)
	result := mx.UpdateMixture(m, 1)
	mx.UpdateOverallActivities()
	return result
}

// Outflow executes the first-order outflow channel: removes one instance of
// the size-1 species of the given agent type.
func (r *Reactor) Outflow(mx *mixture.Mixture, agentType chem.AgentType) error {
	species, ok := mx.AtomSpecies(agentType)
	if !ok {
		return errors.Invariant(errors.CodeInvariantViolation, "outflow: no atom species present for agent type "+string(agentType))
	}
	mx.ConsumeSpecies(species, 1)
	mx.UpdateOverallActivities()
	return nil
}
