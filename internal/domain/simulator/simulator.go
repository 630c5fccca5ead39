// Package simulator implements the continuous-time Markov chain driver
// itself: advanceTime draws the exponential holding time from
// the mixture's current total activity, selectReaction partitions that
// activity into five channel bands and then, within the winning band, draws
// a bond type or agent type stratum and a concrete species/port instance,
// and executeReaction dispatches the result to the Reactor and the
// Mixture's propensity-maintenance pipeline. Every draw after the top-level
// band split is itself uniform over a sub-interval of the same kind the
// heaps already expose, following the Gillespie direct-method
// decomposition used throughout the reference driver loop this package is
// grounded on.
package simulator

import (
	"math"
	"math/rand/v2"

	"github.com/sitesim/reactor/internal/domain/mixture"
	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/internal/domain/reactor"
	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/pkg/errors"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// Channel identifies which of the five reaction channels an Event belongs to.
type Channel int

const (
	ChannelUnimolecularBinding Channel = iota
	ChannelBondDissociation
	ChannelBimolecularBinding
	ChannelInflow
	ChannelOutflow
)

// Event is a fully resolved reaction: which channel fired, and the concrete
// species/ports (or agent type, for inflow/outflow) it fired on. Returned by
// SelectReaction and consumed by ExecuteReaction.
type Event struct {
	Channel   Channel
	BondType  chem.BondType
	AgentType chem.AgentType

	SpeciesA *molecule.Molecule
	PortA    chem.Port

	SpeciesB *molecule.Molecule
	PortB    chem.Port
}

// Simulator drives one mixture through a sequence of CTMC steps. Its PRNG is
// math/rand/v2's PCG generator, seeded explicitly at construction so that a
// run seeded identically reproduces bit-for-bit.
type Simulator struct {
	sig *signature.Signature
	mx  *mixture.Mixture
	rx  *reactor.Reactor
	rng *rand.Rand

	simTime    float64
	eventCount uint64
}

// New returns a Simulator over an already-populated mixture, seeded with a
// two-word PCG seed.
func New(sig *signature.Signature, mx *mixture.Mixture, rx *reactor.Reactor, seed1, seed2 uint64) *Simulator {
	return &Simulator{
		sig: sig,
		mx:  mx,
		rx:  rx,
		rng: rand.New(rand.NewPCG(seed1, seed2)),
	}
}

// SimTime returns the simulation clock's current value.
func (s *Simulator) SimTime() float64 { return s.simTime }

// EventCount returns the number of reactions executed so far.
func (s *Simulator) EventCount() uint64 { return s.eventCount }

// Mixture exposes the driven mixture, e.g. for observable evaluation between steps.
func (s *Simulator) Mixture() *mixture.Mixture { return s.mx }

// AdvanceTime draws the exponential holding time dt = -ln(U)/totalActivity
// and adds it to the simulation clock, returning dt. Returns a
// CodeNoChannelSelectable error if the mixture has gone fully inert.
func (s *Simulator) AdvanceTime() (float64, error) {
	total := s.mx.TotalActivity()
	if total <= 0 {
		return 0, errors.Invariant(errors.CodeNoChannelSelectable, "advanceTime: total activity is non-positive")
	}
	u := s.rng.Float64()
	for u == 0 {
		u = s.rng.Float64()
	}
	dt := -math.Log(u) / total
	s.simTime += dt
	return dt, nil
}

// SelectReaction draws one fully resolved Event, proportional to its
// contribution to the mixture's total activity. The top-level draw splits
// [0, totalActivity) into five bands in the fixed order unimolecular
// binding, bond dissociation, bimolecular binding, inflow, outflow; within
// whichever band wins, a second draw descends into bond-type or agent-type
// strata in the signature's fixed declaration order, and a final draw picks
// the concrete species and port(s).
func (s *Simulator) SelectReaction() (Event, error) {
	total := s.mx.TotalActivity()
	if total <= 0 {
		return Event{}, errors.Invariant(errors.CodeNoChannelSelectable, "selectReaction: total activity is non-positive")
	}
	rv := s.rng.Float64() * total

	ub := s.mx.UnimolecularBinding()
	bd := s.mx.BondDissociation()
	bb := s.mx.BimolecularBinding()
	in := s.mx.TotalInflow()

	switch {
	case rv < ub:
		return s.selectUnimolecular(rv)
	case rv < ub+bd:
		return s.selectDissociation(rv - ub)
	case rv < ub+bd+bb:
		return s.selectBimolecular(rv - ub - bd)
	case rv < ub+bd+bb+in:
		return s.selectInflow(rv - ub - bd - bb)
	default:
		return s.selectOutflow(rv - ub - bd - bb - in)
	}
}

// ExecuteReaction dispatches a resolved Event to the Reactor, which performs
// the structural mutation and drives the Mixture's propensity-maintenance
// pipeline.
func (s *Simulator) ExecuteReaction(ev Event) error {
	switch ev.Channel {
	case ChannelUnimolecularBinding:
		_, err := s.rx.Bind(s.mx, ev.SpeciesA, ev.PortA, ev.PortB)
		return err
	case ChannelBondDissociation:
		_, _, err := s.rx.Dissociate(s.mx, ev.SpeciesA, ev.PortA, ev.PortB)
		return err
	case ChannelBimolecularBinding:
		_, err := s.rx.Merge(s.mx, ev.SpeciesA, ev.PortA, ev.SpeciesB, ev.PortB)
		return err
	case ChannelInflow:
		s.rx.Inflow(s.mx, ev.AgentType)
		return nil
	case ChannelOutflow:
		return s.rx.Outflow(s.mx, ev.AgentType)
	default:
		return errors.Invariant(errors.CodeInvariantViolation, "executeReaction: unknown channel")
	}
}

// Step runs one complete CTMC iteration: advance the clock, select a
// reaction, execute it.
func (s *Simulator) Step() error {
	if _, err := s.AdvanceTime(); err != nil {
		return err
	}
	ev, err := s.SelectReaction()
	if err != nil {
		return err
	}
	if err := s.ExecuteReaction(ev); err != nil {
		return err
	}
	s.eventCount++
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Per-channel stratum and instance selection
// ─────────────────────────────────────────────────────────────────────────────

func (s *Simulator) selectUnimolecular(rv float64) (Event, error) {
	for _, bt := range s.sig.BondTypes() {
		h, ok := s.mx.BindingHeap(bt)
		if !ok {
			continue
		}
		root := h.Root()
		if rv < root {
			idx, err := h.Draw(rv)
			if err != nil {
				return Event{}, err
			}
			species := s.mx.SpeciesAt(idx)
			p1, p2, err := s.pickIntraPair(species, bt)
			if err != nil {
				return Event{}, err
			}
			return Event{Channel: ChannelUnimolecularBinding, BondType: bt, SpeciesA: species, PortA: p1, PortB: p2}, nil
		}
		rv -= root
	}
	return Event{}, errors.Invariant(errors.CodeNoChannelSelectable, "selectReaction: unimolecular-binding band exhausted without a match")
}

// pickIntraPair draws the two free ports a unimolecular-binding event acts
// on. For a symmetric bond type (st1 == st2) the two ports come from the
// same free-site list and must be distinct positions; for an asymmetric
// bond type they come from two different lists and must not share an agent
// (the self-binding exclusion already baked into Molecule.Binding).
func (s *Simulator) pickIntraPair(species *molecule.Molecule, bt chem.BondType) (chem.Port, chem.Port, error) {
	st1, st2 := bt.First, bt.Second
	if st1 == st2 {
		list := species.FreeSiteList(st1)
		if len(list) < 2 {
			return chem.Port{}, chem.Port{}, errors.Invariant(errors.CodeInvariantViolation, "pickIntraPair: fewer than two free sites for a symmetric bond type")
		}
		i := s.rng.IntN(len(list))
		j := s.rng.IntN(len(list) - 1)
		if j >= i {
			j++
		}
		return list[i], list[j], nil
	}

	list1 := species.FreeSiteList(st1)
	list2 := species.FreeSiteList(st2)
	if len(list1) == 0 || len(list2) == 0 {
		return chem.Port{}, chem.Port{}, errors.Invariant(errors.CodeInvariantViolation, "pickIntraPair: no free site of the required type")
	}
	for attempt := 0; attempt < 64; attempt++ {
		p1 := list1[s.rng.IntN(len(list1))]
		p2 := list2[s.rng.IntN(len(list2))]
		if p1.Agent != p2.Agent {
			return p1, p2, nil
		}
	}
	for _, p1 := range list1 {
		for _, p2 := range list2 {
			if p1.Agent != p2.Agent {
				return p1, p2, nil
			}
		}
	}
	return chem.Port{}, chem.Port{}, errors.Invariant(errors.CodeInvariantViolation, "pickIntraPair: no same-agent-excluded pair available")
}

func (s *Simulator) selectDissociation(rv float64) (Event, error) {
	for _, bt := range s.sig.BondTypes() {
		h, ok := s.mx.UnbindingHeap(bt)
		if !ok {
			continue
		}
		root := h.Root()
		if rv < root {
			idx, err := h.Draw(rv)
			if err != nil {
				return Event{}, err
			}
			species := s.mx.SpeciesAt(idx)
			list := species.BondList(bt)
			if len(list) == 0 {
				return Event{}, errors.Invariant(errors.CodeInvariantViolation, "selectDissociation: drawn species carries no bond of this type")
			}
			b := list[s.rng.IntN(len(list))]
			return Event{Channel: ChannelBondDissociation, BondType: bt, SpeciesA: species, PortA: b.P1, PortB: b.P2}, nil
		}
		rv -= root
	}
	return Event{}, errors.Invariant(errors.CodeNoChannelSelectable, "selectReaction: bond-dissociation band exhausted without a match")
}

func (s *Simulator) selectBimolecular(rv float64) (Event, error) {
	for _, bt := range s.sig.BondTypes() {
		act := s.mx.BiActivity(bt)
		if rv < act {
			return s.pickBimolecularInstance(bt)
		}
		rv -= act
	}
	return Event{}, errors.Invariant(errors.CodeNoChannelSelectable, "selectReaction: bimolecular-binding band exhausted without a match")
}

// pickBimolecularInstance draws the two molecule instances a bimolecular-
// binding event joins. The first instance is drawn straight from the st1
// site heap. The second must come from a different physical instance, so
// before drawing from the st2 site heap its leaf for species1 is
// temporarily lowered by exactly one instance's worth of free st2 sites,
// drawn against, then restored — a temporary-modify-then-restore trick
// used instead of rebuilding the heap.
func (s *Simulator) pickBimolecularInstance(bt chem.BondType) (Event, error) {
	st1, st2 := bt.First, bt.Second

	h1, ok := s.mx.SiteHeap(st1)
	if !ok {
		return Event{}, errors.Invariant(errors.CodeInvariantViolation, "pickBimolecularInstance: no site heap for "+st1.String())
	}
	idx1, err := h1.Draw(s.rng.Float64() * h1.Root())
	if err != nil {
		return Event{}, err
	}
	species1 := s.mx.SpeciesAt(idx1)
	p1, err := s.pickFreePort(species1, st1, chem.Port{})
	if err != nil {
		return Event{}, err
	}

	h2, ok := s.mx.SiteHeap(st2)
	if !ok {
		return Event{}, errors.Invariant(errors.CodeInvariantViolation, "pickBimolecularInstance: no site heap for "+st2.String())
	}
	original := h2.Leaf(idx1)
	excluded := float64(species1.FreeSite(st2)) * float64(species1.Count()-1)
	h2.Modify(idx1, excluded)
	idx2, err := h2.Draw(s.rng.Float64() * h2.Root())
	h2.Modify(idx1, original)
	if err != nil {
		return Event{}, err
	}
	species2 := s.mx.SpeciesAt(idx2)
	p2, err := s.pickFreePort(species2, st2, p1)
	if err != nil {
		return Event{}, err
	}

	return Event{Channel: ChannelBimolecularBinding, BondType: bt, SpeciesA: species1, PortA: p1, SpeciesB: species2, PortB: p2}, nil
}

// pickFreePort draws a uniformly random free port of type st within
// species, retrying a bounded number of times to avoid returning avoid (the
// zero Port never matches a real one, so passing it makes avoidance a no-op).
func (s *Simulator) pickFreePort(species *molecule.Molecule, st chem.SiteType, avoid chem.Port) (chem.Port, error) {
	list := species.FreeSiteList(st)
	if len(list) == 0 {
		return chem.Port{}, errors.Invariant(errors.CodeInvariantViolation, "pickFreePort: no free site of type "+st.String())
	}
	if len(list) == 1 {
		return list[0], nil
	}
	for attempt := 0; attempt < 8; attempt++ {
		p := list[s.rng.IntN(len(list))]
		if p != avoid {
			return p, nil
		}
	}
	for _, p := range list {
		if p != avoid {
			return p, nil
		}
	}
	return chem.Port{}, errors.Invariant(errors.CodeInvariantViolation, "pickFreePort: only the excluded port is free")
}

func (s *Simulator) selectInflow(rv float64) (Event, error) {
	for _, at := range s.sig.AgentTypes() {
		rate, ok := s.mx.InflowRate(at)
		if !ok {
			continue
		}
		if rv < rate {
			return Event{Channel: ChannelInflow, AgentType: at}, nil
		}
		rv -= rate
	}
	return Event{}, errors.Invariant(errors.CodeNoChannelSelectable, "selectReaction: inflow band exhausted without a match")
}

func (s *Simulator) selectOutflow(rv float64) (Event, error) {
	for _, at := range s.sig.AgentTypes() {
		rate, ok := s.mx.OutflowRate(at)
		if !ok {
			continue
		}
		species, ok2 := s.mx.AtomSpecies(at)
		if !ok2 {
			continue
		}
		act := rate * float64(species.Count())
		if rv < act {
			return Event{Channel: ChannelOutflow, AgentType: at}, nil
		}
		rv -= act
	}
	return Event{}, errors.Invariant(errors.CodeNoChannelSelectable, "selectReaction: outflow band exhausted without a match")
}
