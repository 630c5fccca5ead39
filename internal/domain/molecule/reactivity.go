package molecule

import (
	"sort"

	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/pkg/errors"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// ReactivityContext bundles the two run-constant collaborators every
// structural mutation needs: the derived rate constants (to recompute
// binding/unbinding afterward) and the canonical-form oracle (to refresh
// Canonical afterward). Both are read-only and shared across every molecule
// in a run.
type ReactivityContext struct {
	Kinetics      *signature.Kinetics
	Canonicalizer Canonicalizer
}

// Refresh recomputes canonical form and internal reactivity from the current
// inventory. Structural mutations call this internally; callers that build
// a molecule by some other means (a fresh NewMonomer for the initial mixture
// or for inflow) must call it once before the molecule is registered with a
// Mixture.
func (m *Molecule) Refresh(ctx ReactivityContext) {
	m.refresh(ctx)
}

// refresh recomputes canonical form and internal reactivity after any
// structural edit, per the "Recompute internal reactivity" step named in
// every operation's contract.
func (m *Molecule) refresh(ctx ReactivityContext) {
	m.computeAgentSelfBinding()
	if ctx.Kinetics != nil {
		m.ComputeInternalReactivity(ctx.Kinetics)
	}
	if ctx.Canonicalizer != nil {
		m.canonical = ctx.Canonicalizer.Canonical(m)
	}
}

// computeAgentSelfBinding recomputes, for every asymmetric bond type whose
// two sides share an agent type, the count of agent instances with both
// sides simultaneously free — the exclusion term subtracted in
// ComputeInternalReactivity's inter-site binding formula.
func (m *Molecule) computeAgentSelfBinding() {
	next := make(map[chem.BondType]int)
	for _, bt := range m.sig.BondTypes() {
		if bt.First == bt.Second || bt.First.Agent != bt.Second.Agent {
			continue
		}
		count := 0
		for _, label := range m.agentOrder {
			a := m.agents[label]
			if a.Type != bt.First.Agent {
				continue
			}
			s1, ok1 := a.Interface[bt.First.Site]
			s2, ok2 := a.Interface[bt.Second.Site]
			if ok1 && ok2 && s1.Bond == nil && s2.Bond == nil {
				count++
			}
		}
		next[bt] = count
	}
	m.agentSelfBinding = next
}

// ComputeInternalReactivity recomputes binding[bt] and unbinding[bt] for
// every bond type from the current free-site and bond-type inventory.
// Callers that invoke this directly (as opposed to
// through a mutation's refresh step) must call computeAgentSelfBinding first.
func (m *Molecule) ComputeInternalReactivity(kin *signature.Kinetics) {
	for _, bt := range m.sig.BondTypes() {
		m.unbinding[bt] = float64(m.bondType[bt]) * kin.KOff(bt)

		st1, st2 := bt.First, bt.Second
		if st1 == st2 {
			n := float64(m.freeSite[st1])
			m.binding[bt] = 0.5 * n * (n - 1) * kin.KOnIntra
			continue
		}
		n1 := float64(m.freeSite[st1])
		n2 := float64(m.freeSite[st2])
		excl := float64(m.agentSelfBinding[bt])
		m.binding[bt] = (n1*n2 - excl) * kin.KOnIntra
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// FormBondIntra — bind two free ports already within this molecule
// ─────────────────────────────────────────────────────────────────────────────

// FormBondIntra installs a bond between two currently free ports of this
// molecule and refreshes its reactivity inventory. No connectivity check is
// needed: the molecule was already connected, and adding an edge cannot
// disconnect it.
func (m *Molecule) FormBondIntra(ctx ReactivityContext, p1, p2 chem.Port) error {
	if p1 == p2 {
		return errors.Invariant(errors.CodeInvariantViolation, "formBondIntra: identical ports")
	}
	a1, ok1 := m.agents[p1.Agent]
	a2, ok2 := m.agents[p2.Agent]
	if !ok1 || !ok2 {
		return errors.Invariant(errors.CodeInvariantViolation, "formBondIntra: port references unknown agent")
	}
	s1, ok1 := a1.Interface[p1.Site]
	s2, ok2 := a2.Interface[p2.Site]
	if !ok1 || !ok2 {
		return errors.Invariant(errors.CodeInvariantViolation, "formBondIntra: unknown site")
	}
	if s1.Bond != nil || s2.Bond != nil {
		return errors.Invariant(errors.CodeInvariantViolation, "formBondIntra: port already bound")
	}

	st1 := chem.SiteType{Agent: a1.Type, Site: p1.Site}
	st2 := chem.SiteType{Agent: a2.Type, Site: p2.Site}

	m.removeFreeSite(st1, p1)
	m.removeFreeSite(st2, p2)

	partner1 := p2
	partner2 := p1
	s1.Bond = &partner1
	s2.Bond = &partner2

	m.adjacency[p1.Agent] = append(m.adjacency[p1.Agent], p2.Agent)
	m.adjacency[p2.Agent] = append(m.adjacency[p2.Agent], p1.Agent)

	bt := chem.NewBondType(st1, st2)
	m.appendBond(bt, chem.NewBond(p1, p2))

	m.refresh(ctx)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Dissociate — break a bond, possibly causing fission
// ─────────────────────────────────────────────────────────────────────────────

// Dissociate removes the bond between p1 and p2. If the two ports' agents
// remain connected through some other path, the mutation happens in place
// and (m, nil, nil) is returned. If removing the bond disconnects the graph,
// two brand-new molecules are returned (and m itself is left in an
// inconsistent, to-be-discarded state — callers must not reuse m afterward).
func (m *Molecule) Dissociate(ctx ReactivityContext, p1, p2 chem.Port) (*Molecule, *Molecule, error) {
	b := chem.NewBond(p1, p2)
	if !m.HasBond(b) {
		return nil, nil, errors.Invariant(errors.CodeBondNotFound, "dissociate: no such bond")
	}

	a1 := m.agents[p1.Agent]
	a2 := m.agents[p2.Agent]
	st1 := chem.SiteType{Agent: a1.Type, Site: p1.Site}
	st2 := chem.SiteType{Agent: a2.Type, Site: p2.Site}
	bt := chem.NewBondType(st1, st2)

	a1.Interface[p1.Site].Bond = nil
	a2.Interface[p2.Site].Bond = nil
	m.removeBond(bt, b)
	m.appendFreeSite(st1, p1)
	m.appendFreeSite(st2, p2)
	m.adjacency[p1.Agent] = removeOneLabel(m.adjacency[p1.Agent], p2.Agent)
	m.adjacency[p2.Agent] = removeOneLabel(m.adjacency[p2.Agent], p1.Agent)

	comp1 := m.componentOf(p1.Agent)
	if containsLabel(comp1, p2.Agent) {
		m.refresh(ctx)
		return m, nil, nil
	}

	all := m.sortedAgentLabels()
	comp2 := subtractLabels(all, comp1)

	frag1 := m.extractFragment(comp1)
	frag2 := m.extractFragment(comp2)
	frag1.refresh(ctx)
	frag2.refresh(ctx)

	return frag1, frag2, nil
}

// componentOf returns, in ascending order, the labels reachable from start
// via the current adjacency (a plain BFS).
func (m *Molecule) componentOf(start chem.AgentLabel) []chem.AgentLabel {
	visited := map[chem.AgentLabel]bool{start: true}
	queue := []chem.AgentLabel{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range m.adjacency[cur] {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	out := make([]chem.AgentLabel, 0, len(visited))
	for l := range visited {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func containsLabel(labels []chem.AgentLabel, l chem.AgentLabel) bool {
	for _, x := range labels {
		if x == l {
			return true
		}
	}
	return false
}

func subtractLabels(all, remove []chem.AgentLabel) []chem.AgentLabel {
	excl := make(map[chem.AgentLabel]bool, len(remove))
	for _, l := range remove {
		excl[l] = true
	}
	var out []chem.AgentLabel
	for _, l := range all {
		if !excl[l] {
			out = append(out, l)
		}
	}
	return out
}

func removeOneLabel(list []chem.AgentLabel, v chem.AgentLabel) []chem.AgentLabel {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// extractFragment builds a brand-new, fully independent Molecule containing
// exactly the given agents, deep-copying their interfaces and rebuilding the
// free-site/bond-type inventories restricted to the subgraph. Agent labels
// are preserved from the source molecule: fission does not renumber, since
// labels only need to be unique within their own molecule and were already
// unique within the pre-fission one.
func (m *Molecule) extractFragment(labels []chem.AgentLabel) *Molecule {
	frag := newEmpty(m.sig)
	frag.agentOrder = append([]chem.AgentLabel(nil), labels...)

	var maxLabel chem.AgentLabel
	for _, l := range labels {
		orig := m.agents[l]
		iface := make(map[chem.SiteName]*SiteState, len(orig.Interface))
		for site, st := range orig.Interface {
			var bondCopy *chem.Port
			if st.Bond != nil {
				b := *st.Bond
				bondCopy = &b
			}
			iface[site] = &SiteState{State: st.State, Bond: bondCopy}
		}
		frag.agents[l] = &Agent{Type: orig.Type, Label: l, Interface: iface}
		frag.adjacency[l] = append([]chem.AgentLabel(nil), m.adjacency[l]...)
		frag.composition[orig.Type]++
		if l > maxLabel {
			maxLabel = l
		}
	}
	frag.labelCounter = maxLabel
	frag.size = len(labels)
	frag.count = 0

	for _, l := range labels {
		a := frag.agents[l]
		for site, st := range a.Interface {
			if st.Bond != nil {
				continue
			}
			frag.appendFreeSite(chem.SiteType{Agent: a.Type, Site: site}, chem.Port{Agent: l, Site: site})
		}
	}

	seen := make(map[chem.Bond]bool)
	for _, l := range labels {
		a := frag.agents[l]
		for site, st := range a.Interface {
			if st.Bond == nil {
				continue
			}
			p1 := chem.Port{Agent: l, Site: site}
			p2 := *st.Bond
			b := chem.NewBond(p1, p2)
			if seen[b] {
				continue
			}
			seen[b] = true
			partnerAgent := frag.agents[p2.Agent]
			st1 := chem.SiteType{Agent: a.Type, Site: site}
			st2 := chem.SiteType{Agent: partnerAgent.Type, Site: p2.Site}
			frag.appendBond(chem.NewBondType(st1, st2), b)
		}
	}

	return frag
}

// ─────────────────────────────────────────────────────────────────────────────
// Graft — merge another molecule's interior wholesale into this one
// ─────────────────────────────────────────────────────────────────────────────

// Graft merges other's entire interior into m, shifting other's agent labels
// by m's current labelCounter so the two label spaces cannot collide, then
// installs the crossing bond between selfPort (already in m's label space)
// and otherPort (given in other's original, pre-shift label space). Used
// only by the Reactor's inter-molecular binding channel; other is left
// untouched (Graft copies, it never consumes its argument).
func (m *Molecule) Graft(ctx ReactivityContext, other *Molecule, selfPort, otherPort chem.Port) error {
	shift := m.labelCounter
	shifted := other.CopyWithLabelShift(shift)

	m.agentOrder = append(m.agentOrder, shifted.agentOrder...)
	sort.Slice(m.agentOrder, func(i, j int) bool { return m.agentOrder[i] < m.agentOrder[j] })
	for _, l := range shifted.agentOrder {
		m.agents[l] = shifted.agents[l]
		m.adjacency[l] = shifted.adjacency[l]
	}
	for st, list := range shifted.freeSiteList {
		for _, p := range list {
			m.appendFreeSite(st, p)
		}
	}
	for bt, list := range shifted.bondList {
		for _, b := range list {
			m.appendBond(bt, b)
		}
	}
	for at, n := range shifted.composition {
		m.composition[at] += n
	}
	m.size += shifted.size
	m.labelCounter = shifted.labelCounter

	shiftedOtherPort := chem.Port{Agent: otherPort.Agent + shift, Site: otherPort.Site}
	return m.FormBondIntra(ctx, selfPort, shiftedOtherPort)
}

// ─────────────────────────────────────────────────────────────────────────────
// CopyWithLabelShift / Clone — the explicit mutate-in-place-versus-copy policy
// ─────────────────────────────────────────────────────────────────────────────

// CopyWithLabelShift deep-copies m into a structurally identical molecule
// whose agent labels are each offset by shift. Every port reference (bond
// partners, free-site list entries, bond-list entries) is rewritten
// consistently. Passing shift == 0 produces a plain clone sharing no state
// with m, the "clone" half of the explicit mutateInPlace-versus-clone policy
// the Reactor applies: callers that must not mutate a shared species in
// place call Clone (or CopyWithLabelShift(0)) first.
func (m *Molecule) CopyWithLabelShift(shift chem.AgentLabel) *Molecule {
	out := newEmpty(m.sig)
	out.labelCounter = m.labelCounter + shift
	out.size = m.size
	out.canonical = m.canonical
	for at, n := range m.composition {
		out.composition[at] = n
	}

	shiftPort := func(p chem.Port) chem.Port {
		return chem.Port{Agent: p.Agent + shift, Site: p.Site}
	}

	for _, l := range m.agentOrder {
		newLabel := l + shift
		orig := m.agents[l]
		iface := make(map[chem.SiteName]*SiteState, len(orig.Interface))
		for site, st := range orig.Interface {
			var bondCopy *chem.Port
			if st.Bond != nil {
				b := shiftPort(*st.Bond)
				bondCopy = &b
			}
			iface[site] = &SiteState{State: st.State, Bond: bondCopy}
		}
		out.agents[newLabel] = &Agent{Type: orig.Type, Label: newLabel, Interface: iface}
		out.agentOrder = append(out.agentOrder, newLabel)

		neigh := make([]chem.AgentLabel, len(m.adjacency[l]))
		for i, n := range m.adjacency[l] {
			neigh[i] = n + shift
		}
		out.adjacency[newLabel] = neigh
	}
	sort.Slice(out.agentOrder, func(i, j int) bool { return out.agentOrder[i] < out.agentOrder[j] })

	for st, list := range m.freeSiteList {
		for _, p := range list {
			out.appendFreeSite(st, shiftPort(p))
		}
	}
	for bt, list := range m.bondList {
		for _, b := range list {
			out.appendBond(bt, chem.NewBond(shiftPort(b.P1), shiftPort(b.P2)))
		}
	}
	for bt, v := range m.binding {
		out.binding[bt] = v
	}
	for bt, v := range m.unbinding {
		out.unbinding[bt] = v
	}
	for bt, v := range m.agentSelfBinding {
		out.agentSelfBinding[bt] = v
	}

	return out
}

// Clone returns a deep copy of m sharing no mutable state, preserving agent
// labels (shift 0). This is the explicit "clone" counterpart to mutating a
// molecule's receiver in place; the Reactor decides which applies based on
// the species' current Count: clone when count > 1, mutate in place when
// count == 1.
func (m *Molecule) Clone() *Molecule {
	return m.CopyWithLabelShift(0)
}
