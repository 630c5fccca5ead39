// Package molecule implements the Molecule aggregate: a typed, labeled
// multigraph (a "complex") carrying its own local reactivity inventory and a
// canonical form. A Molecule never references another Molecule directly —
// every cross-molecule operation (graft) deep-copies the donor's interior
// first — so two Molecule values never alias shared mutable state.
package molecule

import (
	"sort"

	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/pkg/errors"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// Agent is one node of a Molecule: a typed, labeled interface of sites, each
// either free or bound to a specific port elsewhere in the same molecule.
type Agent struct {
	Type  chem.AgentType
	Label chem.AgentLabel

	// Interface maps each of the agent type's declared sites to its current
	// state and bond partner. A nil Bond pointer means the site is free.
	Interface map[chem.SiteName]*SiteState
}

// SiteState is the mutable per-site record held in an Agent's Interface.
type SiteState struct {
	State chem.StateName
	Bond  *chem.Port // nil when free
}

// Degree returns the agent's bonded-site count.
func (a *Agent) Degree() int {
	n := 0
	for _, s := range a.Interface {
		if s.Bond != nil {
			n++
		}
	}
	return n
}

// Molecule is the aggregate root for one connected site-graph species. Its
// zero value is not usable; construct via NewMonomer or the
// reactivity operations in reactivity.go.
type Molecule struct {
	sig *signature.Signature

	agents     map[chem.AgentLabel]*Agent
	agentOrder []chem.AgentLabel // stable iteration order, by ascending label
	adjacency  map[chem.AgentLabel][]chem.AgentLabel

	bondSet map[chem.Bond]struct{}

	freeSite        map[chem.SiteType]int
	freeSiteList    map[chem.SiteType][]chem.Port
	freeSiteListIdx map[chem.SiteType]map[chem.Port]int

	bondType    map[chem.BondType]int
	bondList    map[chem.BondType][]chem.Bond
	bondListIdx map[chem.BondType]map[chem.Bond]int

	// agentSelfBinding[bt] counts ordered pairs (alpha,beta) of agents within
	// this molecule whose sites both satisfy bt and are both free, restricted
	// to pairs where the two sites live on the *same* agent.
	agentSelfBinding map[chem.BondType]int

	binding   map[chem.BondType]float64
	unbinding map[chem.BondType]float64

	size         int
	composition  map[chem.AgentType]int
	count        int
	canonical    string
	labelCounter chem.AgentLabel
}

// Signature returns the signature this molecule was built against.
func (m *Molecule) Signature() *signature.Signature { return m.sig }

// Count returns the current population of this species within its mixture.
func (m *Molecule) Count() int { return m.count }

// SetCount sets the population directly. Callers outside the mixture package
// should prefer Mixture.ChangeCount, which also keeps the heaps in sync.
func (m *Molecule) SetCount(n int) { m.count = n }

// Size returns the agent count (the molecule's connected-component order).
func (m *Molecule) Size() int { return m.size }

// Canonical returns the canonical-form string computed for this molecule's
// current structure (empty until Refresh is called).
func (m *Molecule) Canonical() string { return m.canonical }

// LabelCounter returns the highest agent label ever assigned within this
// molecule (labels are never reused, even across dissociation and fission).
func (m *Molecule) LabelCounter() chem.AgentLabel { return m.labelCounter }

// Composition returns a copy of the agent-type multiset.
func (m *Molecule) Composition() map[chem.AgentType]int {
	out := make(map[chem.AgentType]int, len(m.composition))
	for k, v := range m.composition {
		out[k] = v
	}
	return out
}

// Agents returns the agents in stable label order.
func (m *Molecule) Agents() []*Agent {
	out := make([]*Agent, 0, len(m.agentOrder))
	for _, l := range m.agentOrder {
		out = append(out, m.agents[l])
	}
	return out
}

// Agent returns the agent with the given label, or nil if absent.
func (m *Molecule) Agent(label chem.AgentLabel) *Agent { return m.agents[label] }

// Adjacency returns the neighbor labels of an agent, derived from its interface.
func (m *Molecule) Adjacency(label chem.AgentLabel) []chem.AgentLabel {
	neigh := m.adjacency[label]
	out := make([]chem.AgentLabel, len(neigh))
	copy(out, neigh)
	return out
}

// FreeSite returns the free-site count for a site type.
func (m *Molecule) FreeSite(st chem.SiteType) int { return m.freeSite[st] }

// FreeSiteList returns the free ports of a given site type, in list order.
// The returned slice must not be mutated by callers; use the reactivity
// operations to add or remove ports.
func (m *Molecule) FreeSiteList(st chem.SiteType) []chem.Port {
	return m.freeSiteList[st]
}

// BondTypeCount returns the number of bonds of a given bond type.
func (m *Molecule) BondTypeCount(bt chem.BondType) int { return m.bondType[bt] }

// BondList returns the bonds of a given bond type, in list order.
func (m *Molecule) BondList(bt chem.BondType) []chem.Bond {
	return m.bondList[bt]
}

// AgentSelfBinding returns the self-binding exclusion term for a bond type;
// zero for any bt where First == Second, since that case uses the
// symmetry-factor formula instead.
func (m *Molecule) AgentSelfBinding(bt chem.BondType) int { return m.agentSelfBinding[bt] }

// Binding returns this molecule's per-instance intra-molecular binding
// propensity contribution for bond type bt, as last computed by
// ComputeInternalReactivity.
func (m *Molecule) Binding(bt chem.BondType) float64 { return m.binding[bt] }

// Unbinding returns this molecule's per-instance dissociation propensity
// contribution for bond type bt.
func (m *Molecule) Unbinding(bt chem.BondType) float64 { return m.unbinding[bt] }

// Bonds returns every bond in the molecule, in no particular order.
func (m *Molecule) Bonds() []chem.Bond {
	out := make([]chem.Bond, 0, len(m.bondSet))
	for b := range m.bondSet {
		out = append(out, b)
	}
	return out
}

// HasBond reports whether b exists in this molecule.
func (m *Molecule) HasBond(b chem.Bond) bool {
	_, ok := m.bondSet[b]
	return ok
}

// ─────────────────────────────────────────────────────────────────────────────
// Construction
// ─────────────────────────────────────────────────────────────────────────────

// newEmpty allocates a Molecule with every map initialized but no agents.
func newEmpty(sig *signature.Signature) *Molecule {
	return &Molecule{
		sig:              sig,
		agents:           make(map[chem.AgentLabel]*Agent),
		adjacency:        make(map[chem.AgentLabel][]chem.AgentLabel),
		bondSet:          make(map[chem.Bond]struct{}),
		freeSite:         make(map[chem.SiteType]int),
		freeSiteList:     make(map[chem.SiteType][]chem.Port),
		freeSiteListIdx:  make(map[chem.SiteType]map[chem.Port]int),
		bondType:         make(map[chem.BondType]int),
		bondList:         make(map[chem.BondType][]chem.Bond),
		bondListIdx:      make(map[chem.BondType]map[chem.Bond]int),
		agentSelfBinding: make(map[chem.BondType]int),
		binding:          make(map[chem.BondType]float64),
		unbinding:        make(map[chem.BondType]float64),
		composition:      make(map[chem.AgentType]int),
	}
}

// NewMonomer builds a fresh single-agent molecule of the given type, with
// every site in its signature-declared default state and all sites free.
// This is the constructor used by the initial-mixture builder and by the
// Reactor's inflow channel.
func NewMonomer(sig *signature.Signature, agentType chem.AgentType) *Molecule {
	m := newEmpty(sig)
	label := chem.AgentLabel(1)
	m.labelCounter = label

	iface := make(map[chem.SiteName]*SiteState)
	for _, site := range sig.SitesOf(agentType) {
		st := chem.SiteType{Agent: agentType, Site: site}
		iface[site] = &SiteState{State: sig.DefaultState(st)}
		m.appendFreeSite(st, chem.Port{Agent: label, Site: site})
	}
	m.agents[label] = &Agent{Type: agentType, Label: label, Interface: iface}
	m.agentOrder = []chem.AgentLabel{label}
	m.adjacency[label] = nil
	m.size = 1
	m.composition[agentType] = 1
	m.count = 0

	return m
}

// sortedAgentLabels returns m's agent labels sorted ascending, used whenever
// a deterministic traversal order is required (canonicalization, testing).
func (m *Molecule) sortedAgentLabels() []chem.AgentLabel {
	out := make([]chem.AgentLabel, 0, len(m.agents))
	for l := range m.agents {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
