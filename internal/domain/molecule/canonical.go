package molecule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sitesim/reactor/pkg/types/chem"
)

// Canonicalizer computes a canonical string uniquely identifying a molecule's
// isomorphism class. It is treated as a black-box oracle: the kernel depends
// only on the contract "structurally
// identical graphs produce identical strings, structurally distinct graphs
// (almost certainly) produce distinct strings", not on any particular
// graph-canonicalization algorithm. Swap in a stricter (exact-isomorphism)
// implementation when running with canonicalization disabled in favor of a
// full consolidation pass; see Mixture.UpdateMixture.
type Canonicalizer interface {
	Canonical(m *Molecule) string
}

// localViewCanonicalizer computes a canonical form via iterative refinement
// of each agent's local view (its type, its sites' states, and the typed
// signature of its neighbors) — a small-scale color-refinement scheme in the
// spirit of Weisfeiler-Leman. Two rounds are enough to separate the small,
// low-degree graphs typical of site-graph mixtures; pathological symmetric
// cases may alias, which is acceptable for an oracle this package treats as
// swappable.
type localViewCanonicalizer struct {
	rounds int
}

// NewDefaultCanonicalizer returns the built-in local-view canonicalizer.
func NewDefaultCanonicalizer() Canonicalizer {
	return &localViewCanonicalizer{rounds: 2}
}

func (c *localViewCanonicalizer) Canonical(m *Molecule) string {
	labels := m.sortedAgentLabels()
	colors := make(map[chem.AgentLabel]string, len(labels))
	for _, l := range labels {
		colors[l] = agentBaseColor(m.agents[l])
	}

	for round := 0; round < c.rounds; round++ {
		next := make(map[chem.AgentLabel]string, len(labels))
		for _, l := range labels {
			next[l] = refineColor(m, l, colors)
		}
		colors = next
	}

	sorted := make([]string, len(labels))
	for i, l := range labels {
		sorted[i] = colors[l]
	}
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

// agentBaseColor renders the round-0 color of an agent: its type and the
// sorted list of (site, state, free-or-bound) triples.
func agentBaseColor(a *Agent) string {
	siteNames := make([]chem.SiteName, 0, len(a.Interface))
	for s := range a.Interface {
		siteNames = append(siteNames, s)
	}
	sort.Slice(siteNames, func(i, j int) bool { return siteNames[i] < siteNames[j] })

	var sb strings.Builder
	sb.WriteString(string(a.Type))
	for _, s := range siteNames {
		st := a.Interface[s]
		bound := "."
		if st.Bond != nil {
			bound = "b"
		}
		fmt.Fprintf(&sb, ";%s:%s:%s", s, st.State, bound)
	}
	return sb.String()
}

// refineColor recomputes a's color from its current color plus the sorted
// multiset of (site, neighbor-color) pairs across its bonds.
func refineColor(m *Molecule, label chem.AgentLabel, colors map[chem.AgentLabel]string) string {
	a := m.agents[label]
	var neighborColors []string

	siteNames := make([]chem.SiteName, 0, len(a.Interface))
	for s := range a.Interface {
		siteNames = append(siteNames, s)
	}
	sort.Slice(siteNames, func(i, j int) bool { return siteNames[i] < siteNames[j] })

	for _, s := range siteNames {
		st := a.Interface[s]
		if st.Bond == nil {
			continue
		}
		neighborColors = append(neighborColors, fmt.Sprintf("%s->%s", s, colors[st.Bond.Agent]))
	}
	sort.Strings(neighborColors)
	return colors[label] + "#" + strings.Join(neighborColors, ",")
}
