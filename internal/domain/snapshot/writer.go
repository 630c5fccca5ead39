// Package snapshot implements the write side of the mixture snapshot format:
// a restart file listing every species present in a running Mixture as an
// %init: line, preceded by header comments identifying the run. Grounded on
// the source format's make_snapshot, reworked around the Mixture/Molecule
// aggregates rather than a global simulation object.
//
// Only the writer is implemented: reading a snapshot back into an initial
// Mixture is a format-parsing concern the signature parser's grammar does
// not otherwise need, and no kernel operation currently depends on it.
package snapshot

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/sitesim/reactor/internal/domain/mixture"
	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// Header carries the run-identifying metadata written as leading comment
// lines before the first %init: line.
type Header struct {
	UUID string
	T0   float64

	// PRNGState, when non-empty, is written verbatim as a comment so a
	// subsequent run can resume the same PCG stream byte-for-byte.
	PRNGState string
}

// Write renders mx's current species population as a snapshot: a header
// comment block followed by one "%init: <count> /*<size> agents*/ <kappa
// expression>" line per species, sorted by descending complex size (ties
// broken by the canonical form, for deterministic output across runs of the
// same mixture).
func Write(w io.Writer, mx *mixture.Mixture, hdr Header) error {
	if _, err := fmt.Fprintf(w, "# uuid: %s\n", hdr.UUID); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# T0: %s\n", formatFloat(hdr.T0)); err != nil {
		return err
	}
	if hdr.PRNGState != "" {
		if _, err := fmt.Fprintf(w, "# prng_state: %s\n", hdr.PRNGState); err != nil {
			return err
		}
	}

	species := append([]*molecule.Molecule(nil), mx.Species()...)
	sort.Slice(species, func(i, j int) bool {
		if species[i].Size() != species[j].Size() {
			return species[i].Size() > species[j].Size()
		}
		return species[i].Canonical() < species[j].Canonical()
	})

	for _, sp := range species {
		line := fmt.Sprintf("%%init: %d /*%d agents*/ %s\n", sp.Count(), sp.Size(), RenderKappa(sp))
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderKappa renders a molecule's current structure as a kappa-style
// site-graph expression: one "AgentType(site[link]{state} ...)" term per
// agent, agents space-separated, sites sorted by name within each agent.
// Bonds are assigned shared numeric labels the first time either endpoint is
// visited, matching the textual notation's "N" link form; free sites render
// as ".".
func RenderKappa(m *molecule.Molecule) string {
	bondNum := make(map[chem.Bond]int)
	next := 1

	var terms []string
	for _, a := range m.Agents() {
		var sb strings.Builder
		sb.WriteString(string(a.Type))
		sb.WriteByte('(')

		siteNames := make([]chem.SiteName, 0, len(a.Interface))
		for s := range a.Interface {
			siteNames = append(siteNames, s)
		}
		sort.Slice(siteNames, func(i, j int) bool { return siteNames[i] < siteNames[j] })

		for i, s := range siteNames {
			if i > 0 {
				sb.WriteByte(' ')
			}
			st := a.Interface[s]
			sb.WriteString(string(s))
			sb.WriteByte('[')
			if st.Bond == nil {
				sb.WriteByte('.')
			} else {
				b := chem.NewBond(chem.Port{Agent: a.Label, Site: s}, *st.Bond)
				n, seen := bondNum[b]
				if !seen {
					n = next
					next++
					bondNum[b] = n
				}
				sb.WriteString(strconv.Itoa(n))
			}
			sb.WriteByte(']')
			if st.State != "" {
				sb.WriteByte('{')
				sb.WriteString(string(st.State))
				sb.WriteByte('}')
			}
		}
		sb.WriteByte(')')
		terms = append(terms, sb.String())
	}
	return strings.Join(terms, " ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
