package molecule

import "github.com/sitesim/reactor/pkg/types/chem"

// ─────────────────────────────────────────────────────────────────────────────
// List maintenance: O(1) append / swap-with-last removal for freeSiteList and
// bondList, each paired with an index map kept in lockstep using a
// "swap with last + pop + index map" technique.
// ─────────────────────────────────────────────────────────────────────────────

// appendFreeSite records port p as free for site type st.
func (m *Molecule) appendFreeSite(st chem.SiteType, p chem.Port) {
	idx, ok := m.freeSiteListIdx[st]
	if !ok {
		idx = make(map[chem.Port]int)
		m.freeSiteListIdx[st] = idx
	}
	idx[p] = len(m.freeSiteList[st])
	m.freeSiteList[st] = append(m.freeSiteList[st], p)
	m.freeSite[st]++
}

// removeFreeSite removes port p from the free-site list of type st via
// swap-with-last, in O(1).
func (m *Molecule) removeFreeSite(st chem.SiteType, p chem.Port) {
	idx := m.freeSiteListIdx[st]
	list := m.freeSiteList[st]
	i, ok := idx[p]
	if !ok {
		return
	}
	last := len(list) - 1
	if i != last {
		list[i] = list[last]
		idx[list[i]] = i
	}
	list = list[:last]
	m.freeSiteList[st] = list
	delete(idx, p)
	m.freeSite[st]--
}

// appendBond records bond b under its bond type bt.
func (m *Molecule) appendBond(bt chem.BondType, b chem.Bond) {
	idx, ok := m.bondListIdx[bt]
	if !ok {
		idx = make(map[chem.Bond]int)
		m.bondListIdx[bt] = idx
	}
	idx[b] = len(m.bondList[bt])
	m.bondList[bt] = append(m.bondList[bt], b)
	m.bondType[bt]++
	m.bondSet[b] = struct{}{}
}

// removeBond removes bond b from the bond-type list via swap-with-last.
func (m *Molecule) removeBond(bt chem.BondType, b chem.Bond) {
	idx := m.bondListIdx[bt]
	list := m.bondList[bt]
	i, ok := idx[b]
	if !ok {
		return
	}
	last := len(list) - 1
	if i != last {
		list[i] = list[last]
		idx[list[i]] = i
	}
	list = list[:last]
	m.bondList[bt] = list
	delete(idx, b)
	m.bondType[bt]--
	delete(m.bondSet, b)
}

// siteTypeOf resolves the SiteType for a port within this molecule.
func (m *Molecule) siteTypeOf(p chem.Port) chem.SiteType {
	a := m.agents[p.Agent]
	return chem.SiteType{Agent: a.Type, Site: p.Site}
}
