// Package signature holds the Signature aggregate: the static, load-time-checked
// description of every agent type, site, legal state, and bond type a mixture
// may contain.  A Signature never changes after it is loaded; every other
// kernel package treats it as read-only shared configuration.
package signature

import (
	"fmt"
	"sort"

	"github.com/sitesim/reactor/pkg/errors"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// siteDecl is the per-site declaration stored for each agent type: the legal
// internal states (empty slice if the site carries no internal state) and the
// default state. Bond partners are not stored here; they are derived from the
// bond types.
type siteDecl struct {
	legalStates []chem.StateName
	defaultST   chem.StateName
}

// Signature is the aggregate root holding every agent/site/bond-type
// declaration for one simulation.  Construction goes through NewBuilder so
// that the consistency checks in Validate run exactly once, at load time.
type Signature struct {
	agentTypes []chem.AgentType
	sites      map[chem.AgentType][]chem.SiteName
	siteDecls  map[chem.SiteType]siteDecl

	bondTypes     []chem.BondType
	bondTypeIndex map[chem.BondType]int
	affinity      map[chem.BondType]float64 // Kd (dissociation constant)

	// legalPartners[st] is the set of site types st may bond to. Derived from
	// bondTypes at build time for O(1) lookup during reactivity computation.
	legalPartners map[chem.SiteType][]chem.SiteType

	// initAgents records the %init/initial-abundance hints from the signature
	// file, keyed by agent type. A value of nil means "unbounded" (the '*'
	// amount in the source format).
	initAgents map[chem.AgentType]*int
}

// AgentTypes returns the declared agent types in declaration order.
func (s *Signature) AgentTypes() []chem.AgentType {
	out := make([]chem.AgentType, len(s.agentTypes))
	copy(out, s.agentTypes)
	return out
}

// SitesOf returns the site names declared for an agent type, in declaration order.
func (s *Signature) SitesOf(a chem.AgentType) []chem.SiteName {
	sites := s.sites[a]
	out := make([]chem.SiteName, len(sites))
	copy(out, sites)
	return out
}

// LegalStatesOf returns the legal internal state values for a site. An empty
// result means the site carries no internal state (it is link-only).
func (s *Signature) LegalStatesOf(st chem.SiteType) []chem.StateName {
	decl, ok := s.siteDecls[st]
	if !ok {
		return nil
	}
	out := make([]chem.StateName, len(decl.legalStates))
	copy(out, decl.legalStates)
	return out
}

// DefaultState returns the state a freshly created agent's site takes when no
// explicit state is given in a site-graph expression.
func (s *Signature) DefaultState(st chem.SiteType) chem.StateName {
	return s.siteDecls[st].defaultST
}

// HasSiteType reports whether a site type was declared.
func (s *Signature) HasSiteType(st chem.SiteType) bool {
	_, ok := s.siteDecls[st]
	return ok
}

// IsLegalState reports whether value is among the legal states declared for st.
func (s *Signature) IsLegalState(st chem.SiteType, value chem.StateName) bool {
	for _, v := range s.siteDecls[st].legalStates {
		if v == value {
			return true
		}
	}
	return false
}

// BondTypes returns every declared bond type, in the fixed order established
// at load time. The Simulator's band-based instance selection depends on
// this order being stable across a run, including after restoring
// a snapshot.
func (s *Signature) BondTypes() []chem.BondType {
	out := make([]chem.BondType, len(s.bondTypes))
	copy(out, s.bondTypes)
	return out
}

// BondTypeIndex returns the position of bt within BondTypes(), used as the
// stratum key for per-bond-type propensity heaps.
func (s *Signature) BondTypeIndex(bt chem.BondType) (int, bool) {
	i, ok := s.bondTypeIndex[bt]
	return i, ok
}

// SiteTypes returns every site type that participates in at least one
// declared bond type, in a stable (sorted) order. This is the set the
// Mixture needs to instantiate one propensity heap per site type for the
// bimolecular-binding channel.
func (s *Signature) SiteTypes() []chem.SiteType {
	seen := make(map[chem.SiteType]bool)
	for _, bt := range s.bondTypes {
		seen[bt.First] = true
		seen[bt.Second] = true
	}
	out := make([]chem.SiteType, 0, len(seen))
	for st := range seen {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// LegalPartners returns the site types that st is permitted to bond to.
func (s *Signature) LegalPartners(st chem.SiteType) []chem.SiteType {
	partners := s.legalPartners[st]
	out := make([]chem.SiteType, len(partners))
	copy(out, partners)
	return out
}

// CanBond reports whether a and b may legally form a bond, i.e. whether
// chem.NewBondType(a, b) was declared in the signature.
func (s *Signature) CanBond(a, b chem.SiteType) bool {
	_, ok := s.bondTypeIndex[chem.NewBondType(a, b)]
	return ok
}

// Affinity returns the dissociation constant Kd declared for a bond type.
// Returns (0, false) if the bond type carries no declared affinity, in which
// case the caller should fall back to the run's default Kd.
func (s *Signature) Affinity(bt chem.BondType) (float64, bool) {
	kd, ok := s.affinity[bt]
	return kd, ok
}

// InitAmount returns the declared initial abundance hint for an agent type,
// and whether one was declared at all. A nil *int with ok==true means the
// signature declared the agent "unbounded" ('*').
func (s *Signature) InitAmount(a chem.AgentType) (amount *int, ok bool) {
	amount, ok = s.initAgents[a]
	return
}

// ─────────────────────────────────────────────────────────────────────────────
// Builder — the only way to construct a Signature, ensuring Validate runs once
// ─────────────────────────────────────────────────────────────────────────────

// Builder accumulates agent/site/bond declarations before a single Validate
// pass freezes them into an immutable Signature. This mirrors the staged
// load-then-check flow of the source signature grammar: parsing
// populates a Builder incrementally as directives are read line by line, and
// the consistency checks run only after the whole file is consumed.
type Builder struct {
	agentOrder []chem.AgentType
	siteOrder  map[chem.AgentType][]chem.SiteName
	siteDecls  map[chem.SiteType]siteDecl
	bondOrder  []chem.BondType
	affinity   map[chem.BondType]float64
	initAgents map[chem.AgentType]*int
}

// NewBuilder returns an empty signature builder.
func NewBuilder() *Builder {
	return &Builder{
		siteOrder:  make(map[chem.AgentType][]chem.SiteName),
		siteDecls:  make(map[chem.SiteType]siteDecl),
		affinity:   make(map[chem.BondType]float64),
		initAgents: make(map[chem.AgentType]*int),
	}
}

// DeclareAgent registers an agent type. Re-declaring the same type is a no-op
// so that repeated site declarations for one agent (common in the textual
// format, one site per fragment) do not duplicate the agent-order slice.
func (b *Builder) DeclareAgent(a chem.AgentType) {
	if _, ok := b.siteOrder[a]; ok {
		return
	}
	b.agentOrder = append(b.agentOrder, a)
	b.siteOrder[a] = nil
}

// DeclareSite registers a site on an agent type with its legal internal
// states (nil/empty if the site has no internal state) and default state.
// Calling this twice for the same site type overwrites the prior declaration,
// matching the "last %sig directive wins" convention of the source format.
func (b *Builder) DeclareSite(a chem.AgentType, site chem.SiteName, legalStates []chem.StateName, defaultState chem.StateName) {
	b.DeclareAgent(a)
	st := chem.SiteType{Agent: a, Site: site}
	if _, exists := b.siteDecls[st]; !exists {
		b.siteOrder[a] = append(b.siteOrder[a], site)
	}
	b.siteDecls[st] = siteDecl{legalStates: legalStates, defaultST: defaultState}
}

// DeclareBondType registers a bond type (canonicalised internally) with its
// affinity (dissociation constant Kd). An affinity of zero or less means "use
// the run's default Kd" and is recorded as absent rather than zero.
func (b *Builder) DeclareBondType(a, c chem.SiteType, kd float64) {
	bt := chem.NewBondType(a, c)
	if _, seen := b.affinity[bt]; !seen {
		b.bondOrder = append(b.bondOrder, bt)
	}
	if kd > 0 {
		b.affinity[bt] = kd
	}
}

// DeclareInitAmount records the %init abundance hint for an agent type.
// amount == nil encodes the unbounded '*' amount.
func (b *Builder) DeclareInitAmount(a chem.AgentType, amount *int) {
	b.initAgents[a] = amount
}

// Build validates the accumulated declarations and freezes them into an
// immutable Signature. validate catches consistency failures: a bond type
// with a side that was never declared as a site, or a site whose declared
// legal states lack a default or do not include its default.
func (b *Builder) Build() (*Signature, error) {
	s := &Signature{
		agentTypes:    append([]chem.AgentType(nil), b.agentOrder...),
		sites:         make(map[chem.AgentType][]chem.SiteName, len(b.siteOrder)),
		siteDecls:     make(map[chem.SiteType]siteDecl, len(b.siteDecls)),
		bondTypes:     append([]chem.BondType(nil), b.bondOrder...),
		bondTypeIndex: make(map[chem.BondType]int, len(b.bondOrder)),
		affinity:      make(map[chem.BondType]float64, len(b.affinity)),
		legalPartners: make(map[chem.SiteType][]chem.SiteType),
		initAgents:    make(map[chem.AgentType]*int, len(b.initAgents)),
	}
	for a, sites := range b.siteOrder {
		s.sites[a] = append([]chem.SiteName(nil), sites...)
	}
	for st, decl := range b.siteDecls {
		s.siteDecls[st] = decl
	}
	for a, amt := range b.initAgents {
		s.initAgents[a] = amt
	}
	for i, bt := range s.bondTypes {
		s.bondTypeIndex[bt] = i
	}
	for bt, kd := range b.affinity {
		s.affinity[bt] = kd
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	for bt := range s.bondTypeIndex {
		s.legalPartners[bt.First] = append(s.legalPartners[bt.First], bt.Second)
		if bt.First != bt.Second {
			s.legalPartners[bt.Second] = append(s.legalPartners[bt.Second], bt.First)
		}
	}
	for st := range s.legalPartners {
		sort.Slice(s.legalPartners[st], func(i, j int) bool {
			return s.legalPartners[st][i].Less(s.legalPartners[st][j])
		})
	}

	return s, nil
}

// validate runs the load-time consistency checks:
// every bond type's two sides must themselves be declared sites, and every
// site with declared legal states must include its own default among them.
func (s *Signature) validate() error {
	for bt := range s.bondTypeIndex {
		for _, side := range []chem.SiteType{bt.First, bt.Second} {
			if _, ok := s.siteDecls[side]; !ok {
				return errors.ConfigError(errors.CodeSignatureInconsistent,
					fmt.Sprintf("bond type %s references undeclared site %s", bt, side))
			}
		}
	}
	for st, decl := range s.siteDecls {
		if len(decl.legalStates) == 0 {
			continue
		}
		if decl.defaultST == "" {
			return errors.ConfigError(errors.CodeSignatureInconsistent,
				fmt.Sprintf("site %s declares legal states but no default state", st))
		}
		found := false
		for _, v := range decl.legalStates {
			if v == decl.defaultST {
				found = true
				break
			}
		}
		if !found {
			return errors.ConfigError(errors.CodeSignatureInconsistent,
				fmt.Sprintf("site %s default state %q is not among its legal states", st, decl.defaultST))
		}
	}
	return nil
}
