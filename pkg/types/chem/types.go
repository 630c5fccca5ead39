// Package chem provides the small, immutable value types shared by every
// reaction-network package: signature, species, mixture, propensity, reactor,
// and simulator.  Nothing here carries behaviour beyond simple accessors —
// business logic belongs in the packages that consume these types.
package chem

import "fmt"

// ─────────────────────────────────────────────────────────────────────────────
// Primitive identifiers
// ─────────────────────────────────────────────────────────────────────────────

// AgentType names an agent kind declared in a Signature (e.g. "A", "Receptor").
type AgentType string

// SiteName names a site within an agent's interface (e.g. "x", "binding").
type SiteName string

// StateName names one legal internal state value of a site (e.g. "p", "u").
// An empty StateName means the site carries no internal state.
type StateName string

// SiteType is the fully-qualified identity of a site: the agent type that
// declares it plus the site's local name.  Two sites with the same SiteName
// on different AgentTypes are distinct SiteTypes.
type SiteType struct {
	Agent AgentType `json:"agent"`
	Site  SiteName  `json:"site"`
}

// String renders a SiteType in "Agent.site" form, matching the textual
// notation used in signature and parameter files.
func (s SiteType) String() string {
	return fmt.Sprintf("%s.%s", s.Agent, s.Site)
}

// Less provides a total order over SiteType so BondType can canonicalise its
// pair and so signature output (e.g. textual round-tripping) is deterministic.
func (s SiteType) Less(o SiteType) bool {
	if s.Agent != o.Agent {
		return s.Agent < o.Agent
	}
	return s.Site < o.Site
}

// ─────────────────────────────────────────────────────────────────────────────
// BondType — an unordered pair of site types that may be bonded to each other
// ─────────────────────────────────────────────────────────────────────────────

// BondType identifies a class of bond between two site types.  Construction
// always canonicalises the pair (First <= Second under SiteType.Less) so that
// BondType{X,Y} == BondType{Y,X} compares equal and can key a map.
//
// The canonical orientation is lexicographic on (AgentType, SiteName), not
// declaration order.
type BondType struct {
	First  SiteType `json:"first"`
	Second SiteType `json:"second"`
}

// NewBondType builds a canonicalised BondType from two site types.
func NewBondType(a, b SiteType) BondType {
	if b.Less(a) {
		a, b = b, a
	}
	return BondType{First: a, Second: b}
}

// String renders a BondType as "Agent1.site1~Agent2.site2".
func (bt BondType) String() string {
	return fmt.Sprintf("%s~%s", bt.First, bt.Second)
}

// Homodimeric reports whether both sides of the bond type are the same site
// type, e.g. a site that can bind a copy of itself on another agent instance.
func (bt BondType) Homodimeric() bool {
	return bt.First == bt.Second
}

// ─────────────────────────────────────────────────────────────────────────────
// Port — an interned reference to one site instance on one agent instance
// within a molecule
// ─────────────────────────────────────────────────────────────────────────────

// AgentLabel is the integer label of an agent instance within a molecule,
// assigned at parse time or during a copy/graft operation.  Labels are local
// to a single molecule and are never compared across molecules.
type AgentLabel uint32

// Port identifies one site instance: a specific site on a specific agent
// instance inside a molecule, using an integer agent label rather than a
// string-keyed handle.
type Port struct {
	Agent AgentLabel `json:"agent"`
	Site  SiteName   `json:"site"`
}

// String renders a Port as "label.site", e.g. "3.x".
func (p Port) String() string {
	return fmt.Sprintf("%d.%s", p.Agent, p.Site)
}

// Less orders ports lexicographically on (agentLabel, site), the normal form
// used to normalize a Bond's two endpoints.
func (p Port) Less(o Port) bool {
	if p.Agent != o.Agent {
		return p.Agent < o.Agent
	}
	return p.Site < o.Site
}

// ─────────────────────────────────────────────────────────────────────────────
// Bond — an unordered pair of ports within a single molecule
// ─────────────────────────────────────────────────────────────────────────────

// Bond is a normalized, undirected edge between two ports. NewBond always
// orders its endpoints by Port.Less so that Bond{P1,P2} == Bond{P2,P1}
// compares equal and can key a map.
type Bond struct {
	P1 Port `json:"p1"`
	P2 Port `json:"p2"`
}

// NewBond builds a normalized Bond from two ports.
func NewBond(a, b Port) Bond {
	if b.Less(a) {
		a, b = b, a
	}
	return Bond{P1: a, P2: b}
}

// String renders a Bond as "label.site=label.site".
func (b Bond) String() string {
	return fmt.Sprintf("%s=%s", b.P1, b.P2)
}

// ─────────────────────────────────────────────────────────────────────────────
// LinkState — the binding status of a site as written in site-graph notation
// ─────────────────────────────────────────────────────────────────────────────

// LinkKind enumerates the kinds of link annotation a site can carry in the
// textual site-graph format: free, bound-to-unspecified-partner,
// bound-with-explicit-numeric-label, or bound-to-named-stub.
type LinkKind int

const (
	// LinkFree denotes the "." annotation: the site carries no bond.
	LinkFree LinkKind = iota

	// LinkSemiLink denotes the "_" annotation: the site is bound, but to an
	// unspecified partner (wildcard bond, matched but not bound in rules;
	// retained here only for signature/mixture textual round-tripping).
	LinkSemiLink

	// LinkAny denotes the "#" annotation: the site may or may not be bound.
	LinkAny

	// LinkNumbered denotes an explicit numeric bond label shared by exactly
	// two sites within the same agent expression, e.g. "x[1]".
	LinkNumbered

	// LinkStub denotes a named stub link of the form "site.AgentType",
	// naming the partner's agent type without resolving an in-expression label.
	LinkStub
)

// String returns the textual annotation form of a LinkKind.
func (k LinkKind) String() string {
	switch k {
	case LinkFree:
		return "."
	case LinkSemiLink:
		return "_"
	case LinkAny:
		return "#"
	case LinkNumbered:
		return "<numbered>"
	case LinkStub:
		return "<stub>"
	default:
		return "<unknown-link-kind>"
	}
}
