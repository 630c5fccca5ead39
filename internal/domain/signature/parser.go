package signature

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sitesim/reactor/pkg/errors"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// ─────────────────────────────────────────────────────────────────────────────
// Signature expression grammar
//
// One or more agent declarations, each of the form:
//
//	AgentType(site1{state ...}[bond-stub ...] site2... )
//	AgentType@amount(...)
//
// Sites are separated by whitespace. Within a site, the states and the bond
// stubs are whitespace-separated lists, and the state list, when present,
// precedes the stub list. The amount is an integer, or '*' for unbounded.
// A bond stub names a legal partner as "site.AgentType", optionally decorated
// with "$Kd" to declare that bond type's dissociation constant, e.g.
// "x.B$1e-6". The first state listed for a site is its creation default.
// Grounded on the regex-driven agent/site dissection of the source
// signature reader.
// ─────────────────────────────────────────────────────────────────────────────

var (
	agentHeadRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:@(\*|\d+))?\(([^()]*)\)\s*$`)
	siteRe      = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\{([^}]*)\})?(?:\[([^\]]*)\])?$`)
	bondStubRe  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)(?:\$([0-9eE.+\-]+))?$`)
)

// Parse reads a full signature expression (one or more agent declarations,
// whitespace- or newline-separated) and returns the built, validated Signature.
func Parse(r io.Reader) (*Signature, error) {
	b := NewBuilder()

	scanner := bufio.NewScanner(r)
	var buf strings.Builder
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte(' ')
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.ConfigError(errors.CodeConfigMalformed, "failed reading signature: "+err.Error())
	}

	for _, agentExpr := range splitAgentExpressions(buf.String()) {
		if err := parseAgent(b, agentExpr); err != nil {
			return nil, err
		}
	}

	return b.Build()
}

// ParseString is a convenience wrapper around Parse for an in-memory expression.
func ParseString(expr string) (*Signature, error) {
	return Parse(strings.NewReader(expr))
}

// stripComment removes a "//" trailing comment, matching the convention used
// by the parameter-file grammar and applied here for consistency.
func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

// splitAgentExpressions scans the flattened signature text for top-level
// "Name(...)" or "Name@amount(...)" fragments, respecting nested parens in
// the bond-stub decorations (there are none at this grain, but the scan is
// paren-depth aware for robustness).
func splitAgentExpressions(text string) []string {
	var out []string
	depth := 0
	start := -1
	for i, r := range text {
		switch r {
		case '(':
			if depth == 0 {
				// back up to the start of the agent name (and optional @amount)
				j := i
				for j > 0 && isNameByte(text[j-1]) {
					j--
				}
				start = j
			}
			depth++
		case ')':
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, strings.TrimSpace(text[start:i+1]))
				start = -1
			}
		}
	}
	return out
}

func isNameByte(c byte) bool {
	return c == '@' || c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '*'
}

// parseAgent dissects one "AgentType(...)"-shaped fragment and feeds the
// result into the builder.
func parseAgent(b *Builder, expr string) error {
	m := agentHeadRe.FindStringSubmatch(expr)
	if m == nil {
		return errors.ConfigError(errors.CodeConfigMalformed,
			fmt.Sprintf("invalid agent declaration %q", expr))
	}
	agentType := chem.AgentType(m[1])
	amountLit := m[2]
	iface := strings.TrimSpace(m[3])

	b.DeclareAgent(agentType)

	if amountLit == "*" {
		b.DeclareInitAmount(agentType, nil)
	} else if amountLit != "" {
		n, err := strconv.Atoi(amountLit)
		if err != nil {
			return errors.ConfigError(errors.CodeConfigMalformed,
				fmt.Sprintf("agent %s: invalid initial amount %q", agentType, amountLit))
		}
		b.DeclareInitAmount(agentType, &n)
	}

	if iface == "" {
		return nil
	}

	// Rejoin whitespace-split tokens that fall inside an open {...} or [...].
	var fields []string
	for _, tok := range strings.Fields(iface) {
		if n := len(fields); n > 0 {
			last := fields[n-1]
			if strings.Count(last, "{")+strings.Count(last, "[") > strings.Count(last, "}")+strings.Count(last, "]") {
				fields[n-1] = last + " " + tok
				continue
			}
		}
		fields = append(fields, tok)
	}

	for _, field := range fields {
		sm := siteRe.FindStringSubmatch(field)
		if sm == nil {
			return errors.ConfigError(errors.CodeConfigMalformed,
				fmt.Sprintf("agent %s: invalid site declaration %q", agentType, field))
		}
		site := chem.SiteName(sm[1])
		st := chem.SiteType{Agent: agentType, Site: site}

		var states []chem.StateName
		if sm[2] != "" {
			for _, s := range strings.Fields(sm[2]) {
				states = append(states, chem.StateName(s))
			}
		}
		var defaultState chem.StateName
		if len(states) > 0 {
			defaultState = states[0]
		}
		b.DeclareSite(agentType, site, states, defaultState)

		if sm[3] == "" {
			continue
		}
		for _, stub := range strings.Fields(sm[3]) {
			bm := bondStubRe.FindStringSubmatch(stub)
			if bm == nil {
				return errors.ConfigError(errors.CodeConfigMalformed,
					fmt.Sprintf("agent %s, site %s: invalid bond stub %q", agentType, site, stub))
			}
			partnerSite := chem.SiteName(bm[1])
			partnerAgent := chem.AgentType(bm[2])
			partner := chem.SiteType{Agent: partnerAgent, Site: partnerSite}

			kd := 0.0
			if bm[3] != "" {
				v, err := strconv.ParseFloat(bm[3], 64)
				if err != nil {
					return errors.ConfigError(errors.CodeConfigMalformed,
						fmt.Sprintf("bond stub %q: invalid affinity %q", stub, bm[3]))
				}
				kd = v
			}
			b.DeclareBondType(st, partner, kd)
		}
	}

	return nil
}
