package molecule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/pkg/types/chem"
)

// dimerSignature is a minimal homodimer fixture: a single agent type A with
// two complementary sites l and r that may bond to each other on a
// different agent instance.
func dimerSignature(t *testing.T) *signature.Signature {
	t.Helper()
	sig, err := signature.ParseString(`A(l[r.A] r[l.A])`)
	require.NoError(t, err)
	return sig
}

func testKinetics(sig *signature.Signature) *signature.Kinetics {
	return sig.DeriveKinetics(signature.Parameters{
		Volume:            1,
		ReferenceVolume:   1,
		ReferenceTemp:      298,
		Temperature:        298,
		KdWeak:            1e-6,
		KdMedium:          100e-9,
		KdStrong:          1e-9,
		KOn:               1,
		ResizeVolume:      1,
		RescaleTemp:       1,
		RingClosureFactor: 1,
	})
}

func TestFormBondIntra_ThenDissociate_RoundTrip(t *testing.T) {
	sig := dimerSignature(t)
	kin := testKinetics(sig)
	ctx := molecule.ReactivityContext{Kinetics: kin, Canonicalizer: molecule.NewDefaultCanonicalizer()}

	m1 := molecule.NewMonomer(sig, "A")
	m2 := molecule.NewMonomer(sig, "A")

	err := m1.Graft(ctx, m2, chem.Port{Agent: 1, Site: "l"}, chem.Port{Agent: 1, Site: "r"})
	require.NoError(t, err)
	assert.Equal(t, 2, m1.Size())

	lSite := chem.SiteType{Agent: "A", Site: "l"}
	rSite := chem.SiteType{Agent: "A", Site: "r"}
	assert.Equal(t, 1, m1.FreeSite(lSite))
	assert.Equal(t, 1, m1.FreeSite(rSite))

	bondType := chem.NewBondType(lSite, rSite)
	assert.Equal(t, 1, m1.BondTypeCount(bondType))

	// dissociate should bring the molecule back to two disconnected monomers
	b := m1.BondList(bondType)[0]
	frag1, frag2, err := m1.Dissociate(ctx, b.P1, b.P2)
	require.NoError(t, err)
	require.NotNil(t, frag1)
	require.NotNil(t, frag2)
	assert.Equal(t, 1, frag1.Size())
	assert.Equal(t, 1, frag2.Size())
}

func TestDissociate_RingDoesNotFission(t *testing.T) {
	sig := dimerSignature(t)
	kin := testKinetics(sig)
	ctx := molecule.ReactivityContext{Kinetics: kin, Canonicalizer: molecule.NewDefaultCanonicalizer()}

	m1 := molecule.NewMonomer(sig, "A")
	m2 := molecule.NewMonomer(sig, "A")
	require.NoError(t, m1.Graft(ctx, m2, chem.Port{Agent: 1, Site: "r"}, chem.Port{Agent: 1, Site: "l"}))

	lSite := chem.SiteType{Agent: "A", Site: "l"}
	rSite := chem.SiteType{Agent: "A", Site: "r"}
	// close the ring using the two remaining free ports
	require.NoError(t, m1.FormBondIntra(ctx, chem.Port{Agent: 1, Site: "l"}, chem.Port{Agent: 2, Site: "r"}))
	assert.Equal(t, 0, m1.FreeSite(lSite))
	assert.Equal(t, 0, m1.FreeSite(rSite))

	bondType := chem.NewBondType(lSite, rSite)
	require.Equal(t, 2, m1.BondTypeCount(bondType))

	b := m1.BondList(bondType)[0]
	frag1, frag2, err := m1.Dissociate(ctx, b.P1, b.P2)
	require.NoError(t, err)
	assert.Nil(t, frag2)
	assert.Equal(t, 2, frag1.Size())
}

func TestDissociate_UnknownBond(t *testing.T) {
	sig := dimerSignature(t)
	kin := testKinetics(sig)
	ctx := molecule.ReactivityContext{Kinetics: kin, Canonicalizer: molecule.NewDefaultCanonicalizer()}
	m1 := molecule.NewMonomer(sig, "A")

	_, _, err := m1.Dissociate(ctx, chem.Port{Agent: 1, Site: "l"}, chem.Port{Agent: 1, Site: "r"})
	assert.Error(t, err)
}

func TestComputeInternalReactivity_SelfBindingExclusion(t *testing.T) {
	sig, err := signature.ParseString(`A(x[y.A] y[x.A])`)
	require.NoError(t, err)
	kin := testKinetics(sig)
	ctx := molecule.ReactivityContext{Kinetics: kin, Canonicalizer: molecule.NewDefaultCanonicalizer()}

	xSite := chem.SiteType{Agent: "A", Site: "x"}
	ySite := chem.SiteType{Agent: "A", Site: "y"}
	bt := chem.NewBondType(xSite, ySite)

	fresh := molecule.NewMonomer(sig, "A")
	fresh.Refresh(ctx)

	// A single monomer's own x and y sites can never bond to each other:
	// agentSelfBinding excludes that one ordered pair, zeroing the propensity
	// even though both sites are free.
	assert.Equal(t, 1, fresh.AgentSelfBinding(bt))
	assert.Equal(t, 0.0, fresh.Binding(bt))
}
