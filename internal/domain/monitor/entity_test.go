package monitor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesim/reactor/internal/domain/mixture"
	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/internal/domain/monitor"
	"github.com/sitesim/reactor/internal/domain/reactor"
	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/pkg/types/chem"
)

func dimerSig(t *testing.T) *signature.Signature {
	t.Helper()
	sig, err := signature.ParseString(`A(l[r.A] r[l.A])`)
	require.NoError(t, err)
	return sig
}

func dimerKinetics(sig *signature.Signature) *signature.Kinetics {
	return sig.DeriveKinetics(signature.Parameters{
		Volume: 1, ReferenceVolume: 1, ReferenceTemp: 298, Temperature: 298,
		KdWeak: 1e-6, KdMedium: 100e-9, KdStrong: 1e-9, KOn: 1,
		ResizeVolume: 1, RescaleTemp: 1, RingClosureFactor: 1,
	})
}

func setup(t *testing.T) (*mixture.Mixture, *reactor.Reactor) {
	t.Helper()
	sig := dimerSig(t)
	kin := dimerKinetics(sig)
	ctx := molecule.ReactivityContext{Kinetics: kin, Canonicalizer: molecule.NewDefaultCanonicalizer()}
	mx := mixture.New(sig, ctx, nil, nil)
	m := molecule.NewMonomer(sig, "A")
	m.Refresh(ctx)
	mx.AddSpecies(m, 4)
	mx.UpdateOverallActivities()
	r := reactor.New(sig, ctx)
	return mx, r
}

func TestMonitor_MoleculeCount_TracksRegisteredSpecies(t *testing.T) {
	mx, _ := setup(t)
	m := mx.Species()[0]

	mon := monitor.New(0)
	require.NoError(t, mon.Register(monitor.Observable{
		Name: "monomer", Kind: monitor.KindMoleculeCount, Canonical: m.Canonical(),
	}))
	mon.Sample(mx, 0)

	series, ok := mon.Series("monomer")
	require.True(t, ok)
	require.Len(t, series.Points, 1)
	assert.Equal(t, 4.0, series.Points[0])
}

func TestMonitor_BondCount_ZeroBeforeAnyBindingThenIncreasesAfterBind(t *testing.T) {
	mx, r := setup(t)
	lSite := chem.SiteType{Agent: "A", Site: "l"}
	rSite := chem.SiteType{Agent: "A", Site: "r"}
	bt := chem.NewBondType(lSite, rSite)

	mon := monitor.New(0)
	require.NoError(t, mon.Register(monitor.Observable{Name: "AA", Kind: monitor.KindBondCount, BondType: bt}))
	mon.Sample(mx, 0)

	m1 := mx.Species()[0]
	other := molecule.NewMonomer(mx.Signature(), "A")
	other.Refresh(mx.Context())
	mx.AddSpecies(other, 1)
	mx.UpdateOverallActivities()

	_, err := r.Merge(mx, m1, chem.Port{Agent: 1, Site: "l"}, other, chem.Port{Agent: 1, Site: "r"})
	require.NoError(t, err)
	mon.Sample(mx, 1)

	series, _ := mon.Series("AA")
	require.Len(t, series.Points, 2)
	assert.Equal(t, 0.0, series.Points[0])
	assert.Equal(t, 1.0, series.Points[1])
}

func TestMonitor_FreeSiteCount_MatchesSiteHeapRoot(t *testing.T) {
	mx, _ := setup(t)
	lSite := chem.SiteType{Agent: "A", Site: "l"}

	mon := monitor.New(0)
	require.NoError(t, mon.Register(monitor.Observable{Name: "freeL", Kind: monitor.KindFreeSiteCount, SiteType: lSite}))
	mon.Sample(mx, 0)

	h, ok := mx.SiteHeap(lSite)
	require.True(t, ok)
	series, _ := mon.Series("freeL")
	assert.Equal(t, h.Root(), series.Points[0])
}

func TestMonitor_SizeDistribution_BinsByComplexSize(t *testing.T) {
	mx, _ := setup(t)

	mon := monitor.New(0)
	require.NoError(t, mon.Register(monitor.Observable{
		Name: "sizes", Kind: monitor.KindSizeDistribution, SizeMin: 1, SizeMax: 2,
	}))
	mon.Sample(mx, 0)

	series, _ := mon.Series("sizes")
	require.Len(t, series.Bins, 1)
	assert.Equal(t, 4.0, series.Bins[0][0]) // size 1 -> 4 monomer instances
	assert.Equal(t, 0.0, series.Bins[0][1]) // size 2 -> none yet
}

func TestMonitor_Register_RejectsDuplicateName(t *testing.T) {
	mon := monitor.New(0)
	require.NoError(t, mon.Register(monitor.Observable{Name: "x", Kind: monitor.KindFreeSiteCount}))
	assert.Error(t, mon.Register(monitor.Observable{Name: "x", Kind: monitor.KindFreeSiteCount}))
}

func TestMonitor_MemoryCap_DropsOldestPoint(t *testing.T) {
	mx, _ := setup(t)
	mon := monitor.New(2)
	require.NoError(t, mon.Register(monitor.Observable{
		Name: "monomer", Kind: monitor.KindMoleculeCount, Canonical: mx.Species()[0].Canonical(),
	}))
	mon.Sample(mx, 0)
	mon.Sample(mx, 1)
	mon.Sample(mx, 2)

	series, _ := mon.Series("monomer")
	assert.Len(t, series.Points, 2)
	assert.Equal(t, []float64{1, 2}, mon.Stamps())
}

func TestTopSizes_ReturnsLargestFirst(t *testing.T) {
	mx, r := setup(t)
	m1 := mx.Species()[0]
	other := molecule.NewMonomer(mx.Signature(), "A")
	other.Refresh(mx.Context())
	mx.AddSpecies(other, 1)
	mx.UpdateOverallActivities()
	_, err := r.Merge(mx, m1, chem.Port{Agent: 1, Site: "l"}, other, chem.Port{Agent: 1, Site: "r"})
	require.NoError(t, err)

	top := monitor.TopSizes(mx, 2)
	require.Len(t, top, 2)
	assert.GreaterOrEqual(t, top[0], top[1])
}
