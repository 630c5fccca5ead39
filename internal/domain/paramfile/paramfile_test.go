package paramfile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesim/reactor/internal/domain/paramfile"
	"github.com/sitesim/reactor/pkg/errors"
)

const sampleParamFile = `
// run-level constants
%par: Volume = 1e-15
%par: Temperature = 25
%par: ReferenceVolume = 1e-15
%par: ReferenceTemp = 298
%par: Kd_weak = 1e-6
%par: Kd_medium = 1e-7
%par: Kd_strong = 1e-9
%par: k_on = 1e6
%par: ResizeVolume = 1
%par: RescaleTemp = 1
%par: RingClosureFactor = 1
%par: seed = 42
%par: memory = 500
%par: reproducible = true
%par: sim_limit 1000 event
%par: obs_frequency = 1
%par: inflow 0.5 A
%par: outflow 0.1 B

%sig: A@100(x[y.B] z{p u})
%sig: B(y[x.A])

%rep: report_fn = report.csv
%rep: snap_root = snapshots/

%obs: total_A ! A()
%obs: b bond_count
%stp: total_A > 500
`

func TestParse_FullDirectiveSet(t *testing.T) {
	f, err := paramfile.ParseString(sampleParamFile)
	require.NoError(t, err)

	assert.InDelta(t, 1e-15, f.Parameters.Volume, 1e-30)
	assert.InDelta(t, 25, f.Parameters.Temperature, 1e-9)
	assert.InDelta(t, 1e-6, f.Parameters.KdWeak, 1e-20)
	assert.Equal(t, uint64(42), f.Seed)
	assert.Equal(t, 500, f.Memory)
	assert.True(t, f.Reproducible)
	assert.InDelta(t, 1000, f.SimLimit, 1e-9)
	assert.Equal(t, "event", f.SimLimitKind)
	assert.InDelta(t, 1, f.ObsFrequency, 1e-9)

	require.Len(t, f.Inflows, 1)
	assert.Equal(t, "A", f.Inflows[0].AtomType)
	assert.InDelta(t, 0.5, f.Inflows[0].Rate, 1e-9)

	require.Len(t, f.Outflows, 1)
	assert.Equal(t, "B", f.Outflows[0].AtomType)

	require.Len(t, f.SignatureExprs, 2)
	assert.Contains(t, f.SignatureExprs[0], "A@100")

	assert.Equal(t, "report.csv", f.Report.ReportFn)
	assert.Equal(t, "snapshots/", f.Report.SnapRoot)

	require.Len(t, f.Observables, 2)
	assert.Equal(t, "total_A", f.Observables[0].Name)
	assert.Equal(t, "!", f.Observables[0].Kind)
	assert.Equal(t, "A()", f.Observables[0].Expr)
	assert.Equal(t, "b", f.Observables[1].Kind)

	require.Len(t, f.Alarms, 1)
	assert.Equal(t, "total_A", f.Alarms[0].Observable)
	assert.InDelta(t, 500, f.Alarms[0].Threshold, 1e-9)
}

func TestParse_UnknownParName(t *testing.T) {
	_, err := paramfile.ParseString("%par: NotARealName = 1\n")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigUnknownKeyword, errors.GetCode(err))
}

func TestParse_UnrecognizedDirective(t *testing.T) {
	_, err := paramfile.ParseString("%bogus: whatever\n")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigUnknownKeyword, errors.GetCode(err))
}

func TestParse_SimLimitRequiresUnit(t *testing.T) {
	_, err := paramfile.ParseString("%par: sim_limit 1000\n")
	require.Error(t, err)
}

func TestParse_StpThreshold_WithIndex(t *testing.T) {
	f, err := paramfile.ParseString("%stp: sizes[3] > 12.5\n")
	require.NoError(t, err)
	require.Len(t, f.Alarms, 1)
	assert.Equal(t, "sizes", f.Alarms[0].Observable)
	assert.Equal(t, 3, f.Alarms[0].Index)
	assert.InDelta(t, 12.5, f.Alarms[0].Threshold, 1e-9)
}

func TestParse_ObsSizeRange(t *testing.T) {
	f, err := paramfile.ParseString("%obs: p size 2-5\n")
	require.NoError(t, err)
	require.Len(t, f.Observables, 1)
	assert.Equal(t, "p size", f.Observables[0].Kind)
	assert.Equal(t, 2, f.Observables[0].SizeMin)
	assert.Equal(t, 5, f.Observables[0].SizeMax)
}

func TestParse_MalformedNumericValue(t *testing.T) {
	_, err := paramfile.ParseString("%par: Volume = not-a-number\n")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigMalformed, errors.GetCode(err))
}

func TestParse_CommentsAndBlankLinesIgnored(t *testing.T) {
	f, err := paramfile.ParseString("\n// a leading comment\n\n%par: seed = 7\n\n")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), f.Seed)
}
