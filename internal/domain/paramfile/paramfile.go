// Package paramfile implements the run parameter file: a line-oriented
// directive grammar (%par, %sig, %rep, %obs, %stp) read alongside a
// signature expression to configure one simulation run without recompiling
// anything. Grounded on the source format's kaparam.py directive dispatch,
// reworked as a single-pass bufio.Scanner over an io.Reader producing a
// fully populated File value.
package paramfile

import (
	"github.com/sitesim/reactor/internal/domain/signature"
)

// Flow is one inflow or outflow directive: a zero- or uni-molecular rate
// applied continuously to every instance of an atom type.
type Flow struct {
	Rate     float64
	AtomType string
}

// ReportSettings carries the %rep: directive values governing where and how
// a run's output is written.
type ReportSettings struct {
	ReportFn  string
	OutputFn  string
	SnapRoot  string
	Numbering string
}

// ObservableDirective is one %obs: line, not yet resolved against a live
// Mixture/Signature — that resolution happens in the caller, which knows
// how to turn an Expr into a monitor.Observable of the matching Kind.
type ObservableDirective struct {
	Name    string // optional; defaults to Kind+":"+Expr if empty
	Kind    string // "!", "?", "b", "s", "mb", "ms", "p size", "p maxsize"
	Expr    string
	SizeMin int
	SizeMax int
}

// AlarmDirective is one %stp: line: trip when the named observable's value
// at Index exceeds Threshold.
type AlarmDirective struct {
	Observable string
	Index      int
	Threshold  float64
}

// File is the fully parsed contents of one parameter file.
type File struct {
	// Par carries every %par: name/value pair exactly as written, for callers
	// that want to inspect a directive this package doesn't interpret itself.
	Par map[string]string

	Parameters signature.Parameters

	InitialMixture string
	Reproducible   bool
	Canonicalize   bool
	Consolidate    bool
	Barcode        bool

	SimLimit     float64
	SimLimitKind string // "time" or "event"

	ObsFrequency  float64
	SnapFrequency float64
	Seed          uint64
	Memory        int

	Inflows  []Flow
	Outflows []Flow

	// SignatureExprs holds every %sig: line's expression text, in file order;
	// a caller that wants a single Signature joins these with whitespace and
	// passes the result to signature.ParseString.
	SignatureExprs []string

	Report      ReportSettings
	Observables []ObservableDirective
	Alarms      []AlarmDirective
}

func newFile() *File {
	return &File{Par: make(map[string]string)}
}
