package paramfile

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sitesim/reactor/pkg/errors"
)

var stpRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\[(\d+)\])?\s*>\s*([0-9eE.+\-]+)$`)

// obsKindTokens are the leading tokens of a %obs: directive that identify a
// kind rather than an optional leading observable name.
var obsKindTokens = map[string]bool{
	"!": true, "?": true, "b": true, "s": true, "mb": true, "ms": true, "p": true,
}

// Parse reads a full parameter file and returns the populated File, or a
// configuration error reporting the offending line number and text.
//
// Unrecognized directive prefixes, malformed %par names, and malformed
// numeric/line-shaped directives are all reported as configuration errors;
// Parse never panics on malformed input.
func Parse(r io.Reader) (*File, error) {
	f := newFile()

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripParamComment(scanner.Text())
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		directive, rest, ok := splitDirective(trimmed)
		if !ok {
			return nil, malformed(lineNo, trimmed, "line does not start with a recognized %-directive")
		}

		var err error
		switch directive {
		case "%par":
			err = parsePar(f, rest, lineNo)
		case "%sig":
			f.SignatureExprs = append(f.SignatureExprs, strings.TrimSpace(rest))
		case "%rep":
			err = parseRep(f, rest, lineNo)
		case "%obs":
			err = parseObs(f, rest, lineNo)
		case "%stp":
			err = parseStp(f, rest, lineNo)
		default:
			err = errors.ConfigError(errors.CodeConfigUnknownKeyword,
				fmt.Sprintf("line %d: unrecognized directive %q", lineNo, directive)).
				WithDetail(trimmed)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.ConfigError(errors.CodeConfigMalformed, "failed reading parameter file: "+err.Error())
	}

	return f, nil
}

// ParseString is a convenience wrapper around Parse for in-memory content.
func ParseString(content string) (*File, error) {
	return Parse(strings.NewReader(content))
}

func stripParamComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "#"); i >= 0 && !strings.HasPrefix(strings.TrimSpace(line), "%") {
		// a bare "#" only introduces a comment when the line isn't itself a
		// directive (directive bodies never legitimately contain "#").
		line = line[:i]
	}
	return line
}

// splitDirective separates a trimmed line into its "%xxx" directive keyword
// and the remainder of the line following the first ":".
func splitDirective(trimmed string) (directive, rest string, ok bool) {
	if !strings.HasPrefix(trimmed, "%") {
		return "", "", false
	}
	i := strings.Index(trimmed, ":")
	if i < 0 {
		return "", "", false
	}
	return trimmed[:i], trimmed[i+1:], true
}

func malformed(lineNo int, text, reason string) error {
	return errors.ConfigError(errors.CodeConfigMalformed,
		fmt.Sprintf("line %d: %s", lineNo, reason)).WithDetail(text)
}

// parsePar handles one %par: directive body. Most names use "name = value";
// sim_limit, inflow, and outflow instead take space-separated positional
// arguments.
func parsePar(f *File, rest string, lineNo int) error {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return malformed(lineNo, rest, "empty %par directive")
	}
	name := fields[0]

	var args []string
	if len(fields) > 1 && fields[1] == "=" {
		args = fields[2:]
	} else {
		args = fields[1:]
	}
	value := strings.Join(args, " ")
	f.Par[name] = value

	floatArg := func() (float64, error) {
		if value == "" {
			return 0, malformed(lineNo, rest, "%par "+name+": missing value")
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, malformed(lineNo, rest, "%par "+name+": invalid numeric value "+value)
		}
		return v, nil
	}
	boolArg := func() (bool, error) {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off", "":
			return false, nil
		}
		return false, malformed(lineNo, rest, "%par "+name+": invalid boolean value "+value)
	}

	switch name {
	case "Volume":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.Volume = v
	case "Temperature":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.Temperature = v
	case "ReferenceVolume":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.ReferenceVolume = v
	case "ReferenceTemp":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.ReferenceTemp = v
	case "Kd_weak":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.KdWeak = v
	case "Kd_medium":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.KdMedium = v
	case "Kd_strong":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.KdStrong = v
	case "k_on":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.KOn = v
	case "ResizeVolume":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.ResizeVolume = v
	case "RescaleTemp":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.RescaleTemp = v
	case "RingClosureFactor":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.Parameters.RingClosureFactor = v
	case "initial_mixture":
		f.InitialMixture = value
	case "reproducible":
		b, err := boolArg()
		if err != nil {
			return err
		}
		f.Reproducible = b
	case "canonicalize":
		b, err := boolArg()
		if err != nil {
			return err
		}
		f.Canonicalize = b
	case "consolidate":
		b, err := boolArg()
		if err != nil {
			return err
		}
		f.Consolidate = b
	case "barcode":
		b, err := boolArg()
		if err != nil {
			return err
		}
		f.Barcode = b
	case "sim_limit":
		if len(args) < 2 {
			return malformed(lineNo, rest, "%par sim_limit requires a value and a unit (time|event)")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return malformed(lineNo, rest, "%par sim_limit: invalid numeric value "+args[0])
		}
		if args[1] != "time" && args[1] != "event" {
			return malformed(lineNo, rest, "%par sim_limit: unit must be 'time' or 'event', got "+args[1])
		}
		f.SimLimit = v
		f.SimLimitKind = args[1]
	case "obs_frequency":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.ObsFrequency = v
	case "snap_frequency":
		v, err := floatArg()
		if err != nil {
			return err
		}
		f.SnapFrequency = v
	case "seed":
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return malformed(lineNo, rest, "%par seed: invalid unsigned integer "+value)
		}
		f.Seed = u
	case "memory":
		n, err := strconv.Atoi(value)
		if err != nil {
			return malformed(lineNo, rest, "%par memory: invalid integer "+value)
		}
		f.Memory = n
	case "inflow":
		if len(args) < 2 {
			return malformed(lineNo, rest, "%par inflow requires a rate and an atom type")
		}
		rate, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return malformed(lineNo, rest, "%par inflow: invalid rate "+args[0])
		}
		f.Inflows = append(f.Inflows, Flow{Rate: rate, AtomType: args[1]})
	case "outflow":
		if len(args) < 2 {
			return malformed(lineNo, rest, "%par outflow requires a rate and an atom type")
		}
		rate, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return malformed(lineNo, rest, "%par outflow: invalid rate "+args[0])
		}
		f.Outflows = append(f.Outflows, Flow{Rate: rate, AtomType: args[1]})
	default:
		return errors.ConfigError(errors.CodeConfigUnknownKeyword,
			fmt.Sprintf("line %d: unrecognized %%par name %q", lineNo, name)).WithDetail(rest)
	}
	return nil
}

func parseRep(f *File, rest string, lineNo int) error {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return malformed(lineNo, rest, "empty %rep directive")
	}
	name := fields[0]
	var args []string
	if len(fields) > 1 && fields[1] == "=" {
		args = fields[2:]
	} else {
		args = fields[1:]
	}
	value := strings.Join(args, " ")

	switch name {
	case "report_fn":
		f.Report.ReportFn = value
	case "output_fn":
		f.Report.OutputFn = value
	case "snap_root":
		f.Report.SnapRoot = value
	case "numbering":
		f.Report.Numbering = value
	default:
		return errors.ConfigError(errors.CodeConfigUnknownKeyword,
			fmt.Sprintf("line %d: unrecognized %%rep name %q", lineNo, name)).WithDetail(rest)
	}
	return nil
}

// parseObs handles "[name]? <kind> <expr>". A leading token is treated as an
// explicit name unless it is itself one of the recognized kind tokens.
func parseObs(f *File, rest string, lineNo int) error {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return malformed(lineNo, rest, "empty %obs directive")
	}

	var name string
	if !obsKindTokens[fields[0]] {
		name = fields[0]
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return malformed(lineNo, rest, "%obs: missing observable kind")
	}

	kind := fields[0]
	if !obsKindTokens[kind] {
		return errors.ConfigError(errors.CodeInvalidObservable,
			fmt.Sprintf("line %d: unrecognized %%obs kind %q", lineNo, kind)).WithDetail(rest)
	}

	dir := ObservableDirective{Name: name, Kind: kind}
	remainder := fields[1:]

	switch kind {
	case "p":
		// "p size [min-max]" or "p maxsize [n]"
		if len(remainder) == 0 {
			return malformed(lineNo, rest, "%obs: 'p' requires 'size' or 'maxsize'")
		}
		sub := remainder[0]
		dir.Kind = "p " + sub
		switch sub {
		case "size":
			if len(remainder) > 1 {
				mn, mx, err := parseSizeRange(remainder[1])
				if err != nil {
					return malformed(lineNo, rest, err.Error())
				}
				dir.SizeMin, dir.SizeMax = mn, mx
			}
		case "maxsize":
			if len(remainder) > 1 {
				n, err := strconv.Atoi(remainder[1])
				if err != nil {
					return malformed(lineNo, rest, "%obs: invalid maxsize n "+remainder[1])
				}
				dir.SizeMax = n
			}
		default:
			return malformed(lineNo, rest, "%obs: 'p' must be followed by 'size' or 'maxsize', got "+sub)
		}
	case "?":
		dir.Expr = strings.Join(remainder, " ")
		if len(remainder) >= 2 && remainder[0] == "size" {
			mn, mx, err := parseSizeRange(remainder[1])
			if err != nil {
				return malformed(lineNo, rest, err.Error())
			}
			dir.SizeMin, dir.SizeMax = mn, mx
			dir.Expr = strings.Join(remainder[2:], " ")
		}
	default:
		dir.Expr = strings.Join(remainder, " ")
	}

	if dir.Name == "" {
		dir.Name = dir.Kind + ":" + dir.Expr
	}
	f.Observables = append(f.Observables, dir)
	return nil
}

func parseSizeRange(lit string) (int, int, error) {
	parts := strings.SplitN(lit, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size range %q, expected min-max", lit)
	}
	mn, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size range minimum %q", parts[0])
	}
	mx, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size range maximum %q", parts[1])
	}
	return mn, mx, nil
}

// parseStp handles "<observable-name>[<index>]? > <threshold>".
func parseStp(f *File, rest string, lineNo int) error {
	trimmed := strings.TrimSpace(rest)
	m := stpRe.FindStringSubmatch(trimmed)
	if m == nil {
		return malformed(lineNo, rest, "%stp: expected '<name>[<index>]? > <threshold>'")
	}
	index := 0
	if m[2] != "" {
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return malformed(lineNo, rest, "%stp: invalid index "+m[2])
		}
		index = idx
	}
	threshold, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return malformed(lineNo, rest, "%stp: invalid threshold "+m[3])
	}
	f.Alarms = append(f.Alarms, AlarmDirective{Observable: m[1], Index: index, Threshold: threshold})
	return nil
}
