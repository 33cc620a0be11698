package duplicates

import (
	"github.com/c360studio/semcheck/scanner"
)

// Version is mixed into cache keys; bump it whenever extraction or the
// signature encoding changes.
const Version = "dup-v4"

// Options tune extraction, matching and the cross-file pass.
type Options struct {
	// Control-flow subtree bounds.
	MinNodes int
	MaxNodes int
	MinSpan  int
	MaxSpan  int

	// Sliding window sizes, in top-level statements.
	MinWindow int
	MaxWindow int

	MinRealStatements int

	HelperPrefixes []string
	InterfaceNames []string

	Thresholds Thresholds

	// ProximityCap bounds reference files per changed file.
	ProximityCap int
	// MaxComparisons bounds block comparisons in one cross-file pass.
	MaxComparisons int
	// ProgressEvery is the comparison interval between status updates.
	ProgressEvery int

	Severity scanner.Severity
}

// DefaultHelperPrefixes mark test-helper and builder style delegation.
var DefaultHelperPrefixes = []string{
	"given_", "when_", "then_", "create_", "verify_", "assert_",
	"build_", "make_", "setup_", "_given_", "_when_", "_then_",
}

// DefaultInterfaceNames are methods whose repetition across classes is
// expected.
var DefaultInterfaceNames = []string{
	"to_dict", "from_dict", "to_json", "from_json", "serialize", "deserialize",
	"setUp", "tearDown", "setUpClass", "tearDownClass", "validate", "clean",
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		MinNodes:          5,
		MaxNodes:          80,
		MinSpan:           5,
		MaxSpan:           20,
		MinWindow:         5,
		MaxWindow:         10,
		MinRealStatements: 3,
		HelperPrefixes:    DefaultHelperPrefixes,
		InterfaceNames:    DefaultInterfaceNames,
		Thresholds:        DefaultThresholds(),
		ProximityCap:      20,
		MaxComparisons:    250000,
		ProgressEvery:     1000,
		Severity:          scanner.SeverityWarning,
	}
}

// OptionsFromParams overlays rule and YAML settings on the defaults.
func OptionsFromParams(p scanner.Params) Options {
	o := DefaultOptions()
	o.MinNodes = p.Int("min_nodes", o.MinNodes)
	o.MaxNodes = p.Int("max_nodes", o.MaxNodes)
	o.MinSpan = p.Int("min_lines", o.MinSpan)
	o.MaxSpan = p.Int("max_lines", o.MaxSpan)
	o.MinWindow = p.Int("min_window", o.MinWindow)
	o.MaxWindow = p.Int("max_window", o.MaxWindow)
	o.MinRealStatements = p.Int("min_real_statements", o.MinRealStatements)
	o.HelperPrefixes = p.Strings("helper_prefixes", o.HelperPrefixes)
	o.InterfaceNames = p.Strings("interface_names", o.InterfaceNames)
	o.ProximityCap = p.Int("proximity_cap", o.ProximityCap)
	o.MaxComparisons = p.Int("max_comparisons", o.MaxComparisons)
	o.ProgressEvery = p.Int("progress_every", o.ProgressEvery)
	o.Thresholds = ThresholdsFromParams(p, o.Thresholds)
	if sev, err := scanner.ParseSeverity(p.String("severity", "")); err == nil {
		o.Severity = sev
	}
	if o.MaxWindow < o.MinWindow {
		o.MaxWindow = o.MinWindow
	}
	return o
}
