package duplicates

import (
	"context"
	"log/slog"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

// ScannerID is the registry key of the detector.
const ScannerID = "duplicate_code"

func init() {
	scanner.Register(ScannerID, func(env scanner.Env) (scanner.Scanner, error) {
		return New(OptionsFromParams(env.Params), env.Logger), nil
	})
}

// Detector is the duplicate_code scanner. It runs within each file and,
// as a two-pass scanner, across files.
type Detector struct {
	scanner.Base
	opts      Options
	extractor *Extractor
	logger    *slog.Logger
}

// New creates a detector. A nil logger uses slog.Default().
func New(opts Options, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		Base:      scanner.NewBase(ScannerID, scanner.FamilyCode),
		opts:      opts,
		extractor: NewExtractor(opts, logger),
		logger:    logger,
	}
}

// Options returns the detector configuration.
func (d *Detector) Options() Options {
	return d.opts
}

// RequiresTwoPass implements scanner.CrossFileScanner.
func (d *Detector) RequiresTwoPass() bool { return true }

// Extract exposes block extraction for callers that cache or inspect blocks.
func (d *Detector) Extract(m *python.Module) []*Block {
	return d.extractor.Extract(m)
}

// ScanFile reports duplicates between functions of one file, one violation
// per duplicate group.
func (d *Detector) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	blocks := d.extractor.Extract(req.File)
	if len(blocks) < 2 {
		return nil, nil
	}

	var pairs [][2]int
	for i := 0; i < len(blocks); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(blocks); j++ {
			if blocks[i].Function == blocks[j].Function {
				continue
			}
			if d.Match(blocks[i], blocks[j]) {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	groups := buildGroups(blocks, pairs)
	violations := make([]scanner.Violation, 0, len(groups))
	for _, g := range groups {
		violations = append(violations, req.Violation(g.Blocks[0].StartLine, d.opts.Severity, groupMessage(g.Blocks)))
	}
	return violations, nil
}

// Match reports whether two blocks are duplicates after exclusions.
func (d *Detector) Match(a, b *Block) bool {
	score := Compare(a, b, d.opts.Thresholds)
	if !d.opts.Thresholds.Accept(score.Structural, score.Preview) {
		return false
	}
	if reason, ok := d.excluded(a, b); ok {
		d.logger.Debug("Duplicate candidate excluded",
			"reason", reason, "a", a.Location(), "b", b.Location())
		return false
	}
	return true
}
