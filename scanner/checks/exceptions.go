package checks

import (
	"context"

	"github.com/c360studio/semcheck/scanner"
)

func init() {
	register("swallowed_exception", func(env scanner.Env) scanner.Scanner {
		return &swallowedException{check: newCheck("swallowed_exception", scanner.FamilyCode, scanner.SeverityError, env)}
	})
	register("broad_exception", func(env scanner.Env) scanner.Scanner {
		return &broadException{check: newCheck("broad_exception", scanner.FamilyCode, scanner.SeverityWarning, env)}
	})
}

type swallowedException struct {
	check
}

// ScanFile flags handlers whose body does nothing.
func (s *swallowedException) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, try := range req.File.TryBlocks() {
		for _, h := range try.Handlers() {
			if !h.IsEmpty() {
				continue
			}
			caught := "except:"
			if !h.IsBare() {
				caught = "except " + h.TypeName()
			}
			out = append(out, s.report(req, h.LineNumber(),
				"Exception swallowed: empty '%s' handler hides failures; handle it, log it or let it propagate",
				caught))
		}
	}
	return out, nil
}

type broadException struct {
	check
}

// ScanFile flags bare and Exception-wide handlers that do not re-raise.
func (s *broadException) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, try := range req.File.TryBlocks() {
		for _, h := range try.Handlers() {
			if !h.IsBroad() || h.ReRaises() {
				continue
			}
			caught := "bare except"
			if !h.IsBare() {
				caught = "except " + h.TypeName()
			}
			out = append(out, s.report(req, h.LineNumber(),
				"Broad exception handler '%s' catches everything without re-raising; catch the specific errors you can handle",
				caught))
		}
	}
	return out, nil
}
