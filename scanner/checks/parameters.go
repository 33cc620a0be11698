package checks

import (
	"context"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

func init() {
	register("parameter_count", func(env scanner.Env) scanner.Scanner {
		return &parameterCount{
			check: newCheck("parameter_count", scanner.FamilyCode, scanner.SeverityWarning, env),
			max:   env.Params.Int("max_parameters", 5),
		}
	})
	register("boolean_flag_parameter", func(env scanner.Env) scanner.Scanner {
		return &booleanFlag{check: newCheck("boolean_flag_parameter", scanner.FamilyCode, scanner.SeverityWarning, env)}
	})
	register("mutable_default_argument", func(env scanner.Env) scanner.Scanner {
		return &mutableDefault{check: newCheck("mutable_default_argument", scanner.FamilyCode, scanner.SeverityError, env)}
	})
}

type parameterCount struct {
	check
	max int
}

// ScanFile flags functions with more positional parameters than allowed.
// self and cls do not count; constructors are exempt.
func (s *parameterCount) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range req.File.Functions() {
		if fn.Name == "__init__" {
			continue
		}
		n := 0
		for _, p := range fn.ExplicitParameters() {
			if p.Kind == python.ParamPositional {
				n++
			}
		}
		if n > s.max {
			out = append(out, s.report(req, fn.LineNumber(),
				"Function '%s' has %d positional parameters (max %d); group related values into an object",
				fn.QualifiedName(), n, s.max))
		}
	}
	return out, nil
}

type booleanFlag struct {
	check
}

// ScanFile flags parameters defaulting to True or False: a flag argument
// means the function does more than one thing.
func (s *booleanFlag) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range req.File.Functions() {
		if fn.IsTestFunction() {
			continue
		}
		for _, p := range fn.ExplicitParameters() {
			if p.Default == nil {
				continue
			}
			if t := p.Default.Type(); t == "true" || t == "false" {
				out = append(out, s.report(req, p.Line,
					"Parameter '%s' of '%s' is a boolean flag; split the function by behavior instead",
					p.Name, fn.QualifiedName()))
			}
		}
	}
	return out, nil
}

type mutableDefault struct {
	check
}

var mutableConstructors = map[string]bool{"list": true, "dict": true, "set": true, "defaultdict": true, "bytearray": true}

// ScanFile flags list, dict and set defaults, which are shared across calls.
func (s *mutableDefault) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	m := req.File
	for _, fn := range m.Functions() {
		for _, p := range fn.Parameters() {
			if p.Default == nil {
				continue
			}
			mutable := false
			switch p.Default.Type() {
			case "list", "dictionary", "set", "list_comprehension", "dictionary_comprehension", "set_comprehension":
				mutable = true
			case "call":
				mutable = mutableConstructors[python.CallName(m, p.Default)]
			}
			if mutable {
				out = append(out, s.report(req, p.Line,
					"Parameter '%s' of '%s' has a mutable default '%s'; default to None and create the value inside",
					p.Name, fn.QualifiedName(), m.Text(p.Default)))
			}
		}
	}
	return out, nil
}
