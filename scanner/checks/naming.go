package checks

import (
	"context"
	"strings"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

func init() {
	register("generic_function_name", func(env scanner.Env) scanner.Scanner {
		return &genericFunctionName{
			check:   newCheck("generic_function_name", scanner.FamilyCode, scanner.SeverityWarning, env),
			generic: toSet(env.Params.Strings("generic_words", defaultGenericWords)),
			allow:   toSet(env.Params.Strings("allow", []string{"main", "run", "setup", "teardown"})),
		}
	})
	register("generic_class_name", func(env scanner.Env) scanner.Scanner {
		return &genericClassName{
			check:    newCheck("generic_class_name", scanner.FamilyCode, scanner.SeverityWarning, env),
			suffixes: env.Params.Strings("generic_suffixes", defaultGenericClassSuffixes),
		}
	})
	register("agent_noun_class", func(env scanner.Env) scanner.Scanner {
		return &agentNounClass{
			check: newCheck("agent_noun_class", scanner.FamilyCode, scanner.SeverityInfo, env),
			allow: toSet(env.Params.Strings("allow", nil)),
		}
	})
	register("parameter_naming", func(env scanner.Env) scanner.Scanner {
		return &parameterNaming{
			check:         newCheck("parameter_naming", scanner.FamilyCode, scanner.SeverityWarning, env),
			allow:         toSet(env.Params.Strings("allow", []string{"_", "x", "y", "i", "j", "k", "n", "e"})),
			abbreviations: toSet(env.Params.Strings("abbreviations", defaultAbbreviations)),
		}
	})
}

var defaultGenericWords = []string{
	"do", "handle", "process", "manage", "run", "execute", "perform", "data",
	"info", "item", "items", "stuff", "thing", "things", "obj", "object", "value",
	"values", "helper", "util", "utils", "misc", "temp", "tmp", "foo", "bar", "baz",
	"func", "function", "method", "result", "results", "my", "get", "set", "it",
	"go", "work", "task", "logic", "main", "compute", "calculate", "check",
}

var defaultGenericClassSuffixes = []string{
	"Manager", "Helper", "Helpers", "Util", "Utils", "Utility", "Utilities",
	"Data", "Info", "Base", "Object", "Impl", "Common", "Misc", "Stuff", "Thing",
}

var defaultAbbreviations = []string{
	"cfg", "mgr", "svc", "tmp", "obj", "cnt", "idx", "usr", "pwd", "addr",
	"buf", "arr", "lst", "dct", "val", "num", "str", "elem", "btn", "desc",
	"qty", "amt", "fn", "cb", "ptr", "res", "req", "resp", "msg", "evt",
}

type genericFunctionName struct {
	check
	generic map[string]bool
	allow   map[string]bool
}

// ScanFile flags functions named only with generic words, and, when a
// domain model is loaded, generic names that mention no domain term.
func (s *genericFunctionName) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	model := domainModel(req)
	for _, fn := range req.File.Functions() {
		if fn.IsDunder() || fn.IsTestFunction() || s.allow[strings.ToLower(fn.Name)] {
			continue
		}
		words := nameWords(fn.Name)
		if len(words) == 0 {
			continue
		}
		generic, domainHit := 0, false
		for _, w := range words {
			if s.generic[w] {
				generic++
			}
			if model.HasTerm(w) {
				domainHit = true
			}
		}
		switch {
		case generic == len(words):
			out = append(out, s.report(req, fn.LineNumber(),
				"Function '%s' is named only with generic words; name it after the domain behavior it implements",
				fn.QualifiedName()))
		case generic > 0 && !domainHit && !model.Empty():
			out = append(out, s.report(req, fn.LineNumber(),
				"Function '%s' uses generic wording and no domain term; use the vocabulary of the domain model",
				fn.QualifiedName()))
		}
	}
	return out, nil
}

type genericClassName struct {
	check
	suffixes []string
}

// ScanFile flags classes ending in a generic suffix unless another word of
// the name is a domain term.
func (s *genericClassName) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	model := domainModel(req)
	for _, cls := range req.File.Classes() {
		if cls.IsTestClass() {
			continue
		}
		suffix := s.genericSuffix(cls.Name)
		if suffix == "" {
			continue
		}
		stem := strings.TrimSuffix(cls.Name, suffix)
		if !model.Empty() && stem != "" {
			hit := false
			for _, w := range nameWords(stem) {
				if model.HasTerm(w) {
					hit = true
					break
				}
			}
			if hit {
				continue
			}
		}
		out = append(out, s.report(req, cls.LineNumber(),
			"Class '%s' has the generic suffix '%s'; name it after the domain concept it models",
			cls.Name, suffix))
	}
	return out, nil
}

func (s *genericClassName) genericSuffix(name string) string {
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(name, suffix) {
			return suffix
		}
	}
	return ""
}

type agentNounClass struct {
	check
	allow map[string]bool
}

// ScanFile flags classes whose final word is an agent noun (Processor,
// Validator, Handler): objects named for what they do rather than what they
// are.
func (s *agentNounClass) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	classifier := req.Run.WordClassifier()
	for _, cls := range req.File.Classes() {
		if cls.IsTestClass() || isExceptionClass(cls) || s.allow[strings.ToLower(cls.Name)] {
			continue
		}
		words := nameWords(cls.Name)
		if len(words) == 0 {
			continue
		}
		last := words[len(words)-1]
		if !classifier.Classify(last).IsAgentNoun {
			continue
		}
		out = append(out, s.report(req, cls.LineNumber(),
			"Class '%s' is named after the agent noun '%s'; name objects after what they are, not what they do",
			cls.Name, last))
	}
	return out, nil
}

func isExceptionClass(cls *python.Class) bool {
	if strings.HasSuffix(cls.Name, "Error") || strings.HasSuffix(cls.Name, "Exception") {
		return true
	}
	for _, b := range cls.Bases {
		if strings.HasSuffix(b, "Error") || strings.HasSuffix(b, "Exception") {
			return true
		}
	}
	return false
}

type parameterNaming struct {
	check
	allow         map[string]bool
	abbreviations map[string]bool
}

// ScanFile flags single-letter and abbreviated parameter names.
func (s *parameterNaming) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range req.File.Functions() {
		if fn.IsTestFunction() {
			continue
		}
		for _, p := range fn.ExplicitParameters() {
			name := strings.TrimLeft(p.Name, "_")
			lower := strings.ToLower(name)
			switch {
			case p.Name == "" || s.allow[strings.ToLower(p.Name)]:
			case len(name) == 1:
				out = append(out, s.report(req, p.Line,
					"Parameter '%s' of '%s' is a single letter; use a descriptive name",
					p.Name, fn.QualifiedName()))
			case s.abbreviations[lower]:
				out = append(out, s.report(req, p.Line,
					"Parameter '%s' of '%s' is an abbreviation; spell the word out",
					p.Name, fn.QualifiedName()))
			}
		}
	}
	return out, nil
}
