// Package scanner defines the contract between rules and the scanners that
// enforce them: the Scanner interfaces, the Violation record, the factory
// registry and the per-run context handed to every scan.
package scanner

import (
	"context"

	"github.com/c360studio/semcheck/processor/ast"
	"github.com/c360studio/semcheck/processor/ast/python"
)

// Family selects which partition of the discovered files a scanner reads.
type Family string

const (
	// FamilyCode scans production source files.
	FamilyCode Family = "code"
	// FamilyTest scans test files.
	FamilyTest Family = "test"
)

// FileKind maps the family onto the discovery partition it consumes.
func (f Family) FileKind() ast.FileKind {
	if f == FamilyTest {
		return ast.KindTest
	}
	return ast.KindCode
}

// Scanner checks one parsed file at a time.
type Scanner interface {
	// ID is the registry key the scanner was created from.
	ID() string
	Family() Family
	ScanFile(ctx context.Context, req FileRequest) ([]Violation, error)
}

// CrossFileScanner can additionally compare files against each other. The
// orchestrator runs ScanCrossFile after the file-by-file pass when
// RequiresTwoPass is true.
type CrossFileScanner interface {
	Scanner
	RequiresTwoPass() bool
	ScanCrossFile(ctx context.Context, req CrossFileRequest) ([]Violation, error)
}

// RuleRef identifies the rule a scan runs on behalf of.
type RuleRef struct {
	File     string
	Name     string
	Severity Severity
}

// FileRequest is one file-by-file scan invocation.
type FileRequest struct {
	Run  *RunContext
	File *python.Module
	Rule RuleRef
}

// Violation builds a violation against this request's file and rule.
// A line of 0 or less leaves the line number unset.
func (r FileRequest) Violation(line int, severity Severity, message string) Violation {
	return NewViolation(r.Rule, r.File.Path, line, severity, message)
}

// CrossFileRequest is one cross-file scan invocation.
type CrossFileRequest struct {
	Run  *RunContext
	Rule RuleRef

	// Changed are the files modified since the last report; always a subset
	// of All.
	Changed []string
	// All are every file of the scanner's family.
	All []string
	// MaxComparisons bounds pairwise work; 0 means the scanner default.
	MaxComparisons int
}

// Base carries the identity half of Scanner for embedding.
type Base struct {
	id     string
	family Family
}

// NewBase returns a Base with the given registry key and family.
func NewBase(id string, family Family) Base {
	return Base{id: id, family: family}
}

// ID implements Scanner.
func (b Base) ID() string { return b.id }

// Family implements Scanner.
func (b Base) Family() Family { return b.family }

// IsTwoPass reports whether s wants a cross-file pass.
func IsTwoPass(s Scanner) (CrossFileScanner, bool) {
	cf, ok := s.(CrossFileScanner)
	if !ok || !cf.RequiresTwoPass() {
		return nil, false
	}
	return cf, true
}
