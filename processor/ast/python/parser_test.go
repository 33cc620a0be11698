package python

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSource(t *testing.T, code string) *Module {
	t.Helper()
	m, err := NewParser().Parse(context.Background(), "sample.py", []byte(code))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestParseFile_ReadsFromDisk(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "math.py")
	require.NoError(t, os.WriteFile(filePath, []byte("def add(a, b):\n    return a + b\n"), 0644))

	m, err := NewParser().ParseFile(context.Background(), filePath)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, filePath, m.Path)
	assert.NotEmpty(t, m.Hash)
	require.Len(t, m.Functions(), 1)
	assert.Equal(t, "add", m.Functions()[0].Name)
}

func TestParse_RejectsSyntaxErrors(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), "broken.py", []byte("def broken(:\n    return\n"))
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "broken.py", perr.Path)
	assert.Equal(t, 1, perr.Line)
}

func TestParse_RejectsInvalidUTF8(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), "bytes.py", []byte{0xff, 0xfe, 'x'})
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "UTF-8")
}

func TestParse_LenientKeepsBrokenTrees(t *testing.T) {
	p := &Parser{Lenient: true}
	m, err := p.Parse(context.Background(), "broken.py", []byte("def broken(:\n    return\n"))
	require.NoError(t, err)
	m.Close()
}

func TestFunctions_SourceOrderAndOwnership(t *testing.T) {
	m := parseSource(t, `
def top():
    def inner():
        return 1
    return inner()

class Service:
    """Service docstring."""

    def __init__(self, repo):
        self.repo = repo

    @property
    def name(self):
        return self._name

    async def fetch(self, key, *, timeout=5):
        return await self.repo.get(key)
`)

	fns := m.Functions()
	require.Len(t, fns, 5)
	names := []string{fns[0].Name, fns[1].Name, fns[2].Name, fns[3].Name, fns[4].Name}
	assert.Equal(t, []string{"top", "inner", "__init__", "name", "fetch"}, names)

	assert.False(t, fns[0].IsMethod())
	assert.Equal(t, fns[0], fns[1].Parent)
	assert.True(t, fns[2].IsMethod())
	assert.True(t, fns[2].IsDunder())
	assert.True(t, fns[3].IsProperty())
	assert.True(t, fns[4].IsAsync())
	assert.Equal(t, "Service.fetch", fns[4].QualifiedName())

	params := fns[4].ExplicitParameters()
	require.Len(t, params, 2)
	assert.Equal(t, "key", params[0].Name)
	assert.Equal(t, ParamPositional, params[0].Kind)
	assert.Equal(t, "timeout", params[1].Name)
	assert.Equal(t, ParamKeywordOnly, params[1].Kind)
	assert.True(t, params[1].HasDefault())

	assert.Equal(t, []string{"self.repo.get"}, fns[4].Calls())

	// Collections are computed once
	assert.Same(t, fns[0], m.Functions()[0])
}

func TestFunction_TestPredicatesAndStatements(t *testing.T) {
	m := parseSource(t, `
def test_total_is_summed():
    """Totals add up."""
    # arrange
    items = [1, 2]
    assert sum(items) == 3
`)
	fn := m.Functions()[0]
	assert.True(t, fn.IsTestFunction())
	assert.Equal(t, "Totals add up.", fn.Docstring())

	stmts := fn.Statements()
	require.Len(t, stmts, 2)
	assert.Equal(t, StmtAssign, Kind(stmts[0]))
	assert.Equal(t, StmtAssert, Kind(stmts[1]))
}

func TestClasses_Methods(t *testing.T) {
	m := parseSource(t, `
class Repo(Base, metaclass=Meta):
    def save(self, item):
        pass

    def load(self, key):
        pass
`)
	require.Len(t, m.Classes(), 1)
	cls := m.Classes()[0]
	assert.Equal(t, "Repo", cls.Name)
	assert.Equal(t, []string{"Base"}, cls.Bases)
	require.Len(t, cls.Methods(), 2)
	assert.Equal(t, "load", cls.Methods()[1].Name)
	assert.Equal(t, 2, cls.LineNumber())
}

func TestIfStatements_Branches(t *testing.T) {
	m := parseSource(t, `
def pick(x):
    if x > 1:
        return "big"
    elif x == 1:
        return "one"
    else:
        return "small"
`)
	ifs := m.IfStatements()
	require.Len(t, ifs, 1)
	assert.Equal(t, "x > 1", ifs[0].ConditionText())
	assert.Len(t, ifs[0].Branches(), 2)
	assert.True(t, ifs[0].HasElse())
	assert.Equal(t, "pick", ifs[0].EnclosingFunction().Name)
}

func TestTryBlocks_Handlers(t *testing.T) {
	m := parseSource(t, `
def risky():
    try:
        work()
    except ValueError as exc:
        raise RuntimeError("bad") from exc
    except:
        pass
`)
	tries := m.TryBlocks()
	require.Len(t, tries, 1)
	handlers := tries[0].Handlers()
	require.Len(t, handlers, 2)

	assert.False(t, handlers[0].IsBare())
	assert.Equal(t, "ValueError", handlers[0].TypeName())
	assert.True(t, handlers[0].ReRaises())
	assert.False(t, handlers[0].IsEmpty())

	assert.True(t, handlers[1].IsBare())
	assert.True(t, handlers[1].IsBroad())
	assert.True(t, handlers[1].IsEmpty())
	assert.Equal(t, 7, handlers[1].LineNumber())
}

func TestImports(t *testing.T) {
	m := parseSource(t, `
import os, sys as system
from collections import OrderedDict, defaultdict as dd
from helpers import *
`)
	imps := m.Imports()
	require.Len(t, imps, 3)
	assert.Equal(t, []string{"os", "sys"}, imps[0].Names)
	assert.False(t, imps[0].IsFrom)
	assert.Equal(t, "collections", imps[1].Module)
	assert.Equal(t, []string{"OrderedDict", "defaultdict"}, imps[1].Names)
	assert.True(t, imps[2].IsWildcard())
}

func TestCallNameAndOperators(t *testing.T) {
	m := parseSource(t, `
def f(a, b):
    self.repo.save(a)
    if a < b and a not in b:
        return len(a)
`)
	fn := m.Functions()[0]
	assert.Equal(t, []string{"self.repo.save", "len"}, fn.Calls())

	cond := m.IfStatements()[0].Condition
	assert.Equal(t, []string{"and"}, Operators(cond))
	left := cond.ChildByFieldName("left")
	assert.Equal(t, []string{"<"}, Operators(left))
	right := cond.ChildByFieldName("right")
	assert.Equal(t, []string{"not in"}, Operators(right))
}

func TestAssignmentTargetsAndSelfAssign(t *testing.T) {
	m := parseSource(t, `
class A:
    def __init__(self, x):
        self.x = x
        a = b = x
`)
	stmts := m.Functions()[0].Statements()
	require.Len(t, stmts, 2)
	assert.True(t, IsSelfAttributeAssign(m, stmts[0]))
	assert.False(t, IsSelfAttributeAssign(m, stmts[1]))
	assert.Equal(t, 2, AssignmentTargets(Expression(stmts[1])))
}
