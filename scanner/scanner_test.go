package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semcheck/storage"
)

type stubScanner struct {
	Base
	twoPass bool
}

func (s *stubScanner) ScanFile(context.Context, FileRequest) ([]Violation, error) { return nil, nil }

func (s *stubScanner) RequiresTwoPass() bool { return s.twoPass }

func (s *stubScanner) ScanCrossFile(context.Context, CrossFileRequest) ([]Violation, error) {
	return nil, nil
}

func TestViolation_JSONShape(t *testing.T) {
	rule := RuleRef{File: "rules/params.json", Name: "Keep parameter lists short"}
	v := NewViolation(rule, "src/app.py", 12, SeverityWarning, "too many parameters")

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"rule_file": "rules/params.json",
		"rule_name": "Keep parameter lists short",
		"violation_message": "too many parameters",
		"location": "src/app.py",
		"line_number": 12,
		"severity": "warning"
	}`, string(data))

	noLine := NewViolation(rule, "src/app.py", 0, SeverityInfo, "file level")
	data, err = json.Marshal(noLine)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"line_number":null`)
	assert.Nil(t, noLine.Fields()["line_number"])
	assert.Equal(t, 12, v.Fields()["line_number"])
}

func TestViolation_WithSeverityCopies(t *testing.T) {
	v := NewViolation(RuleRef{}, "a.py", 3, SeverityWarning, "m")
	w := v.WithSeverity(SeverityError)

	assert.Equal(t, SeverityWarning, v.Severity)
	assert.Equal(t, SeverityError, w.Severity)
	*w.LineNumber = 99
	assert.Equal(t, 3, v.Line())
}

func TestParseSeverity(t *testing.T) {
	sev, err := ParseSeverity(" Error ")
	require.NoError(t, err)
	assert.Equal(t, SeverityError, sev)
	assert.Greater(t, SeverityError.Rank(), SeverityWarning.Rank())

	_, err = ParseSeverity("fatal")
	require.Error(t, err)
}

func TestSortViolations(t *testing.T) {
	vs := []Violation{
		NewViolation(RuleRef{}, "b.py", 1, SeverityInfo, "x"),
		NewViolation(RuleRef{}, "a.py", 9, SeverityInfo, "x"),
		NewViolation(RuleRef{}, "a.py", 2, SeverityInfo, "x"),
	}
	SortViolations(vs)
	assert.Equal(t, "a.py", vs[0].Location)
	assert.Equal(t, 2, vs[0].Line())
	assert.Equal(t, "b.py", vs[2].Location)
}

func TestRegistry_ResolveAndSuggest(t *testing.T) {
	r := NewRegistry()
	r.Register("parameter_count", func(env Env) (Scanner, error) {
		return &stubScanner{Base: NewBase("parameter_count", FamilyCode)}, nil
	})
	r.Register("duplicate_code", func(env Env) (Scanner, error) {
		return &stubScanner{Base: NewBase("duplicate_code", FamilyCode), twoPass: true}, nil
	})
	r.Register("broken", func(env Env) (Scanner, error) {
		return nil, errors.New("bad params")
	})

	s, err := r.Resolve("duplicate_code", Env{})
	require.NoError(t, err)
	assert.Equal(t, "duplicate_code", s.ID())
	_, twoPass := IsTwoPass(s)
	assert.True(t, twoPass)

	s, err = r.Resolve("parameter_count", Env{})
	require.NoError(t, err)
	_, twoPass = IsTwoPass(s)
	assert.False(t, twoPass)

	_, err = r.Resolve("broken", Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad params")

	_, err = r.Resolve("scanners.ParameterCountScanner", Env{})
	var unknown *UnknownScannerError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "scanners.ParameterCountScanner", unknown.ID)
	assert.Contains(t, unknown.Suggestions, "parameter_count")
	assert.Contains(t, err.Error(), "did you mean")

	_, err = r.Resolve("nonexistent.Class", Env{})
	require.ErrorAs(t, err, &unknown)

	assert.Equal(t, []string{"broken", "duplicate_code", "parameter_count"}, r.IDs())
	assert.True(t, r.Has("broken"))
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	f := func(Env) (Scanner, error) { return nil, nil }
	r.Register("x", f)
	assert.Panics(t, func() { r.Register("x", f) })
}

func TestParams(t *testing.T) {
	p := Params{
		"max_parameters": float64(7),
		"threshold":      "0.5",
		"enabled":        true,
		"names":          []any{"a", "b"},
		"single":         "x",
	}
	assert.Equal(t, 7, p.Int("max_parameters", 5))
	assert.Equal(t, 5, p.Int("missing", 5))
	assert.Equal(t, 0.5, p.Float("threshold", 0.9))
	assert.True(t, p.Bool("enabled", false))
	assert.Equal(t, []string{"a", "b"}, p.Strings("names", nil))
	assert.Equal(t, []string{"x"}, p.Strings("single", nil))
	assert.Equal(t, "x", p.String("single", ""))

	merged := Params{"a": 1, "b": 2}.Merge(Params{"b": 3})
	assert.Equal(t, 1, merged.Int("a", 0))
	assert.Equal(t, 3, merged.Int("b", 0))
}

func TestSourceSet_ParsesOnce(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.py")
	bad := filepath.Join(dir, "bad.py")
	require.NoError(t, os.WriteFile(good, []byte("def f():\n    return 1\n"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("def f(:\n"), 0644))

	set := NewSourceSet(nil)
	defer set.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mod, err := set.Get(ctx, good)
			assert.NoError(t, err)
			assert.Len(t, mod.Functions(), 1)
		}()
	}
	wg.Wait()

	_, err := set.Get(ctx, bad)
	require.Error(t, err)
	_, err = set.Get(ctx, bad)
	require.Error(t, err)

	assert.Equal(t, 2, set.ParseCount())
	assert.Equal(t, 2, set.Len())
}

func TestRunContext_Defaults(t *testing.T) {
	rc := NewRunContext(RunContext{CacheDir: t.TempDir()})
	assert.NotNil(t, rc.Sources)
	assert.NotNil(t, rc.Log())
	assert.NotNil(t, rc.WordClassifier())
	assert.NotPanics(t, func() { rc.Progress(ProgressUpdate{Rule: "r"}) })

	store, err := rc.OpenCache(context.Background(), "duplicates")
	require.NoError(t, err)
	again, err := rc.OpenCache(context.Background(), "duplicates")
	require.NoError(t, err)
	assert.Same(t, store, again)

	var nilRC *RunContext
	assert.NotNil(t, nilRC.Log())
}

func TestRunContext_OpenCacheSeparatesSubdirs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	shared, err := storage.NewFileStore(filepath.Join(root, "shared"))
	require.NoError(t, err)

	for name, rc := range map[string]*RunContext{
		"injected":    NewRunContext(RunContext{Cache: shared}),
		"file-backed": NewRunContext(RunContext{CacheDir: filepath.Join(root, "local")}),
	} {
		t.Run(name, func(t *testing.T) {
			dup, err := rc.OpenCache(ctx, "duplicates")
			require.NoError(t, err)
			other, err := rc.OpenCache(ctx, "naming")
			require.NoError(t, err)

			require.NoError(t, dup.Put(ctx, "app.py", []byte("dup")))
			require.NoError(t, other.Put(ctx, "app.py", []byte("naming")))

			got, err := dup.Get(ctx, "app.py")
			require.NoError(t, err)
			assert.Equal(t, "dup", string(got))

			n, err := other.Clear(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			_, err = dup.Get(ctx, "app.py")
			assert.NoError(t, err)
		})
	}
}

func TestProgressUpdate_Line(t *testing.T) {
	skip := ProgressUpdate{Rule: "naming", Phase: PhaseSkip, Message: "skipped by request"}
	assert.Equal(t, "[SKIP] naming: skipped by request", skip.Line())

	start := time.Now().Add(-10 * time.Second)
	u := NewProgress("dup", PhaseCrossFile, 50, 100, start, "comparing")
	assert.InDelta(t, 50.0, u.Percent, 0.001)
	assert.Greater(t, u.ETA, 5*time.Second)
	assert.Contains(t, u.Line(), "50/100")

	var got []ProgressUpdate
	var mu sync.Mutex
	sink := StatusFunc(func(u ProgressUpdate) {
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})
	sink.Report(skip)
	assert.Len(t, got, 1)
}
