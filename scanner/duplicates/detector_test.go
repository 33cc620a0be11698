package duplicates

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
	"github.com/c360studio/semcheck/storage"
)

const summaryBody = `    total = 0
    count = 0
    for record in records:
        total += record.amount
        count += 1
    average = total / count if count else 0
    summary = {"total": total, "count": count, "average": average}
    return summary
`

func parse(t *testing.T, path, src string) *python.Module {
	t.Helper()
	mod, err := python.NewParser().Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	t.Cleanup(mod.Close)
	return mod
}

func scanFile(t *testing.T, d *Detector, mod *python.Module) []scanner.Violation {
	t.Helper()
	req := scanner.FileRequest{
		Run:  scanner.NewRunContext(scanner.RunContext{}),
		File: mod,
		Rule: scanner.RuleRef{File: "rules/dup.json", Name: "No duplicate code"},
	}
	vs, err := d.ScanFile(context.Background(), req)
	require.NoError(t, err)
	return vs
}

func TestScanFile_IdenticalBodiesReportedOnce(t *testing.T) {
	src := "def summarize_sales(records):\n" + summaryBody +
		"\n\ndef summarize_sales_report(records):\n" + summaryBody
	mod := parse(t, "app/sales.py", src)

	vs := scanFile(t, New(DefaultOptions(), nil), mod)
	require.Len(t, vs, 1)

	v := vs[0]
	assert.Equal(t, "app/sales.py", v.Location)
	assert.Equal(t, 2, v.Line())
	assert.Equal(t, scanner.SeverityWarning, v.Severity)
	assert.Contains(t, v.Message, "2 locations")
	assert.Contains(t, v.Message, "in summarize_sales\n")
	assert.Contains(t, v.Message, "summarize_sales_report")
	assert.Contains(t, v.Message, "app/sales.py:2-9")
	assert.Contains(t, v.Message, "app/sales.py:13-20")
}

func TestScanFile_HelperDelegationIgnored(t *testing.T) {
	src := `
def place_order(ctx):
    given_customer(ctx)
    given_cart(ctx)
    when_checkout(ctx)
    then_order_created(ctx)
    then_email_sent(ctx)


def place_backorder(ctx):
    given_customer(ctx)
    given_cart(ctx)
    when_checkout(ctx)
    then_order_created(ctx)
    then_email_sent(ctx)
`
	mod := parse(t, "app/flows.py", src)
	d := New(DefaultOptions(), nil)
	assert.Empty(t, d.Extract(mod))
	assert.Empty(t, scanFile(t, d, mod))
}

func TestScanFile_HelperNamedFunctionsIgnored(t *testing.T) {
	src := "def given_setup_a(records):\n" + summaryBody +
		"\n\ndef given_setup_b(records):\n" + summaryBody
	mod := parse(t, "tests/fixtures.py", src)
	d := New(DefaultOptions(), nil)
	require.NotEmpty(t, d.Extract(mod), "helper bodies are real code")
	assert.Empty(t, scanFile(t, d, mod))
}

func TestScanFile_GettersAndConstructorsAcrossClasses(t *testing.T) {
	member := `
    def __init__(self, owner, items, currency, limit, status):
        self.owner = owner
        self.items = items
        self.currency = currency
        self.limit = limit
        self.status = status

    @property
    def overview(self):
        owner = self.owner
        items = self.items
        limit = self.limit
        status = self.status
        return owner, items, limit, status
`
	src := "class Cart:" + member + "\n\nclass Wishlist:" + member
	mod := parse(t, "app/baskets.py", src)
	assert.Empty(t, scanFile(t, New(DefaultOptions(), nil), mod))
}

func TestScanFile_OpposingVerbsExcluded(t *testing.T) {
	src := "def create_user(records):\n" + summaryBody +
		"\n\ndef delete_user(records):\n" + summaryBody
	mod := parse(t, "app/users.py", src)
	assert.Empty(t, scanFile(t, New(DefaultOptions(), nil), mod))
}

func TestScanFile_InterfaceMethodsExcluded(t *testing.T) {
	src := "class A:\n    def to_dict(self, records):\n" + indent(summaryBody) +
		"\n\nclass B:\n    def to_dict(self, records):\n" + indent(summaryBody)
	mod := parse(t, "app/models.py", src)
	assert.Empty(t, scanFile(t, New(DefaultOptions(), nil), mod))
}

func TestScanFile_SameFunctionNeverPairs(t *testing.T) {
	src := "def summarize_twice(records):\n" + summaryBody[:len(summaryBody)-len("    return summary\n")] +
		strings.ReplaceAll(summaryBody, "summary", "again")
	mod := parse(t, "app/twice.py", src)
	assert.Empty(t, scanFile(t, New(DefaultOptions(), nil), mod))
}

func TestExtract_SkipsTrivialAndTestFunctions(t *testing.T) {
	src := `
class Account:
    def __init__(self, owner, balance, currency, limit, status):
        self.owner = owner
        self.balance = balance
        self.currency = currency
        self.limit = limit
        self.status = status

    @property
    def summary(self):
        total = self.balance
        limit = self.limit
        status = self.status
        owner = self.owner
        return total, limit, status, owner


def test_account_summary():
    a = 1
    b = 2
    c = a + b
    d = c * 2
    assert d == 6


def collect(rows):
    out = []
    for r in rows:
        out.append(r)
    return out
`
	mod := parse(t, "app/account.py", src)
	assert.Empty(t, New(DefaultOptions(), nil).Extract(mod))
}

func TestExtract_ControlFlowSubtree(t *testing.T) {
	src := `
def route(request, handlers):
    kind = request.kind
    if kind == "a":
        result = handlers.a(request)
        audit(result)
        return result
    elif kind == "b":
        result = handlers.b(request)
        return result
    return None
`
	mod := parse(t, "app/route.py", src)
	blocks := New(DefaultOptions(), nil).Extract(mod)
	require.NotEmpty(t, blocks)

	var ifBlock *Block
	for _, b := range blocks {
		if strings.HasPrefix(b.Signature, "IF(") {
			ifBlock = b
		}
	}
	require.NotNil(t, ifBlock)
	assert.Equal(t, 4, ifBlock.StartLine)
	assert.Equal(t, 10, ifBlock.EndLine)
	assert.Equal(t, "route", ifBlock.Function)
	assert.True(t, strings.HasPrefix(ifBlock.Preview, `if kind == "a":`))
}

func TestSignature(t *testing.T) {
	src := `
def f(x):
    y = 1
    if x > y and not x:
        return x
    else:
        log(x)
    y += 2
    a = b = y
`
	mod := parse(t, "sig.py", src)
	fn := mod.Functions()[0]
	assert.Equal(t,
		"ASSIGN(1_targets)|IF(BOOL(and:CMP(>),NOT(NAME))){RETURN}ELSE{CALL}|AUG_ASSIGN(+=)|ASSIGN(2_targets)",
		Signature(mod, fn.Statements()))
}

func TestThresholds_Accept(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name       string
		structural float64
		preview    float64
		want       bool
	}{
		{"structural and loose preview", 0.86, 0.51, true},
		{"moderate both", 0.81, 0.71, true},
		{"high preview with floor", 0.65, 0.95, true},
		{"structural alone", 0.91, 0.10, true},
		{"below every rule", 0.84, 0.69, false},
		{"high preview without floor", 0.55, 0.95, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, th.Accept(tt.structural, tt.preview))
		})
	}
}

func TestThresholdsFromParams(t *testing.T) {
	p := scanner.Params{
		"structural_alone": 0.95,
		"combos":           []any{map[string]any{"structural": 0.7, "preview": 0.7}},
	}
	th := ThresholdsFromParams(p, DefaultThresholds())
	assert.Equal(t, 0.95, th.StructuralAlone)
	assert.Equal(t, []Combo{{Structural: 0.7, Preview: 0.7}}, th.Combos)
	assert.Equal(t, 0.90, th.BothHigh)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("abcd", "abcd"))
	assert.InDelta(t, 0.75, Ratio("abcd", "abce"), 1e-9)
	assert.Equal(t, 0.0, Ratio("", "abc"))
}

func TestCompare_OperatorMismatchLowersScore(t *testing.T) {
	src := `
def a(x, y):
    if x > y:
        return x
    return y


def b(x, y):
    if x < y:
        return x
    return y


def c(x, y):
    if x > y:
        return x
    return y
`
	mod := parse(t, "cmp.py", src)
	fns := mod.Functions()
	block := func(i int) *Block { return newBlock(mod, fns[i], fns[i].Statements()) }

	same := Compare(block(0), block(2), DefaultThresholds())
	diff := Compare(block(0), block(1), DefaultThresholds())
	assert.InDelta(t, 1.0, same.Structural, 1e-9)
	assert.Less(t, diff.Structural, same.Structural)
	assert.Greater(t, diff.Structural, 0.5)
}

func TestExclusions(t *testing.T) {
	a := &Block{Function: "render_header", Preview: "lines.append(\"<h1>\")\nlines.append(\"title\")\nlines.append(\"</h1>\")"}
	b := &Block{Function: "render_footer", Preview: "lines.append(\"<footer>\")\nlines.append(\"copyright\")\nlines.append(\"</footer>\")"}
	assert.True(t, distinctLiteralOutput(a, b))
	assert.False(t, distinctLiteralOutput(a, a))

	c := &Block{Function: "x", Preview: "load(a)\nparse(a)"}
	e := &Block{Function: "y", Preview: "send(a)\nclose(a)"}
	assert.True(t, disjointCalls(c, e))
	assert.False(t, disjointCalls(c, c))

	order := &Block{Function: "OrderService.total_order", Preview: "order.total = sum(order.lines)"}
	invoice := &Block{Function: "InvoiceService.total_invoice", Preview: "invoice.total = sum(invoice.lines)"}
	assert.True(t, differentOperations(order, invoice))

	save := &Block{Function: "save_report", Preview: "x"}
	load := &Block{Function: "load_report", Preview: "x"}
	assert.True(t, differentOperations(save, load))
}

func TestGrouping_SymmetricAndCovered(t *testing.T) {
	mk := func(fn string, start, end int) *Block {
		return &Block{File: "f.py", Function: fn, StartLine: start, EndLine: end}
	}
	blocks := []*Block{
		mk("a", 2, 6), mk("a", 3, 7), mk("a", 2, 7),
		mk("b", 12, 16), mk("b", 13, 17), mk("b", 12, 17),
	}
	pairs := [][2]int{{0, 3}, {1, 4}, {2, 5}}
	groups := buildGroups(blocks, pairs)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Blocks, 2)
	assert.Equal(t, blocks[2], groups[0].Blocks[0])
	assert.Equal(t, blocks[5], groups[0].Blocks[1])
}

func TestProximity(t *testing.T) {
	all := []string{
		"/r/pkg/sub/a.py", "/r/pkg/sub/b.py", "/r/pkg/c.py",
		"/r/pkg/other/d.py", "/r/e.py", "/elsewhere/f.py",
	}
	got := Proximity("/r/pkg/sub/a.py", all, 0)
	assert.Equal(t, []string{"/r/pkg/sub/b.py", "/r/pkg/c.py", "/r/pkg/other/d.py", "/r/e.py"}, got)

	assert.Equal(t, []string{"/r/pkg/sub/b.py", "/r/pkg/c.py"}, Proximity("/r/pkg/sub/a.py", all, 2))
}

func TestScanCrossFile_UsesCacheForReferences(t *testing.T) {
	dir := t.TempDir()
	pkg := filepath.Join(dir, "app")
	require.NoError(t, os.MkdirAll(pkg, 0755))
	a := filepath.Join(pkg, "sales.py")
	b := filepath.Join(pkg, "reports.py")
	require.NoError(t, os.WriteFile(a, []byte("def summarize_sales(records):\n"+summaryBody), 0644))
	require.NoError(t, os.WriteFile(b, []byte("def summarize_sales_report(records):\n"+summaryBody), 0644))

	cacheDir := filepath.Join(dir, "cache")
	d := New(DefaultOptions(), nil)
	rule := scanner.RuleRef{File: "rules/dup.json", Name: "No duplicate code"}

	run := func() ([]scanner.Violation, *scanner.RunContext) {
		rc := scanner.NewRunContext(scanner.RunContext{CacheDir: cacheDir})
		t.Cleanup(rc.Sources.Close)
		vs, err := d.ScanCrossFile(context.Background(), scanner.CrossFileRequest{
			Run: rc, Rule: rule, Changed: []string{a}, All: []string{a, b},
		})
		require.NoError(t, err)
		return vs, rc
	}

	first, rc1 := run()
	require.Len(t, first, 1)
	assert.Equal(t, a, first[0].Location)
	assert.Contains(t, first[0].Message, b)
	assert.Equal(t, 2, rc1.Sources.ParseCount())

	second, rc2 := run()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, rc2.Sources.ParseCount(), "reference file should come from the cache")
}

const computeA = `def compute_a(rows, rate):
    subtotal = 0
    for row in rows:
        subtotal += row.price * row.qty
    tax = apply_rate(subtotal, rate)
    if tax > cap(rate):
        tax = cap(rate)
    result = finish(subtotal, tax)
    return result
`

const computeB = `def compute_b(entries):
    acc = 1
    for e in entries:
        acc += e.weight / e.size
    fee = apply_rate(acc)
    if fee > cap(acc, 2):
        fee = cap(acc, 2)
    out = finish(acc, fee, entries)
    return out
`

func TestScanCrossFile_SameResultColdAndWarm(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.py")
	b := filepath.Join(dir, "b.py")
	require.NoError(t, os.WriteFile(a, []byte(computeA), 0644))
	require.NoError(t, os.WriteFile(b, []byte(computeB), 0644))

	cacheDir := filepath.Join(dir, "cache")
	d := New(DefaultOptions(), nil)
	run := func() ([]scanner.Violation, int) {
		rc := scanner.NewRunContext(scanner.RunContext{CacheDir: cacheDir})
		t.Cleanup(rc.Sources.Close)
		vs, err := d.ScanCrossFile(context.Background(), scanner.CrossFileRequest{
			Run: rc, Changed: []string{a}, All: []string{a, b},
		})
		require.NoError(t, err)
		return vs, rc.Sources.ParseCount()
	}

	cold, coldParses := run()
	warm, warmParses := run()
	assert.Equal(t, 2, coldParses)
	assert.Equal(t, 1, warmParses)
	assert.Equal(t, cold, warm)
	assert.Len(t, cold, 1)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(b, old, old))
	again, parses := run()
	assert.Equal(t, 2, parses, "a touched reference file is parsed again")
	assert.Equal(t, cold, again)
}

func TestBlockCache_KeyFollowsFileIdentity(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.py")
	src := "def summarize_sales(records):\n" + summaryBody
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	store, err := storage.NewFileStore(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	cache := NewBlockCache(store, "", nil)
	blocks := New(DefaultOptions(), nil).Extract(parse(t, path, src))
	require.NotEmpty(t, blocks)
	require.NoError(t, cache.Save(ctx, path, blocks))

	got, hit, err := cache.Load(ctx, path)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, len(blocks))
	assert.Equal(t, blocks[0].Signature, got[0].Signature)
	assert.Equal(t, blocks[0].Preview, got[0].Preview)
	assert.False(t, got[0].HasNodes())

	_, hit, err = NewBlockCache(store, "dup-next", nil).Load(ctx, path)
	require.NoError(t, err)
	assert.False(t, hit, "a new detector version misses")

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	_, hit, err = cache.Load(ctx, path)
	require.NoError(t, err)
	assert.False(t, hit, "a new modification time misses")

	require.NoError(t, cache.Save(ctx, path, blocks))
	_, hit, err = cache.Load(ctx, path)
	require.NoError(t, err)
	require.True(t, hit)

	require.NoError(t, os.WriteFile(path, []byte(src+"\n# trailing note\n"), 0644))
	require.NoError(t, os.Chtimes(path, later, later))
	_, hit, err = cache.Load(ctx, path)
	require.NoError(t, err)
	assert.False(t, hit, "a new size misses even with the same modification time")

	hits, misses := cache.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(2), misses)
}

func TestScanCrossFile_SymmetricPairsReportedOnce(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "one.py")
	b := filepath.Join(dir, "two.py")
	require.NoError(t, os.WriteFile(a, []byte("def summarize_sales(records):\n"+summaryBody), 0644))
	require.NoError(t, os.WriteFile(b, []byte("def summarize_sales_report(records):\n"+summaryBody), 0644))

	rc := scanner.NewRunContext(scanner.RunContext{CacheDir: filepath.Join(dir, "cache")})
	defer rc.Sources.Close()
	vs, err := New(DefaultOptions(), nil).ScanCrossFile(context.Background(), scanner.CrossFileRequest{
		Run: rc, Changed: []string{a, b}, All: []string{a, b},
	})
	require.NoError(t, err)
	assert.Len(t, vs, 1)
}

func TestRegisteredInDefaultRegistry(t *testing.T) {
	s, err := scanner.DefaultRegistry.Resolve(ScannerID, scanner.Env{Params: scanner.Params{"proximity_cap": 3}})
	require.NoError(t, err)
	cf, ok := scanner.IsTwoPass(s)
	require.True(t, ok)
	assert.Equal(t, 3, cf.(*Detector).Options().ProximityCap)
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n") + "\n"
}
