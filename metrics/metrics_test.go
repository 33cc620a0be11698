package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.RuleFinished("parameter_count", "EXECUTED", 20*time.Millisecond)
	r.RuleFinished("missing", "LOAD_FAILED", 0)
	r.Violations("parameter_count", "warning", 3)
	r.Violations("parameter_count", "warning", 0)
	r.FileScanned("code")
	r.FileScanned("code")
	r.ParseError()
	r.CacheLookup(true)
	r.CacheLookup(false)
	r.CacheLookup(false)
	r.Comparisons(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.rules.WithLabelValues("EXECUTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rules.WithLabelValues("LOAD_FAILED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.violations.WithLabelValues("parameter_count", "warning")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.files.WithLabelValues("code")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.parseErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cache.WithLabelValues("miss")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.comparisons))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RuleFinished("x", "EXECUTED", time.Second)
		r.Violations("x", "error", 1)
		r.FileScanned("test")
		r.ParseError()
		r.CacheLookup(true)
		r.Comparisons(1)
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Violations("duplicate_code", "warning", 2)

	path := filepath.Join(t.TempDir(), "semcheck.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `semcheck_violations_total{rule="duplicate_code",severity="warning"} 2`)
}
