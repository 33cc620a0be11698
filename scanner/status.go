package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Phase names a stage of a rule's execution.
type Phase string

const (
	PhaseStart     Phase = "start"
	PhaseFile      Phase = "file"
	PhaseCrossFile Phase = "cross_file"
	PhaseDone      Phase = "done"
	PhaseSkip      Phase = "skip"
)

// ProgressUpdate is one status message.
type ProgressUpdate struct {
	Rule    string
	Phase   Phase
	Done    int
	Total   int
	Percent float64
	ETA     time.Duration
	Message string
}

// Line renders the update as a single status line.
func (u ProgressUpdate) Line() string {
	switch {
	case u.Phase == PhaseSkip:
		return fmt.Sprintf("[SKIP] %s: %s", u.Rule, u.Message)
	case u.Total > 0 && u.ETA > 0:
		return fmt.Sprintf("[%s] %s: %d/%d (%.0f%%, eta %s) %s",
			u.Phase, u.Rule, u.Done, u.Total, u.Percent, u.ETA.Round(time.Second), u.Message)
	case u.Total > 0:
		return fmt.Sprintf("[%s] %s: %d/%d %s", u.Phase, u.Rule, u.Done, u.Total, u.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", u.Phase, u.Rule, u.Message)
}

// StatusSink receives progress updates. Implementations must be safe for
// concurrent use when workers run in parallel.
type StatusSink interface {
	Report(u ProgressUpdate)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(u ProgressUpdate)

// Report implements StatusSink.
func (f StatusFunc) Report(u ProgressUpdate) { f(u) }

// NopStatus discards updates.
type NopStatus struct{}

// Report implements StatusSink.
func (NopStatus) Report(ProgressUpdate) {}

// LogStatus writes updates to a logger at debug level, skips and completions
// at info.
type LogStatus struct {
	Logger *slog.Logger
}

// Report implements StatusSink.
func (s LogStatus) Report(u ProgressUpdate) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	if u.Phase == PhaseSkip || u.Phase == PhaseDone {
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, u.Line(), "rule", u.Rule, "phase", string(u.Phase))
}

// NewProgress computes percent and ETA for done of total since start.
func NewProgress(rule string, phase Phase, done, total int, start time.Time, msg string) ProgressUpdate {
	u := ProgressUpdate{Rule: rule, Phase: phase, Done: done, Total: total, Message: msg}
	if total > 0 {
		u.Percent = float64(done) * 100 / float64(total)
	}
	if done > 0 && total > done {
		elapsed := time.Since(start)
		u.ETA = time.Duration(float64(elapsed) / float64(done) * float64(total-done))
	}
	return u
}
