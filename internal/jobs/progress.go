package jobs

import "math"

// Stage labels shown while a job is generating.
const (
	StageQueued       = "queued"
	StageInitializing = "initializing"
	StageRendering    = "rendering"
	StageComposing    = "composing"
	StageFinalizing   = "finalizing"
	StageCompleted    = "completed"
	StageFailed       = "failed"
	StageCanceled     = "canceled"
)

const (
	defaultTargetSeconds = 5
	// maxGeneratingProgress keeps a generating job visibly short of done
	// until the backend confirms the asset exists.
	maxGeneratingProgress = 0.99
)

// Estimator produces a progress estimate without ground truth from the
// backend. The curve is a saturating exponential whose time constant grows
// with the requested clip length, so it rises quickly at first and flattens
// out below Ceiling.
type Estimator struct {
	BaseSeconds      float64
	SecondsPerTarget float64
	Ceiling          float64
}

// NewEstimator returns an Estimator tuned for short generated clips.
func NewEstimator() Estimator {
	return Estimator{BaseSeconds: 20, SecondsPerTarget: 12, Ceiling: 0.95}
}

// Estimate returns a value in [0, 1) that never decreases as elapsedSeconds
// grows, and the stage label for it.
func (e Estimator) Estimate(elapsedSeconds, targetDurationSeconds float64) (float64, string) {
	if targetDurationSeconds <= 0 {
		targetDurationSeconds = defaultTargetSeconds
	}
	if elapsedSeconds <= 0 || math.IsNaN(elapsedSeconds) {
		return 0, StageFor(0)
	}
	ceiling := e.Ceiling
	if ceiling <= 0 || ceiling >= 1 {
		ceiling = 0.95
	}
	tau := e.BaseSeconds + e.SecondsPerTarget*targetDurationSeconds
	if tau <= 0 {
		tau = 1
	}
	p := ceiling * (1 - math.Exp(-elapsedSeconds/tau))
	return p, StageFor(p)
}

// StageFor maps a progress value onto a human readable phase.
func StageFor(progress float64) string {
	switch {
	case progress < 0.1:
		return StageInitializing
	case progress < 0.6:
		return StageRendering
	case progress < 0.85:
		return StageComposing
	default:
		return StageFinalizing
	}
}

// Ratchet merges a new observation into the displayed value. Backend
// reported progress wins over the estimate for this tick, but the displayed
// value never goes down and never reaches 1 while the job is generating.
func Ratchet(previous float64, reported *float64, estimated float64) float64 {
	next := estimated
	if reported != nil && !math.IsNaN(*reported) {
		next = *reported
	}
	if next < previous {
		next = previous
	}
	if next < 0 {
		next = 0
	}
	if next > maxGeneratingProgress {
		next = maxGeneratingProgress
	}
	return next
}
