package eval

// Phase identifies a stage of the evaluation pipeline for progress
// reporting.
type Phase string

const (
	PhaseFetch  Phase = "fetch"
	PhaseScore  Phase = "score"
	PhaseReport Phase = "report"
)

// ProgressFunc receives progress updates. percent is piecewise-linear
// across three fixed bands of the overall run: fetch occupies [0,60],
// score [60,80], and report [80,100].
type ProgressFunc func(phase Phase, current, total int, percent float64)

// Percent maps a phase-local completion ratio onto the overall progress
// scale. A zero total reports the start of the phase's band.
func Percent(phase Phase, current, total int) float64 {
	var frac float64
	if total > 0 {
		frac = float64(current) / float64(total)
	}

	switch phase {
	case PhaseFetch:
		return frac * 60
	case PhaseScore:
		return 60 + frac*20
	case PhaseReport:
		return 80 + frac*20
	default:
		return frac * 100
	}
}
