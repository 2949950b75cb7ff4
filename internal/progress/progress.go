package progress

// segment is one piece of the piecewise-linear re-acceleration curve.
// For raw p in [start, end) the displayed value is offset + (p-start)*mult.
type segment struct {
	start  float64
	end    float64
	mult   float64
	offset float64
}

// The curve's breakpoints are a reproducibility contract: segments are
// contiguous and the output is non-decreasing over [0,100].
var segments = []segment{
	{0, 15, 0.5, 0},
	{15, 40, 0.7, 7.5},
	{40, 70, 0.9, 25},
	{70, 90, 1.3, 52},
	{90, 100, 2.2, 78},
}

// phaseLabel pairs a raw-progress threshold with the label shown once raw
// progress reaches it. Scanned in descending order; highest threshold wins.
type phaseLabel struct {
	threshold float64
	label     string
}

var phaseLabels = []phaseLabel{
	{100, "Finishing up..."},
	{90, "Creating diagnostics..."},
	{75, "Rendering animation..."},
	{55, "Rendering final image..."},
	{40, "Computing pixel assignment..."},
	{25, "Extracting pixel data..."},
	{10, "Initializing..."},
}

// startingLabel is returned below the lowest threshold.
const startingLabel = "Starting..."

// Remap converts a raw server-reported percentage into the displayed
// percentage. Raw values outside [0,100] are clamped before lookup. The
// result is always within [0,100] and non-decreasing in the input.
func Remap(raw float64) float64 {
	raw = clamp(raw)

	for _, s := range segments {
		if raw < s.end {
			return s.offset + (raw-s.start)*s.mult
		}
	}

	// raw == 100 falls through the half-open segments.
	last := segments[len(segments)-1]
	return last.offset + (raw-last.start)*last.mult
}

// LabelFor returns the human-readable phase label for a raw percentage:
// the label of the highest threshold not exceeding it, or the starting
// label below the lowest threshold.
func LabelFor(raw float64) string {
	raw = clamp(raw)

	for _, pl := range phaseLabels {
		if raw >= pl.threshold {
			return pl.label
		}
	}
	return startingLabel
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
