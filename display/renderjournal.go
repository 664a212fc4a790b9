package display

import (
	"math"
	"time"
)

// RenderJournal estimates how long rendering a frame takes from the history
// of recent render times.
type RenderJournal struct {
	result   time.Duration
	variance time.Duration
	lastAdd  time.Duration
	hasAdd   bool
}

// Add records the render time of a frame presented at presentationTime.
func (j *RenderJournal) Add(renderTime, presentationTime time.Duration) {
	if !j.hasAdd || presentationTime-j.lastAdd > time.Second {
		j.result = renderTime
		j.variance = 0
	} else {
		const ratio = 0.1
		j.result = time.Duration(float64(j.result)*(1-ratio) + float64(renderTime)*ratio)
		diff := time.Duration(math.Abs(float64(renderTime - j.result)))
		j.variance = time.Duration(math.Max(float64(diff), float64(j.variance)*(1-ratio)+float64(diff)*ratio))
	}
	j.lastAdd = presentationTime
	j.hasAdd = true
}

// Result is the estimated render time with a safety margin.
func (j *RenderJournal) Result() time.Duration {
	return j.result + 2*j.variance
}
