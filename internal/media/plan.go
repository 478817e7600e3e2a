package media

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPlan is returned for a frame count below one or a NaN interval.
var ErrInvalidPlan = errors.New("invalid sampling plan")

const (
	// minInterval is the smallest spacing between sampled frames, in seconds.
	minInterval = 0.1
	// endMargin keeps seeks away from the very end of the stream, where many
	// containers have no decodable frame.
	endMargin = 0.1
)

// Plan describes which timestamps a sampling run visits.
type Plan struct {
	FrameCount int
	Interval   float64
	Duration   float64
}

// NewPlan validates its inputs and returns a plan.
func NewPlan(frameCount int, interval, duration float64) (Plan, error) {
	if err := validDuration(duration); err != nil {
		return Plan{}, err
	}
	if frameCount < 1 {
		return Plan{}, fmt.Errorf("%w: frame count %d", ErrInvalidPlan, frameCount)
	}
	if math.IsNaN(interval) {
		return Plan{}, fmt.Errorf("%w: interval is NaN", ErrInvalidPlan)
	}
	return Plan{FrameCount: frameCount, Interval: interval, Duration: duration}, nil
}

// EffectiveInterval is the requested interval capped so all frames fit in
// the duration, and never below 0.1s. The lower bound wins when the cap
// falls below it.
func (p Plan) EffectiveInterval() float64 {
	upper := p.Duration / float64(max(1, p.FrameCount))
	return math.Max(minInterval, math.Min(p.Interval, upper))
}

// Len is how many timestamps the plan visits: FrameCount, or fewer when the
// stream ends first. It is bounded by the duration, not by the caller.
func (p Plan) Len() int {
	fit := math.Ceil(p.Duration / p.EffectiveInterval())
	if fit < float64(p.FrameCount) {
		return int(fit)
	}
	return p.FrameCount
}

// At returns the i-th timestamp and false once it falls at or past the end
// of the stream.
func (p Plan) At(i int) (float64, bool) {
	if i >= p.FrameCount {
		return 0, false
	}
	t := float64(i) * p.EffectiveInterval()
	return t, t < p.Duration
}

// Timestamps returns t_i = i*EffectiveInterval for as long as fewer than
// FrameCount have been produced and t_i is before the end of the stream.
func (p Plan) Timestamps() []float64 {
	out := make([]float64, 0, p.Len())
	for i := 0; ; i++ {
		t, ok := p.At(i)
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// SeekTarget clamps t to at most Duration-0.1, floored at zero.
func (p Plan) SeekTarget(t float64) float64 {
	return math.Max(0, math.Min(t, p.Duration-endMargin))
}

func validDuration(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidDuration, d)
	}
	return nil
}
