package can

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Source produces a fresh RawMessage on each call.
type Source interface {
	Next() (RawMessage, error)
}

// RandomSource simulates a bus emitting uniformly distributed intents within
// the documented ranges.
type RandomSource struct {
	throttle distuv.Uniform
	steering distuv.Uniform
	brake    distuv.Uniform
}

// NewRandomSource builds a RandomSource, a nil src uses the global generator.
func NewRandomSource(src rand.Source) *RandomSource {
	return &RandomSource{
		throttle: distuv.Uniform{Min: 0., Max: 1., Src: src},
		steering: distuv.Uniform{Min: -1., Max: 1., Src: src},
		brake:    distuv.Uniform{Min: 0., Max: 1., Src: src},
	}
}

func (r *RandomSource) Next() (RawMessage, error) {
	return RawMessage{
		Throttle: Some(r.throttle.Rand()),
		Steering: Some(r.steering.Rand()),
		Brake:    Some(r.brake.Rand()),
	}, nil
}

// RampSource increases throttle linearly from 0.0 to 1.0 over steps messages
// then holds 1.0. Steering and brake are never set.
type RampSource struct {
	steps int
	i     int
}

func NewRampSource(steps int) *RampSource {
	if steps < 1 {
		steps = 1
	}
	return &RampSource{steps: steps}
}

func (r *RampSource) Next() (RawMessage, error) {
	throttle := 1.
	if r.steps > 1 && r.i < r.steps-1 {
		throttle = float64(r.i) / float64(r.steps-1)
	}
	r.i++
	return RawMessage{Throttle: Some(throttle)}, nil
}
