package converter

import (
	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// resampleState converts the sample rate of an interleaved float64
// stream, one chunk at a time, carrying the phase and the interpolation
// window across calls.
//
// The phase is tracked in integer arithmetic: after consuming T source
// frames the state has produced exactly round(T * toRate / fromRate)
// frames, so the stream length never drifts no matter how the input is
// chunked.
type resampleState struct {
	fromRate  uint64
	toRate    uint64
	channels  int
	framesIn  uint64
	framesOut uint64

	// tail of the previous chunk, for the interpolation window at the
	// chunk border
	hist       []float64
	histFrames int
	primed     bool

	// one-pole low-pass, engaged only when downsampling
	filterAlpha float64
	filterState []float64
}

func newResampleState(
	from types.SampleRate,
	to types.SampleRate,
	channels types.Channel,
) *resampleState {
	fromRate, toRate := uint64(from), uint64(to)
	d := gcd(fromRate, toRate)
	fromRate, toRate = fromRate/d, toRate/d

	// an output frame may fall up to fromRate/(2*toRate) source frames
	// behind the current chunk, and the cubic window reaches one more
	// frame back
	histFrames := int(ceilDiv(fromRate, 2*toRate)) + 1
	if histFrames < 3 {
		histFrames = 3
	}

	st := &resampleState{
		fromRate:    fromRate,
		toRate:      toRate,
		channels:    int(channels),
		hist:        make([]float64, histFrames*int(channels)),
		histFrames:  histFrames,
		filterState: make([]float64, int(channels)),
	}
	if fromRate > toRate {
		// cheap anti-aliasing before decimation
		st.filterAlpha = 0.5
	}
	return st
}

// outputLen returns the amount of frames the next resample call will
// produce for n source frames.
func (st *resampleState) outputLen(n int) int {
	total := roundDiv((st.framesIn+uint64(n))*st.toRate, st.fromRate)
	return int(total - st.framesOut)
}

// resample consumes src (a whole number of interleaved frames), appends
// the produced frames to dst and returns it. src is used as scratch
// space by the anti-aliasing filter.
func (st *resampleState) resample(dst, src []float64) []float64 {
	ch := st.channels
	n := len(src) / ch
	if n == 0 {
		return dst
	}

	if st.filterAlpha > 0 {
		if !st.primed {
			copy(st.filterState, src[:ch])
		}
		for i := 0; i < n; i++ {
			for c := 0; c < ch; c++ {
				v := st.filterAlpha*src[i*ch+c] + (1-st.filterAlpha)*st.filterState[c]
				src[i*ch+c] = v
				st.filterState[c] = v
			}
		}
	}

	if !st.primed {
		for i := 0; i < st.histFrames; i++ {
			copy(st.hist[i*ch:(i+1)*ch], src[:ch])
		}
		st.primed = true
	}

	// frame i of the current chunk, with the previous chunk's tail at
	// negative indexes and the edge frames duplicated beyond the range
	frame := func(i, c int) float64 {
		switch {
		case i < -st.histFrames:
			return st.hist[c]
		case i < 0:
			return st.hist[(st.histFrames+i)*ch+c]
		case i > n-1:
			return src[(n-1)*ch+c]
		}
		return src[i*ch+c]
	}

	count := uint64(st.outputLen(n))
	for j := uint64(0); j < count; j++ {
		num := (st.framesOut + j) * st.fromRate
		i := int(int64(num/st.toRate) - int64(st.framesIn))
		frac := float64(num%st.toRate) / float64(st.toRate)
		for c := 0; c < ch; c++ {
			dst = append(dst, cubicInterpolate(
				frame(i-1, c),
				frame(i, c),
				frame(i+1, c),
				frame(i+2, c),
				frac,
			))
		}
	}
	st.framesOut += count
	st.framesIn += uint64(n)

	if n >= st.histFrames {
		copy(st.hist, src[(n-st.histFrames)*ch:])
	} else {
		copy(st.hist, st.hist[n*ch:])
		copy(st.hist[(st.histFrames-n)*ch:], src)
	}
	return dst
}

// cubicInterpolate evaluates a Catmull-Rom spline through four
// consecutive samples at fractional position x between y1 and y2.
func cubicInterpolate(y0, y1, y2, y3, x float64) float64 {
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1
	return a0*x*x*x + a1*x*x + a2*x + a3
}

func roundDiv(a, b uint64) uint64 {
	return (2*a + b) / (2 * b)
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
