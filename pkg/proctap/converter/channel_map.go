package converter

import (
	"fmt"

	"github.com/xaionaro-go/proctap/pkg/proctap/types"
)

// 6-channel layouts follow the WAV/SMPTE channel order.
const (
	chanFrontLeft = iota
	chanFrontRight
	chanFrontCenter
	chanLFE
	chanBackLeft
	chanBackRight
)

type frameMapFunc func(dst, src []float64)

func isSupportedChannels(c types.Channel) bool {
	switch c {
	case 1, 2, 6:
		return true
	}
	return false
}

// frameMapper returns a function mapping one frame from one channel
// layout into another. A nil function (without an error) means the
// layouts are equal and no mapping is needed.
//
// Mono is broadcast to every target channel; a downmix to mono averages
// every source channel except the LFE; 2<->6 use a fixed role mapping
// where the center contributes to both stereo sides and the LFE is
// dropped.
func frameMapper(from, to types.Channel) (frameMapFunc, error) {
	if !isSupportedChannels(from) || !isSupportedChannels(to) {
		return nil, fmt.Errorf(
			"%w: do not know how to convert %d channels to %d",
			types.ErrUnsupportedFormat, from, to,
		)
	}
	if from == to {
		return nil, nil
	}

	switch {
	case from == 1:
		return func(dst, src []float64) {
			for i := range dst {
				dst[i] = src[0]
			}
		}, nil
	case from == 2 && to == 1:
		return func(dst, src []float64) {
			dst[0] = (src[0] + src[1]) / 2
		}, nil
	case from == 6 && to == 1:
		return func(dst, src []float64) {
			dst[0] = (src[chanFrontLeft] +
				src[chanFrontRight] +
				src[chanFrontCenter] +
				src[chanBackLeft] +
				src[chanBackRight]) / 5
		}, nil
	case from == 6 && to == 2:
		return func(dst, src []float64) {
			dst[0] = (src[chanFrontLeft] + src[chanFrontCenter] + src[chanBackLeft]) / 3
			dst[1] = (src[chanFrontRight] + src[chanFrontCenter] + src[chanBackRight]) / 3
		}, nil
	case from == 2 && to == 6:
		return func(dst, src []float64) {
			dst[chanFrontLeft] = src[0]
			dst[chanFrontRight] = src[1]
			dst[chanFrontCenter] = 0
			dst[chanLFE] = 0
			dst[chanBackLeft] = 0
			dst[chanBackRight] = 0
		}, nil
	}
	return nil, fmt.Errorf(
		"%w: do not know how to convert %d channels to %d",
		types.ErrUnsupportedFormat, from, to,
	)
}
