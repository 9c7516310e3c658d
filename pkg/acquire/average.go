package acquire

import (
	"iter"

	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

// Average consumes samples and returns their mean truncated toward zero.
// The first error in the sequence is returned as is.
func Average(samples iter.Seq2[sensor.RawSample, error]) (int32, error) {
	var sum int64
	var n int64
	for s, err := range samples {
		if err != nil {
			return 0, err
		}
		sum += int64(s)
		n++
	}
	if n == 0 {
		return 0, ErrInsufficientSamples
	}
	return int32(sum / n), nil
}

// Mean is Average over a slice.
func Mean(samples []sensor.RawSample) (int32, error) {
	return Average(func(yield func(sensor.RawSample, error) bool) {
		for _, s := range samples {
			if !yield(s, nil) {
				return
			}
		}
	})
}
