package acquire

import "errors"

var ErrAlreadyTared = errors.New("tare offset already set")

// Calibrator computes the tare offset once. The load cell must be unloaded
// while Tare runs; nothing here can check that.
type Calibrator struct {
	reader *Reader
	offset int32
	done   bool
}

func NewCalibrator(r *Reader) *Calibrator {
	return &Calibrator{reader: r}
}

// Tare averages SampleCount samples into the offset. A failed attempt leaves
// the calibrator untouched so it can be tried again; a successful one cannot
// be repeated.
func (c *Calibrator) Tare() (int32, error) {
	if c.done {
		return c.offset, ErrAlreadyTared
	}
	avg, err := Average(c.reader.ReadN(c.reader.cfg.SampleCount))
	if err != nil {
		return 0, err
	}
	c.offset = avg
	c.done = true
	return avg, nil
}

// Offset returns the tare offset and whether it has been set.
func (c *Calibrator) Offset() (int32, bool) {
	return c.offset, c.done
}
