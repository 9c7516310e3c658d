package sensor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
)

// Simulated produces conversions without hardware. With a script it replays
// the scripted codes in order (wrapping around); otherwise it returns
// Baseline plus Load (once LoadAfter conversions have passed) plus uniform
// noise in [-Noise, Noise] from a seeded generator.
type Simulated struct {
	mu        sync.Mutex
	script    []int32
	baseline  int32
	load      int32
	loadAfter int
	noise     int32
	rng       *rand.Rand
	count     int
}

func NewSimulated(cfg config.SimulationConfig) *Simulated {
	return &Simulated{
		script:    append([]int32(nil), cfg.Script...),
		baseline:  cfg.Baseline,
		load:      cfg.Load,
		loadAfter: cfg.LoadAfter,
		noise:     cfg.Noise,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Simulated) Exchange(Gain, time.Duration) (RawSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.count
	s.count++
	if len(s.script) > 0 {
		return clamp(int64(s.script[n%len(s.script)])), nil
	}
	v := int64(s.baseline)
	if n >= s.loadAfter {
		v += int64(s.load)
	}
	if s.noise > 0 {
		v += s.rng.Int63n(2*int64(s.noise)+1) - int64(s.noise)
	}
	return clamp(v), nil
}

// clamp saturates v to the 24-bit range and runs it through the same decode
// path as a real conversion.
func clamp(v int64) RawSample {
	if v < int64(MinRawSample) {
		v = int64(MinRawSample)
	}
	if v > int64(MaxRawSample) {
		v = int64(MaxRawSample)
	}
	return SignExtend(uint32(v) & 0xFFFFFF)
}

func (s *Simulated) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	return nil
}

func (s *Simulated) Close() error { return nil }
