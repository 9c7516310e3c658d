package output

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

type Kind string

const (
	KindTare   Kind = "tare"
	KindWeight Kind = "weight"
	KindFault  Kind = "fault"
)

// Reading is one reported result. Value is the tare offset for KindTare and
// the tare-relative weight for KindWeight; Raw is the averaged raw value it
// came from. Err is set for KindFault.
type Reading struct {
	Kind      Kind      `json:"kind"`
	Value     int32     `json:"value"`
	Raw       int32     `json:"raw"`
	Tare      int32     `json:"tare"`
	Err       string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Line renders r for a text sink.
func (r Reading) Line() string {
	switch r.Kind {
	case KindTare:
		return fmt.Sprintf("Tare: %d", r.Value)
	case KindWeight:
		return fmt.Sprintf("Weight: %d", r.Value)
	}
	return fmt.Sprintf("Error: %s", r.Err)
}

type Output interface {
	Publish(Reading) error
	Close() error
}

// Multi publishes every reading to all outputs, even when some of them fail.
type Multi []Output

func (m Multi) Publish(r Reading) error {
	var err error
	for _, o := range m {
		err = multierr.Append(err, o.Publish(r))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, o := range m {
		err = multierr.Append(err, o.Close())
	}
	return err
}
