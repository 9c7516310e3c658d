package console

import (
	"fmt"
	"io"
	"os"

	"github.com/ericogr/hx711-to-mqtt/pkg/output"
)

// ConsoleOutput is the text sink: one line per reading.
type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

func NewWriter(w io.Writer) output.Output { return &ConsoleOutput{w: w} }

func (c *ConsoleOutput) Publish(r output.Reading) error {
	_, err := fmt.Fprintln(c.w, r.Line())
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
