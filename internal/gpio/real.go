//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// RealReader reads the input lines using the Linux GPIO character device.
// Encoder detents are counted from CLK edge events in the background, so a
// slow poll never loses a detent.
type RealReader struct {
	chip   *gpiocdev.Chip
	clk    *gpiocdev.Line
	dt     *gpiocdev.Line
	button *gpiocdev.Line
	handle *gpiocdev.Line

	position atomic.Int64
	dtErrors atomic.Int64
}

// NewRealReader requests the lines named by pins.
func NewRealReader(pins Pins) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	r := &RealReader{chip: chip}

	// DT must be ready before the CLK handler can fire.
	r.dt, err = chip.RequestLine(pins.DT, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request DT pin %d: %w", pins.DT, err)
	}

	r.button, err = chip.RequestLine(pins.Button, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request button pin %d: %w", pins.Button, err)
	}

	r.handle, err = chip.RequestLine(pins.Handle, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request handle pin %d: %w", pins.Handle, err)
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(r.onClock),
	}
	if pins.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(pins.Debounce))
	}
	r.clk, err = chip.RequestLine(pins.CLK, opts...)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request CLK pin %d: %w", pins.CLK, err)
	}

	return r, nil
}

// onClock counts one detent per falling CLK edge. DT high at the edge is
// clockwise.
func (r *RealReader) onClock(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	dt, err := r.dt.Value()
	if err != nil {
		r.dtErrors.Add(1)
		return
	}
	if dt == 1 {
		r.position.Add(1)
	} else {
		r.position.Add(-1)
	}
}

// Read returns the current encoder position and line states.
func (r *RealReader) Read() (Sample, error) {
	if n := r.dtErrors.Swap(0); n > 0 {
		return Sample{}, fmt.Errorf("read DT pin: %d edge(s) dropped", n)
	}

	btn, err := r.button.Value()
	if err != nil {
		return Sample{}, fmt.Errorf("read button pin: %w", err)
	}

	handle, err := r.handle.Value()
	if err != nil {
		return Sample{}, fmt.Errorf("read handle pin: %w", err)
	}

	return Sample{
		Position: r.position.Load(),
		Button:   btn == 1,
		Handle:   handle == 1,
	}, nil
}

// Close releases GPIO resources. The CLK line goes first so no handler runs
// against a closed DT line.
func (r *RealReader) Close() error {
	var err error
	for _, l := range []struct {
		name string
		line *gpiocdev.Line
	}{
		{"CLK", r.clk},
		{"DT", r.dt},
		{"button", r.button},
		{"handle", r.handle},
	} {
		if l.line == nil {
			continue
		}
		if cerr := l.line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s pin: %w", l.name, cerr))
		}
	}
	if r.chip != nil {
		if cerr := r.chip.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", cerr))
		}
	}
	return err
}
