// Package bridge talks to a companion microcontroller that owns the tip ADC
// and the heater MOSFET. Hosts without a usable ADC (a Raspberry Pi) use it
// as both the sensor.ADC and the heater.Driver.
//
// The protocol is line based at 115200 baud, one request and one reply:
//
//	R\n        -> <tip>,<supply>\n   12-bit counts
//	R<n>\n     -> <tip>,<supply>\n   tip averaged over n conversions, n 1..64
//	D<duty>\n  -> OK\n               duty 0..255
//	F<hz>\n    -> OK\n
//
// Any other reply is an error.
package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/multierr"

	"github.com/sweeney/t12-station/internal/mathx"
)

const (
	// DefaultBaudRate matches the firmware.
	DefaultBaudRate = 115200
	// ReadTimeout bounds one reply.
	ReadTimeout = 200 * time.Millisecond
	// MaxBurst is the largest conversion count the firmware averages.
	MaxBurst = 64
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("bridge: closed")

// Bridge is a connection to the companion MCU. It is safe for concurrent
// use; requests are serialised.
type Bridge struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	closer io.Closer
	closed bool
}

// Open opens the serial port and returns a bridge with the heater off.
func Open(port string, baud int) (*Bridge, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	if err := p.SetReadTimeout(ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	b := New(p)
	if err := b.Off(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// New wraps an established connection. If rw is an io.Closer, Close closes it.
func New(rw io.ReadWriter) *Bridge {
	b := &Bridge{w: rw, r: bufio.NewReader(rw)}
	if c, ok := rw.(io.Closer); ok {
		b.closer = c
	}
	return b
}

// ReadTip returns the tip ADC count.
func (b *Bridge) ReadTip() (uint16, error) {
	tip, _, err := b.Read()
	return tip, err
}

// ReadSupply returns the supply divider ADC count.
func (b *Bridge) ReadSupply() (uint16, error) {
	_, supply, err := b.Read()
	return supply, err
}

// Read returns both ADC channels from one request.
func (b *Bridge) Read() (tip, supply uint16, err error) {
	reply, err := b.request("R")
	if err != nil {
		return 0, 0, err
	}
	return parseReading(reply)
}

// ReadBurst has the MCU average n tip conversions and returns the mean with
// the supply count of the same cycle, in one round trip.
func (b *Bridge) ReadBurst(n int) (tip, supply uint16, err error) {
	if n <= 1 {
		return b.Read()
	}
	reply, err := b.request(fmt.Sprintf("R%d", min(n, MaxBurst)))
	if err != nil {
		return 0, 0, err
	}
	return parseReading(reply)
}

// SetDuty sets the heater drive, clamped to 0..255.
func (b *Bridge) SetDuty(duty int) error {
	return b.command(fmt.Sprintf("D%d", mathx.Clamp(duty, 0, 255)))
}

// SetFrequency sets the heater PWM carrier.
func (b *Bridge) SetFrequency(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("invalid pwm frequency %d", hz)
	}
	return b.command(fmt.Sprintf("F%d", hz))
}

// Off sets zero drive.
func (b *Bridge) Off() error {
	return b.SetDuty(0)
}

// Close turns the heater off and closes the port.
func (b *Bridge) Close() error {
	err := b.Off()
	if errors.Is(err, ErrClosed) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.closer != nil {
		err = multierr.Append(err, b.closer.Close())
	}
	return err
}

func (b *Bridge) command(cmd string) error {
	reply, err := b.request(cmd)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("bridge: %s: unexpected reply %q", cmd, reply)
	}
	return nil
}

func (b *Bridge) request(cmd string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrClosed
	}
	if _, err := io.WriteString(b.w, cmd+"\n"); err != nil {
		return "", fmt.Errorf("bridge: send %s: %w", cmd, err)
	}
	line, err := b.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("bridge: reply to %s: %w", cmd, err)
	}
	return strings.TrimSpace(line), nil
}

func parseReading(reply string) (uint16, uint16, error) {
	tipStr, supplyStr, ok := strings.Cut(reply, ",")
	if !ok {
		return 0, 0, fmt.Errorf("bridge: malformed reading %q", reply)
	}
	tip, err := strconv.ParseUint(strings.TrimSpace(tipStr), 10, 12)
	if err != nil {
		return 0, 0, fmt.Errorf("bridge: tip value: %w", err)
	}
	supply, err := strconv.ParseUint(strings.TrimSpace(supplyStr), 10, 12)
	if err != nil {
		return 0, 0, fmt.Errorf("bridge: supply value: %w", err)
	}
	return uint16(tip), uint16(supply), nil
}
