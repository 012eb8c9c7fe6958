// Package onewire reads a DS18B20 ambient probe through the kernel w1
// driver's sysfs files.
package onewire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultDir is where the w1 bus exposes its devices.
const DefaultDir = "/sys/bus/w1/devices"

// ErrNoDevice is returned when no DS18B20 is present on the bus.
var ErrNoDevice = errors.New("onewire: no DS18B20 found")

// ErrCRC is returned when the driver reports a failed checksum.
var ErrCRC = errors.New("onewire: crc check failed")

// Probe is one DS18B20.
type Probe struct {
	path string // w1_slave file
}

// Open finds the probe with the given id under dir. An empty id picks the
// first DS18B20 (family code 28) in name order.
func Open(dir, id string) (*Probe, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if id != "" {
		path := filepath.Join(dir, id, "w1_slave")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("onewire: probe %s: %w", id, err)
		}
		return &Probe{path: path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "28-*", "w1_slave"))
	if err != nil {
		return nil, fmt.Errorf("onewire: scan %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, ErrNoDevice
	}
	sort.Strings(matches)
	return &Probe{path: matches[0]}, nil
}

// ID returns the device id, e.g. 28-0316a2795cff.
func (p *Probe) ID() string {
	return filepath.Base(filepath.Dir(p.path))
}

// ReadCelsius reads the probe. A conversion takes up to 750 ms in the
// kernel, so callers should not read it on a fast path.
func (p *Probe) ReadCelsius() (float64, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("onewire: read %s: %w", p.ID(), err)
	}
	return parse(string(data))
}

// parse decodes w1_slave output:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parse(data string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("onewire: short read %q", data)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}
	_, raw, ok := strings.Cut(lines[1], "t=")
	if !ok {
		return 0, fmt.Errorf("onewire: no temperature in %q", lines[1])
	}
	milli, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("onewire: temperature: %w", err)
	}
	return float64(milli) / 1000, nil
}
