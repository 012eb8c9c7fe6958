package heater

import (
	"sync"

	"github.com/sweeney/t12-station/internal/mathx"
)

// Fake records every write for tests.
type Fake struct {
	mu        sync.Mutex
	duty      int
	frequency int
	writes    []int
	offs      int
	closed    bool

	// Err, if set, is returned by every call.
	Err error
}

// SetDuty records the clamped drive value.
func (f *Fake) SetDuty(duty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.duty = mathx.Clamp(duty, 0, MaxDuty)
	f.writes = append(f.writes, f.duty)
	return nil
}

// SetFrequency records the frequency.
func (f *Fake) SetFrequency(hz int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.frequency = hz
	return nil
}

// Off records a zero write.
func (f *Fake) Off() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.duty = 0
	f.offs++
	f.writes = append(f.writes, 0)
	return nil
}

// Close marks the fake closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duty = 0
	f.closed = true
	return nil
}

// Duty returns the last written value.
func (f *Fake) Duty() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duty
}

// Frequency returns the last frequency set.
func (f *Fake) Frequency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frequency
}

// Writes returns a copy of every value written, Off included.
func (f *Fake) Writes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.writes...)
}

// Offs returns the number of Off calls.
func (f *Fake) Offs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offs
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
