package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted samples.
type FakeReader struct {
	mu sync.Mutex

	// Samples contains scripted readings to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return Sample{}, f.ReadError
	}

	if len(f.Samples) == 0 {
		return Sample{}, errors.New("no samples configured")
	}

	if f.index >= len(f.Samples) {
		return f.Samples[len(f.Samples)-1], nil
	}
	sample := f.Samples[f.index]
	f.index++

	return sample, nil
}

// Push appends samples to the script.
func (f *FakeReader) Push(samples ...Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = append(f.Samples, samples...)
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Closed = false
}
