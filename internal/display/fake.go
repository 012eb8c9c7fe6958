package display

import (
	"sync"

	"github.com/sweeney/t12-station/internal/status"
)

// Fake records rendered screens for test assertions.
type Fake struct {
	mu      sync.Mutex
	screens [][]string
	blanks  int
	closed  bool

	// Err, if set, is returned by Render.
	Err error
}

// Render records the screen for snap.
func (f *Fake) Render(snap status.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.screens = append(f.screens, Lines(snap))
	return nil
}

// Blank records a blank screen.
func (f *Fake) Blank() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blanks++
	f.screens = append(f.screens, nil)
	return nil
}

// Close marks the renderer closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Last returns the most recent screen.
func (f *Fake) Last() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.screens) == 0 {
		return nil
	}
	return f.screens[len(f.screens)-1]
}

// Renders returns how many screens were recorded, blanks included.
func (f *Fake) Renders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.screens)
}

// Blanks returns how many times Blank was called.
func (f *Fake) Blanks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blanks
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
