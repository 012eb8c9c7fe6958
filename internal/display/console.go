package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sweeney/t12-station/internal/status"
)

// Console prints screens to a writer when they change. Used in simulation
// and on boards without a panel.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	last  []string
	shown bool
}

// NewConsole creates a console renderer writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Render prints the screen for snap if it differs from the last one.
func (c *Console) Render(snap status.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := Lines(snap)
	if c.shown && equal(lines, c.last) {
		return nil
	}
	c.last, c.shown = lines, true
	_, err := fmt.Fprintf(c.w, "[%s]\n", strings.Join(lines, " | "))
	return err
}

// Blank prints an empty screen.
func (c *Console) Blank() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last, c.shown = nil, true
	_, err := fmt.Fprintln(c.w, "[]")
	return err
}

// Close is a no-op.
func (c *Console) Close() error { return nil }
