package settings

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/t12-station/internal/logic"
)

// Debouncer delays saves until the observed settings have been stable for
// the configured interval. A failed save is logged and not retried until the
// settings change again.
type Debouncer struct {
	store    Store
	interval time.Duration

	mu        sync.Mutex
	current   logic.Settings
	changedAt time.Time
	saved     logic.Settings
	failing   bool
}

// NewDebouncer creates a debouncer. saved is the value already persisted.
func NewDebouncer(store Store, interval time.Duration, saved logic.Settings) *Debouncer {
	return &Debouncer{
		store:    store,
		interval: interval,
		current:  saved,
		saved:    saved,
	}
}

// Observe records the in-memory settings at now. The stability timer
// restarts only when the value differs from the last observation.
func (d *Debouncer) Observe(s logic.Settings, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s != d.current {
		d.current = s
		d.changedAt = now
	}
}

// Pending reports whether an observed value has not been persisted yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != d.saved
}

// Poll saves the current value if it has been stable for the interval.
// It reports whether a save was attempted.
func (d *Debouncer) Poll(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == d.saved || now.Sub(d.changedAt) < d.interval {
		return false
	}
	d.save()
	return true
}

// Flush saves any pending value immediately.
func (d *Debouncer) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == d.saved {
		return nil
	}
	return d.save()
}

func (d *Debouncer) save() error {
	err := d.store.Save(d.current)
	d.saved = d.current
	if err != nil {
		if !d.failing {
			log.Printf("settings: save failed: %v", err)
		}
		d.failing = true
		return err
	}
	if d.failing {
		log.Printf("settings: save recovered")
	}
	d.failing = false
	log.Printf("settings: saved target=%d pwm=%d freq=%d delay=%d offset=%d",
		d.current.TargetTemperature, d.current.PWMBaseline, d.current.PWMFrequencyHz,
		d.current.ControlPeriodMs, d.current.CalibrationOffset)
	return nil
}
