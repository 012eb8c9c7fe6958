// Package settings persists the station's tunables.
//
// The file format is a YAML map of namespaces, each a map of integer keys:
//
//	t12_cfg:
//	  target: 320
//	  pwm: 30
//	  freq: 2000
//	  delay: 100
//	  offset: -3
//
// Namespaces other than the station's are preserved on save.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/t12-station/internal/logic"
	"github.com/sweeney/t12-station/internal/mathx"
)

// Keys within the namespace.
const (
	KeyTarget = "target"
	KeyPWM    = "pwm"
	KeyFreq   = "freq"
	KeyDelay  = "delay"
	KeyOffset = "offset"
)

// DefaultNamespace is the namespace used when none is configured.
const DefaultNamespace = "t12_cfg"

// ErrNamespace is returned for an empty namespace.
var ErrNamespace = errors.New("settings: empty namespace")

// Store loads and saves settings.
type Store interface {
	// Load returns the persisted settings, with defaults for anything absent.
	Load(defaults logic.Settings) (logic.Settings, error)
	Save(s logic.Settings) error
}

// Bounds limits loaded values.
type Bounds struct {
	MinTemp int
	MaxTemp int
}

// Sanitize clamps every field to its valid range.
func Sanitize(s logic.Settings, b Bounds) logic.Settings {
	s.TargetTemperature = mathx.Clamp(s.TargetTemperature, b.MinTemp, b.MaxTemp)
	s.PWMBaseline = mathx.Clamp(s.PWMBaseline, 0, 255)
	s.PWMFrequencyHz = mathx.Clamp(s.PWMFrequencyHz, 100, 50000)
	s.ControlPeriodMs = mathx.Clamp(s.ControlPeriodMs, 10, 1000)
	return s
}

type document map[string]map[string]int

// FileStore keeps settings in a namespaced YAML file.
type FileStore struct {
	path      string
	namespace string
	bounds    Bounds
	mu        sync.Mutex
}

// NewFileStore creates a store for path. Loaded values are clamped to b.
func NewFileStore(path, namespace string, b Bounds) (*FileStore, error) {
	if namespace == "" {
		return nil, ErrNamespace
	}
	return &FileStore{path: path, namespace: namespace, bounds: b}, nil
}

// Path returns the file path.
func (f *FileStore) Path() string { return f.path }

// Load reads the namespace. A missing file or namespace yields defaults
// without error.
func (f *FileStore) Load(defaults logic.Settings) (logic.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return defaults, err
	}
	ns := doc[f.namespace]
	s := defaults
	if v, ok := ns[KeyTarget]; ok {
		s.TargetTemperature = v
	}
	if v, ok := ns[KeyPWM]; ok {
		s.PWMBaseline = v
	}
	if v, ok := ns[KeyFreq]; ok {
		s.PWMFrequencyHz = v
	}
	if v, ok := ns[KeyDelay]; ok {
		s.ControlPeriodMs = v
	}
	if v, ok := ns[KeyOffset]; ok {
		s.CalibrationOffset = v
	}
	return Sanitize(s, f.bounds), nil
}

// Save replaces the namespace and writes the file atomically.
func (f *FileStore) Save(s logic.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		// Unparseable files are overwritten.
		doc = document{}
	}
	doc[f.namespace] = map[string]int{
		KeyTarget: s.TargetTemperature,
		KeyPWM:    s.PWMBaseline,
		KeyFreq:   s.PWMFrequencyHz,
		KeyDelay:  s.ControlPeriodMs,
		KeyOffset: s.CalibrationOffset,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return writeAtomic(f.path, data)
}

func (f *FileStore) read() (document, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	doc := document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return doc, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename settings: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.Mutex
	saved   *logic.Settings
	saves   int
	SaveErr error
}

// Load returns the last saved settings, or defaults.
func (m *MemStore) Load(defaults logic.Settings) (logic.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return defaults, nil
	}
	return *m.saved, nil
}

// Save records s unless SaveErr is set.
func (m *MemStore) Save(s logic.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.saved = &s
	return nil
}

// Saves returns the number of Save calls, failed ones included.
func (m *MemStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
