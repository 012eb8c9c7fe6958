package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	samples := []Sample{
		{Position: 0, Button: false, Handle: true},
		{Position: 2, Button: true, Handle: true},
		{Position: -1, Button: false, Handle: false},
	}

	f := NewFakeReader(samples)

	for i, want := range samples {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("sample %d: expected %+v, got %+v", i, want, got)
		}
	}

	// Fourth read should repeat last sample
	got, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != samples[2] {
		t.Errorf("sample 3 (repeat): expected %+v, got %+v", samples[2], got)
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	_, err := f.Read()
	if err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]Sample{{Handle: true}})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderPush(t *testing.T) {
	f := NewFakeReader([]Sample{{Position: 1}})
	f.Read()
	f.Push(Sample{Position: 5})

	got, _ := f.Read()
	if got.Position != 5 {
		t.Errorf("after push: expected position 5, got %d", got.Position)
	}
}

func TestFakeReaderClose(t *testing.T) {
	f := NewFakeReader([]Sample{{}})

	if f.Closed {
		t.Error("should not be closed initially")
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakeReaderReset(t *testing.T) {
	samples := []Sample{
		{Position: 3},
		{Position: 4},
	}

	f := NewFakeReader(samples)

	// Consume first sample
	f.Read()

	// Reset
	f.Reset()

	// Should read first sample again
	got, _ := f.Read()
	if got.Position != 3 {
		t.Errorf("after reset: expected position 3, got %d", got.Position)
	}
}
