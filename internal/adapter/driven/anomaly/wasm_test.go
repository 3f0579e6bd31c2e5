package anomaly

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Wyydra/yasignal/internal/core/domain"
)

// detectAbove50 is a hand-assembled module exporting
// detect_anomaly(f64) -> i32 that returns value > 50.0.
var detectAbove50 = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x01, 0x06, 0x01, 0x60, 0x01, 0x7c, 0x01, 0x7f, // type: (f64) -> i32
	0x03, 0x02, 0x01, 0x00, // function 0 uses type 0
	0x07, 0x12, 0x01, 0x0e, // export section, one entry, 14-byte name
	'd', 'e', 't', 'e', 'c', 't', '_', 'a', 'n', 'o', 'm', 'a', 'l', 'y',
	0x00, 0x00, // func 0
	0x0a, 0x10, 0x01, 0x0e, 0x00, // code section, one 14-byte body, no locals
	0x20, 0x00, // local.get 0
	0x44, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x49, 0x40, // f64.const 50.0
	0x64, // f64.gt
	0x0b, // end
}

// loopForever exports detect_anomaly(f64) -> i32 that never returns.
var loopForever = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x06, 0x01, 0x60, 0x01, 0x7c, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x12, 0x01, 0x0e,
	'd', 'e', 't', 'e', 'c', 't', '_', 'a', 'n', 'o', 'm', 'a', 'l', 'y',
	0x00, 0x00,
	0x0a, 0x0a, 0x01, 0x08, 0x00, // code section, one 8-byte body, no locals
	0x03, 0x40, // loop
	0x0c, 0x00, // br 0
	0x0b, // end
	0x00, // unreachable
	0x0b, // end
}

var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestModule_Detect(t *testing.T) {
	ctx := context.Background()
	m, err := Load(ctx, detectAbove50)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer m.Close(ctx)

	for _, tc := range []struct {
		value float64
		want  bool
	}{
		{10, false},
		{50, false},
		{50.5, true},
		{99.9, true},
	} {
		got, err := m.Detect(ctx, tc.value)
		if err != nil {
			t.Fatalf("detect(%v): %v", tc.value, err)
		}
		if got != tc.want {
			t.Errorf("detect(%v) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestModule_MissingExport(t *testing.T) {
	_, err := Load(context.Background(), emptyModule)
	if !errors.Is(err, domain.ErrCapabilityUnavailable) {
		t.Fatalf("err=%v, want ErrCapabilityUnavailable", err)
	}
}

func TestModule_InvalidBinary(t *testing.T) {
	_, err := Load(context.Background(), []byte("not wasm"))
	if !errors.Is(err, domain.ErrCapabilityUnavailable) {
		t.Fatalf("err=%v, want ErrCapabilityUnavailable", err)
	}
}

func TestModule_DetectAfterClose(t *testing.T) {
	ctx := context.Background()
	m, err := Load(ctx, detectAbove50)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.Detect(ctx, 60); !errors.Is(err, domain.ErrCapabilityUnavailable) {
		t.Fatalf("err=%v, want ErrCapabilityUnavailable", err)
	}
}

func TestSelector_WithWASMModule(t *testing.T) {
	ctx := context.Background()
	s := NewSelector(ctx, func(ctx context.Context) (Detector, error) {
		return Load(ctx, detectAbove50)
	}, nil)
	defer s.Close(ctx)

	if s.Mode() != ModePrimary {
		t.Fatalf("mode=%q, want %q", s.Mode(), ModePrimary)
	}
	if !s.Evaluate(60) {
		t.Fatalf("Evaluate(60) = false, want true from module")
	}
}

func TestSelector_HungModuleTimesOutToFallback(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	s := NewSelector(ctx, func(ctx context.Context) (Detector, error) {
		return Load(ctx, loopForever)
	}, sink)
	s.timeout = 100 * time.Millisecond
	defer s.Close(ctx)

	if s.Mode() != ModePrimary {
		t.Fatalf("mode=%q, want %q", s.Mode(), ModePrimary)
	}

	done := make(chan bool, 1)
	go func() { done <- s.Evaluate(80) }()
	select {
	case got := <-done:
		if !got {
			t.Fatalf("Evaluate(80) = false, want fallback verdict true")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Evaluate did not return for a hung module")
	}

	if s.Mode() != ModeFallback {
		t.Fatalf("mode=%q, want %q", s.Mode(), ModeFallback)
	}
	if s.Evaluate(70) {
		t.Fatalf("Evaluate(70) = true after fallback")
	}
	if ev := sink.Events(); len(ev) != 1 || ev[0] != "wasm_detection_error" {
		t.Fatalf("events=%v", ev)
	}
}
