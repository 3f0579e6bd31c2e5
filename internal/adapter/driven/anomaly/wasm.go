package anomaly

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ExportDetect is the function a detection module must export, with the
// signature (f64) -> i32. A non-zero result flags an anomaly.
const ExportDetect = "detect_anomaly"

// Module runs a WebAssembly anomaly detector. Calls are serialized because
// a wazero function instance is not safe for concurrent use.
type Module struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	detect  api.Function
	closed  bool
}

// LoadFile reads and instantiates the module at path.
func LoadFile(ctx context.Context, path string) (*Module, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no module configured", domain.ErrCapabilityUnavailable)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCapabilityUnavailable, err)
	}
	return Load(ctx, b)
}

// Load instantiates a module from its binary form.
func Load(ctx context.Context, wasm []byte) (*Module, error) {
	// Calls must stop when their context ends, or a hung module would hold
	// the lock forever.
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	mod, err := r.Instantiate(ctx, wasm)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("%w: instantiate: %v", domain.ErrCapabilityUnavailable, err)
	}

	fn := mod.ExportedFunction(ExportDetect)
	if fn == nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("%w: missing export %q", domain.ErrCapabilityUnavailable, ExportDetect)
	}
	def := fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 1 || params[0] != api.ValueTypeF64 || len(results) != 1 || results[0] != api.ValueTypeI32 {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("%w: %q must have signature (f64) -> i32", domain.ErrCapabilityUnavailable, ExportDetect)
	}

	return &Module{runtime: r, detect: fn}, nil
}

func (m *Module) Detect(ctx context.Context, value float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, fmt.Errorf("%w: module closed", domain.ErrCapabilityUnavailable)
	}
	res, err := m.detect.Call(ctx, api.EncodeF64(value))
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrCapabilityUnavailable, err)
	}
	if len(res) != 1 {
		return false, fmt.Errorf("%w: %d results", domain.ErrCapabilityUnavailable, len(res))
	}
	return api.DecodeI32(res[0]) != 0, nil
}

func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.runtime.Close(ctx)
}
