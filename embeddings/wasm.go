package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	WasmProviderName  = "wasm"
	defaultWasmExport = "embed"
	wasmCallTimeout   = 30 * time.Second
)

// WasmOptions configures an embedding function backed by a WebAssembly plugin.
//
// The plugin exports a memory and a function (func (param i32 i32) (result i32 i32)).
// The host writes a JSON request {"documents": [...]} or {"images": [...]} at
// offset 0 and calls the export with (ptr, len). The export returns the location
// of a JSON response {"embeddings": [[...], ...]} in the same memory.
type WasmOptions struct {
	ModulePath string
	Export     string
	Dimension  int
	Metric     DistanceMetric
	Timeout    time.Duration
}

// WasmEmbeddingFunction runs a sandboxed WebAssembly module to embed input
type WasmEmbeddingFunction struct {
	modulePath string
	export     string
	dimension  int
	metric     DistanceMetric
	timeout    time.Duration
	host       *wasmHost
	closeOnce  *sync.Once
}

var (
	_ EmbeddingFunction = (*WasmEmbeddingFunction)(nil)
	_ Dimensioned       = (*WasmEmbeddingFunction)(nil)
	_ Closer            = (*WasmEmbeddingFunction)(nil)
)

type wasmRequest struct {
	Documents []string `json:"documents,omitempty"`
	Images    [][]byte `json:"images,omitempty"`
}

type wasmResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// wasmHost owns the wazero runtime and the compiled modules, keyed by content hash.
// Functions built from one another share a host, each holding one reference.
// The runtime is closed when the last reference is released.
type wasmHost struct {
	once    sync.Once
	mu      sync.Mutex
	runtime wazero.Runtime
	cache   map[uint64]wazero.CompiledModule
	refs    int
}

func (h *wasmHost) init() {
	h.once.Do(func() {
		config := wazero.NewRuntimeConfig().
			WithMemoryLimitPages(64). // 4MB
			WithCloseOnContextDone(true)
		h.runtime = wazero.NewRuntimeWithConfig(context.Background(), config)
		wasi_snapshot_preview1.MustInstantiate(context.Background(), h.runtime)
		h.cache = make(map[uint64]wazero.CompiledModule)
	})
}

func (h *wasmHost) compile(ctx context.Context, code []byte) (wazero.CompiledModule, error) {
	h.init()
	key := xxhash.Sum64(code)

	h.mu.Lock()
	defer h.mu.Unlock()

	if module, exists := h.cache[key]; exists {
		return module, nil
	}
	module, err := h.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WASM module: %w", err)
	}
	h.cache[key] = module
	return module, nil
}

func (h *wasmHost) acquire() *wasmHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs++
	return h
}

func (h *wasmHost) release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
	if h.refs > 0 || h.runtime == nil {
		return nil
	}
	return h.runtime.Close(ctx)
}

// NewWasmEmbeddingFunction creates a WebAssembly embedding function
func NewWasmEmbeddingFunction(opts WasmOptions) *WasmEmbeddingFunction {
	if opts.Export == "" {
		opts.Export = defaultWasmExport
	}
	if opts.Timeout == 0 {
		opts.Timeout = wasmCallTimeout
	}
	return &WasmEmbeddingFunction{
		modulePath: opts.ModulePath,
		export:     opts.Export,
		dimension:  opts.Dimension,
		metric:     opts.Metric,
		timeout:    opts.Timeout,
		host:       new(wasmHost).acquire(),
		closeOnce:  new(sync.Once),
	}
}

func (w *WasmEmbeddingFunction) Name() string {
	return WasmProviderName
}

// GenerateEmbeddings instantiates the module and makes one call for the whole input
func (w *WasmEmbeddingFunction) GenerateEmbeddings(ctx context.Context, input Embeddable) (Embeddings, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if w.modulePath == "" {
		return nil, fmt.Errorf("%w: wasm module_path is not set", ErrIncompleteConfiguration)
	}

	code, err := os.ReadFile(w.modulePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM module %s: %w", w.modulePath, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	module, err := w.host.compile(execCtx, code)
	if err != nil {
		return nil, err
	}

	// Anonymous instances so concurrent calls do not collide on module names
	instance, err := w.host.runtime.InstantiateModule(execCtx, module, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer instance.Close(execCtx)

	payload, err := json.Marshal(wasmRequest{
		Documents: input.DocumentList(),
		Images:    imageBytes(input.ImageList()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input: %w", err)
	}

	fn := instance.ExportedFunction(w.export)
	if fn == nil {
		return nil, fmt.Errorf("%w: module does not export %q", ErrUnsupportedConfiguration, w.export)
	}

	ptr, size, err := writeInput(instance, payload)
	if err != nil {
		return nil, err
	}

	results, err := fn.Call(execCtx, uint64(ptr), uint64(size))
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", w.export, err)
	}
	if len(results) != 2 {
		return nil, fmt.Errorf("%s should return (ptr, size), got %d results", w.export, len(results))
	}

	output, err := readOutput(instance, uint32(results[0]), uint32(results[1]))
	if err != nil {
		return nil, err
	}

	vectors, err := decodeWasmOutput(output)
	if err != nil {
		return nil, err
	}
	if err := checkShape(w.Name(), vectors, input.Len(), w.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Close releases this function's hold on the shared runtime. The runtime stays
// up while any function built from the same prototype is still open.
func (w *WasmEmbeddingFunction) Close(ctx context.Context) error {
	var err error
	w.closeOnce.Do(func() {
		err = w.host.release(ctx)
	})
	return err
}

func (w *WasmEmbeddingFunction) DefaultMetric() (DistanceMetric, error) {
	if w.metric == "" {
		return "", fmt.Errorf("%w: wasm metric is not set", ErrUnsupportedConfiguration)
	}
	if err := w.metric.Validate(); err != nil {
		return "", err
	}
	return w.metric, nil
}

func (w *WasmEmbeddingFunction) Dimension() int {
	return w.dimension
}

func (w *WasmEmbeddingFunction) GetConfig() Config {
	return Config{
		"module_path": w.modulePath,
		"export":      w.export,
		"dimension":   w.dimension,
		"metric":      string(w.metric),
	}
}

func (w *WasmEmbeddingFunction) BuildFromConfig(cfg Config) (EmbeddingFunction, error) {
	if err := checkKeys(w.Name(), cfg, "module_path", "export", "dimension", "metric"); err != nil {
		return nil, err
	}

	next := *w
	for key, field := range map[string]*string{
		"module_path": &next.modulePath,
		"export":      &next.export,
	} {
		if !cfg.Has(key) {
			continue
		}
		v, err := cfg.String(key)
		if err != nil {
			return nil, err
		}
		*field = v
	}
	if cfg.Has("dimension") {
		v, err := cfg.Int("dimension")
		if err != nil {
			return nil, err
		}
		next.dimension = v
	}
	if cfg.Has("metric") {
		v, err := cfg.String("metric")
		if err != nil {
			return nil, err
		}
		next.metric = DistanceMetric(v)
	}
	next.host = w.host.acquire()
	next.closeOnce = new(sync.Once)
	return &next, nil
}

func (w *WasmEmbeddingFunction) ModifiableVariables() []string {
	return []string{}
}

func imageBytes(images []Image) [][]byte {
	if len(images) == 0 {
		return nil
	}
	out := make([][]byte, len(images))
	for i, img := range images {
		out[i] = img
	}
	return out
}

// writeInput places payload at offset 0 of the module's memory
func writeInput(instance api.Module, payload []byte) (uint32, uint32, error) {
	mem := instance.Memory()
	if mem == nil {
		return 0, 0, fmt.Errorf("module has no memory")
	}

	size := uint32(len(payload))
	if uint64(size) > uint64(mem.Size()) {
		return 0, 0, fmt.Errorf("not enough memory: need %d bytes, have %d", size, mem.Size())
	}
	if !mem.Write(0, payload) {
		return 0, 0, fmt.Errorf("failed to write to memory")
	}
	return 0, size, nil
}

func readOutput(instance api.Module, ptr, size uint32) ([]byte, error) {
	mem := instance.Memory()
	if mem == nil {
		return nil, fmt.Errorf("module has no memory")
	}
	data, ok := mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("failed to read output at %d (+%d)", ptr, size)
	}
	// Read returns a view into linear memory, which goes away with the instance
	return append([]byte(nil), data...), nil
}

func decodeWasmOutput(output []byte) (Embeddings, error) {
	var resp wasmResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse output JSON: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("wasm plugin failed: %s", resp.Error)
	}
	vectors := make(Embeddings, len(resp.Embeddings))
	for i, v := range resp.Embeddings {
		vectors[i] = v
	}
	return vectors, nil
}
