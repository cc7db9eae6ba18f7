package embeddings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoModule exports memory and embed(ptr, len) -> (ptr, len), returning its input
var echoModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	// type section: (func (param i32 i32) (result i32 i32))
	0x01, 0x08, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x02, 0x7f, 0x7f,
	// function section
	0x03, 0x02, 0x01, 0x00,
	// memory section: min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export section: "memory", "embed"
	0x07, 0x12, 0x02,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	0x05, 0x65, 0x6d, 0x62, 0x65, 0x64, 0x00, 0x00,
	// code section: local.get 0, local.get 1
	0x0a, 0x08, 0x01, 0x06, 0x00, 0x20, 0x00, 0x20, 0x01, 0x0b,
}

// constantModule exports memory and embed(ptr, len) -> (ptr, len), always
// returning output from a data segment at offset 1024
func constantModule(output string) []byte {
	const offset = 1024
	body := []byte{0x00, 0x41}
	body = appendSLEB(body, offset)
	body = append(body, 0x41)
	body = appendSLEB(body, len(output))
	body = append(body, 0x0b)

	code := append([]byte{0x01}, appendULEB(nil, len(body))...)
	code = append(code, body...)

	data := []byte{0x01, 0x00, 0x41}
	data = appendSLEB(data, offset)
	data = append(data, 0x0b)
	data = appendULEB(data, len(output))
	data = append(data, output...)

	module := append([]byte(nil), echoModule[:47]...) // header through the export section
	module = append(module, 0x0a)
	module = appendULEB(module, len(code))
	module = append(module, code...)
	module = append(module, 0x0b)
	module = appendULEB(module, len(data))
	return append(module, data...)
}

func appendULEB(b []byte, v int) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// appendSLEB encodes non-negative v as a signed LEB128 i32 immediate
func appendSLEB(b []byte, v int) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 && c&0x40 == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func writeModule(t *testing.T, code []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embed.wasm")
	require.NoError(t, os.WriteFile(path, code, 0o600))
	return path
}

func TestWasmEmbeddingFunction(t *testing.T) {
	ctx := context.Background()
	path := writeModule(t, echoModule)

	t.Run("Should require a module path", func(t *testing.T) {
		ef := NewWasmEmbeddingFunction(WasmOptions{Metric: Cosine})
		_, err := ef.GenerateEmbeddings(ctx, Document("x"))
		assert.ErrorIs(t, err, ErrIncompleteConfiguration)
	})

	t.Run("Should reject output that is not an embedding response", func(t *testing.T) {
		ef := NewWasmEmbeddingFunction(WasmOptions{ModulePath: path, Metric: Cosine})
		defer ef.Close(ctx)

		// The echo module hands the request back, which carries no embeddings
		_, err := ef.GenerateEmbeddings(ctx, Documents("a", "b"))
		assert.ErrorIs(t, err, ErrDimensionMismatch)

		_, err = ef.GenerateEmbeddings(ctx, Images(Image{0x89, 0x50}))
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("Should fail when the export is missing", func(t *testing.T) {
		ef := NewWasmEmbeddingFunction(WasmOptions{ModulePath: path, Export: "solve", Metric: Cosine})
		defer ef.Close(ctx)

		_, err := ef.GenerateEmbeddings(ctx, Document("x"))
		assert.ErrorIs(t, err, ErrUnsupportedConfiguration)
	})

	t.Run("Should fail on invalid modules", func(t *testing.T) {
		ef := NewWasmEmbeddingFunction(WasmOptions{ModulePath: writeModule(t, []byte("not wasm")), Metric: Cosine})
		defer ef.Close(ctx)

		_, err := ef.GenerateEmbeddings(ctx, Document("x"))
		assert.Error(t, err)
	})

	t.Run("Should fail on a missing file", func(t *testing.T) {
		ef := NewWasmEmbeddingFunction(WasmOptions{ModulePath: filepath.Join(t.TempDir(), "absent.wasm"), Metric: Cosine})
		_, err := ef.GenerateEmbeddings(ctx, Document("x"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Should return the embeddings the plugin produces", func(t *testing.T) {
		ef := NewWasmEmbeddingFunction(WasmOptions{
			ModulePath: writeModule(t, constantModule(`{"embeddings":[[1,0],[0,1]]}`)),
			Dimension:  2,
			Metric:     Cosine,
		})
		defer ef.Close(ctx)

		vectors, err := ef.GenerateEmbeddings(ctx, Documents("a", "b"))
		require.NoError(t, err)
		assert.Equal(t, Embeddings{{1, 0}, {0, 1}}, vectors)
	})

	t.Run("Should reject plugin vectors of the wrong shape", func(t *testing.T) {
		path := writeModule(t, constantModule(`{"embeddings":[[1,0],[0,1]]}`))
		ef := NewWasmEmbeddingFunction(WasmOptions{ModulePath: path, Dimension: 3, Metric: Cosine})
		defer ef.Close(ctx)

		_, err := ef.GenerateEmbeddings(ctx, Documents("a", "b"))
		assert.ErrorIs(t, err, ErrDimensionMismatch)

		unsized := NewWasmEmbeddingFunction(WasmOptions{ModulePath: path, Metric: Cosine})
		defer unsized.Close(ctx)

		_, err = unsized.GenerateEmbeddings(ctx, Documents("a", "b", "c"))
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("Should surface errors reported by the plugin", func(t *testing.T) {
		ef := NewWasmEmbeddingFunction(WasmOptions{
			ModulePath: writeModule(t, constantModule(`{"error":"model not loaded"}`)),
			Metric:     Cosine,
		})
		defer ef.Close(ctx)

		_, err := ef.GenerateEmbeddings(ctx, Document("a"))
		assert.ErrorContains(t, err, "model not loaded")
	})

	t.Run("Should keep the runtime open while a built function is in use", func(t *testing.T) {
		proto := NewWasmEmbeddingFunction(WasmOptions{
			ModulePath: writeModule(t, constantModule(`{"embeddings":[[1,0]]}`)),
			Metric:     Cosine,
		})
		built, err := proto.BuildFromConfig(Config{"dimension": 2})
		require.NoError(t, err)

		_, err = proto.GenerateEmbeddings(ctx, Document("a"))
		require.NoError(t, err)

		require.NoError(t, proto.Close(ctx))
		require.NoError(t, proto.Close(ctx))

		vectors, err := built.GenerateEmbeddings(ctx, Document("a"))
		require.NoError(t, err)
		assert.Equal(t, Embeddings{{1, 0}}, vectors)

		require.NoError(t, built.(*WasmEmbeddingFunction).Close(ctx))
		_, err = built.GenerateEmbeddings(ctx, Document("a"))
		assert.Error(t, err)
	})

	t.Run("Should share the runtime with rebuilt functions", func(t *testing.T) {
		ef := NewWasmEmbeddingFunction(WasmOptions{ModulePath: path, Metric: Cosine})
		defer ef.Close(ctx)

		rebuilt, err := ef.BuildFromConfig(Config{"dimension": 4})
		require.NoError(t, err)
		assert.Same(t, ef.host, rebuilt.(*WasmEmbeddingFunction).host)
		assert.Equal(t, path, ef.GetConfig()["module_path"])
		assert.Equal(t, 0, ef.Dimension())
	})
}

func TestDecodeWasmOutput(t *testing.T) {
	t.Run("Should decode embeddings", func(t *testing.T) {
		vectors, err := decodeWasmOutput([]byte(`{"embeddings":[[1,2],[3,4]]}`))
		require.NoError(t, err)
		assert.Equal(t, Embeddings{{1, 2}, {3, 4}}, vectors)
	})

	t.Run("Should surface plugin errors", func(t *testing.T) {
		_, err := decodeWasmOutput([]byte(`{"error":"model not loaded"}`))
		assert.ErrorContains(t, err, "model not loaded")
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		_, err := decodeWasmOutput([]byte(`{"embeddings":`))
		assert.Error(t, err)
	})
}
