package embeddings

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// GenerateAll runs one GenerateEmbeddings call per input with at most limit calls
// in flight. Result i belongs to inputs[i]. The first failure cancels the calls
// still running and is returned.
func GenerateAll(ctx context.Context, ef EmbeddingFunction, inputs []Embeddable, limit int) ([]Embeddings, error) {
	if limit <= 0 {
		limit = 1
	}

	results := make([]Embeddings, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, input := range inputs {
		g.Go(func() error {
			vectors, err := ef.GenerateEmbeddings(gctx, input)
			if err != nil {
				return err
			}
			results[i] = vectors
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Batches splits input into consecutive slices of at most size items
func Batches(input Embeddable, size int) []Embeddable {
	if size <= 0 || size >= input.Len() {
		return []Embeddable{input}
	}
	var out []Embeddable
	for start := 0; start < input.Len(); start += size {
		out = append(out, input.slice(start, min(start+size, input.Len())))
	}
	return out
}
