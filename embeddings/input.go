package embeddings

import "fmt"

// Embedding is a single fixed-length vector
type Embedding []float32

// Embeddings is an ordered sequence of vectors, one per input item
type Embeddings []Embedding

// Dimension returns the length shared by every vector, or 0 when empty
func (e Embeddings) Dimension() int {
	if len(e) == 0 {
		return 0
	}
	return len(e[0])
}

// Image is an encoded image payload
type Image []byte

// Embeddable is the input a provider turns into vectors: an ordered sequence of
// either documents or images. A single item is a one-element sequence.
type Embeddable struct {
	documents []string
	images    []Image
}

// Document wraps a single text item
func Document(text string) Embeddable {
	return Embeddable{documents: []string{text}}
}

// Documents wraps an ordered sequence of text items
func Documents(texts ...string) Embeddable {
	return Embeddable{documents: texts}
}

// ImagePayload wraps a single image item
func ImagePayload(img Image) Embeddable {
	return Embeddable{images: []Image{img}}
}

// Images wraps an ordered sequence of image items
func Images(imgs ...Image) Embeddable {
	return Embeddable{images: imgs}
}

// Len returns the number of items
func (e Embeddable) Len() int {
	return len(e.documents) + len(e.images)
}

// IsDocuments reports whether the input carries text
func (e Embeddable) IsDocuments() bool {
	return len(e.documents) > 0
}

// IsImages reports whether the input carries images
func (e Embeddable) IsImages() bool {
	return len(e.images) > 0
}

// DocumentList returns the text items
func (e Embeddable) DocumentList() []string {
	return e.documents
}

// ImageList returns the image items
func (e Embeddable) ImageList() []Image {
	return e.images
}

// Validate rejects empty and mixed inputs
func (e Embeddable) Validate() error {
	switch {
	case e.Len() == 0:
		return fmt.Errorf("%w: no items to embed", ErrInvalidInput)
	case e.IsDocuments() && e.IsImages():
		return fmt.Errorf("%w: documents and images cannot be mixed in one call", ErrInvalidInput)
	}
	return nil
}

// requireDocuments validates input for text-only providers
func requireDocuments(provider string, input Embeddable) ([]string, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if !input.IsDocuments() {
		return nil, fmt.Errorf("%w: %s embeds documents only", ErrInvalidInput, provider)
	}
	return input.documents, nil
}

// checkShape verifies the count and dimensionality of a provider response
func checkShape(provider string, vectors Embeddings, items, dimension int) error {
	if len(vectors) != items {
		return fmt.Errorf("%w: %s returned %d vectors for %d items", ErrDimensionMismatch, provider, len(vectors), items)
	}
	for i, v := range vectors {
		if dimension > 0 && len(v) != dimension {
			return fmt.Errorf("%w: %s vector %d has %d dimensions, expected %d", ErrDimensionMismatch, provider, i, len(v), dimension)
		}
		if dimension == 0 && len(v) != len(vectors[0]) {
			return fmt.Errorf("%w: %s vector %d has %d dimensions, expected %d", ErrDimensionMismatch, provider, i, len(v), len(vectors[0]))
		}
	}
	return nil
}

// slice returns items [i, j)
func (e Embeddable) slice(i, j int) Embeddable {
	if e.IsImages() {
		return Embeddable{images: e.images[i:j]}
	}
	return Embeddable{documents: e.documents[i:j]}
}

// pick returns the items at the given positions, in that order
func (e Embeddable) pick(positions []int) Embeddable {
	var out Embeddable
	for _, p := range positions {
		if e.IsImages() {
			out.images = append(out.images, e.images[p])
		} else {
			out.documents = append(out.documents, e.documents[p])
		}
	}
	return out
}

// item returns the raw bytes of item i, tagged by kind
func (e Embeddable) item(i int) []byte {
	if e.IsImages() {
		return append([]byte("image:"), e.images[i]...)
	}
	return append([]byte("text:"), e.documents[i]...)
}
