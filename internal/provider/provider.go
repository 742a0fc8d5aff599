// Package provider defines the AI collaborator contracts the pipeline
// consumes: batch text embedding and image description.
package provider

import (
	"context"

	"github.com/starford/laguz/internal/models"
)

// Embedder turns text batches into vectors. Implementations must be safe
// for concurrent use and must return one vector per input, in input order.
// Failures are errors; there are no partial-batch results.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VisionDescriber turns images into text descriptions: one description per
// image, same ordering. A failure on one image must degrade to a
// placeholder description rather than aborting the batch.
type VisionDescriber interface {
	Describe(ctx context.Context, images []models.ImageRef) ([]string, error)
}

// PlaceholderDescription is substituted when a single image cannot be
// described.
const PlaceholderDescription = "[image description unavailable]"
