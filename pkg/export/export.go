// Package export pushes trained k-means centroids to a vector database
// so a serving layer can do ANN-backed nearest-centroid scoring instead
// of holding the model in process.
package export

import "context"

// Centroid is one exportable cluster center plus the reporting metadata
// a downstream consumer would want alongside the vector itself.
type Centroid struct {
	// ID uniquely identifies the centroid within the destination index.
	// It must be a UUID for Qdrant; cmd/export assigns a fresh random
	// UUID to each centroid on every export.
	ID string

	// Values is the destandardized centroid vector.
	Values []float32

	// ClusterIndex is the centroid's position in ModelOutput.Centroids.
	ClusterIndex int

	// RowCount is the number of training rows assigned to this cluster.
	RowCount int64

	// WithinMSE is the cluster's mean squared error contribution.
	WithinMSE float64

	// Metadata carries arbitrary extra fields (e.g. model key, training
	// timestamp) through to the destination's payload/metadata field.
	Metadata map[string]interface{}
}

// Exporter pushes a batch of centroids to a vector backend.
type Exporter interface {
	// Upsert writes or overwrites the given centroids.
	Upsert(ctx context.Context, centroids []Centroid) error

	// Close releases any underlying connection.
	Close() error
}
