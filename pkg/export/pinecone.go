package export

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig holds Pinecone client configuration.
type PineconeConfig struct {
	APIKey    string
	IndexName string
	Namespace string

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPineconeConfig returns sensible defaults.
func DefaultPineconeConfig() PineconeConfig {
	return PineconeConfig{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

var _ Exporter = (*PineconeExporter)(nil)

// PineconeExporter pushes centroids to a Pinecone index.
type PineconeExporter struct {
	cfg     PineconeConfig
	pc      *pinecone.Client
	idxConn *pinecone.IndexConnection
	stats   *PineconeStats
}

// PineconeStats tracks exporter operation metrics.
type PineconeStats struct {
	UpsertedCentroids int64
	FailedCentroids   int64
	RetryCount        int64
	BatchCount        int64
}

// NewPineconeExporter creates a new Pinecone-backed Exporter.
func NewPineconeExporter(ctx context.Context, cfg PineconeConfig) (*PineconeExporter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}

	idx, err := pc.DescribeIndex(ctx, cfg.IndexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index %q: %w", cfg.IndexName, err)
	}

	idxConn, err := pc.Index(pinecone.NewIndexConnParams{
		Host:      idx.Host,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index: %w", err)
	}

	return &PineconeExporter{
		cfg:     cfg,
		pc:      pc,
		idxConn: idxConn,
		stats:   &PineconeStats{},
	}, nil
}

// Upsert pushes centroids to Pinecone with exponential-backoff retry.
func (e *PineconeExporter) Upsert(ctx context.Context, centroids []Centroid) error {
	if len(centroids) == 0 {
		return nil
	}

	pcVectors := make([]*pinecone.Vector, len(centroids))
	for i, c := range centroids {
		values := c.Values
		meta := map[string]interface{}{
			"cluster_index": c.ClusterIndex,
			"row_count":     c.RowCount,
			"within_mse":    c.WithinMSE,
		}
		for k, v := range c.Metadata {
			meta[k] = v
		}
		pcVectors[i] = &pinecone.Vector{
			Id:       c.ID,
			Values:   &values,
			Metadata: convertMetadata(meta),
		}
	}

	var lastErr error
	backoff := e.cfg.InitialBackoff
	retries := 0

	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if attempt > 0 {
			retries++
			atomic.AddInt64(&e.stats.RetryCount, 1)
			time.Sleep(backoff)
			backoff = time.Duration(math.Min(float64(backoff*2), float64(e.cfg.MaxBackoff)))
		}

		_, err := e.idxConn.UpsertVectors(ctx, pcVectors)
		if err == nil {
			atomic.AddInt64(&e.stats.UpsertedCentroids, int64(len(centroids)))
			atomic.AddInt64(&e.stats.BatchCount, 1)
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	atomic.AddInt64(&e.stats.FailedCentroids, int64(len(centroids)))
	return fmt.Errorf("upsert failed after %d retries: %w", retries, lastErr)
}

// Stats returns current operation statistics.
func (e *PineconeExporter) Stats() PineconeStats {
	return PineconeStats{
		UpsertedCentroids: atomic.LoadInt64(&e.stats.UpsertedCentroids),
		FailedCentroids:   atomic.LoadInt64(&e.stats.FailedCentroids),
		RetryCount:        atomic.LoadInt64(&e.stats.RetryCount),
		BatchCount:        atomic.LoadInt64(&e.stats.BatchCount),
	}
}

// Close closes the exporter's connection.
func (e *PineconeExporter) Close() error {
	if e.idxConn != nil {
		return e.idxConn.Close()
	}
	return nil
}

func convertMetadata(m map[string]interface{}) *structpb.Struct {
	if len(m) == 0 {
		return nil
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil
	}
	return s
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "unavailable") ||
		strings.Contains(errStr, "temporarily")
}
