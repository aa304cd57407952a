package export

import (
	"context"
	"crypto/tls"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// QdrantConfig holds Qdrant exporter configuration.
type QdrantConfig struct {
	Host       string
	APIKey     string
	Collection string
	UseTLS     bool
	GRPCPort   int
}

// DefaultQdrantConfig returns sensible defaults.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{GRPCPort: 6334}
}

var _ Exporter = (*QdrantExporter)(nil)

// QdrantExporter pushes centroids to a Qdrant collection.
type QdrantExporter struct {
	cfg    QdrantConfig
	conn   *grpc.ClientConn
	points pb.PointsClient
}

// NewQdrantExporter creates a new Qdrant-backed Exporter.
func NewQdrantExporter(ctx context.Context, cfg QdrantConfig) (*QdrantExporter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if cfg.GRPCPort <= 0 {
		cfg.GRPCPort = 6334
	}

	var opts []grpc.DialOption
	if cfg.UseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", addr, err)
	}

	return &QdrantExporter{
		cfg:    cfg,
		conn:   conn,
		points: pb.NewPointsClient(conn),
	}, nil
}

// Upsert pushes centroids as points into the configured collection.
func (e *QdrantExporter) Upsert(ctx context.Context, centroids []Centroid) error {
	if len(centroids) == 0 {
		return nil
	}

	if e.cfg.APIKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", e.cfg.APIKey)
	}

	points := make([]*pb.PointStruct, len(centroids))
	for i, c := range centroids {
		payload := map[string]*pb.Value{
			"cluster_index": intValue(int64(c.ClusterIndex)),
			"row_count":     intValue(c.RowCount),
			"within_mse":    doubleValue(c.WithinMSE),
		}
		for k, v := range c.Metadata {
			if pv := toQdrantValue(v); pv != nil {
				payload[k] = pv
			}
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: c.ID}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Values},
				},
			},
			Payload: payload,
		}
	}

	_, err := e.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: e.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (e *QdrantExporter) Close() error {
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

func intValue(v int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: v}}
}

func doubleValue(v float64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: v}}
}

func toQdrantValue(v interface{}) *pb.Value {
	switch t := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: t}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: t}}
	case int:
		return intValue(int64(t))
	case int64:
		return intValue(t)
	case float64:
		return doubleValue(t)
	default:
		return nil
	}
}
