package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kmeansd/kmeansd/pkg/export"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export trained centroids to an ANN backend",
	Long: `Reads the centroid JSON produced by "kmeansd train --output ..." and
upserts each centroid as a vector point to Pinecone or Qdrant, so scoring
clients can do nearest-centroid lookups over the ANN index instead of
re-running the model.

Example:
  kmeansd export --file centroids.json --backend pinecone --index my-index
  kmeansd export --file centroids.json --backend qdrant --host localhost

Environment Variables:
  PINECONE_API_KEY    required for --backend pinecone
  QDRANT_URL          used as the default --host for --backend qdrant`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("file", "f", "", "path to a centroid JSON file from kmeansd train (required)")
	exportCmd.Flags().String("backend", "", "pinecone or qdrant (empty = use config default)")
	exportCmd.Flags().StringP("index", "i", "", "Pinecone index name / Qdrant collection name")
	exportCmd.Flags().String("namespace", "", "Pinecone namespace (optional)")
	exportCmd.Flags().String("host", "", "Qdrant host")
	exportCmd.Flags().String("api-key", "", "backend API key (or use PINECONE_API_KEY env)")

	_ = exportCmd.MarkFlagRequired("file")
}

type centroidDoc struct {
	Index          int       `json:"index"`
	Values         []float64 `json:"values"`
	Rows           int64     `json:"rows"`
	WithinMSE      float64   `json:"within_mse"`
	Representative int64     `json:"representative_row,omitempty"`
}

type centroidFile struct {
	Names     []string      `json:"names"`
	Centroids []centroidDoc `json:"centroids"`
}

func runExport(cmd *cobra.Command, args []string) error {
	filePath, _ := cmd.Flags().GetString("file")
	backend, _ := cmd.Flags().GetString("backend")
	index, _ := cmd.Flags().GetString("index")
	namespace, _ := cmd.Flags().GetString("namespace")
	host, _ := cmd.Flags().GetString("host")
	apiKey, _ := cmd.Flags().GetString("api-key")
	verbose := viper.GetBool("verbose")

	if backend == "" {
		backend = viper.GetString("export.backend")
	}
	if index == "" {
		index = viper.GetString("export.index")
	}
	if host == "" {
		host = viper.GetString("export.host")
	}
	if namespace == "" {
		namespace = viper.GetString("export.namespace")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
		cancel()
	}()

	raw, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	var doc centroidFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	if len(doc.Centroids) == 0 {
		fmt.Println("No centroids found in file.")
		return nil
	}

	centroids := make([]export.Centroid, len(doc.Centroids))
	for i, c := range doc.Centroids {
		values := make([]float32, len(c.Values))
		for j, v := range c.Values {
			values[j] = float32(v)
		}
		centroids[i] = export.Centroid{
			ID:           uuid.New().String(),
			Values:       values,
			ClusterIndex: c.Index,
			RowCount:     c.Rows,
			WithinMSE:    c.WithinMSE,
			Metadata: map[string]interface{}{
				"representative_row": c.Representative,
			},
		}
	}

	var exporter export.Exporter
	switch backend {
	case "pinecone":
		if apiKey == "" {
			apiKey = os.Getenv("PINECONE_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("pinecone API key is required: set PINECONE_API_KEY or use --api-key")
		}
		if index == "" {
			return fmt.Errorf("pinecone index name is required: use --index")
		}
		cfg := export.DefaultPineconeConfig()
		cfg.APIKey = apiKey
		cfg.IndexName = index
		cfg.Namespace = namespace
		exporter, err = export.NewPineconeExporter(ctx, cfg)
	case "qdrant":
		if host == "" {
			host = os.Getenv("QDRANT_URL")
		}
		if host == "" {
			return fmt.Errorf("qdrant host is required: set QDRANT_URL or use --host")
		}
		if index == "" {
			return fmt.Errorf("qdrant collection name is required: use --index")
		}
		cfg := export.DefaultQdrantConfig()
		cfg.Host = host
		cfg.Collection = index
		cfg.APIKey = apiKey
		exporter, err = export.NewQdrantExporter(ctx, cfg)
	default:
		return fmt.Errorf("unsupported backend %q (want pinecone or qdrant)", backend)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", backend, err)
	}
	defer func() { _ = exporter.Close() }()

	if verbose {
		fmt.Fprintf(os.Stderr, "Upserting %d centroids to %s...\n", len(centroids), backend)
	}

	start := time.Now()
	if err := exporter.Upsert(ctx, centroids); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Exported %d centroids to %s in %v\n", len(centroids), backend, time.Since(start))
	return nil
}
