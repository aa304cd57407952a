package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kmeansd/kmeansd/pkg/embedding/openai"
	"github.com/kmeansd/kmeansd/pkg/frame"
	"github.com/kmeansd/kmeansd/pkg/ingest"
	"github.com/kmeansd/kmeansd/pkg/kmeans"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a K-Means|| model over a CSV or JSONL file",
	Long: `Reads a columnar dataset, standardizes its numeric columns, runs
scalable K-Means|| initialization, and converges a Lloyd loop over it.

Example:
  kmeansd train --file data.csv --k 12 --init plusplus
  kmeansd train --file data.jsonl --k 8 --output centroids.json`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringP("file", "f", "", "path to a .csv or .jsonl dataset (required)")
	trainCmd.Flags().Int64P("k", "k", 0, "target cluster count (0 = use config default)")
	trainCmd.Flags().Int("max-iters", 0, "maximum Lloyd iterations (0 = use config default)")
	trainCmd.Flags().String("init", "", "initialization method: none, plusplus, furthest (empty = use config default)")
	trainCmd.Flags().Bool("standardize", true, "standardize numeric columns before clustering")
	trainCmd.Flags().Int64("seed", 0, "random seed")
	trainCmd.Flags().Int64("chunk-size", 0, "rows per map-phase chunk (0 = single chunk)")
	trainCmd.Flags().IntP("workers", "w", 0, "map-phase worker count (0 = GOMAXPROCS)")
	trainCmd.Flags().StringP("output", "o", "", "write the trained centroids as JSON to this path")
	trainCmd.Flags().String("text-column", "", "name of a free-text column to embed and fold in as a numeric feature")
	trainCmd.Flags().String("embedding-api-key", "", "embedding provider API key (or use OPENAI_API_KEY env)")

	_ = trainCmd.MarkFlagRequired("file")
}

func runTrain(cmd *cobra.Command, args []string) error {
	filePath, _ := cmd.Flags().GetString("file")
	k, _ := cmd.Flags().GetInt64("k")
	maxIters, _ := cmd.Flags().GetInt("max-iters")
	init, _ := cmd.Flags().GetString("init")
	standardize, _ := cmd.Flags().GetBool("standardize")
	seed, _ := cmd.Flags().GetInt64("seed")
	chunkSize, _ := cmd.Flags().GetInt64("chunk-size")
	workers, _ := cmd.Flags().GetInt("workers")
	output, _ := cmd.Flags().GetString("output")
	textColumn, _ := cmd.Flags().GetString("text-column")
	embeddingAPIKey, _ := cmd.Flags().GetString("embedding-api-key")
	verbose := viper.GetBool("verbose")

	if k == 0 {
		k = viper.GetInt64("training.k")
	}
	if maxIters == 0 {
		maxIters = viper.GetInt("training.max_iters")
	}
	if init == "" {
		init = viper.GetString("training.init")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, cancelling training...")
		cancel()
	}()

	if verbose {
		fmt.Fprintf(os.Stderr, "Ingesting %s...\n", filePath)
	}

	loadStart := time.Now()
	ingestCfg := ingest.DefaultConfig()
	ingestCfg.TextColumn = textColumn
	pipeline := ingest.NewPipeline(ingestCfg)

	var (
		f     *frame.Frame
		stats *ingest.Stats
		err   error
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		f, stats, err = pipeline.IngestCSVFile(ctx, filePath)
	case ".jsonl", ".ndjson":
		f, stats, err = pipeline.IngestJSONLFile(ctx, filePath)
	default:
		return fmt.Errorf("unsupported file extension %q (want .csv or .jsonl)", filepath.Ext(filePath))
	}
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", filePath, err)
	}
	loadDuration := time.Since(loadStart)

	if verbose {
		fmt.Fprintf(os.Stderr, "Ingested %d rows (%d bad) in %v (%.0f rows/s)\n",
			stats.RowsRead, stats.RowsBad, loadDuration, stats.RowsPerSecond())
	}

	if textColumn != "" {
		if err := augmentTextColumn(ctx, f, stats.TextValues, embeddingAPIKey, verbose); err != nil {
			return fmt.Errorf("failed to augment text column %q: %w", textColumn, err)
		}
	}

	params := kmeans.Params{
		K:           k,
		MaxIters:    maxIters,
		Init:        kmeans.InitMethod(init),
		Standardize: standardize,
		Seed:        seed,
		ChunkSize:   chunkSize,
		Workers:     workers,
	}

	bar := progressbar.NewOptions(maxIters,
		progressbar.OptionSetDescription("Training"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("iters"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)

	var lastIter int
	publisher := publisherFunc(func(out kmeans.ModelOutput) {
		delta := out.Iterations - lastIter
		if delta > 0 {
			_ = bar.Add(delta)
			lastIter = out.Iterations
		}
	})

	driver := kmeans.NewDriver(params, cliLogger{verbose: verbose}, nil, publisher)

	trainStart := time.Now()
	model, err := driver.Train(ctx, f)
	if err != nil {
		_ = bar.Finish()
		return fmt.Errorf("training failed: %w", err)
	}
	_ = bar.Finish()
	trainDuration := time.Since(trainStart)

	printTrainReport(model.Output(), trainDuration)

	if output != "" {
		if err := writeCentroidsJSON(output, model.Output()); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote centroids to %s\n", output)
	}

	return nil
}

// augmentTextColumn embeds texts with the configured provider and folds
// the resulting corpus-distance feature into f before training sees it.
func augmentTextColumn(ctx context.Context, f *frame.Frame, texts []string, apiKey string, verbose bool) error {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("embedding API key is required: set OPENAI_API_KEY or use --embedding-api-key")
	}

	model := viper.GetString("embedding.model")
	batchSize := viper.GetInt("embedding.batch_size")

	client, err := openai.NewClient(openai.Config{APIKey: apiKey, Model: model})
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Embedding %d text values with %s...\n", len(texts), client.ModelName())
	}

	col, err := ingest.AugmentWithTextFeature(ctx, f, texts, client, batchSize)
	if err != nil {
		return err
	}
	return f.AppendColumn(col)
}

type publisherFunc func(kmeans.ModelOutput)

func (f publisherFunc) Publish(out kmeans.ModelOutput) { f(out) }

type cliLogger struct {
	verbose bool
}

func (l cliLogger) Infof(format string, args ...any) {
	if l.verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func (l cliLogger) Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

func printTrainReport(out kmeans.ModelOutput, trainDuration time.Duration) {
	fmt.Println()
	fmt.Println("=== K-Means|| Training Report ===")
	fmt.Println()
	fmt.Printf("Clusters:           %d\n", len(out.Centroids))
	fmt.Printf("Iterations:         %d\n", out.Iterations)
	fmt.Printf("Training time:      %v\n", trainDuration)
	fmt.Printf("Total avg SS:       %.4f\n", out.TotalAvgSS)
	fmt.Printf("Avg within SS:      %.4f\n", out.AvgWithinSS)
	fmt.Printf("Avg between SS:     %.4f\n", out.AvgBetweenSS)
	fmt.Println()
	for i, rows := range out.Rows {
		rep := int64(-1)
		if i < len(out.Representatives) {
			rep = out.Representatives[i]
		}
		fmt.Printf("  cluster %d: %d rows, within-MSE %.4f, representative row %d\n", i, rows, out.WithinMSE[i], rep)
	}
}

func writeCentroidsJSON(path string, out kmeans.ModelOutput) error {
	type centroidDoc struct {
		Index          int       `json:"index"`
		Values         []float64 `json:"values"`
		Rows           int64     `json:"rows"`
		WithinMSE      float64   `json:"within_mse"`
		Representative int64     `json:"representative_row,omitempty"`
	}
	doc := struct {
		Names     []string      `json:"names"`
		Centroids []centroidDoc `json:"centroids"`
	}{Names: out.Names}

	for i, c := range out.Centroids {
		rep := int64(0)
		if i < len(out.Representatives) {
			rep = out.Representatives[i]
		}
		doc.Centroids = append(doc.Centroids, centroidDoc{
			Index:          i,
			Values:         c,
			Rows:           out.Rows[i],
			WithinMSE:      out.WithinMSE[i],
			Representative: rep,
		})
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
