package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kmeansd/kmeansd/pkg/frame"
	"github.com/kmeansd/kmeansd/pkg/ingest"
	"github.com/kmeansd/kmeansd/pkg/job"
	"github.com/kmeansd/kmeansd/pkg/kmeans"
	"github.com/kmeansd/kmeansd/pkg/metrics"
	"github.com/kmeansd/kmeansd/pkg/sse"
	"github.com/kmeansd/kmeansd/pkg/store"
	"github.com/kmeansd/kmeansd/pkg/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// latestModelKey is the store key the most recently completed
// training job's Model is published under, for /score to read.
const latestModelKey = "latest"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kmeansd training and scoring server",
	Long: `Starts an HTTP server that accepts asynchronous training jobs and a
gRPC health service that reports SERVING once a model has been trained.

Example:
  kmeansd serve --port 8080 --grpc-port 9090

The server exposes:
  POST /train            - Start a training job over a server-local file
  GET  /jobs/{id}         - Poll a training job's status
  GET  /jobs/{id}/stream  - Server-sent events for a training job's progress
  POST /score             - Score rows against the most recently trained model
  GET  /metrics           - Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	serveCmd.Flags().Int("grpc-port", 9090, "gRPC health service port")
	serveCmd.Flags().String("host", "0.0.0.0", "server bind host")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.grpc_port", serveCmd.Flags().Lookup("grpc-port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

// trainServer holds everything an HTTP/gRPC handler needs: the job
// registry, the published-model store, and the observability
// collaborators wired the same way the training core expects them.
type trainServer struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job

	models  *store.ModelStore
	metrics *metrics.Metrics
	tel     *telemetry.Provider
	health  *health.Server
}

// trainRequest is the JSON body for POST /train. The server reads the
// dataset from its own filesystem rather than accepting an upload, so
// a single request stays small regardless of dataset size.
type trainRequest struct {
	FilePath    string `json:"file_path"`
	Format      string `json:"format,omitempty"` // csv, jsonl; inferred from extension if empty
	K           int64  `json:"k"`
	MaxIters    int    `json:"max_iters"`
	Init        string `json:"init"`
	Standardize bool   `json:"standardize"`
	Seed        int64  `json:"seed,omitempty"`
	ChunkSize   int64  `json:"chunk_size,omitempty"`
	Workers     int    `json:"workers,omitempty"`
}

type trainResponse struct {
	JobID string `json:"job_id"`
}

type jobStatusResponse struct {
	JobID  string      `json:"job_id"`
	Status job.Status  `json:"status"`
	Error  string      `json:"error,omitempty"`
	Latest *job.Update `json:"latest_update,omitempty"`
}

type scoreRequest struct {
	Rows [][]float64 `json:"rows"`
}

type scoreResponse struct {
	Clusters []int     `json:"clusters"`
	Distance []float64 `json:"distance"`
}

func runServe(cmd *cobra.Command, args []string) error {
	port := viper.GetInt("server.port")
	grpcPort := viper.GetInt("server.grpc_port")
	host := viper.GetString("server.host")
	verbose := viper.GetBool("verbose")

	tel, err := telemetry.Init(context.Background(), telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	srv := &trainServer{
		jobs:    make(map[string]*job.Job),
		models:  store.New(),
		metrics: metrics.New(),
		tel:     tel,
		health:  health.NewServer(),
	}
	srv.health.SetServingStatus("kmeansd", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	mux := http.NewServeMux()
	mux.HandleFunc("/train", srv.metrics.Middleware("/train", srv.handleTrain))
	mux.HandleFunc("/jobs/", srv.handleJobRoute)
	mux.HandleFunc("/score", srv.metrics.Middleware("/score", srv.handleScore))
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		srv.metrics.Handler().ServeHTTP(w, r)
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming endpoints (SSE) must not be cut off
		IdleTimeout:  120 * time.Second,
	}

	grpcAddr := fmt.Sprintf("%s:%d", host, grpcPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, srv.health)

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Fprintln(os.Stderr, "\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "HTTP shutdown error: %v\n", err)
		}
		grpcServer.GracefulStop()
		close(done)
	}()

	go func() {
		if verbose {
			fmt.Fprintf(os.Stderr, "gRPC health service listening on %s\n", grpcAddr)
		}
		if err := grpcServer.Serve(lis); err != nil {
			fmt.Fprintf(os.Stderr, "gRPC server error: %v\n", err)
		}
	}()

	fmt.Printf("kmeansd server starting on %s\n", addr)
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Printf("  POST http://%s/train\n", addr)
	fmt.Printf("  GET  http://%s/jobs/{id}\n", addr)
	fmt.Printf("  GET  http://%s/jobs/{id}/stream\n", addr)
	fmt.Printf("  POST http://%s/score\n", addr)
	fmt.Printf("  GET  http://%s/metrics\n", addr)
	fmt.Println()

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	fmt.Println("Server stopped")
	return nil
}

func (s *trainServer) handleTrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.FilePath == "" {
		http.Error(w, "file_path is required", http.StatusBadRequest)
		return
	}
	if req.K == 0 {
		req.K = viper.GetInt64("training.k")
	}
	if req.MaxIters == 0 {
		req.MaxIters = viper.GetInt("training.max_iters")
	}
	if req.Init == "" {
		req.Init = viper.GetString("training.init")
	}

	id := fmt.Sprintf("job-%d", time.Now().UnixNano())
	j := job.New(context.Background(), id)

	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()

	go s.runTrainingJob(j, req)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(trainResponse{JobID: id})
}

func (s *trainServer) ingestRequest(ctx context.Context, req trainRequest) (*frame.Frame, *ingest.Stats, string, error) {
	format := strings.ToLower(req.Format)
	if format == "" {
		switch {
		case strings.HasSuffix(req.FilePath, ".jsonl"), strings.HasSuffix(req.FilePath, ".ndjson"):
			format = "jsonl"
		default:
			format = "csv"
		}
	}

	pipeline := ingest.NewPipeline(ingest.DefaultConfig())
	ctx, span := s.tel.StartIngest(ctx, format)
	defer span.End()

	var (
		f     *frame.Frame
		stats *ingest.Stats
		err   error
	)
	switch format {
	case "jsonl":
		f, stats, err = pipeline.IngestJSONLFile(ctx, req.FilePath)
	default:
		f, stats, err = pipeline.IngestCSVFile(ctx, req.FilePath)
	}
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return f, stats, format, err
}

func (s *trainServer) runTrainingJob(j *job.Job, req trainRequest) {
	j.Start()
	s.metrics.RecordJobTerminal("started")

	f, stats, format, err := s.ingestRequest(j.Context(), req)
	if err != nil {
		j.Finish(err)
		s.metrics.RecordJobTerminal("failed")
		return
	}
	s.metrics.RecordIngest(format, int(stats.RowsRead))

	params := kmeans.Params{
		K:           req.K,
		MaxIters:    req.MaxIters,
		Init:        kmeans.InitMethod(req.Init),
		Standardize: req.Standardize,
		Seed:        req.Seed,
		ChunkSize:   req.ChunkSize,
		Workers:     req.Workers,
	}

	publisher := publisherFunc(func(out kmeans.ModelOutput) {
		j.Update(job.Update{
			Phase:     "lloyd",
			Iteration: out.Iterations,
			Message:   fmt.Sprintf("avg within-SS %.4f", out.AvgWithinSS),
		})
		s.metrics.RecordIteration(j.ID(), out.AvgWithinSS, out.AvgWithinSS)
	})

	driver := kmeans.NewDriver(params, serverLogger{job: j}, j, publisher)

	trainCtx, trainSpan := s.tel.StartTrain(j.Context(), req.K, f.NumRows(), req.Init)
	model, err := driver.Train(trainCtx, f)
	if err != nil {
		telemetry.RecordError(trainSpan, err)
	}
	trainSpan.End()

	if err != nil {
		j.Finish(err)
		s.metrics.RecordJobTerminal("failed")
		return
	}

	_ = s.models.Lock(j.ID())
	_ = s.models.Update(j.ID(), model)
	s.models.Unlock(j.ID())

	_ = s.models.Lock(latestModelKey)
	_ = s.models.Update(latestModelKey, model)
	s.models.Unlock(latestModelKey)

	s.health.SetServingStatus("kmeansd", grpc_health_v1.HealthCheckResponse_SERVING)
	s.metrics.RecordJobTerminal("succeeded")
	j.Finish(nil)
}

func (s *trainServer) handleJobRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if strings.HasSuffix(path, "/stream") {
		id := strings.TrimSuffix(path, "/stream")
		s.handleJobStream(w, r, id)
		return
	}
	s.handleJobStatus(w, r, path)
}

func (s *trainServer) handleJobStatus(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	resp := jobStatusResponse{JobID: id, Status: j.StatusNow()}
	if updates := j.Updates(); len(updates) > 0 {
		u := updates[len(updates)-1]
		resp.Latest = &u
	}
	if err := j.Err(); err != nil {
		resp.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *trainServer) handleJobStream(w http.ResponseWriter, r *http.Request, id string) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	writer := sse.NewWriter(w)
	if writer == nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sent := 0
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-j.Done():
			for _, u := range j.Updates()[sent:] {
				_ = writer.SendProgressWithStats(sse.StageLloydIteration, 1.0, u)
			}
			if err := j.Err(); err != nil {
				_ = writer.SendError(sse.StageLloydIteration, err.Error())
				return
			}
			_ = writer.SendComplete(nil, j.Updates())
			return
		case <-ticker.C:
			updates := j.Updates()
			for _, u := range updates[sent:] {
				_ = writer.SendProgressWithStats(sse.StageLloydIteration, 0.0, u)
			}
			sent = len(updates)
		}
	}
}

func (s *trainServer) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	snapshot, err := s.models.Get(latestModelKey)
	if err != nil {
		http.Error(w, "no trained model available yet", http.StatusServiceUnavailable)
		return
	}
	model, ok := snapshot.(*kmeans.Model)
	if !ok {
		http.Error(w, "internal: published snapshot has the wrong type", http.StatusInternalServerError)
		return
	}

	_, span := s.tel.StartScore(r.Context(), latestModelKey)
	defer span.End()

	resp := scoreResponse{
		Clusters: make([]int, len(req.Rows)),
		Distance: make([]float64, len(req.Rows)),
	}
	for i, row := range req.Rows {
		cluster, dist := model.Score(row)
		resp.Clusters[i] = cluster
		resp.Distance[i] = dist
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *trainServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type serverLogger struct {
	job *job.Job
}

func (l serverLogger) Infof(format string, args ...any) {
	l.job.Update(job.Update{Message: fmt.Sprintf(format, args...)})
}

func (l serverLogger) Warnf(format string, args ...any) {
	l.job.Update(job.Update{Message: "warning: " + fmt.Sprintf(format, args...)})
}
