package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kmeansd/kmeansd/pkg/frame"
	"github.com/kmeansd/kmeansd/pkg/ingest"
	"github.com/kmeansd/kmeansd/pkg/kmeans"
	"github.com/kmeansd/kmeansd/pkg/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start kmeansd as an MCP server",
	Long: `Starts kmeansd as a Model Context Protocol (MCP) server, so an AI
assistant can train and query a K-Means|| model directly.

Transports:
  stdio (default) - For local desktop apps (Claude Desktop, Cursor)
  http            - For remote/cloud deployments

Tools exposed:
  train_kmeans - Train a K-Means|| model over a server-local CSV/JSONL file
  score_point  - Score rows against the most recently trained model

Example:
  kmeansd mcp
  kmeansd mcp --transport http --port 8081`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "transport type: stdio or http")
	mcpCmd.Flags().Int("port", 8081, "HTTP server port (for http transport)")
	mcpCmd.Flags().String("host", "0.0.0.0", "HTTP server host (for http transport)")
}

// mcpServer holds the single trained model this MCP session has
// produced, mirroring the store.ModelStore pattern cmd/serve.go uses
// for /score, minus job bookkeeping since MCP tool calls are
// synchronous request/response.
type mcpServer struct {
	models *store.ModelStore
}

const mcpModelKey = "mcp-model"

func runMCP(cmd *cobra.Command, args []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")

	srv := &mcpServer{models: store.New()}

	s := server.NewMCPServer(
		"kmeansd",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	srv.registerTools(s)
	srv.registerResources(s)

	switch transport {
	case "stdio":
		if err := server.ServeStdio(s); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}

	case "http":
		addr := fmt.Sprintf("%s:%d", host, port)
		fmt.Printf("kmeansd MCP server starting on http://%s\n", addr)
		fmt.Printf("  Endpoint: http://%s/mcp\n", addr)
		fmt.Printf("  Health:   http://%s/health\n", addr)
		fmt.Println()

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok","server":"kmeansd-mcp"}`))
		})

		mcpHandler := server.NewStreamableHTTPServer(s, server.WithStateful(true))
		mux.Handle("/mcp", mcpHandler)

		httpServer := &http.Server{Addr: addr, Handler: mux}
		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}

	default:
		return fmt.Errorf("unsupported transport: %s (use 'stdio' or 'http')", transport)
	}

	return nil
}

func (srv *mcpServer) registerTools(s *server.MCPServer) {
	trainTool := mcp.NewTool("train_kmeans",
		mcp.WithDescription(`Train a K-Means|| model over a CSV or JSONL file on the server's
filesystem. Numeric columns are standardized and clustered with a
hybrid Hamming/squared-L2 kernel; the model is kept for score_point
calls within this session.`),
		mcp.WithString("file_path",
			mcp.Required(),
			mcp.Description("Path to a .csv or .jsonl dataset readable by the server"),
		),
		mcp.WithNumber("k",
			mcp.Required(),
			mcp.Description("Target cluster count"),
		),
		mcp.WithNumber("max_iters",
			mcp.Description("Maximum Lloyd iterations (default: 100)"),
		),
		mcp.WithString("init",
			mcp.Description("Initialization method: none, plusplus, furthest (default: plusplus)"),
		),
		mcp.WithBoolean("standardize",
			mcp.Description("Standardize numeric columns before clustering (default: true)"),
		),
	)
	s.AddTool(trainTool, srv.handleTrainKMeans)

	scoreTool := mcp.NewTool("score_point",
		mcp.WithDescription(`Score one row of numeric/categorical feature values against the
model most recently trained in this MCP session, returning the
nearest cluster index and squared distance.`),
		mcp.WithArray("values",
			mcp.Required(),
			mcp.Description("Feature values for one row, in the same column order used for training"),
		),
	)
	s.AddTool(scoreTool, srv.handleScorePoint)
}

func (srv *mcpServer) registerResources(s *server.MCPServer) {
	res := mcp.NewResource("kmeansd://usage", "kmeansd usage",
		mcp.WithResourceDescription("How to call train_kmeans and score_point"),
		mcp.WithMIMEType("text/plain"),
	)
	s.AddResource(res, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text := `Call train_kmeans with a file_path and k to fit a model, then
call score_point with a values array (same column order, after any
categorical columns were encoded the same way train_kmeans saw them)
to get back the nearest cluster index and distance.`
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "kmeansd://usage", MIMEType: "text/plain", Text: text},
		}, nil
	})
}

func (srv *mcpServer) handleTrainKMeans(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := request.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k := request.GetFloat("k", 0)
	if k <= 0 {
		return mcp.NewToolResultError("k must be a positive integer"), nil
	}
	maxIters := int(request.GetFloat("max_iters", 100))
	init := request.GetString("init", "plusplus")
	standardize := request.GetBool("standardize", true)

	pipeline := ingest.NewPipeline(ingest.DefaultConfig())

	var (
		f         *frame.Frame
		ingestErr error
	)
	switch {
	case strings.HasSuffix(filePath, ".jsonl"), strings.HasSuffix(filePath, ".ndjson"):
		f, _, ingestErr = pipeline.IngestJSONLFile(ctx, filePath)
	default:
		f, _, ingestErr = pipeline.IngestCSVFile(ctx, filePath)
	}
	if ingestErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to ingest %s: %v", filePath, ingestErr)), nil
	}

	params := kmeans.Params{
		K:           int64(k),
		MaxIters:    maxIters,
		Init:        kmeans.InitMethod(init),
		Standardize: standardize,
	}

	driver := kmeans.NewDriver(params, nil, nil, nil)
	model, err := driver.Train(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("training failed: %v", err)), nil
	}

	_ = srv.models.Lock(mcpModelKey)
	_ = srv.models.Update(mcpModelKey, model)
	srv.models.Unlock(mcpModelKey)

	out := model.Output()
	result := map[string]interface{}{
		"clusters":         len(out.Centroids),
		"iterations":       out.Iterations,
		"avg_within_ss":    out.AvgWithinSS,
		"avg_between_ss":   out.AvgBetweenSS,
		"rows_per_cluster": out.Rows,
	}
	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (srv *mcpServer) handleScorePoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	raw, ok := args["values"]
	if !ok {
		return mcp.NewToolResultError("values parameter is required"), nil
	}
	valuesJSON, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid values format: %v", err)), nil
	}
	var values []float64
	if err := json.Unmarshal(valuesJSON, &values); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse values: %v", err)), nil
	}

	snapshot, err := srv.models.Get(mcpModelKey)
	if err != nil {
		return mcp.NewToolResultError("no model has been trained yet; call train_kmeans first"), nil
	}
	model := snapshot.(*kmeans.Model)

	cluster, dist := model.Score(values)
	result := map[string]interface{}{
		"cluster":  cluster,
		"distance": dist,
	}
	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}
