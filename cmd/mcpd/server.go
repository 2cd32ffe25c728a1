package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/mcpd/internal/api"
	"github.com/kalambet/mcpd/internal/config"
	"github.com/kalambet/mcpd/internal/contextstore"
	"github.com/kalambet/mcpd/internal/ingest"
	"github.com/kalambet/mcpd/internal/intent"
	"github.com/kalambet/mcpd/internal/model"
	"github.com/kalambet/mcpd/internal/processor"
	"github.com/kalambet/mcpd/internal/retrieval"
	"github.com/kalambet/mcpd/internal/tool"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mcpd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running mcpd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mcpd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "mcpd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "mcpd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	dataDir := config.DefaultDataDir()
	apiToken, err := config.EnsureAPIToken(&cfg, dataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start when another instance already answers on the port.
	pidPath := pidFilePath(dataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("mcpd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("mcpd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	modelClient := model.NewClient(cfg.Model.BaseURL,
		model.WithCredentials(model.EnvCredential("MCPD_MODEL_TOKEN")),
		model.WithCallTimeout(cfg.ModelCallTimeout()),
		model.WithMaxConcurrent(cfg.Model.MaxConcurrent),
		model.WithMaxRetries(cfg.Model.MaxRetries),
	)
	if !modelClient.IsRunning(ctx) {
		printWarning("model backend not reachable at %s; model-dependent commands will degrade", cfg.Model.BaseURL)
	}

	var vectors retrieval.VectorStore
	switch cfg.Storage.Backend {
	case "sqlite":
		sqliteStore, err := retrieval.OpenSQLite(cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		defer sqliteStore.Close()
		vectors = sqliteStore
	default:
		vectors = retrieval.NewMemoryStore()
	}

	embedder := retrieval.NewEmbedder(modelClient, cfg.Model.EmbedModel)
	retriever := retrieval.NewRetriever(embedder, vectors,
		retrieval.WithLimit(cfg.Retrieval.TopK),
		retrieval.WithMinScore(float32(cfg.Retrieval.MinScore)),
	)

	store := contextstore.New()
	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("registering built-in tools: %w", err)
	}

	router := intent.NewRouter(modelClient, cfg.Model.ClassifyModel)
	proc := processor.New(store, registry, retriever, router,
		processor.WithGenerator(modelClient, cfg.Model.GenerateModel),
	)

	worker := ingest.NewWorker(retriever, cfg.Ingest.QueueSize)
	go worker.Run(ctx)

	deps := api.Deps{
		Store:     store,
		Registry:  registry,
		Searcher:  retriever,
		Processor: proc,
		Ingest:    worker,
		Token:     apiToken,
	}

	// MCP over stdio in a goroutine alongside HTTP.
	mcpSrv := api.NewMCPServer(deps)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "mcpd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	pidPath := pidFilePath(config.DefaultDataDir())
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("mcpd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop mcpd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to mcpd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	backendResp, err := client.Get(cfg.Model.BaseURL + "/api/version")
	if err != nil {
		printStatus("Model backend", "not running")
	} else {
		backendResp.Body.Close()
		printStatus("Model backend", "running at %s", cfg.Model.BaseURL)
	}

	printStatus("Generate model", "%s", cfg.Model.GenerateModel)
	printStatus("Classify model", "%s", cfg.Model.ClassifyModel)
	printStatus("Embed model", "%s", cfg.Model.EmbedModel)
	printStatus("Vector backend", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", config.DefaultDataDir())
	return nil
}
