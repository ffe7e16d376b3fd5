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

	"github.com/lavrabot/lavra/internal/agent"
	"github.com/lavrabot/lavra/internal/api"
	"github.com/lavrabot/lavra/internal/authz"
	"github.com/lavrabot/lavra/internal/buffer"
	"github.com/lavrabot/lavra/internal/config"
	"github.com/lavrabot/lavra/internal/debounce"
	"github.com/lavrabot/lavra/internal/dispatch"
	"github.com/lavrabot/lavra/internal/evolution"
	"github.com/lavrabot/lavra/internal/ingest"
	"github.com/lavrabot/lavra/internal/llm"
	"github.com/lavrabot/lavra/internal/ollama"
	"github.com/lavrabot/lavra/internal/retrieval"
	"github.com/lavrabot/lavra/internal/sqlguard"
	"github.com/lavrabot/lavra/internal/storage"
	"github.com/lavrabot/lavra/internal/tools"
)

// bufferKeySuffix namespaces conversation buffers in the shared Redis store.
const bufferKeySuffix = ":buffer"

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the lavra server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running lavra server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lavra system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "lavra.pid")
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

// userDirectory adapts the users table to the authorization gate.
type userDirectory struct {
	store *storage.Store
}

func (d *userDirectory) FindBySender(ctx context.Context, digits string) (active, found bool, err error) {
	u, err := d.store.FindUserByPhone(digits)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, false, nil
		}
		return false, false, err
	}
	return u.Active, true, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "lavra version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Check whether a server is already running before claiming the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("lavra is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("lavra is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ollama serves the embedding model for knowledge-base search.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ensureEmbedModel(ctx, ollamaClient, cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Redis backs the per-conversation message buffers.
	redisList, err := buffer.NewRedisList(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisList.Close()
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	err = redisList.Ping(pingCtx)
	pingCancel()
	if err != nil {
		return fmt.Errorf("redis not reachable at %s: %w", cfg.Redis.URL, err)
	}

	buf := buffer.New(redisList, bufferKeySuffix, time.Duration(cfg.Chat.BufferTTLSeconds)*time.Second)

	scheduler := debounce.NewScheduler()
	defer scheduler.Shutdown()

	gate := authz.NewGate(&userDirectory{store: store})

	serialRunner := sqlguard.NewSerialRunner(sqlguard.NewDBRunner(store.DB()))
	defer serialRunner.Close()
	guard := sqlguard.NewGuard(serialRunner, logger)

	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectorStore)

	registry := tools.NewRegistry(logger)
	registry.Register(tools.NewSensorSQL(guard))
	registry.Register(tools.NewKBSearch(retriever))
	registry.Register(tools.NewWeather(cfg.Weather.APIKey))
	registry.Register(tools.NewWebScrape())

	llmClient := llm.NewClient(cfg.LLM.OpenRouterAPIKey, cfg.LLM.Model)
	assistant := agent.New(llmClient, registry, store, logger)

	evoClient := evolution.NewClient(cfg.Evolution.BaseURL, cfg.Evolution.Instance, cfg.Evolution.APIKey)

	coordinator := dispatch.New(dispatch.Config{
		Buffer:    buf,
		Debouncer: scheduler,
		Gate:      gate,
		Agent:     assistant,
		Sender:    evoClient,
		Interval:  time.Duration(cfg.Chat.DebounceSeconds) * time.Second,
		Logger:    logger,
	})

	// Embedding jobs run in the background.
	worker := ingest.NewWorker(store, embedder, vectorStore, 500*time.Millisecond, logger)
	go worker.Run(ctx)

	handler := api.NewRouter(api.Deps{
		Store:      store,
		Dispatcher: coordinator,
		Token:      cfg.Server.APIToken,
		Logger:     logger,
	})

	// MCP over stdio so desktop clients can reach the same tools.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Guard:     guard,
		Retriever: retriever,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "lavra listening on %s\n", addr)
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

// ensureEmbedModel verifies Ollama is up and pulls the embedding model if it
// is not present locally.
func ensureEmbedModel(ctx context.Context, client *ollama.Client, baseURL, model string) error {
	if !client.IsRunning(ctx) {
		return fmt.Errorf("ollama is not running at %s; start it and try again", baseURL)
	}
	if client.HasModel(ctx, model) {
		return nil
	}

	printStep("Pulling embedding model %s...", model)
	lastStatus := ""
	err := client.PullModel(ctx, model, func(p ollama.PullProgress) {
		if p.Status != lastStatus {
			lastStatus = p.Status
			printStep("  %s", p.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	printSuccess("Model %s ready", model)
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("lavra is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop lavra (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to lavra (PID %d)", pid)
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
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("LLM model", "%s", cfg.LLM.Model)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	printStatus("Evolution", "%s (instance %s)", cfg.Evolution.BaseURL, cfg.Evolution.Instance)
	printStatus("Debounce", "%ds", cfg.Chat.DebounceSeconds)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
