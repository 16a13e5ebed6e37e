// Command querycore runs the query orchestration core as an interactive
// console: queries on stdin, confidence-tagged answers on stdout, with a
// Prometheus metrics endpoint on the side.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"querycore/pkg/agent"
	"querycore/pkg/agent/pool"
	"querycore/pkg/analyzer"
	"querycore/pkg/config"
	"querycore/pkg/errx"
	"querycore/pkg/feedback"
	"querycore/pkg/llm"
	"querycore/pkg/logx"
	"querycore/pkg/metrics"
	"querycore/pkg/orchestrator"
	"querycore/pkg/plan"
	"querycore/pkg/resilience"
	"querycore/pkg/retrieval"
	"querycore/pkg/router"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	runSetup := flag.Bool("setup", false, "interactively create a configuration file and exit")
	flag.Parse()

	logger := logx.NewLogger("main")

	if *runSetup {
		if err := setup(*configPath); err != nil {
			logger.Error("setup failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, logger); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *logx.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	cal, err := config.LoadCalibration(cfg.Orchestrator.CalibrationPath)
	if err != nil {
		return fmt.Errorf("loading calibration: %w", err)
	}

	provider, err := buildProvider(&cfg.Provider)
	if err != nil {
		return fmt.Errorf("building provider: %w", err)
	}

	recorder := metrics.NewPrometheusRecorder()
	wrapper := resilience.New(&cfg.Resilience, provider, recorder, nil)
	defer wrapper.Shutdown()

	sink, err := feedback.NewSQLiteSink(cfg.Orchestrator.FeedbackDBPath)
	if err != nil {
		return fmt.Errorf("opening feedback sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	store := retrieval.NewMemoryStore(wrapper)
	agentPool := pool.New(buildRegistry(wrapper), cfg.Pool)
	defer agentPool.Shutdown()

	executor := plan.NewExecutor(agentPool, store, cfg.Executor, recorder)
	orch := orchestrator.New(
		analyzer.New(wrapper.Provider()),
		router.New(),
		executor,
		wrapper,
		store,
		sink,
		cal,
		recorder,
	)

	metricsServer := startMetricsServer(cfg.MetricsAddr, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("querycore ready (model: %s), enter queries, ctrl-d to exit", provider.ModelName())
	return repl(ctx, orch, logger)
}

// repl reads one query per line and prints the delivered response.
func repl(ctx context.Context, orch *orchestrator.Orchestrator, logger *logx.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}

		resp, err := orch.Process(ctx, query)
		if err != nil {
			if errx.IsKind(err, errx.KindValidation) {
				fmt.Println("invalid query:", err)
				continue
			}
			logger.Error("processing failed: %v", err)
			continue
		}

		fmt.Printf("\n%s\n\n[path=%s confidence=%.2f]\n", resp.Text, resp.Path, resp.Confidence)
	}

	logger.Info("shutting down")
	return scanner.Err()
}

// buildRegistry wires the default provider-backed agent factories plus the
// built-in tools for the tool executor.
func buildRegistry(wrapper *resilience.Wrapper) *pool.Registry {
	tools := agent.NewToolRegistry()
	tools.Register(agent.CurrentTimeTool())

	registry := pool.NewRegistry()
	for _, t := range agent.AllTypes() {
		agentType := t
		registry.Register(agentType, func() (agent.Agent, error) {
			return agent.NewProviderAgent(agentType, wrapper.Provider(), tools), nil
		})
	}
	return registry
}

func startMetricsServer(addr string, logger *logx.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped: %v", err)
		}
	}()
	return server
}

// buildProvider selects the backend named in configuration.
func buildProvider(cfg *config.ProviderConfig) (llm.Provider, error) {
	switch cfg.Backend {
	case "anthropic":
		return anthropicProvider(cfg)
	case "openai":
		return openaiProvider(cfg)
	case "ollama":
		return ollamaProvider(cfg)
	case "google":
		return googleProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider backend %q", cfg.Backend)
	}
}
