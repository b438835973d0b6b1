// Package main implements the entry point for the SemLattice application.
// SemLattice infers a hierarchical p-adic coordinate space over the terms
// of a text stream: blocks are featurized, solved modulo configured
// primes, and consolidated into a concept lattice printed at the end of
// the run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/semlattice/config"
	"github.com/c360/semlattice/input/natsblocks"
	"github.com/c360/semlattice/message"
	"github.com/c360/semlattice/metric"
	"github.com/c360/semlattice/synthesizer"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semlattice"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	registry := metric.NewRegistry()
	metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	if cfg.Metrics.Port > 0 {
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() { _ = metricsServer.Stop() }()
		slog.Info("Metrics server started", "address", metricsServer.Address())
	}

	synth, err := synthesizer.New(cfg, logger, registry.CoreMetrics())
	if err != nil {
		return fmt.Errorf("create synthesizer: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case cliCfg.InputPath != "":
		err = runFile(ctx, synth, cfg, cliCfg.InputPath)
	case cfg.Source.URL != "":
		err = runStream(ctx, synth, cfg, logger, registry.CoreMetrics(), cliCfg.ShutdownTimeout)
	default:
		return fmt.Errorf("no input: pass --input or configure a source url")
	}
	if err != nil {
		return err
	}

	result := synth.Finalize()
	printLattice(result)
	return nil
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting SemLattice (p-adic concept lattice synthesis)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"input_path", cliCfg.InputPath)

	return cliCfg, logger, false, nil
}

// loadConfig loads configuration from the specified file path, or pure
// defaults when no path was given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// runFile chunks a text file into overlapping word windows and feeds them
// through the synthesizer in order.
func runFile(ctx context.Context, synth *synthesizer.Synthesizer, cfg *config.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	blocks := chunkText(string(data), cfg.BlockSize, cfg.Stride)
	slog.Info("Input chunked", "path", path, "blocks", len(blocks),
		"block_size", cfg.BlockSize, "stride", cfg.Stride)

	for i, text := range blocks {
		select {
		case <-ctx.Done():
			slog.Warn("Interrupted before end of input", "processed", i, "total", len(blocks))
			return nil
		default:
		}
		block := &message.Block{Seq: i, Text: text}
		if err := synth.ProcessBlock(ctx, block); err != nil {
			slog.Warn("Block rejected", "seq", i, "error", err)
		}
	}
	return nil
}

// runStream consumes blocks from the configured NATS subject until the
// run is signalled to stop.
func runStream(
	ctx context.Context,
	synth *synthesizer.Synthesizer,
	cfg *config.Config,
	logger *slog.Logger,
	metrics *metric.Metrics,
	shutdownTimeout time.Duration,
) error {
	source, err := natsblocks.New(natsblocks.Config{
		URL:       cfg.Source.URL,
		Subject:   cfg.Source.Subject,
		RateLimit: cfg.Source.RateLimit,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("create block source: %w", err)
	}

	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("start block source: %w", err)
	}
	slog.Info("Consuming blocks", "subject", cfg.Source.Subject)

	for block := range source.Blocks() {
		if err := synth.ProcessBlock(ctx, block); err != nil {
			slog.Warn("Block rejected", "block", block.ID, "seq", block.Seq, "error", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- source.Stop() }()
	select {
	case err := <-done:
		return err
	case <-stopCtx.Done():
		return fmt.Errorf("source stop timed out after %s", shutdownTimeout)
	}
}

// chunkText splits text into windows of size words advancing by stride
// words, so adjacent windows overlap when stride < size.
func chunkText(text string, size, stride int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	blocks := []string{}
	for start := 0; start < len(words); start += stride {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		blocks = append(blocks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return blocks
}

// printLattice walks the hierarchy iteratively and writes it to stdout
// with one indented line per term.
func printLattice(result *synthesizer.Result) {
	fmt.Printf("lattice: prime=%d blocks=%d terms=%d sections=%d\n",
		result.Prime, result.Blocks, len(result.Coordinates), result.Sections)

	type frame struct {
		term  string
		depth int
	}
	visited := map[string]struct{}{}
	stack := make([]frame, 0, len(result.Roots))
	for i := len(result.Roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{term: result.Roots[i]})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[top.term]; seen {
			continue
		}
		visited[top.term] = struct{}{}

		coord := result.Coordinates[top.term]
		if coord == nil {
			coord = new(big.Int)
		}
		fmt.Printf("%s%s  (addr=%s, K=%.3f)\n",
			strings.Repeat("  ", top.depth), top.term, coord.String(), result.Complexity[top.term])

		children := result.Tree[top.term]
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{term: children[i], depth: top.depth + 1})
		}
	}

	if len(result.Unresolved) > 0 {
		fmt.Printf("unresolved (%d): %s\n", len(result.Unresolved), strings.Join(result.Unresolved, ", "))
	}
	if len(result.RejectedLinks) > 0 {
		fmt.Printf("rejected links: %d\n", len(result.RejectedLinks))
	}
}
