package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/cardscan/internal/card"
	"github.com/zombor/cardscan/internal/scanning"
	"github.com/zombor/cardscan/internal/statement"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type backendFlags struct {
	geminiKey      string
	geminiModel    string
	openaiKey      string
	openaiModel    string
	openaiURL      string
	ollamaURL      string
	ollamaModel    string
	tesseractLangs string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("cardscan")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "cardscan.db", "Database file path")
		backends       = fs.StringLong("backends", "gemini,tesseract", "Recognition backends in order of preference: gemini, openai, ollama, tesseract")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		openaiKey      = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiModel    = fs.StringLong("openai-model", "gpt-4o-mini", "OpenAI vision model name")
		openaiURL      = fs.StringLong("openai-url", "", "OpenAI-compatible API base URL (optional)")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		tesseractLangs = fs.StringLong("tesseract-langs", "spa,eng", "Tesseract languages, comma-separated")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		scanFile       = fs.StringLong("scan", "", "Process one statement image, print the result as JSON and exit")
		verbose        = fs.BoolLong("verbose", "Enable debug logging")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CARDSCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if *geminiKey == "" {
		*geminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if *openaiKey == "" {
		*openaiKey = os.Getenv("OPENAI_API_KEY")
	}

	strategies, err := buildStrategies(*backends, backendFlags{
		geminiKey:      *geminiKey,
		geminiModel:    *geminiModel,
		openaiKey:      *openaiKey,
		openaiModel:    *openaiModel,
		openaiURL:      *openaiURL,
		ollamaURL:      *ollamaURL,
		ollamaModel:    *ollamaModel,
		tesseractLangs: *tesseractLangs,
	})
	if err != nil {
		slog.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	// Backends are initialized lazily on the first statement
	recognizer := scanning.NewRecognizer(strategies...)
	defer recognizer.Close()
	pipeline := statement.NewPipeline(recognizer)

	if *scanFile != "" {
		if err := scanOnce(pipeline, *scanFile); err != nil {
			slog.Error("Failed to scan statement", "file", *scanFile, "error", err)
			recognizer.Close()
			os.Exit(1)
		}
		return
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := card.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize service
	cardService := card.NewService(db, pipeline)

	// Initialize server
	basicAuth := card.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := card.NewServer(cardService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "backends", *backends)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}

// buildStrategies turns the --backends list into recognizer strategies, keeping its order
func buildStrategies(list string, cfg backendFlags) ([]scanning.Strategy, error) {
	var strategies []scanning.Strategy
	seen := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "gemini":
			strategies = append(strategies, scanning.GeminiStrategy(cfg.geminiKey, cfg.geminiModel))
		case "openai":
			strategies = append(strategies, scanning.OpenAIStrategy(scanning.OpenAIConfig{
				APIKey:  cfg.openaiKey,
				Model:   cfg.openaiModel,
				BaseURL: cfg.openaiURL,
			}))
		case "ollama":
			strategies = append(strategies, scanning.OllamaStrategy(cfg.ollamaURL, cfg.ollamaModel))
		case "tesseract":
			strategies = append(strategies, scanning.TesseractStrategy(splitList(cfg.tesseractLangs)...))
		default:
			return nil, fmt.Errorf("unknown backend %q (valid: gemini, openai, ollama, tesseract)", name)
		}
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("no backends configured")
	}
	return strategies, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// scanOnce runs the pipeline on one file and writes the result to stdout
func scanOnce(pipeline *statement.Pipeline, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading statement: %w", err)
	}

	img := scanning.Image{Data: data, ContentType: card.ContentTypeFromExt(filepath.Base(path))}
	result, err := pipeline.Process(context.Background(), img, func(p statement.Progress) {
		slog.Info("Progress", "state", p.State, "percent", int(p.Fraction*100))
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
