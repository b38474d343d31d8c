package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vler0ux/modetrend"
	"github.com/vler0ux/modetrend/internal/config"
	"github.com/vler0ux/modetrend/internal/logging"
	"github.com/vler0ux/modetrend/internal/utils"
	"github.com/vler0ux/modetrend/pkg/client"
	"github.com/vler0ux/modetrend/pkg/hfapi"
	"github.com/vler0ux/modetrend/pkg/ollamaseg"
	"github.com/vler0ux/modetrend/pkg/preprocess"
	"github.com/vler0ux/modetrend/pkg/report"
	"github.com/vler0ux/modetrend/pkg/types"
)

func main() {
	var in, outDir, backend, endpoint, configPath string
	var ollamaURL, ollamaModel string
	var retries, delay, maxSize, quality int
	var debug bool

	flag.StringVar(&in, "in", "", "input image path, URL, or directory (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "", "output directory for result JSON files")
	flag.StringVar(&backend, "backend", "hf", "backend to use: hf or ollama")
	flag.StringVar(&endpoint, "endpoint", "", "hosted inference endpoint URL (default: segformer_b3_clothes)")
	flag.StringVar(&configPath, "config", "", "optional config file (JSON)")

	flag.StringVar(&ollamaURL, "url", "", "Ollama server URL (default http://localhost:11434)")
	flag.StringVar(&ollamaModel, "model", "", "Ollama vision model name (default llava)")

	flag.IntVar(&retries, "retries", 0, "maximum request attempts (default 3)")
	flag.IntVar(&delay, "delay", 0, "delay between retries in seconds (default 5)")
	flag.IntVar(&maxSize, "maxsize", 0, "max long side sent to the endpoint (px, default 1024)")
	flag.IntVar(&quality, "quality", 0, "JPEG quality for the upload payload (1-100, default 85)")

	flag.BoolVar(&debug, "debug", false, "enable debug logging")

	flag.Parse()
	if in == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in image.jpg|URL|dir [-backend hf|ollama] [-out outdir] [-retries 3] [-delay 5]\n",
			filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	logger, err := logging.NewLogger(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	cfg := loadConfig(configPath, logger)
	applyOverrides(cfg, endpoint, ollamaURL, ollamaModel, outDir, retries, delay, maxSize, quality)
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		logger.Fatal("failed to create output directory", zap.Error(err))
	}

	seg := buildSegmenter(backend, cfg, logger)

	sources, err := resolveSources(in)
	if err != nil {
		logger.Fatal("failed to resolve input", zap.Error(err))
	}
	if len(sources) == 0 {
		logger.Fatal("no image files found", zap.String("in", in))
	}

	ctx := context.Background()
	for _, source := range sources {
		logger.Info("processing image", zap.String("source", source))

		result, err := seg.SegmentFile(ctx, source)
		if err != nil {
			exitWithError(source, err, logger)
		}

		fmt.Print(report.Format(result))

		outPath, err := report.Save(result, source, cfg.Output.Dir)
		if err != nil {
			exitWithError(source, err, logger)
		}
		fmt.Printf("Results saved to %s\n", outPath)
	}
}

// loadConfig reads the config file when one was given, else defaults
func loadConfig(path string, logger *zap.Logger) *config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", path), zap.Error(err))
	}
	return cfg
}

// applyOverrides copies non-zero flag values over the loaded config
func applyOverrides(cfg *config.Config, endpoint, ollamaURL, ollamaModel, outDir string, retries, delay, maxSize, quality int) {
	if endpoint != "" {
		cfg.API.Endpoint = endpoint
	}
	if ollamaURL != "" {
		cfg.Ollama.URL = ollamaURL
	}
	if ollamaModel != "" {
		cfg.Ollama.Model = ollamaModel
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if retries > 0 {
		cfg.Retry.MaxAttempts = retries
	}
	if delay > 0 {
		cfg.Retry.DelaySeconds = delay
	}
	if maxSize > 0 {
		cfg.Image.MaxDimension = maxSize
	}
	if quality > 0 {
		cfg.Image.JPEGQuality = quality
	}
}

// buildSegmenter wires the selected backend into a Segmenter
func buildSegmenter(backend string, cfg *config.Config, logger *zap.Logger) *modetrend.Segmenter {
	var segClient client.SegmentationClient

	switch backend {
	case "hf":
		// The token is read once here and passed in explicitly; clients
		// never touch the environment themselves
		token := os.Getenv(cfg.API.TokenEnv)
		if token == "" {
			logger.Fatal("missing API token",
				zap.String("env", cfg.API.TokenEnv))
		}
		segClient = hfapi.NewClientWithConfig(
			cfg.API.Endpoint,
			token,
			types.RetryConfig{
				MaxAttempts:          cfg.Retry.MaxAttempts,
				DelaySeconds:         cfg.Retry.DelaySeconds,
				WarmupBufferSeconds:  cfg.Retry.WarmupBufferSeconds,
				MaxWarmupWaitSeconds: cfg.Retry.MaxWarmupWaitSeconds,
			},
			time.Duration(cfg.API.RequestTimeoutSeconds)*time.Second,
			logger,
		)
	case "ollama":
		var err error
		segClient, err = ollamaseg.NewClient(cfg.Ollama.URL, cfg.Ollama.Model, logger)
		if err != nil {
			logger.Fatal("failed to create Ollama client", zap.Error(err))
		}
	default:
		logger.Fatal("unknown backend", zap.String("backend", backend))
	}

	return modetrend.NewWithConfig(modetrend.Config{
		Client: segClient,
		Image: preprocess.Config{
			MaxDimension: cfg.Image.MaxDimension,
			JPEGQuality:  cfg.Image.JPEGQuality,
		},
		Logger: logger,
	})
}

// resolveSources expands a directory input into its image files; a file path
// or URL stays a single source
func resolveSources(in string) ([]string, error) {
	if strings.HasPrefix(in, "http://") || strings.HasPrefix(in, "https://") {
		return []string{in}, nil
	}
	if utils.DirExists(in) {
		return utils.ListImageFiles(in)
	}
	if !utils.FileExists(in) {
		return nil, fmt.Errorf("input not found: %s", in)
	}
	return []string{in}, nil
}

// exitWithError picks a user-facing diagnostic per error kind and exits; no
// further images are processed in this invocation
func exitWithError(source string, err error, logger *zap.Logger) {
	var procErr *preprocess.ProcessingError
	var authErr *hfapi.AuthError
	var exhausted *hfapi.RetriesExhaustedError

	switch {
	case errors.As(err, &procErr):
		logger.Error("image could not be processed",
			zap.String("source", source), zap.Error(err))
	case errors.As(err, &authErr):
		logger.Error("authentication failed: check your token",
			zap.String("source", source))
	case errors.As(err, &exhausted):
		logger.Error("service unavailable after retries",
			zap.String("source", source),
			zap.Int("attempts", exhausted.Attempts),
			zap.Int("last_status", exhausted.LastStatus),
			zap.Error(err))
	default:
		logger.Error("segmentation failed",
			zap.String("source", source), zap.Error(err))
	}
	logger.Sync() //nolint:errcheck
	os.Exit(1)
}
