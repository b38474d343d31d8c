// Package modetrend provides clothing image segmentation via hosted
// inference APIs.
//
// This package normalizes an input image into a size-bounded JPEG payload,
// submits it to a remote segmentation model, retries transient service
// conditions (warm-up, rate limiting, timeouts) up to a configured bound,
// and persists the returned segment list.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		"github.com/vler0ux/modetrend"
//		"github.com/vler0ux/modetrend/pkg/report"
//	)
//
//	func main() {
//		seg := modetrend.New(os.Getenv("HF_TOKEN"))
//
//		result, err := seg.SegmentFile(context.Background(), "dress.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Print(report.Format(result))
//
//		path, err := report.Save(result, "dress.jpg", "output")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("Results saved to %s\n", path)
//	}
//
// The package consists of four main components:
//
// 1. Preprocess (pkg/preprocess): loads images (file, URL, WebP) and encodes
// upload payloads
// 2. HF API (pkg/hfapi): the hosted endpoint client with the retry loop
// 3. Ollama (pkg/ollamaseg): an optional local vision-model backend
// 4. Report (pkg/report): result formatting and JSON persistence
package modetrend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vler0ux/modetrend/internal/utils"
	"github.com/vler0ux/modetrend/pkg/client"
	"github.com/vler0ux/modetrend/pkg/hfapi"
	"github.com/vler0ux/modetrend/pkg/preprocess"
	"github.com/vler0ux/modetrend/pkg/report"
	"github.com/vler0ux/modetrend/pkg/types"
)

// Version of the modetrend library
const Version = "1.0.0"

// Segmenter provides a high-level interface for the segmentation pipeline
type Segmenter struct {
	normalizer *preprocess.Normalizer
	client     client.SegmentationClient
	logger     *zap.Logger
}

// Config holds configuration for a Segmenter
type Config struct {
	// Endpoint and Token configure the hosted backend. Ignored when Client
	// is set.
	Endpoint string
	Token    string

	Retry          types.RetryConfig
	RequestTimeout time.Duration

	Image preprocess.Config

	// Client overrides the hosted backend with a custom implementation
	Client client.SegmentationClient

	Logger *zap.Logger
}

// New creates a Segmenter for the default hosted endpoint
func New(token string) *Segmenter {
	return NewWithConfig(Config{Token: token})
}

// NewWithConfig creates a Segmenter with custom configuration
func NewWithConfig(cfg Config) *Segmenter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cfg.Client
	if c == nil {
		c = hfapi.NewClientWithConfig(cfg.Endpoint, cfg.Token, cfg.Retry, cfg.RequestTimeout, logger)
	}

	return &Segmenter{
		normalizer: preprocess.NewWithConfig(cfg.Image),
		client:     c,
		logger:     logger.Named("segmenter"),
	}
}

// PrepareImage loads an image from a file path or URL and encodes it for
// upload
func (s *Segmenter) PrepareImage(source string) ([]byte, error) {
	return s.normalizer.PrepareFile(source)
}

// Segment submits an already-encoded payload to the backend
func (s *Segmenter) Segment(ctx context.Context, imageBytes []byte) (*types.Result, error) {
	return s.client.Segment(ctx, imageBytes)
}

// SegmentFile runs normalization and segmentation for one image source
func (s *Segmenter) SegmentFile(ctx context.Context, source string) (*types.Result, error) {
	payload, err := s.PrepareImage(source)
	if err != nil {
		return nil, err
	}
	s.logger.Info("image prepared",
		zap.String("source", source),
		zap.String("payload_size", utils.FormatFileSize(int64(len(payload)))))

	return s.Segment(ctx, payload)
}

// ProcessImageFile is a convenience function that normalizes, segments, and
// persists one image, returning the written result path
func (s *Segmenter) ProcessImageFile(ctx context.Context, source, outputDir string) (string, error) {
	result, err := s.SegmentFile(ctx, source)
	if err != nil {
		return "", err
	}

	outPath, err := report.Save(result, source, outputDir)
	if err != nil {
		return "", fmt.Errorf("failed to save results: %w", err)
	}

	s.logger.Info("results saved",
		zap.String("source", source),
		zap.String("output", outPath),
		zap.Int("segments", len(result.Segments)))
	return outPath, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
