package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/vler0ux/modetrend/internal/utils"
	"github.com/vler0ux/modetrend/pkg/types"
)

// Format renders a segmentation result as a human-readable summary.
// An empty result is reported with its raw payload so callers can diagnose
// unexpected response shapes.
func Format(result *types.Result) string {
	if result == nil || len(result.Segments) == 0 {
		raw := "(empty)"
		if result != nil && len(result.Raw) > 0 {
			raw = string(result.Raw)
		}
		return fmt.Sprintf("No segments detected or unexpected result shape\nRaw result: %s", raw)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Segments detected: %d\n", len(result.Segments))
	for i, seg := range result.Segments {
		label := seg.Label
		if label == "" {
			label = "unknown"
		}
		fmt.Fprintf(&b, "  %d. %s\n", i+1, label)
		fmt.Fprintf(&b, "     confidence: %.2f%%\n", seg.Score*100)
		if seg.HasMask() {
			fmt.Fprintf(&b, "     mask: available\n")
		}
	}
	return b.String()
}

// Save writes the exact parsed response body, pretty-printed, to
// <outputDir>/<image stem>_segmentation.json, creating the directory if
// needed. It returns the written path.
func Save(result *types.Result, imagePath, outputDir string) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nil result")
	}

	if err := utils.EnsureDir(outputDir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	payload := []byte(result.Raw)
	if len(payload) == 0 {
		var err error
		payload, err = json.Marshal(result.Segments)
		if err != nil {
			return "", fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		return "", fmt.Errorf("failed to format result: %w", err)
	}
	pretty.WriteByte('\n')

	outPath := utils.SegmentationOutputPath(imagePath, outputDir)
	if err := os.WriteFile(outPath, pretty.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write result file: %w", err)
	}
	return outPath, nil
}
