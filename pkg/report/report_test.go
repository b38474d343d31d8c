package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vler0ux/modetrend/pkg/types"
)

func sampleResult() *types.Result {
	raw := `[{"label":"shirt","score":0.97,"mask":"aGVsbG8="},{"label":"pants","score":0.8512}]`
	return &types.Result{
		Segments: []types.Segment{
			{Label: "shirt", Score: 0.97, Mask: "aGVsbG8="},
			{Label: "pants", Score: 0.8512},
		},
		Raw: json.RawMessage(raw),
	}
}

func TestFormat(t *testing.T) {
	out := Format(sampleResult())

	if !strings.Contains(out, "Segments detected: 2") {
		t.Errorf("missing segment count:\n%s", out)
	}
	if !strings.Contains(out, "1. shirt") {
		t.Errorf("missing first label:\n%s", out)
	}
	if !strings.Contains(out, "confidence: 97.00%") {
		t.Errorf("missing confidence percentage:\n%s", out)
	}
	if !strings.Contains(out, "2. pants") {
		t.Errorf("missing second label:\n%s", out)
	}
	if !strings.Contains(out, "confidence: 85.12%") {
		t.Errorf("confidence not formatted as percent:\n%s", out)
	}
	// Only the shirt entry has a mask
	if strings.Count(out, "mask: available") != 1 {
		t.Errorf("expected exactly one mask line:\n%s", out)
	}
}

func TestFormatEmptyResult(t *testing.T) {
	result := &types.Result{Raw: json.RawMessage(`{"error":"weird shape"}`)}

	out := Format(result)
	if !strings.Contains(out, "No segments detected") {
		t.Errorf("empty result not reported:\n%s", out)
	}
	if !strings.Contains(out, `{"error":"weird shape"}`) {
		t.Errorf("raw payload not included for diagnosis:\n%s", out)
	}
}

func TestFormatNilResult(t *testing.T) {
	out := Format(nil)
	if !strings.Contains(out, "No segments detected") {
		t.Errorf("nil result not reported:\n%s", out)
	}
}

func TestSaveCreatesDirectoryAndRoundTrips(t *testing.T) {
	result := sampleResult()
	outputDir := filepath.Join(t.TempDir(), "nested", "output")

	outPath, err := Save(result, "/photos/summer_dress.png", outputDir)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	want := filepath.Join(outputDir, "summer_dress_segmentation.json")
	if outPath != want {
		t.Errorf("output path = %q, want %q", outPath, want)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read written file: %v", err)
	}

	var reparsed []types.Segment
	if err := json.Unmarshal(data, &reparsed); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
	if !reflect.DeepEqual(reparsed, result.Segments) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", reparsed, result.Segments)
	}

	// Pretty-printed, not a single line
	if !strings.Contains(string(data), "\n  ") {
		t.Errorf("file is not indented:\n%s", data)
	}
}

func TestSaveWithoutRawFallsBackToSegments(t *testing.T) {
	result := &types.Result{
		Segments: []types.Segment{{Label: "skirt", Score: 0.6}},
	}
	outputDir := t.TempDir()

	outPath, err := Save(result, "look.jpg", outputDir)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}

	var reparsed []types.Segment
	if err := json.Unmarshal(data, &reparsed); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
	if len(reparsed) != 1 || reparsed[0].Label != "skirt" {
		t.Errorf("unexpected content: %+v", reparsed)
	}
}

func TestSaveNilResult(t *testing.T) {
	if _, err := Save(nil, "a.jpg", t.TempDir()); err == nil {
		t.Error("expected an error for a nil result")
	}
}
