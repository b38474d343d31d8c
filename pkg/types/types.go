package types

import "encoding/json"

// Segment represents one detected clothing region in an image
type Segment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Mask  string  `json:"mask,omitempty"`
}

// HasMask reports whether the service returned a pixel mask for this segment
func (s Segment) HasMask() bool {
	return s.Mask != ""
}

// Result contains the complete segmentation result from the inference service
type Result struct {
	// Segments in the order the service returned them
	Segments []Segment `json:"segments"`

	// Raw is the exact parsed response body, kept for persistence and diagnosis
	Raw json.RawMessage `json:"-"`
}

// RetryConfig defines the retry behaviour of the request loop
type RetryConfig struct {
	// MaxAttempts bounds the number of HTTP calls made for one request
	MaxAttempts int

	// DelaySeconds is the fixed wait between retries for rate limits and
	// generic transient failures
	DelaySeconds int

	// WarmupBufferSeconds is added on top of a server-reported warm-up wait
	WarmupBufferSeconds int

	// MaxWarmupWaitSeconds caps a server-reported warm-up wait before the
	// buffer is added, so a misbehaving endpoint cannot block a caller
	// indefinitely
	MaxWarmupWaitSeconds int
}

// ProcessingOptions contains options for the end-to-end pipeline
type ProcessingOptions struct {
	OutputDir    string
	MaxDimension int
	JPEGQuality  int
}
