package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDimension is the recommended long-side bound for uploads (px)
const DefaultMaxDimension = 1024

// DefaultJPEGQuality is the fixed quality used when re-encoding for upload
const DefaultJPEGQuality = 85

// ProcessingError wraps any decode/resize/encode failure. It is fatal for the
// image and never retried.
type ProcessingError struct {
	Source string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("image processing failed for %s: %v", e.Source, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Config holds configuration for the normalizer
type Config struct {
	MaxDimension int
	JPEGQuality  int
}

// Normalizer converts arbitrary input images into size-bounded JPEG payloads
// suitable for sending to an inference endpoint
type Normalizer struct {
	config Config
}

// New creates a Normalizer with default configuration
func New() *Normalizer {
	return &Normalizer{
		config: Config{
			MaxDimension: DefaultMaxDimension,
			JPEGQuality:  DefaultJPEGQuality,
		},
	}
}

// NewWithConfig creates a Normalizer with custom configuration
func NewWithConfig(config Config) *Normalizer {
	if config.MaxDimension <= 0 {
		config.MaxDimension = DefaultMaxDimension
	}
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = DefaultJPEGQuality
	}
	return &Normalizer{config: config}
}

// LoadImage loads an image from a file path with WebP support
func (n *Normalizer) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, &ProcessingError{Source: path, Err: err}
	}
	defer f.Close()

	low := strings.ToLower(path)
	if strings.Contains(low, ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, &ProcessingError{Source: path, Err: fmt.Errorf("image: unknown format")}
}

// LoadImageFromURL downloads and loads an image from a URL
func (n *Normalizer) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, &ProcessingError{Source: imageURL, Err: err}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, &ProcessingError{
			Source: imageURL,
			Err:    fmt.Errorf("unsupported URL scheme: %s", parsedURL.Scheme),
		}
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest("GET", imageURL, nil)
	if err != nil {
		return nil, &ProcessingError{Source: imageURL, Err: err}
	}
	req.Header.Set("User-Agent", "modetrend/1.0 (+https://github.com/vler0ux/modetrend)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProcessingError{Source: imageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProcessingError{
			Source: imageURL,
			Err:    fmt.Errorf("download failed: HTTP %d %s", resp.StatusCode, resp.Status),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, &ProcessingError{
			Source: imageURL,
			Err:    fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProcessingError{Source: imageURL, Err: err}
	}

	img, err := decodeImageFromBytes(data)
	if err != nil {
		return nil, &ProcessingError{Source: imageURL, Err: err}
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (n *Normalizer) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return n.LoadImageFromURL(source)
	}
	return n.LoadImage(source)
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func decodeImageFromBytes(data []byte) (image.Image, error) {
	reader := bytes.NewReader(data)
	if img, _, err := image.Decode(reader); err == nil {
		return img, nil
	}

	reader = bytes.NewReader(data)
	if img, err := webp.Decode(reader); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// EncodeForUpload normalises an image into the payload sent to the endpoint:
// three-channel colour, long side bounded by MaxDimension, JPEG at the fixed
// upload quality.
func (n *Normalizer) EncodeForUpload(img image.Image) ([]byte, error) {
	// Normalise colour mode; imaging.Clone always yields NRGBA
	if _, ok := img.(*image.NRGBA); !ok {
		img = imaging.Clone(img)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > n.config.MaxDimension || h > n.config.MaxDimension {
		if w >= h {
			img = imaging.Resize(img, n.config.MaxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, n.config.MaxDimension, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.config.JPEGQuality}); err != nil {
		return nil, &ProcessingError{Source: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// PrepareFile loads an image from a file path or URL and encodes it for upload
func (n *Normalizer) PrepareFile(source string) ([]byte, error) {
	img, err := n.LoadImageSmart(source)
	if err != nil {
		return nil, err
	}
	data, err := n.EncodeForUpload(img)
	if err != nil {
		if pe, ok := err.(*ProcessingError); ok {
			pe.Source = source
		}
		return nil, err
	}
	return data, nil
}
