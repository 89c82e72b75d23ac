// Package normalize produces the canonical form of an uploaded photo: a
// baseline JPEG whose pixel data reads upright, with no orientation metadata
// carried over. JPEG, PNG and WebP input is accepted.
package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/webp"
	_ "image/png"

	"github.com/mirrorbooth/mirrorbooth/pkg/orientation"
)

var (
	// ErrDecode reports that the input buffer is not a readable image.
	ErrDecode = errors.New("normalize: undecodable image")
	// ErrEncode reports that re-encoding produced no output.
	ErrEncode = errors.New("normalize: re-encoding failed")
)

// Policy selects how embedded orientation metadata is treated.
type Policy int

const (
	// PolicyCorrect parses the embedded orientation tag and applies the
	// matching geometric transform before re-encoding. A missing or
	// malformed tag means no transform.
	PolicyCorrect Policy = iota
	// PolicyStrip decodes pixel data as-is and drops the tag, trusting the
	// capture device to deliver upright pixels.
	PolicyStrip
)

// Config holds configuration for the normalizer.
type Config struct {
	Policy  Policy
	Quality int // JPEG quality of the canonical output, 1-100
}

// Normalizer re-encodes uploaded photos into their canonical form. It holds
// no resources across calls.
type Normalizer struct {
	config Config
}

// New creates a Normalizer with the default configuration: correct policy,
// quality 85.
func New() *Normalizer {
	return NewWithConfig(Config{Policy: PolicyCorrect, Quality: 85})
}

// NewWithConfig creates a Normalizer with custom configuration.
func NewWithConfig(config Config) *Normalizer {
	if config.Quality < 1 || config.Quality > 100 {
		config.Quality = 85
	}
	return &Normalizer{config: config}
}

// Canonical is the normalizer's output: fixed-format bytes with resolved
// orientation. Ownership transfers to the caller.
type Canonical struct {
	Data   []byte
	Name   string
	Width  int
	Height int
}

// Normalize decodes the buffer, resolves orientation per the configured
// policy and re-encodes to baseline JPEG. The returned name derives from the
// input name with the extension replaced.
func (n *Normalizer) Normalize(data []byte, name string) (*Canonical, error) {
	img, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if n.config.Policy == PolicyCorrect {
		img = orientation.Read(bytes.NewReader(data)).Apply(img)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.config.Quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	bounds := img.Bounds()
	return &Canonical{
		Data:   buf.Bytes(),
		Name:   CanonicalName(name),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// decode tries the registered decoders first, then explicit WebP.
func decode(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("unknown or unsupported format")
}

// CanonicalName replaces the extension of the original filename with the
// canonical target format.
func CanonicalName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" {
		base = "photo"
	}
	return base + ".jpg"
}
