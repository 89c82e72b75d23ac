// Package mirrorbooth turns a phone photo into an AI-stylized print and a
// link visitors can take home.
//
// The pipeline has three stages: the uploaded bytes are normalized into a
// canonical upright JPEG, the canonical image is published to a blob store,
// and its public URL is submitted to a remote prediction service together
// with a style prompt. The service is polled until the job reaches a
// terminal state and the first output URL is returned.
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
//		"github.com/mirrorbooth/mirrorbooth"
//		"github.com/mirrorbooth/mirrorbooth/pkg/predict"
//		"github.com/mirrorbooth/mirrorbooth/pkg/storage"
//	)
//
//	func main() {
//		blobs, err := storage.NewFileStore("./data", "http://booth.local/files")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		booth := mirrorbooth.New(mirrorbooth.Options{
//			Predictor: predict.NewClient(predict.Options{
//				Token: os.Getenv("REPLICATE_API_TOKEN"),
//			}),
//			Blobs:        blobs,
//			ModelVersion: "abc123",
//		})
//
//		data, err := os.ReadFile("visitor.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		result, err := booth.Process(context.Background(), data, "visitor.jpg", "make it cyberpunk")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("stylized: %s\n", result.OutputURL)
//	}
//
// The package consists of three main components:
//
// 1. Normalize (pkg/normalize): EXIF-aware upload canonicalization
// 2. Predict (pkg/predict): prediction API client with polling
// 3. Storage (pkg/storage): blob publication behind a public URL
//
// The HTTP booth server under internal/server composes the same pieces and
// adds photo records and QR download codes on top.
package mirrorbooth

import (
	"context"
	"fmt"

	"github.com/mirrorbooth/mirrorbooth/pkg/normalize"
	"github.com/mirrorbooth/mirrorbooth/pkg/predict"
	"github.com/mirrorbooth/mirrorbooth/pkg/storage"
)

// Version of the mirrorbooth library
const Version = "1.0.0"

// Booth provides a high-level interface over the upload, normalize and
// predict pipeline.
type Booth struct {
	normalizer   *normalize.Normalizer
	predictor    *predict.Client
	blobs        storage.BlobStore
	modelVersion string
}

// Options configures a Booth. Predictor and Blobs are required; a nil
// Normalizer selects the default orientation-correcting one.
type Options struct {
	Normalizer   *normalize.Normalizer
	Predictor    *predict.Client
	Blobs        storage.BlobStore
	ModelVersion string
}

// New creates a Booth from its collaborators.
func New(opts Options) *Booth {
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = normalize.New()
	}
	return &Booth{
		normalizer:   normalizer,
		predictor:    opts.Predictor,
		blobs:        opts.Blobs,
		modelVersion: opts.ModelVersion,
	}
}

// Result describes one completed booth run.
type Result struct {
	// PhotoURL is the public URL of the normalized upload.
	PhotoURL string `json:"photo_url"`
	// OutputURL is the first output of the prediction.
	OutputURL string `json:"output_url"`
	// Width and Height are the canonical (post-correction) dimensions.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Prepare normalizes an upload and publishes it, without running a
// prediction. The returned result has an empty OutputURL.
func (b *Booth) Prepare(ctx context.Context, data []byte, name string) (*Result, error) {
	canonical, err := b.normalizer.Normalize(data, name)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", name, err)
	}

	url, err := b.blobs.Upload(ctx, storage.UniqueKey(canonical.Name), canonical.Data)
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", canonical.Name, err)
	}

	return &Result{
		PhotoURL: url,
		Width:    canonical.Width,
		Height:   canonical.Height,
	}, nil
}

// Stylize runs a prediction against an already-published photo URL and
// returns the first output URL.
func (b *Booth) Stylize(ctx context.Context, photoURL, prompt string, onProgress predict.ProgressFunc) (string, error) {
	input := map[string]any{
		"prompt": prompt,
		"image":  []string{photoURL},
	}
	return b.predictor.Run(ctx, b.modelVersion, input, onProgress)
}

// Process runs the full pipeline: normalize, publish, predict.
func (b *Booth) Process(ctx context.Context, data []byte, name, prompt string) (*Result, error) {
	result, err := b.Prepare(ctx, data, name)
	if err != nil {
		return nil, err
	}

	output, err := b.Stylize(ctx, result.PhotoURL, prompt, nil)
	if err != nil {
		return nil, err
	}
	result.OutputURL = output
	return result, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
