// Package prompt suggests an image-transformation prompt for a photo using a
// local Ollama vision model, for visitors who leave the prompt field empty.
package prompt

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const instruction = "Look at this photo and reply with one short art-direction sentence " +
	"describing a fun stylized transformation of it. Reply with the sentence only, no quotes."

// Suggester wraps an Ollama vision model.
type Suggester struct {
	client *api.Client
	model  string
}

// NewSuggester creates a Suggester talking to the given Ollama server URL,
// ignoring the environment.
func NewSuggester(serverURL, model string) (*Suggester, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &Suggester{client: api.NewClient(base, http.DefaultClient), model: model}, nil
}

// Suggest returns a one-line transformation prompt for the photo.
func (s *Suggester) Suggest(ctx context.Context, imageData []byte) (string, error) {
	// Vision models on CPU can be slow; bound the call if the caller
	// didn't.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 120*time.Second)
		defer cancel()
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: s.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: instruction,
				Images:  []api.ImageData{api.ImageData(imageData)},
			},
		},
		Stream: &streamFalse,
	}

	var content string
	err := s.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %v", err)
	}

	suggestion := sanitize(content)
	if suggestion == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return suggestion, nil
}

// sanitize strips code fences and quoting and keeps the first line.
func sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(raw, "`\" \n")
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}
