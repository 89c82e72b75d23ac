package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/mirrorbooth/mirrorbooth"
	"github.com/mirrorbooth/mirrorbooth/internal/config"
	"github.com/mirrorbooth/mirrorbooth/internal/utils"
	"github.com/mirrorbooth/mirrorbooth/pkg/normalize"
	"github.com/mirrorbooth/mirrorbooth/pkg/predict"
	"github.com/mirrorbooth/mirrorbooth/pkg/prompt"
	"github.com/mirrorbooth/mirrorbooth/pkg/storage"
)

func main() {
	var in, out, model, baseURL, token, stylePrompt, policy, configPath string
	var quality int
	var suggest, verbose bool

	flag.StringVar(&in, "in", "", "input photo path (jpg/png/webp)")
	flag.StringVar(&out, "out", "", "directory to download the stylized result into (optional)")
	flag.StringVar(&model, "model", "", "prediction model version")
	flag.StringVar(&baseURL, "url", "", "prediction API base URL")
	flag.StringVar(&token, "token", "", "prediction API token (overrides BOOTH_API_TOKEN)")
	flag.StringVar(&stylePrompt, "prompt", "", "transformation prompt")
	flag.BoolVar(&suggest, "suggest", false, "ask the local Ollama model for a prompt when -prompt is empty")
	flag.StringVar(&policy, "policy", "", "orientation policy: correct|strip")
	flag.IntVar(&quality, "quality", 0, "JPEG quality for the canonical photo (1-100)")
	flag.StringVar(&configPath, "config", "", "config file path (default ~/.config/mirrorbooth/config.json)")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	if verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	if in == "" {
		logger.Fatal().Msgf("usage: %s -in photo.jpg -prompt \"make it cyberpunk\" [-out dir] [-model version]",
			filepath.Base(os.Args[0]))
	}

	godotenv.Load()

	cfg := loadConfig(logger, configPath)
	cfg.ApplyEnv()
	if model != "" {
		cfg.Predict.ModelVersion = model
	}
	if baseURL != "" {
		cfg.Predict.BaseURL = baseURL
	}
	if token != "" {
		cfg.Predict.Token = token
	}
	if policy != "" {
		cfg.Normalizer.Policy = policy
	}
	if quality != 0 {
		cfg.Normalizer.Quality = quality
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Predict.ModelVersion == "" {
		logger.Fatal().Msg("no model version: pass -model or set BOOTH_MODEL_VERSION")
	}

	if !utils.IsImageFile(in) {
		logger.Fatal().Str("path", in).Msg("input must be a jpg, png or webp file")
	}
	data, err := os.ReadFile(in)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read input")
	}

	ctx := context.Background()

	if stylePrompt == "" {
		if !suggest {
			logger.Fatal().Msg("no prompt: pass -prompt or enable -suggest")
		}
		stylePrompt = suggestPrompt(ctx, logger, cfg, data)
	}

	blobs, err := storage.NewFileStore(cfg.Storage.Root, cfg.Storage.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}

	booth := mirrorbooth.New(mirrorbooth.Options{
		Normalizer: normalize.NewWithConfig(normalize.Config{
			Policy:  cfg.Normalizer.PolicyValue(),
			Quality: cfg.Normalizer.Quality,
		}),
		Predictor: predict.NewClient(predict.Options{
			BaseURL:      cfg.Predict.BaseURL,
			Token:        cfg.Predict.Token,
			PollInterval: cfg.Predict.PollInterval(),
			MaxAttempts:  cfg.Predict.MaxAttempts,
			Logger:       &logger,
		}),
		Blobs:        blobs,
		ModelVersion: cfg.Predict.ModelVersion,
	})

	result, err := booth.Prepare(ctx, data, filepath.Base(in))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare photo")
	}
	logger.Info().
		Str("url", result.PhotoURL).
		Int("width", result.Width).
		Int("height", result.Height).
		Msg("photo published")

	output, err := booth.Stylize(ctx, result.PhotoURL, stylePrompt, func(p *predict.Prediction) {
		logger.Info().Str("prediction_id", p.ID).Str("status", string(p.Status)).Msg("prediction")
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("stylization failed")
	}

	fmt.Println(output)

	if out != "" {
		path, err := download(ctx, output, out)
		if err != nil {
			logger.Fatal().Err(err).Msg("download failed")
		}
		logger.Info().Str("path", path).Msg("result downloaded")
	}
}

func loadConfig(logger zerolog.Logger, path string) *config.Config {
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return config.Default()
		}
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", path).Msg("failed to load config")
	}
	return cfg
}

func suggestPrompt(ctx context.Context, logger zerolog.Logger, cfg *config.Config, data []byte) string {
	suggester, err := prompt.NewSuggester(cfg.Ollama.URL, cfg.Ollama.Model)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create prompt suggester")
	}
	suggestion, err := suggester.Suggest(ctx, data)
	if err != nil {
		logger.Fatal().Err(err).Msg("prompt suggestion failed")
	}
	logger.Info().Str("prompt", suggestion).Msg("suggested prompt")
	return suggestion
}

// download fetches the stylized output into dir, keeping the remote filename.
func download(ctx context.Context, url, dir string) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d fetching %s", resp.StatusCode, url)
	}

	name := filepath.Base(resp.Request.URL.Path)
	if name == "" || name == "." || name == "/" {
		name = "result.png"
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return path, nil
}
