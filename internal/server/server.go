// Package server exposes the booth pipeline over HTTP: photo upload,
// transformation, record lookup and QR download codes.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/mirrorbooth/mirrorbooth/internal/records"
	"github.com/mirrorbooth/mirrorbooth/internal/utils"
	"github.com/mirrorbooth/mirrorbooth/pkg/normalize"
	"github.com/mirrorbooth/mirrorbooth/pkg/predict"
	"github.com/mirrorbooth/mirrorbooth/pkg/storage"
)

const (
	maxUploadBytes = 32 << 20
	qrSize         = 256
)

// Options wires the server's collaborators.
type Options struct {
	Normalizer   *normalize.Normalizer
	Predictor    *predict.Client
	Blobs        storage.BlobStore
	Records      records.Store
	ModelVersion string
	Logger       zerolog.Logger
}

// Server handles the booth HTTP surface.
type Server struct {
	normalizer   *normalize.Normalizer
	predictor    *predict.Client
	blobs        storage.BlobStore
	records      records.Store
	modelVersion string
	logger       zerolog.Logger
}

// New creates a Server from its collaborators.
func New(opts Options) *Server {
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = normalize.New()
	}
	return &Server{
		normalizer:   normalizer,
		predictor:    opts.Predictor,
		blobs:        opts.Blobs,
		records:      opts.Records,
		modelVersion: opts.ModelVersion,
		logger:       opts.Logger,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/photos", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Post("/transform", s.handleTransform)
			r.Get("/qr", s.handleQR)
		})
	})

	return r
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing photo field")
		return
	}
	defer file.Close()

	if !utils.IsImageFile(header.Filename) {
		s.respondError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "unreadable upload")
		return
	}

	canonical, err := s.normalizer.Normalize(data, header.Filename)
	if err != nil {
		if errors.Is(err, normalize.ErrDecode) {
			s.respondError(w, http.StatusBadRequest, "not a readable image")
			return
		}
		s.logger.Error().Err(err).Msg("normalize failed")
		s.respondError(w, http.StatusInternalServerError, "normalization failed")
		return
	}

	url, err := s.blobs.Upload(r.Context(), storage.UniqueKey(canonical.Name), canonical.Data)
	if err != nil {
		s.logger.Error().Err(err).Msg("blob upload failed")
		s.respondError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	now := time.Now().UTC()
	photo := records.Photo{
		ID:          uuid.NewString(),
		OriginalURL: url,
		Status:      records.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.records.Create(r.Context(), photo); err != nil {
		s.logger.Error().Err(err).Msg("record create failed")
		s.respondError(w, http.StatusInternalServerError, "record store failed")
		return
	}

	s.logger.Info().
		Str("photo_id", photo.ID).
		Str("url", url).
		Int("width", canonical.Width).
		Int("height", canonical.Height).
		Msg("photo uploaded")
	s.respondJSON(w, http.StatusCreated, photo)
}

type transformRequest struct {
	Prompt  string `json:"prompt"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	photo, err := s.records.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "photo not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "record store failed")
		return
	}

	var req transformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		s.respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	version := req.Version
	if version == "" {
		version = s.modelVersion
	}
	if version == "" {
		s.respondError(w, http.StatusBadRequest, "no model version configured")
		return
	}

	if err := s.records.SetProcessing(r.Context(), id, req.Prompt, version); err != nil {
		s.respondError(w, http.StatusInternalServerError, "record store failed")
		return
	}

	input := map[string]any{
		"prompt": req.Prompt,
		"image":  []string{photo.OriginalURL},
	}
	output, err := s.predictor.Run(r.Context(), version, input, func(p *predict.Prediction) {
		s.logger.Debug().
			Str("photo_id", id).
			Str("prediction_id", p.ID).
			Str("status", string(p.Status)).
			Msg("transform progress")
	})
	if err != nil {
		if recErr := s.records.SetFailed(r.Context(), id, err.Error()); recErr != nil {
			s.logger.Error().Err(recErr).Str("photo_id", id).Msg("record update failed")
		}
		s.logger.Error().Err(err).Str("photo_id", id).Msg("transform failed")
		s.respondError(w, transformStatusCode(err), err.Error())
		return
	}

	if err := s.records.SetResult(r.Context(), id, output); err != nil {
		s.respondError(w, http.StatusInternalServerError, "record store failed")
		return
	}
	photo, err = s.records.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "record store failed")
		return
	}
	s.respondJSON(w, http.StatusOK, photo)
}

// transformStatusCode maps pipeline failures onto HTTP status codes.
func transformStatusCode(err error) int {
	var jobErr *predict.JobError
	var apiErr *predict.APIError
	switch {
	case errors.Is(err, predict.ErrPollTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &jobErr), errors.As(err, &apiErr), errors.Is(err, predict.ErrUnexpectedOutput):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	photo, err := s.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "photo not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "record store failed")
		return
	}
	s.respondJSON(w, http.StatusOK, photo)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	photos, err := s.records.List(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "record store failed")
		return
	}
	s.respondJSON(w, http.StatusOK, photos)
}

// handleQR renders the download code shown on the booth screen.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	photo, err := s.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "photo not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "record store failed")
		return
	}
	if photo.ResultURL == "" {
		s.respondError(w, http.StatusConflict, "no result to link yet")
		return
	}

	png, err := qrcode.Encode(photo.ResultURL, qrcode.Medium, qrSize)
	if err != nil {
		s.logger.Error().Err(err).Str("photo_id", photo.ID).Msg("qr encode failed")
		s.respondError(w, http.StatusInternalServerError, "qr encoding failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
