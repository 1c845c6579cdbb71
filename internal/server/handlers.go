package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/recibo/internal/receipt"
)

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ScanResponse is the /scan payload.
type ScanResponse struct {
	Success bool                   `json:"success"`
	Receipt *receipt.ParsedReceipt `json:"receipt,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}

// scanHandler accepts a multipart receipt image and returns the parsed
// receipt. The pipeline never half-fails: even degraded runs produce a
// receipt payload, so most error branches here are input problems.
func (s *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	maxBytes := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "too large") {
			s.writeError(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeError(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > maxBytes {
		s.writeError(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, "Failed to read image data", http.StatusInternalServerError)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	img := receipt.Image{Data: data, MIME: header.Header.Get("Content-Type")}
	if err := img.Validate(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.processor == nil {
		s.writeError(w, "Extraction pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	parsed, err := s.processor.Process(r.Context(), img)
	duration := time.Since(start)

	if err != nil {
		scanRequestsTotal.WithLabelValues("http", errorKindLabel(err)).Inc()
		s.writeError(w, err.Error(), statusForError(err))
		return
	}

	scanRequestsTotal.WithLabelValues("http", "success").Inc()
	scanDuration.WithLabelValues("http").Observe(duration.Seconds())
	itemsExtracted.WithLabelValues("http").Observe(float64(len(parsed.Items)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ScanResponse{Success: true, Receipt: parsed}); err != nil {
		slog.Error("failed to encode scan response", "error", err)
	}
}

// statusForError maps the pipeline's typed errors to HTTP status codes.
func statusForError(err error) int {
	var rerr *receipt.Error
	if !errors.As(err, &rerr) {
		return http.StatusInternalServerError
	}
	switch rerr.Kind {
	case receipt.KindInvalidInput:
		return http.StatusBadRequest
	case receipt.KindTimeout:
		return http.StatusGatewayTimeout
	case receipt.KindBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorKindLabel(err error) string {
	var rerr *receipt.Error
	if errors.As(err, &rerr) {
		return string(rerr.Kind)
	}
	return "internal"
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ScanResponse{Success: false, Error: message}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
