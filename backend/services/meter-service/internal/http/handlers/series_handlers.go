package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"meterflow/backend/services/meter-service/internal/export"
	"meterflow/backend/services/meter-service/internal/models"
	"meterflow/backend/services/meter-service/internal/parser"
	"meterflow/backend/services/meter-service/internal/service"
)

const (
	sdatField = "sdatFiles"
	eslField  = "eslFiles"

	exportBaseName = "messwerte"
)

// SeriesHandlers exposes the current merged series.
type SeriesHandlers struct {
	service  *service.MeterService
	encoding string
	maxBytes int64
	logger   *zap.Logger
}

// NewSeriesHandlers returns handler. encoding applies to uploaded files unless the form overrides it.
func NewSeriesHandlers(svc *service.MeterService, encoding string, maxBytes int64, logger *zap.Logger) *SeriesHandlers {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &SeriesHandlers{service: svc, encoding: encoding, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /api/series/upload.
func (h *SeriesHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	encoding := h.encoding
	if v := r.FormValue("encoding"); v != "" {
		encoding = v
	}
	if _, err := parser.LookupEncoding(encoding); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sdatFiles, err := readParts(r.MultipartForm.File[sdatField], encoding)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	eslFiles, err := readParts(r.MultipartForm.File[eslField], encoding)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.service.IngestFiles(r.Context(), service.SourceUpload, sdatFiles, eslFiles)
	if err != nil {
		writeServiceError(w, h.logger, "upload ingestion", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// IngestBackend handles POST /api/series/backend with a grouped backend payload.
func (h *SeriesHandlers) IngestBackend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	var resp models.MeterResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	snap, err := h.service.IngestBackend(r.Context(), service.SourceBackend, &resp)
	if err != nil {
		writeServiceError(w, h.logger, "backend ingestion", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Reload handles POST /api/series/reload.
func (h *SeriesHandlers) Reload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Reload(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "backend reload", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// List handles GET /api/series?from=&to=.
func (h *SeriesHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snap, err := h.service.Range(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, h.logger, "series query", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Export handles GET /api/series/export?format=&from=&to=.
func (h *SeriesHandlers) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.service.Range(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, h.logger, "series export", err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, snap.Records); err != nil {
		writeServiceError(w, h.logger, "series export", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportBaseName+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Clear handles POST /api/series/clear.
func (h *SeriesHandlers) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context()); err != nil {
		writeServiceError(w, h.logger, "series clear", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func readParts(headers []*multipart.FileHeader, encoding string) ([]parser.Input, error) {
	inputs := make([]parser.Input, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		text, err := parser.Decode(f, encoding)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", fh.Filename, err)
		}
		inputs = append(inputs, parser.Input{Name: fh.Filename, Text: text})
	}
	return inputs, nil
}
