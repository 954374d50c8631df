package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dgallion1/xmlgest/internal/stats"
)

// handleConvert ingests an upload synchronously and returns the Document.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	filename, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	start := time.Now()
	doc, report, err := s.orchestrator.Converter().Ingest(r.Context(), bytes.NewReader(data), filename)
	s.orchestrator.Stats().Record(stats.Sample{
		Duration: time.Since(start),
		Units:    report.Units,
		Failed:   err != nil,
	})
	if err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"filename": filename,
		"document": doc,
		"report":   report,
	})
}

// handleSanitize streams an upload through the server policy and returns
// the resulting XML. Sanitizer counters travel in X-Sanitize-Stats.
func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	filename, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	// Buffer so a late parse error can still produce a JSON error response.
	var buf bytes.Buffer
	st, err := s.orchestrator.Converter().Sanitize(r.Context(), bytes.NewReader(data), filename, &buf)
	if err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}

	hdr, _ := json.Marshal(st)
	w.Header().Set("X-Sanitize-Stats", string(hdr))
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}
