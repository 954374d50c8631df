package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/xmlgest/internal/pipeline"
	"github.com/dgallion1/xmlgest/internal/query"
)

// handleListDocuments lists all documents for a user.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	docs, err := s.orchestrator.Store().List(r.Context(), userID, limit)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), errorStatus(err))
		return
	}
	if docs == nil {
		docs = []pipeline.DocumentSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// record loads the document named in the URL. On failure it writes the
// error response and returns nil.
func (s *Server) record(w http.ResponseWriter, r *http.Request) *pipeline.DocumentRecord {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return nil
	}
	rec, err := s.orchestrator.Store().Get(r.Context(), userID, chi.URLParam(r, "docID"))
	if err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return nil
	}
	return rec
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	rec := s.record(w, r)
	if rec == nil {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRenderDocument replays the stored Document as XML. With
// sanitize=true the server policy filters the replayed events.
func (s *Server) handleRenderDocument(w http.ResponseWriter, r *http.Request) {
	rec := s.record(w, r)
	if rec == nil {
		return
	}
	conv := s.orchestrator.Converter()
	table := conv.Policy
	if r.URL.Query().Get("sanitize") != "true" {
		table = nil
	}

	var buf bytes.Buffer
	if err := conv.Render(rec.Document, &buf, table); err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleQueryDocument evaluates an XPath expression against the stored
// Document. Node-set results come back as offset matches.
func (s *Server) handleQueryDocument(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("xpath")
	if expr == "" {
		jsonError(w, "xpath query parameter is required", http.StatusBadRequest)
		return
	}
	rec := s.record(w, r)
	if rec == nil {
		return
	}

	idx, err := query.NewIndex(rec.Document)
	if err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	result, err := idx.Evaluate(expr)
	if err != nil {
		jsonError(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id": rec.DocID,
		"xpath":  expr,
		"result": result,
	})
}

// handleDeleteDocument deletes a document and its hash index entry.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	if err := s.orchestrator.Store().Delete(r.Context(), userID, docID); err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":  docID,
		"deleted": true,
	})
}
