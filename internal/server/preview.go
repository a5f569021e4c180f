package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/pagesmith/internal/logfields"
)

// handlePreview serves a stored page. /preview/{id} is the project root or,
// for older links, a bare page ID.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pageName := previewPageName(chi.URLParam(r, "page"))

	rendered, nf, err := s.deps.Preview.Resolve(r.Context(), id, pageName)
	if err != nil {
		s.errors.WriteErrorResponse(w, r, err)
		return
	}
	if nf != nil {
		s.logger.Info("Preview not found",
			logfields.ProjectID(id),
			logfields.PageName(pageName),
			logfields.Path(r.URL.Path))
		writeJSON(w, http.StatusNotFound, nf)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", s.deps.Preview.ContentPolicy())
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rendered.HTML))
}

// previewPageName strips a trailing .html or .htm.
func previewPageName(raw string) string {
	name := raw
	for _, ext := range []string{".html", ".htm"} {
		if len(name) > len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext) {
			name = name[:len(name)-len(ext)]
			break
		}
	}
	return name
}
