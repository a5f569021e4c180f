package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/pagesmith/internal/site"
)

func (s *Server) handleSavePage(w http.ResponseWriter, r *http.Request) {
	var req site.SaveRequest
	if err := s.decode(r, &req); err != nil {
		s.errors.WriteErrorResponse(w, r, err)
		return
	}
	res, err := s.deps.Sites.Save(r.Context(), req)
	if err != nil {
		s.errors.WriteErrorResponse(w, r, err)
		return
	}
	status := http.StatusOK
	if res.PageCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.Sites.GetPage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errors.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Sites.ListProjects(r.Context())
	if err != nil {
		s.errors.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects, "count": len(projects)})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.deps.Sites.GetProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errors.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleProjectLinks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reports, err := s.deps.Sites.AuditProject(r.Context(), id)
	if err != nil {
		s.errors.WriteErrorResponse(w, r, err)
		return
	}
	unresolved := 0
	for _, rep := range reports {
		unresolved += len(rep.Unresolved)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"projectId":  id,
		"pages":      reports,
		"unresolved": unresolved,
	})
}
