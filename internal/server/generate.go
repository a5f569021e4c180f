package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesmith/internal/journal"
	"git.home.luguber.info/inful/pagesmith/internal/logfields"
	"git.home.luguber.info/inful/pagesmith/internal/pipeline"
	"git.home.luguber.info/inful/pagesmith/internal/stream"
)

// GenerationHeader carries the generation ID on stream responses.
const GenerationHeader = "X-Generation-ID"

// StageFinished is the stage name of the last progress frame of a
// successful stream; its data is the run result.
const StageFinished = "finished"

type generateRequest struct {
	Prompt   string   `json:"prompt" validate:"required,max=20000"`
	Strategy string   `json:"strategy,omitempty" validate:"omitempty,max=32"`
	Pages    []string `json:"pages,omitempty" validate:"omitempty,max=24,dive,required,max=64"`

	StageIndex  int    `json:"stageIndex,omitempty" validate:"gte=0"`
	Accumulated string `json:"accumulated,omitempty"`
	TargetPage  string `json:"targetPage,omitempty" validate:"omitempty,max=64"`
	ProjectID   string `json:"projectId,omitempty"`

	PageID         string `json:"pageId,omitempty" validate:"required_if=IsModification true"`
	IsModification bool   `json:"isModification,omitempty"`
}

func (g generateRequest) pipelineRequest(genID string) pipeline.Request {
	return pipeline.Request{
		Prompt:         g.Prompt,
		Strategy:       g.Strategy,
		Pages:          g.Pages,
		StageIndex:     g.StageIndex,
		Accumulated:    g.Accumulated,
		TargetPage:     g.TargetPage,
		ProjectID:      g.ProjectID,
		PageID:         g.PageID,
		IsModification: g.IsModification,
		GenerationID:   genID,
	}
}

// handleGenerate streams one generation as server-sent events. The stream
// always ends with the sentinel frame, including after a panic.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := s.decode(r, &req); err != nil {
		s.errors.WriteErrorResponse(w, r, err)
		return
	}

	genID := uuid.NewString()
	log := s.logger.With(logfields.GenerationID(genID))
	w.Header().Set(GenerationHeader, genID)

	em := stream.New(w,
		stream.WithKeepAlive(s.cfg.StreamKeepAlive),
		stream.WithLogger(log),
		stream.WithRecorder(s.deps.Recorder))
	defer em.Close()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Stream handler panic",
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())))
			_ = em.Error(errors.InternalError("generation aborted").Build())
		}
	}()

	res, err := s.deps.Generator.Run(r.Context(), req.pipelineRequest(genID), em)
	switch {
	case err == nil:
		_ = em.Event(stream.Event{Type: stream.EventStage, GenerationID: genID, Stage: StageFinished, Message: "generation completed", Data: res})
	case res != nil && res.State == pipeline.StateCanceled:
		_ = em.Event(stream.Event{Type: stream.EventWarning, GenerationID: genID, Message: "generation canceled: " + err.Error()})
	default:
		_ = em.Error(err)
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.deps.Generator.Registry().Cancel(id, "canceled by request") {
		s.errors.WriteErrorResponse(w, r, errors.NotFoundError("no active generation").
			WithContext("generation_id", id).Build())
		return
	}
	s.logger.Info("Generation cancel requested", logfields.GenerationID(id))
	writeJSON(w, http.StatusAccepted, map[string]string{"generationId": id, "status": "canceling"})
}

// eventView is a journal entry with its payload inlined as JSON.
type eventView struct {
	ID        int64             `json:"id"`
	Kind      journal.Kind      `json:"kind"`
	Timestamp string            `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := s.deps.Journal.ByGeneration(r.Context(), id)
	if err != nil {
		s.errors.WriteErrorResponse(w, r, err)
		return
	}
	if len(entries) == 0 {
		s.errors.WriteErrorResponse(w, r, errors.NotFoundError("no recorded events").
			WithContext("generation_id", id).Build())
		return
	}
	views := make([]eventView, 0, len(entries))
	for _, e := range entries {
		v := eventView{ID: e.ID, Kind: e.Kind, Timestamp: e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"), Metadata: e.Metadata}
		if len(e.Payload) > 0 && json.Valid(e.Payload) {
			v.Payload = e.Payload
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"generationId": id, "events": views})
}
