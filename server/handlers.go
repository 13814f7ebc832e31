package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pithecene-io/ghostwriter/completion"
	"github.com/pithecene-io/ghostwriter/lode"
	"github.com/pithecene-io/ghostwriter/types"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type planResponse struct {
	types.CompletionPlan
	Batches    int `json:"batches"`
	TotalSteps int `json:"total_steps"`
}

type startRequest struct {
	TotalSlots int `json:"total_slots"`
}

type startResponse struct {
	RunID       string                `json:"run_id"`
	Attempt     int                   `json:"attempt"`
	ParentRunID *string               `json:"parent_run_id,omitempty"`
	State       types.CompletionState `json:"state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePlan previews the batch plan without touching the gateway.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	totalSlots, err := strconv.Atoi(r.URL.Query().Get("total_slots"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("total_slots must be an integer"))
		return
	}

	batchSize := s.config.BatchSize
	if batchSize == 0 {
		batchSize = completion.MaxBatchSize
	}
	if raw := r.URL.Query().Get("batch_size"); raw != "" {
		if batchSize, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("batch_size must be an integer"))
			return
		}
	}

	plan, err := completion.Plan(totalSlots, batchSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{
		CompletionPlan: plan,
		Batches:        plan.BatchCount(),
		TotalSteps:     plan.TotalSteps(),
	})
}

func (s *Server) handleGetCompletion(w http.ResponseWriter, r *http.Request) {
	storyID := types.StoryID(chi.URLParam(r, "storyID"))
	writeJSON(w, http.StatusOK, s.registry.Get(storyID))
}

// handleStartCompletion starts a run in the background and answers 202.
// Input errors are rejected synchronously with 400.
func (s *Server) handleStartCompletion(w http.ResponseWriter, r *http.Request) {
	storyID := types.StoryID(chi.URLParam(r, "storyID"))

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.TotalSlots < 1 {
		writeError(w, http.StatusBadRequest, completion.ErrInvalidSlotCount)
		return
	}

	meta, state, err := s.startRun(storyID, req.TotalSlots)
	switch {
	case errors.Is(err, ErrRunning):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		s.logger.Error("failed to start completion run", map[string]any{
			"story_id": string(storyID),
			"error":    err.Error(),
		})
		writeError(w, http.StatusInternalServerError, errors.New("failed to start run"))
		return
	}

	writeJSON(w, http.StatusAccepted, startResponse{
		RunID:       meta.RunID,
		Attempt:     meta.Attempt,
		ParentRunID: meta.ParentRunID,
		State:       state,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	storyID := types.StoryID(chi.URLParam(r, "storyID"))

	snap, err := s.registry.Reset(storyID)
	switch {
	case errors.Is(err, ErrRunning), errors.Is(err, completion.ErrRunInProgress):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleHistory returns the story's journal records, optionally narrowed
// to one run with ?run_id=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.config.Journal == nil {
		writeError(w, http.StatusNotFound, errors.New("journal is not configured"))
		return
	}
	storyID := types.StoryID(chi.URLParam(r, "storyID"))

	records, err := lode.QueryHistory(r.Context(), s.config.Journal, storyID, r.URL.Query().Get("run_id"))
	if err != nil {
		s.logger.Error("failed to read journal", map[string]any{
			"story_id": string(storyID),
			"error":    err.Error(),
		})
		writeError(w, http.StatusInternalServerError, errors.New("failed to read journal"))
		return
	}
	if records == nil {
		records = []*types.JournalRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
