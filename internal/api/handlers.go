// Package api provides HTTP handlers for Pipkin endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pipkin-app/pipkin/internal/models"
)

// taskActionRequest carries a task ID for start/complete actions.
type taskActionRequest struct {
	ID string `json:"id"`
}

// refreshRequest optionally names a task to retain across the refresh.
type refreshRequest struct {
	RetainTaskID string `json:"retain_task_id,omitempty"`
}

// purchaseRequest names a decoration and its energy cost.
type purchaseRequest struct {
	Name string `json:"name"`
	Cost int    `json:"cost"`
}

// regionRequest carries a region/timezone identifier.
type regionRequest struct {
	Region string `json:"region"`
}

// slotView is the /slot response payload.
type slotView struct {
	Slot       models.TimeSlot   `json:"slot"`
	Tasks      []models.UserTask `json:"tasks"`
	CanRefresh bool              `json:"can_refresh"`
}

func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tasks, err := s.eng.TodayTasks()
	if err != nil {
		slog.Error("Server.tasksHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list tasks"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(tasks))
}

func (s *Server) taskStartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req taskActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.taskStartHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.ID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Task ID is required"))
		return
	}
	if err := s.eng.StartTask(r.Context(), req.ID); err != nil {
		slog.Error("Server.taskStartHandler: start failed", "error", err, "id", req.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start task"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Task start processed", nil))
}

func (s *Server) taskCompleteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req taskActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.taskCompleteHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.ID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Task ID is required"))
		return
	}
	result, err := s.eng.CompleteTask(r.Context(), req.ID)
	if err != nil {
		slog.Error("Server.taskCompleteHandler: complete failed", "error", err, "id", req.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to complete task"))
		return
	}
	if result == nil {
		// Stale or premature completion attempt. Not an error, just nothing
		// happened.
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Task not completable yet", nil))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) slotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tasks, err := s.eng.CurrentSlotTasks()
	if err != nil {
		slog.Error("Server.slotHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list slot tasks"))
		return
	}
	canRefresh, err := s.eng.CanRefreshCurrentSlot(r.Context())
	if err != nil {
		slog.Error("Server.slotHandler: refresh check failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to check refresh eligibility"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(slotView{
		Slot:       s.eng.CurrentSlot(),
		Tasks:      tasks,
		CanRefresh: canRefresh,
	}))
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.refreshHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	tasks, err := s.eng.RefreshCurrentSlot(r.Context(), req.RetainTaskID)
	switch {
	case errors.Is(err, models.ErrRefreshAlreadyUsed):
		writeJSONResponse(w, http.StatusConflict, models.Error("Refresh already used for this slot"))
		return
	case errors.Is(err, models.ErrRefreshNotEligible):
		writeJSONResponse(w, http.StatusConflict, models.Error("Refresh requires all current tasks completed"))
		return
	case err != nil:
		slog.Error("Server.refreshHandler: refresh failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to refresh slot"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(tasks))
}

func (s *Server) petHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pet, err := s.eng.Pet()
	if err != nil {
		slog.Error("Server.petHandler: load failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load pet"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(pet))
}

func (s *Server) pettingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pet, err := s.eng.ApplyPettingReward(r.Context())
	if err != nil {
		slog.Error("Server.pettingHandler: petting failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to apply petting reward"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(pet))
}

func (s *Server) purchaseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.purchaseHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.eng.PurchaseDecoration(r.Context(), req.Name, req.Cost); err != nil {
		slog.Warn("Server.purchaseHandler: purchase rejected", "error", err, "name", req.Name)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Decoration purchased", nil))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.eng.Stats()
	if err != nil {
		slog.Error("Server.statsHandler: load failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

func (s *Server) regionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		w.Header().Set("Allow", http.MethodPost+", "+http.MethodPut)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req regionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.regionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Region == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Region is required"))
		return
	}
	if err := s.eng.SetRegion(r.Context(), req.Region); err != nil {
		slog.Warn("Server.regionHandler: region rejected", "error", err, "region", req.Region)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown region"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Region updated", nil))
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit"))
			return
		}
		limit = parsed
	}
	events, err := s.eng.EnergyHistory(limit)
	if err != nil {
		slog.Error("Server.historyHandler: load failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load history"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}
