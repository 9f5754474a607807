package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bobarin/iris/internal/models"
	"github.com/bobarin/iris/internal/services"
	"github.com/bobarin/iris/internal/store"
	"github.com/bobarin/iris/internal/worker"
)

type Handler struct {
	machine *worker.Machine
	planner services.Planner
}

func NewHandler(machine *worker.Machine, planner services.Planner) *Handler {
	return &Handler{
		machine: machine,
		planner: planner,
	}
}

// PlanSegments handles POST /api/generate-segments
func (h *Handler) PlanSegments(w http.ResponseWriter, r *http.Request) {
	var req models.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Topic) == "" {
		respondError(w, http.StatusBadRequest, "Topic is required")
		return
	}

	segments, err := h.planner.PlanSegments(r.Context(), req.Topic, req.SegmentCount, req.Context)
	if err != nil {
		respondError(w, http.StatusBadGateway, "Failed to plan segments: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, models.PlanResponse{Segments: segments})
}

// CreateJob handles POST /api/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Segments) == 0 {
		respondError(w, http.StatusBadRequest, "At least one segment is required")
		return
	}

	job, err := h.machine.CreateJob(r.Context(), req.Context, req.Segments)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, job)
}

// ListJobs handles GET /api/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.machine.ListJobs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	respondJSON(w, http.StatusOK, models.ListJobsResponse{Jobs: jobs})
}

// GetJob handles GET /api/jobs/{jobID}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.machine.GetJob(r.Context(), jobID)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// StartJob handles POST /api/jobs/{jobID}/start
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.machine.Start(r.Context(), jobID)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// PauseJob handles POST /api/jobs/{jobID}/pause
func (h *Handler) PauseJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.machine.Pause(r.Context(), jobID)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// resumeRequest optionally pins the segment index a resume restarts from.
type resumeRequest struct {
	FromIndex *int `json:"from_index,omitempty"`
}

// ResumeJob handles POST /api/jobs/{jobID}/resume. Without an explicit
// from_index the job resumes at its first non-completed segment.
func (h *Handler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	var req resumeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var index int
	if req.FromIndex != nil {
		index = *req.FromIndex
	} else {
		job, err := h.machine.GetJob(r.Context(), jobID)
		if err != nil {
			respondMachineError(w, err)
			return
		}
		index = job.FirstIncompleteIndex()
		if index < 0 {
			respondError(w, http.StatusConflict, "All segments already completed")
			return
		}
	}

	job, err := h.machine.ResumeFrom(r.Context(), jobID, index)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// RetrySegment handles POST /api/jobs/{jobID}/segments/{segmentID}/retry.
// The retry runs in the background; the response carries the segment
// already reset to processing.
func (h *Handler) RetrySegment(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	segmentID, ok := segmentIDParam(w, r)
	if !ok {
		return
	}

	segment, err := h.machine.RetrySegment(r.Context(), jobID, segmentID)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, segment)
}

// ReplaceSegments handles PUT /api/jobs/{jobID}/segments
func (h *Handler) ReplaceSegments(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	var req models.ReplaceSegmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Segments) == 0 {
		respondError(w, http.StatusBadRequest, "At least one segment is required")
		return
	}

	job, err := h.machine.ReplaceSegments(r.Context(), jobID, req.Segments)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// UpdateSegment handles PATCH /api/jobs/{jobID}/segments/{segmentID}
func (h *Handler) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	segmentID, ok := segmentIDParam(w, r)
	if !ok {
		return
	}

	var update models.SegmentUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	segment, err := h.machine.UpdateSegment(r.Context(), jobID, segmentID, &update)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, segment)
}

// DeleteSegment handles DELETE /api/jobs/{jobID}/segments/{segmentID}
func (h *Handler) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	segmentID, ok := segmentIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.machine.DeleteSegment(r.Context(), jobID, segmentID)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// SegmentLogs handles GET /api/jobs/{jobID}/segments/{segmentID}/logs
func (h *Handler) SegmentLogs(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	segmentID, ok := segmentIDParam(w, r)
	if !ok {
		return
	}

	logs, segErr, err := h.machine.SegmentLogs(r.Context(), jobID, segmentID)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.SegmentLogsResponse{Logs: logs, Error: segErr})
}

// SegmentVideo handles GET /api/jobs/{jobID}/segments/{segmentID}/video.
// It streams the segment's combined output, or the raw visual when the
// segment never reached the combine step.
func (h *Handler) SegmentVideo(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	segmentID, ok := segmentIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.machine.GetJob(r.Context(), jobID)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	segment, _ := job.SegmentByID(segmentID)
	if segment == nil {
		respondError(w, http.StatusNotFound, "Segment not found")
		return
	}

	path := segment.OutputPath()
	if path == "" {
		respondError(w, http.StatusNotFound, "Segment video not ready")
		return
	}

	http.ServeFile(w, r, path)
}

// FinalVideo handles GET /api/jobs/{jobID}/final-video
func (h *Handler) FinalVideo(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.machine.GetJob(r.Context(), jobID)
	if err != nil {
		respondMachineError(w, err)
		return
	}

	if job.FinalVideoPath == nil || *job.FinalVideoPath == "" {
		respondError(w, http.StatusNotFound, "Final video not ready")
		return
	}

	filename := fmt.Sprintf("iris_video_%s.mp4", jobID.String()[:8])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, *job.FinalVideoPath)
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// URL param helpers

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

func segmentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "segmentID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid segment ID")
		return uuid.Nil, false
	}
	return id, true
}

// respondMachineError maps state machine errors onto HTTP statuses:
// missing records are 404, lifecycle conflicts are 409, anything else
// is treated as a validation failure.
func respondMachineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, worker.ErrSegmentNotFound):
		respondError(w, http.StatusNotFound, "Segment not found")
	case errors.Is(err, worker.ErrJobRunning), errors.Is(err, worker.ErrJobNotRunning):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
